// Package orbit computes body positions from classical Keplerian elements.
//
// Positions are expressed in the parent body's frame using scene axes (Y up,
// right handed). The elements themselves are defined against the ecliptic
// (Z up); the conversion happens once when the rotation is built.
package orbit

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidElements is returned by Validate.
var ErrInvalidElements = errors.New("invalid orbital elements")

// Elements are the six classical orbital elements plus their epoch.
// Angles are radians, the period is seconds and the semi-major axis meters.
type Elements struct {
	Epoch         float64 // MJD
	Period        float64 // seconds
	SemiMajorAxis float64 // meters
	Eccentricity  float64
	Inclination   float64 // radians
	LongAscNode   float64 // radians
	ArgPeriapsis  float64 // radians
}

// Validate rejects hyperbolic/parabolic orbits, non-positive period or axis,
// and non-finite values.
func (el Elements) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"epoch", el.Epoch},
		{"period", el.Period},
		{"semi-major-axis", el.SemiMajorAxis},
		{"eccentricity", el.Eccentricity},
		{"inclination", el.Inclination},
		{"longitude-of-ascending-node", el.LongAscNode},
		{"argument-of-periapsis", el.ArgPeriapsis},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidElements, f.name)
		}
	}
	if el.Eccentricity < 0 || el.Eccentricity >= 1 {
		return fmt.Errorf("%w: eccentricity %g outside [0, 1)", ErrInvalidElements, el.Eccentricity)
	}
	if el.Period <= 0 {
		return fmt.Errorf("%w: period %g must be positive", ErrInvalidElements, el.Period)
	}
	if el.SemiMajorAxis <= 0 {
		return fmt.Errorf("%w: semi-major-axis %g must be positive", ErrInvalidElements, el.SemiMajorAxis)
	}
	return nil
}

// MeanMotion returns 2π/period in rad/s.
func (el Elements) MeanMotion() float64 {
	return 2 * math.Pi / el.Period
}

// Periapsis returns a(1-e).
func (el Elements) Periapsis() float64 {
	return el.SemiMajorAxis * (1 - el.Eccentricity)
}

// Apoapsis returns a(1+e).
func (el Elements) Apoapsis() float64 {
	return el.SemiMajorAxis * (1 + el.Eccentricity)
}
