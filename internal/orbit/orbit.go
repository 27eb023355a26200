package orbit

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// eclipticToScene maps ecliptic axes (Z up) onto scene axes (Y up):
// (x, y, z) → (x, z, -y). It is a proper rotation, so handedness is kept.
var eclipticToScene = mgl64.Mat3{
	1, 0, 0,
	0, 0, -1,
	0, 1, 0,
}

// State is the result of evaluating an orbit at one instant.
type State struct {
	Position         mgl64.Vec3 // meters, parent frame
	Velocity         mgl64.Vec3 // m/s, parent frame
	MeanAnomaly      float64
	EccentricAnomaly float64
	TrueAnomaly      float64
	Radius           float64
}

// Orbit is an immutable, validated set of elements with its rotation
// precomputed.
type Orbit struct {
	el  Elements
	n   float64    // mean motion
	b   float64    // semi-minor axis
	rot mgl64.Mat3 // orbital plane → parent frame, scene axes
}

// New validates el and precomputes the plane rotation.
func New(el Elements) (*Orbit, error) {
	if err := el.Validate(); err != nil {
		return nil, err
	}
	e := el.Eccentricity
	rot := mgl64.Rotate3DZ(el.LongAscNode).
		Mul3(mgl64.Rotate3DX(el.Inclination)).
		Mul3(mgl64.Rotate3DZ(el.ArgPeriapsis))
	return &Orbit{
		el:  el,
		n:   el.MeanMotion(),
		b:   el.SemiMajorAxis * math.Sqrt(1-e*e),
		rot: eclipticToScene.Mul3(rot),
	}, nil
}

// Elements returns the elements the orbit was built from.
func (o *Orbit) Elements() Elements { return o.el }

// SecondsSinceEpoch converts an MJD into the orbit's time argument.
func (o *Orbit) SecondsSinceEpoch(mjd float64) float64 {
	return (mjd - o.el.Epoch) * 86400
}

// MeanAnomaly returns n·t normalized to [0, 2π), t in seconds since epoch.
func (o *Orbit) MeanAnomaly(t float64) float64 {
	return normalizeAngle(o.n * t)
}

// State evaluates the orbit at t seconds since epoch. On ErrNoConvergence the
// returned state is built from the last iterate and remains usable.
func (o *Orbit) State(t float64) (State, error) {
	m := o.MeanAnomaly(t)
	ecc, err := SolveKepler(m, o.el.Eccentricity)

	a, e := o.el.SemiMajorAxis, o.el.Eccentricity
	sinE, cosE := math.Sincos(ecc)
	denom := 1 - e*cosE

	planePos := mgl64.Vec3{a * (cosE - e), o.b * sinE, 0}
	planeVel := mgl64.Vec3{-a * sinE, o.b * cosE, 0}.Mul(o.n / denom)

	return State{
		Position:         o.rot.Mul3x1(planePos),
		Velocity:         o.rot.Mul3x1(planeVel),
		MeanAnomaly:      m,
		EccentricAnomaly: ecc,
		TrueAnomaly:      TrueAnomaly(ecc, e),
		Radius:           a * denom,
	}, err
}

// Position is State(t).Position.
func (o *Orbit) Position(t float64) (mgl64.Vec3, error) {
	s, err := o.State(t)
	return s.Position, err
}

// Path samples n points of the ellipse, evenly spaced in eccentric anomaly,
// in the parent frame. It is used to draw orbit lines.
func (o *Orbit) Path(n int) []mgl64.Vec3 {
	if n <= 0 {
		return nil
	}
	a, e := o.el.SemiMajorAxis, o.el.Eccentricity
	pts := make([]mgl64.Vec3, n)
	for i := range pts {
		sinE, cosE := math.Sincos(twoPi * float64(i) / float64(n))
		pts[i] = o.rot.Mul3x1(mgl64.Vec3{a * (cosE - e), o.b * sinE, 0})
	}
	return pts
}

// Normal returns the unit normal of the orbital plane in the parent frame.
func (o *Orbit) Normal() mgl64.Vec3 {
	return o.rot.Mul3x1(mgl64.Vec3{0, 0, 1})
}
