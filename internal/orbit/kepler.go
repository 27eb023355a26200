package orbit

import (
	"errors"
	"math"
)

const (
	twoPi = 2 * math.Pi

	keplerTolerance     = 1e-10
	keplerMaxIterations = 100
)

// ErrNoConvergence is returned when Newton-Raphson does not reach the
// tolerance within the iteration budget. The accompanying result is the last
// iterate and is still usable.
var ErrNoConvergence = errors.New("kepler solver did not converge")

// SolveKepler solves M = E - e·sin(E) for the eccentric anomaly E.
// M is normalized to [0, 2π) first. For e == 0 it returns E = M.
func SolveKepler(meanAnomaly, eccentricity float64) (float64, error) {
	m := normalizeAngle(meanAnomaly)
	if eccentricity == 0 {
		return m, nil
	}

	e := m
	if eccentricity > 0.8 {
		e = math.Pi
	}
	for range keplerMaxIterations {
		f := e - eccentricity*math.Sin(e) - m
		fp := 1 - eccentricity*math.Cos(e)
		delta := f / fp
		e -= delta
		if math.Abs(delta) < keplerTolerance {
			return e, nil
		}
	}
	return e, ErrNoConvergence
}

// TrueAnomaly converts an eccentric anomaly to the true anomaly in [0, 2π).
func TrueAnomaly(eccentricAnomaly, eccentricity float64) float64 {
	half := eccentricAnomaly / 2
	nu := 2 * math.Atan2(
		math.Sqrt(1+eccentricity)*math.Sin(half),
		math.Sqrt(1-eccentricity)*math.Cos(half),
	)
	return normalizeAngle(nu)
}

func normalizeAngle(a float64) float64 {
	a = math.Mod(a, twoPi)
	if a < 0 {
		a += twoPi
	}
	return a
}
