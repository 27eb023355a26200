package propagation

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/star/spacesim/internal/mjd"
	"github.com/star/spacesim/internal/scene"
)

// SpinAngle returns the body's rotation about its own axis at simMJD, in
// [0, 2π). The angle is measured from J2000 so that it does not accumulate
// per-tick error. A zero siderial day means the body does not spin; a
// negative one spins retrograde.
func SpinAngle(b *scene.Body, simMJD float64) float64 {
	if b.SiderialDay == 0 {
		return 0
	}
	turns := (simMJD - mjd.J2000) * mjd.SecondsPerDay / b.SiderialDay
	frac := turns - math.Floor(turns)
	return 2 * math.Pi * frac
}

// Orientation returns the body's rotation: axial tilt about X applied after
// the spin about the body's Y axis.
func Orientation(b *scene.Body, simMJD float64) mgl64.Quat {
	tilt := mgl64.QuatRotate(b.AxialInclination, mgl64.Vec3{1, 0, 0})
	spin := mgl64.QuatRotate(SpinAngle(b, simMJD), mgl64.Vec3{0, 1, 0})
	return tilt.Mul(spin).Normalize()
}
