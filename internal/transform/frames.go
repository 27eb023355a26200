// Package transform provides the frame conversions shared by the simulation:
// SGP4 output (TEME, kilometers, Z up) into scene axes (meters, Y up), and
// camera-space projection used to place screen-space effects.
package transform

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
)

// PositionTEME is a satellite position and velocity in the TEME frame.
type PositionTEME struct {
	X, Y, Z    float64 // km
	VX, VY, VZ float64 // km/s
}

// Magnitude returns |r| in km.
func (p PositionTEME) Magnitude() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

// ZUpToYUp maps a right-handed Z-up vector onto right-handed Y-up scene axes:
// (x, y, z) → (x, z, -y).
func ZUpToYUp(v mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{v[0], v[2], -v[1]}
}

// TEMEToScene converts a TEME state into parent-relative scene coordinates
// in meters and m/s. The equatorial plane of the parent maps onto the scene
// XZ plane; the parent's axial tilt is applied by the caller if wanted.
func TEMEToScene(p PositionTEME) (pos, vel mgl64.Vec3) {
	pos = ZUpToYUp(mgl64.Vec3{p.X, p.Y, p.Z}).Mul(1000)
	vel = ZUpToYUp(mgl64.Vec3{p.VX, p.VY, p.VZ}).Mul(1000)
	return pos, vel
}

// Finite reports whether every component of v is a finite number.
func Finite(v mgl64.Vec3) bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// Vec32 narrows a float64 vector. Callers must only narrow values that are
// already small (camera relative or in-cell offsets).
func Vec32(v mgl64.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{float32(v[0]), float32(v[1]), float32(v[2])}
}
