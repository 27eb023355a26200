package transform

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// DefaultFovY is the vertical field of view used by the scene camera.
const DefaultFovY = math32.Pi / 4

// DefaultNear is the near plane distance in meters.
const DefaultNear = 0.1

// View returns the world→view matrix of a camera at pos with orientation rot.
func View(pos mgl32.Vec3, rot mgl32.Quat) mgl32.Mat4 {
	return rot.Conjugate().Mat4().Mul4(mgl32.Translate3D(-pos[0], -pos[1], -pos[2]))
}

// PerspectiveInfiniteReverse is a right-handed perspective projection with
// the far plane at infinity and depth reversed (near → 1, infinity → 0).
func PerspectiveInfiniteReverse(fovY, aspect, near float32) mgl32.Mat4 {
	f := 1 / math32.Tan(fovY/2)
	return mgl32.Mat4{
		f / aspect, 0, 0, 0,
		0, f, 0, 0,
		0, 0, 0, -1,
		0, 0, near, 0,
	}
}

// Aspect returns width/height, or 1 for a degenerate viewport.
func Aspect(width, height uint32) float32 {
	if width == 0 || height == 0 {
		return 1
	}
	return float32(width) / float32(height)
}

// WorldToNDC projects p through viewProj. ok is false when p is behind the
// camera, in which case ndc is meaningless.
func WorldToNDC(viewProj mgl32.Mat4, p mgl32.Vec3) (ndc mgl32.Vec3, ok bool) {
	clip := viewProj.Mul4x1(p.Vec4(1))
	w := clip.W()
	if w <= 0 {
		return mgl32.Vec3{}, false
	}
	return mgl32.Vec3{clip.X() / w, clip.Y() / w, clip.Z() / w}, true
}

// NDCToViewport maps NDC x/y in [-1, 1] to pixel coordinates with the origin
// in the top-left corner.
func NDCToViewport(ndc mgl32.Vec3, width, height uint32) mgl32.Vec2 {
	return mgl32.Vec2{
		(ndc.X() + 1) / 2 * float32(width),
		(1 - ndc.Y()) / 2 * float32(height),
	}
}

// OnScreen reports whether an NDC position lies inside the viewport.
func OnScreen(ndc mgl32.Vec3) bool {
	return math32.Abs(ndc.X()) <= 1 && math32.Abs(ndc.Y()) <= 1
}
