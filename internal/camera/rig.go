// Package camera implements a pan-orbit camera controller. The rig orbits a
// center point that is expressed relative to the target body, so the float32
// state stays small no matter where in the system the target is.
package camera

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Mode is the controller's interaction state for the current tick.
type Mode uint8

const (
	Idle Mode = iota
	Orbiting
	Panning
	Zooming
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Orbiting:
		return "orbiting"
	case Panning:
		return "panning"
	case Zooming:
		return "zooming"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Settings configures the controller.
type Settings struct {
	PanSensitivity         float32 // world units per pixel, scaled by radius
	OrbitSensitivity       float32 // radians per pixel
	ZoomSensitivity        float32 // exponent per pixel
	ScrollLineSensitivity  float32 // pixels per wheel notch
	ScrollPixelSensitivity float32
	MinRadius              float32
	MaxRadius              float32
	MaxPitch               float32 // radians, in (0, π/2)
}

// DefaultSettings returns 1000 px per world unit of pan, 0.1° per px of orbit,
// and a 16 px scroll line.
func DefaultSettings() Settings {
	return Settings{
		PanSensitivity:         0.001,
		OrbitSensitivity:       mgl32.DegToRad(0.1),
		ZoomSensitivity:        0.01,
		ScrollLineSensitivity:  16,
		ScrollPixelSensitivity: 1,
		MinRadius:              1,
		MaxRadius:              1e13,
		MaxPitch:               mgl32.DegToRad(89.9),
	}
}

// Transform is the camera pose relative to the target body.
type Transform struct {
	Rotation    mgl32.Quat
	Translation mgl32.Vec3
}

// Forward returns the view direction (-Z).
func (t Transform) Forward() mgl32.Vec3 { return t.Rotation.Rotate(mgl32.Vec3{0, 0, -1}) }

// Right returns the camera's +X axis.
func (t Transform) Right() mgl32.Vec3 { return t.Rotation.Rotate(mgl32.Vec3{1, 0, 0}) }

// Up returns the camera's +Y axis.
func (t Transform) Up() mgl32.Vec3 { return t.Rotation.Rotate(mgl32.Vec3{0, 1, 0}) }

// Rig holds the controller state.
type Rig struct {
	settings Settings

	Center mgl32.Vec3
	Yaw    float32
	Pitch  float32
	Radius float32

	mode      Mode
	transform Transform
}

// NewRig returns a rig at radius looking at the target, with the initial
// yaw and pitch in radians.
func NewRig(settings Settings, radius, yaw, pitch float32) (*Rig, error) {
	if !(settings.MinRadius > 0) || settings.MaxRadius < settings.MinRadius {
		return nil, fmt.Errorf("camera: radius range [%v, %v] is invalid", settings.MinRadius, settings.MaxRadius)
	}
	// Past the pole the view would roll over and yaw input would reverse.
	if !(settings.MaxPitch > 0) || settings.MaxPitch >= math32.Pi/2 {
		return nil, fmt.Errorf("camera: max pitch %v must be in (0, π/2)", settings.MaxPitch)
	}
	if !(radius > 0) || math32.IsInf(radius, 0) {
		return nil, fmt.Errorf("camera: radius must be positive and finite, got %v", radius)
	}
	r := &Rig{
		settings: settings,
		Yaw:      wrapAngle(yaw),
		Radius:   clamp(radius, settings.MinRadius, settings.MaxRadius),
	}
	r.Pitch = clamp(wrapAngle(pitch), -settings.MaxPitch, settings.MaxPitch)
	r.apply()
	return r, nil
}

// Settings returns the rig's settings.
func (r *Rig) Settings() Settings { return r.settings }

// Mode returns what the last Update did.
func (r *Rig) Mode() Mode { return r.mode }

// Transform returns the pose computed by the last Update.
func (r *Rig) Transform() Transform { return r.transform }

// Recenter moves the orbit center back onto the target.
func (r *Rig) Recenter() {
	r.Center = mgl32.Vec3{}
	r.apply()
}

// Update applies one tick of input and returns the new pose.
func (r *Rig) Update(in Input) Transform {
	r.mode = Idle
	if in.Recenter {
		r.Center = mgl32.Vec3{}
	}
	if in.Blocked {
		r.apply()
		return r.transform
	}

	// Window Y grows downward; the scene is Y-up.
	motion := mgl32.Vec2{in.Motion[0], -in.Motion[1]}

	var pan, orbit mgl32.Vec2
	left := in.Held[ButtonLeft]
	switch {
	case (left && in.Shift) || in.Held[ButtonMiddle]:
		pan = motion.Mul(-r.settings.PanSensitivity)
	case left:
		orbit = motion.Mul(-r.settings.OrbitSensitivity)
	}

	zoom := in.ScrollLines.Mul(r.settings.ScrollLineSensitivity * r.settings.ZoomSensitivity).
		Add(in.ScrollPixels.Mul(r.settings.ScrollPixelSensitivity * r.settings.ZoomSensitivity)).
		Mul(-1)

	if zoom[1] != 0 {
		r.mode = Zooming
		r.Radius = clamp(r.Radius*math32.Exp(-zoom[1]), r.settings.MinRadius, r.settings.MaxRadius)
	}

	if orbit != (mgl32.Vec2{}) {
		r.mode = Orbiting
		r.Yaw = wrapAngle(r.Yaw + orbit[0])
		r.Pitch = clamp(r.Pitch+orbit[1], -r.settings.MaxPitch, r.settings.MaxPitch)
	}

	if pan != (mgl32.Vec2{}) {
		r.mode = Panning
		// Pan in the plane of the previous pose, scaled so that it feels the
		// same at every zoom level.
		r.Center = r.Center.
			Add(r.transform.Right().Mul(pan[0] * r.Radius)).
			Add(r.transform.Up().Mul(pan[1] * r.Radius))
	}

	r.apply()
	return r.transform
}

// apply recomputes the transform: a YXZ Euler rotation (yaw, pitch, 0) and a
// translation of radius along the rotated +Z (backward) axis.
func (r *Rig) apply() {
	rot := mgl32.QuatRotate(r.Yaw, mgl32.Vec3{0, 1, 0}).
		Mul(mgl32.QuatRotate(r.Pitch, mgl32.Vec3{1, 0, 0})).
		Normalize()
	back := rot.Rotate(mgl32.Vec3{0, 0, 1})
	r.transform = Transform{
		Rotation:    rot,
		Translation: r.Center.Add(back.Mul(r.Radius)),
	}
}

func wrapAngle(a float32) float32 {
	if math32.IsInf(a, 0) || math32.IsNaN(a) {
		return 0
	}
	for a > math32.Pi {
		a -= 2 * math32.Pi
	}
	for a < -math32.Pi {
		a += 2 * math32.Pi
	}
	return a
}

func clamp(v, lo, hi float32) float32 {
	return math32.Max(lo, math32.Min(hi, v))
}
