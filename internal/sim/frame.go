package sim

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/star/spacesim/internal/postprocess"
	"github.com/star/spacesim/internal/space"
)

// SunIlluminance is the directional light strength at the camera, in lux.
const SunIlluminance = 120_000.0

// Frame is the published result of one tick. It is immutable once published.
type Frame struct {
	Tick      uint64                `json:"tick"`
	MJD       float64               `json:"mjd"`
	Time      time.Time             `json:"time"`
	Speed     float64               `json:"speed"`
	Paused    bool                  `json:"paused"`
	Camera    CameraFrame           `json:"camera"`
	Bodies    []BodyFrame           `json:"bodies"`
	Light     *Light                `json:"light,omitempty"`
	Flare     Flare                 `json:"flare"`
	Recenters []space.RecenterEvent `json:"recenters,omitempty"`
	// StarOrigin is the floating origin cell of the star grid.
	StarOrigin *space.Cell `json:"star_origin,omitempty"`
	Post       *PostFrame  `json:"post,omitempty"`
	Stats      TickStats   `json:"stats"`
	// Published is the wall time the frame was stored.
	Published time.Time `json:"published"`
}

// CameraFrame is the camera pose. Translation is relative to the floating
// origin cell; Absolute is relative to the scene root.
type CameraFrame struct {
	Target      string     `json:"target"`
	Mode        string     `json:"mode"`
	Cell        space.Cell `json:"cell"`
	Translation mgl32.Vec3 `json:"translation"`
	Rotation    [4]float32 `json:"rotation"` // x, y, z, w
	Absolute    mgl64.Vec3 `json:"absolute"`
	Radius      float32    `json:"radius"`
	Yaw         float32    `json:"yaw"`
	Pitch       float32    `json:"pitch"`
}

// BodyFrame is one positioned body.
type BodyFrame struct {
	Name        string     `json:"name"`
	Parent      string     `json:"parent,omitempty"`
	Cell        space.Cell `json:"cell"`
	Offset      mgl32.Vec3 `json:"offset"`
	Translation mgl32.Vec3 `json:"translation"`
	Rotation    [4]float32 `json:"rotation"`
	Radius      float64    `json:"radius"`
	World       mgl64.Vec3 `json:"world"`
	Distance    float64    `json:"distance"`
	// Screen is the viewport pixel position when the body is in view.
	Screen *mgl32.Vec2 `json:"screen,omitempty"`
}

// Light is the sun's directional light as seen from the camera.
type Light struct {
	Source      string     `json:"source"`
	Direction   mgl32.Vec3 `json:"direction"`
	Rotation    [4]float32 `json:"rotation"`
	Illuminance float64    `json:"illuminance"`
}

// Flare is the lens flare source in normalized device coordinates.
type Flare struct {
	NDC     mgl32.Vec3 `json:"ndc"`
	Visible bool       `json:"visible"`
}

// PostFrame is the per-frame postprocess state. The plan itself is served by
// Session.Plan.
type PostFrame struct {
	Version  uint64          `json:"version"`
	Width    uint32          `json:"width"`
	Height   uint32          `json:"height"`
	Passes   int             `json:"passes"`
	Final    postprocess.Ref `json:"final"`
	Uniforms [][]byte        `json:"-"`
}

// TickStats reports the work done in one tick.
type TickStats struct {
	Updated       int           `json:"updated"`
	Failed        int           `json:"failed"`
	NoConvergence int           `json:"no_convergence"`
	Duration      time.Duration `json:"duration_ns"`
}

// Body returns the named body, or nil.
func (f *Frame) Body(name string) *BodyFrame {
	for i := range f.Bodies {
		if f.Bodies[i].Name == name {
			return &f.Bodies[i]
		}
	}
	return nil
}

func quat32(q mgl32.Quat) [4]float32 {
	return [4]float32{q.V[0], q.V[1], q.V[2], q.W}
}

func quat64(q mgl64.Quat) [4]float32 {
	return [4]float32{float32(q.V[0]), float32(q.V[1]), float32(q.V[2]), float32(q.W)}
}
