package propagation

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// State is the positioned hierarchy for one tick. All slices are indexed
// like scene.Hierarchy.Bodies.
type State struct {
	Local    []mgl64.Vec3 // meters, relative to the parent
	World    []mgl64.Vec3 // meters, relative to the root
	Velocity []mgl64.Vec3 // m/s, relative to the parent
	Rotation []mgl64.Quat // spin and axial tilt
}

// NewState allocates a State for n bodies.
func NewState(n int) *State {
	s := &State{
		Local:    make([]mgl64.Vec3, n),
		World:    make([]mgl64.Vec3, n),
		Velocity: make([]mgl64.Vec3, n),
		Rotation: make([]mgl64.Quat, n),
	}
	for i := range s.Rotation {
		s.Rotation[i] = mgl64.QuatIdent()
	}
	return s
}

// Stats summarizes one Step.
type Stats struct {
	Updated       int
	Failed        int
	NoConvergence int
	Duration      time.Duration
}

// Config holds positioning configuration loaded from environment variables.
type Config struct {
	Workers     int // goroutines per depth level (default: runtime.NumCPU())
	MinParallel int // levels smaller than this run inline (default: 32)
}
