// Package sim runs one simulation session: it owns the clock, the positioned
// hierarchy, the camera rig and the floating origins, and publishes an
// immutable Frame per tick for the renderer and the HTTP layer to read.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/star/spacesim/internal/camera"
	"github.com/star/spacesim/internal/metrics"
	"github.com/star/spacesim/internal/mjd"
	"github.com/star/spacesim/internal/postprocess"
	"github.com/star/spacesim/internal/propagation"
	"github.com/star/spacesim/internal/scene"
	"github.com/star/spacesim/internal/space"
	"github.com/star/spacesim/internal/starfield"
	"github.com/star/spacesim/internal/transform"
)

// ErrNotInitialized is returned by Tick on a session that did not come from New.
var ErrNotInitialized = errors.New("sim: session not initialized")

// Space names used for recenter events and metrics.
const (
	SolarSystemSpace = "solar_system"
	StarSpace        = "stars"
)

// Config holds session configuration loaded from environment variables.
type Config struct {
	Propagation propagation.Config
	Grid        space.Config
	Camera      camera.Settings

	InputQueue          int
	Width, Height       uint32
	HDR                 bool
	MaxTextureDimension uint32

	StartMJD float64 // 0 starts at the wall clock
	Speed    float64 // 0 means 1
}

// DefaultConfig returns a 1280x720 HDR session on the solar system grid.
func DefaultConfig() Config {
	return Config{
		Grid:       space.DefaultConfig(),
		Camera:     camera.DefaultSettings(),
		InputQueue: 256,
		Width:      1280,
		Height:     720,
		HDR:        true,
	}
}

// Options are the optional collaborators of a session.
type Options struct {
	// Post holds the postprocess settings; nil uses the defaults.
	Post *postprocess.Store
	// Stars is the placed starfield; nil disables the star space.
	Stars *starfield.Field
}

// Session is a running simulation. Tick must only be called from one
// goroutine; Submit, Latest and Plan are safe from any goroutine.
type Session struct {
	ready  bool
	cfg    Config
	logger *slog.Logger

	h     *scene.Hierarchy
	clock *mjd.Clock
	prop  *propagation.Propagator
	state *propagation.State

	rig    *camera.Rig
	input  camera.InputState
	target int

	events    *space.Events
	coord     *space.Coordinator
	starSpace *space.Coordinator
	stars     *starfield.Field

	sun int // emissive body driving the light, -1 if none

	post          *postprocess.Store
	plan          atomic.Pointer[postprocess.Plan]
	planVersion   uint64
	planW, planH  uint32
	width, height uint32

	commands chan Command
	dropped  atomic.Int64

	tick  uint64
	frame atomic.Pointer[Frame]
}

// New initializes a session over h and publishes the first frame. A session
// is initialized exactly once; there is no way to reset it.
func New(ctx context.Context, h *scene.Hierarchy, cfg Config, opts Options, logger *slog.Logger) (*Session, error) {
	if h == nil || h.Len() == 0 {
		return nil, errors.New("sim: empty hierarchy")
	}
	if cfg.InputQueue <= 0 {
		cfg.InputQueue = DefaultConfig().InputQueue
	}
	start := cfg.StartMJD
	if start == 0 {
		start = mjd.FromTime(time.Now())
	}
	grid, err := space.NewGrid(cfg.Grid)
	if err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}
	rig, err := camera.NewRig(cfg.Camera, float32(h.Camera.Radius), float32(h.Camera.Rotation[0]), float32(h.Camera.Rotation[1]))
	if err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}

	s := &Session{
		cfg:      cfg,
		logger:   logger.With("component", "sim"),
		h:        h,
		clock:    mjd.NewClock(start),
		prop:     propagation.NewPropagator(h, cfg.Propagation, logger),
		state:    propagation.NewState(h.Len()),
		rig:      rig,
		target:   h.Camera.TargetIndex,
		events:   &space.Events{},
		stars:    opts.Stars,
		sun:      findSun(h),
		post:     opts.Post,
		width:    cfg.Width,
		height:   cfg.Height,
		commands: make(chan Command, cfg.InputQueue),
	}
	if cfg.Speed != 0 {
		s.clock.SetSpeed(cfg.Speed)
	}
	if s.post == nil {
		s.post = postprocess.NewStore(postprocess.DefaultSettings())
	}

	if _, err := s.prop.Step(ctx, start, s.state); err != nil {
		return nil, fmt.Errorf("sim: initial positioning: %w", err)
	}
	anchor := s.cameraAbsolute(rig.Transform())
	if s.coord, err = space.NewCoordinator(SolarSystemSpace, grid, anchor, s.events, logger); err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}
	if s.stars != nil {
		if s.starSpace, err = space.NewCoordinator(StarSpace, s.stars.Grid(), anchor, s.events, logger); err != nil {
			return nil, fmt.Errorf("sim: %w", err)
		}
	}

	for kind, n := range h.CountByKind() {
		metrics.SetBodies(kind.String(), n)
	}
	s.ready = true
	if err := s.Tick(ctx, 0); err != nil {
		return nil, err
	}

	s.logger.Info("session initialized",
		"bodies", h.Len(),
		"levels", len(h.Levels),
		"target", h.Bodies[s.target].Name,
		"start_mjd", start,
		"stars", s.stars != nil,
		"sgp4_disabled", s.prop.Disabled(),
	)
	return s, nil
}

// findSun returns the first emissive body in breadth-first order.
func findSun(h *scene.Hierarchy) int {
	for i := range h.Bodies {
		if h.Bodies[i].Material.EmissivePower > 0 {
			return i
		}
	}
	return -1
}

// Hierarchy returns the simulated hierarchy.
func (s *Session) Hierarchy() *scene.Hierarchy { return s.h }

// Propagator returns the session's propagator.
func (s *Session) Propagator() *propagation.Propagator { return s.prop }

// Latest returns the most recently published frame.
func (s *Session) Latest() *Frame {
	if s == nil {
		return nil
	}
	return s.frame.Load()
}

// Plan returns the active postprocess plan, or nil when the current viewport
// cannot be rendered.
func (s *Session) Plan() *postprocess.Plan {
	if s == nil {
		return nil
	}
	return s.plan.Load()
}

// Stars returns the starfield, or nil.
func (s *Session) Stars() *starfield.Field { return s.stars }

func (s *Session) cameraAbsolute(tf camera.Transform) mgl64.Vec3 {
	t := tf.Translation
	return s.state.World[s.target].Add(mgl64.Vec3{float64(t[0]), float64(t[1]), float64(t[2])})
}

// Tick advances the simulation by dt of wall time and publishes a frame.
// Per-body positioning failures are logged and counted but do not fail the
// tick; the returned error is fatal (a cancelled context or a position the
// grid cannot represent).
func (s *Session) Tick(ctx context.Context, dt time.Duration) error {
	if s == nil || !s.ready {
		return ErrNotInitialized
	}
	start := time.Now()
	s.tick++
	s.events.Begin(s.tick)

	s.drainCommands()
	s.clock.Advance(dt)
	now := s.clock.Now()

	stats, err := s.prop.Step(ctx, now, s.state)
	if err != nil {
		return fmt.Errorf("sim: tick %d: %w", s.tick, err)
	}

	tf := s.rig.Update(s.input.Drain())
	camAbs := s.cameraAbsolute(tf)
	anchor, moved, err := s.coord.Recenter(camAbs)
	if err != nil {
		return fmt.Errorf("sim: tick %d: %w", s.tick, err)
	}
	if moved {
		metrics.IncRecenter(SolarSystemSpace)
	}

	f := &Frame{
		Tick:   s.tick,
		MJD:    now,
		Time:   mjd.ToTime(now),
		Speed:  s.clock.Speed(),
		Paused: s.clock.Paused(),
		Camera: CameraFrame{
			Target:      s.h.Bodies[s.target].Name,
			Mode:        s.rig.Mode().String(),
			Cell:        anchor.Cell,
			Translation: s.coord.Local(anchor),
			Rotation:    quat32(tf.Rotation),
			Absolute:    camAbs,
			Radius:      s.rig.Radius,
			Yaw:         s.rig.Yaw,
			Pitch:       s.rig.Pitch,
		},
		Stats: TickStats{
			Updated:       stats.Updated,
			Failed:        stats.Failed,
			NoConvergence: stats.NoConvergence,
			Duration:      stats.Duration,
		},
	}

	if s.starSpace != nil {
		if _, moved, err := s.starSpace.Recenter(camAbs); err != nil {
			return fmt.Errorf("sim: tick %d: %w", s.tick, err)
		} else if moved {
			metrics.IncRecenter(StarSpace)
		}
		origin := s.starSpace.Origin()
		f.StarOrigin = &origin
	}

	viewProj := transform.PerspectiveInfiniteReverse(transform.DefaultFovY, transform.Aspect(s.width, s.height), transform.DefaultNear).
		Mul4(transform.View(f.Camera.Translation, tf.Rotation))
	if err := s.placeBodies(f, viewProj); err != nil {
		return fmt.Errorf("sim: tick %d: %w", s.tick, err)
	}
	s.light(f, viewProj)
	s.postprocess(f)
	f.Recenters = s.events.All()
	f.Published = time.Now()

	s.frame.Store(f)
	d := time.Since(start)
	metrics.RecordTick(d, now)
	s.logger.Debug("tick complete",
		"tick", s.tick,
		"mjd", now,
		"recentered", moved,
		"failed", stats.Failed,
		"duration_us", d.Microseconds(),
	)
	return nil
}

func (s *Session) placeBodies(f *Frame, viewProj mgl32.Mat4) error {
	f.Bodies = make([]BodyFrame, s.h.Len())
	for i := range s.h.Bodies {
		b := &s.h.Bodies[i]
		world := s.state.World[i]
		gp, err := s.coord.Place(world)
		if err != nil {
			return fmt.Errorf("placing %s: %w", b.Name, err)
		}
		bf := BodyFrame{
			Name:        b.Name,
			Cell:        gp.Cell,
			Offset:      gp.Offset,
			Translation: s.coord.Local(gp),
			Rotation:    quat64(s.state.Rotation[i]),
			Radius:      b.Radius,
			World:       world,
			Distance:    world.Sub(f.Camera.Absolute).Len(),
		}
		if b.Parent >= 0 {
			bf.Parent = s.h.Bodies[b.Parent].Name
		}
		if ndc, ok := transform.WorldToNDC(viewProj, bf.Translation); ok && transform.OnScreen(ndc) {
			px := transform.NDCToViewport(ndc, s.width, s.height)
			bf.Screen = &px
		}
		f.Bodies[i] = bf
	}
	return nil
}

// light points the directional light from the sun toward the camera and
// projects the sun for the lens flare.
func (s *Session) light(f *Frame, viewProj mgl32.Mat4) {
	if s.sun < 0 {
		return
	}
	sun := &f.Bodies[s.sun]
	dir := transform.Vec32(f.Camera.Absolute.Sub(sun.World))
	if dir.Len() == 0 {
		dir = mgl32.Vec3{0, 0, -1}
	}
	dir = dir.Normalize()
	f.Light = &Light{
		Source:      sun.Name,
		Direction:   dir,
		Rotation:    quat32(mgl32.QuatBetweenVectors(mgl32.Vec3{0, 0, -1}, dir)),
		Illuminance: SunIlluminance,
	}
	if ndc, ok := transform.WorldToNDC(viewProj, sun.Translation); ok {
		f.Flare = Flare{NDC: ndc, Visible: transform.OnScreen(ndc)}
	}
}

// postprocess rebuilds the plan when the settings or the viewport changed and
// encodes this frame's uniforms. A plan that fails validation is logged and
// the previous one stays active.
func (s *Session) postprocess(f *Frame) {
	settings, version := s.post.Load()
	if version != s.planVersion || s.width != s.planW || s.height != s.planH {
		s.planVersion, s.planW, s.planH = version, s.width, s.height
		p, err := postprocess.BuildPlan(settings, s.width, s.height, s.cfg.HDR)
		if err == nil {
			err = p.Validate(s.cfg.MaxTextureDimension)
		}
		if err != nil {
			s.logger.Warn("postprocess plan rejected, keeping previous",
				"width", s.width,
				"height", s.height,
				"version", version,
				"error", err,
			)
		} else {
			s.plan.Store(p)
			s.logger.Info("postprocess plan built",
				"width", s.width,
				"height", s.height,
				"passes", len(p.Passes),
				"version", version,
			)
		}
	}

	p := s.plan.Load()
	if p == nil {
		return
	}
	f.Post = &PostFrame{
		Version:  version,
		Width:    p.Width,
		Height:   p.Height,
		Passes:   len(p.Passes),
		Final:    p.Final,
		Uniforms: p.Uniforms(postprocess.FrameInput{FlarePosition: f.Flare.NDC, FlareVisible: f.Flare.Visible}),
	}
}

// Run ticks at the given interval until ctx is done, passing the measured
// wall time between ticks as dt.
func (s *Session) Run(ctx context.Context, interval time.Duration) error {
	if s == nil || !s.ready {
		return ErrNotInitialized
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session stopped", "ticks", s.tick)
			return nil
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			if err := s.Tick(ctx, dt); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}
