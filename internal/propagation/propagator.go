// Package propagation positions every body of a scene hierarchy for a given
// simulation time. Kepler bodies are evaluated from their orbital elements,
// TLE bodies through SGP4, and levels of the hierarchy are processed strictly
// in depth order so children always read their parent's current transform.
package propagation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/star/spacesim/internal/metrics"
	"github.com/star/spacesim/internal/mjd"
	"github.com/star/spacesim/internal/orbit"
	"github.com/star/spacesim/internal/scene"
	"github.com/star/spacesim/internal/transform"
)

// Propagator evaluates body motion over a fixed hierarchy.
type Propagator struct {
	h      *scene.Hierarchy
	pool   *WorkerPool
	config Config
	logger *slog.Logger

	// sgp4 holds preinitialized propagators indexed by body. Immutable after
	// construction; safe for concurrent reads.
	sgp4     []*SGP4Propagator
	disabled int
}

// NewPropagator prepares the hierarchy for positioning. TLE bodies whose
// element sets fail SGP4 initialization are logged and left at their
// parent's center.
func NewPropagator(h *scene.Hierarchy, config Config, logger *slog.Logger) *Propagator {
	logger = logger.With("component", "propagation")
	p := &Propagator{
		h:      h,
		pool:   NewWorkerPool(config.Workers, config.MinParallel, logger),
		config: config,
		logger: logger,
		sgp4:   make([]*SGP4Propagator, h.Len()),
	}

	var cached int
	for i := range h.Bodies {
		b := &h.Bodies[i]
		if b.Motion.Kind != scene.SGP4 {
			continue
		}
		sp, err := NewSGP4Propagator(*b.Motion.TLE)
		if err != nil {
			logger.Warn("sgp4 init failed", "body", b.Name, "norad_id", b.Motion.TLE.NORADID, "error", err)
			p.disabled++
			continue
		}
		p.sgp4[i] = sp
		cached++
	}
	if cached > 0 || p.disabled > 0 {
		logger.Info("sgp4 propagator cache built", "cached", cached, "skipped", p.disabled)
	}
	return p
}

// Hierarchy returns the hierarchy being positioned.
func (p *Propagator) Hierarchy() *scene.Hierarchy { return p.h }

// Disabled returns the number of TLE bodies that could not be initialized.
func (p *Propagator) Disabled() int { return p.disabled }

// Local evaluates body i relative to its parent at simMJD. For a Kepler body
// that fails to converge, the returned position is built from the last
// iterate and the error wraps orbit.ErrNoConvergence.
func (p *Propagator) Local(i int, simMJD float64) (pos, vel mgl64.Vec3, err error) {
	b := &p.h.Bodies[i]
	switch b.Motion.Kind {
	case scene.Kepler:
		o := b.Motion.Orbit
		st, err := o.State(o.SecondsSinceEpoch(simMJD))
		if err != nil {
			err = fmt.Errorf("%s: %w", b.Name, err)
		}
		return st.Position, st.Velocity, err

	case scene.SGP4:
		sp := p.sgp4[i]
		if sp == nil {
			return mgl64.Vec3{}, mgl64.Vec3{}, nil
		}
		teme, err := sp.Propagate(mjd.ToTime(simMJD))
		if err != nil {
			return mgl64.Vec3{}, mgl64.Vec3{}, fmt.Errorf("%s: %w", b.Name, err)
		}
		pos, vel = transform.TEMEToScene(teme)
		// TEME is equatorial; tilt it onto the parent's equator.
		if b.Parent >= 0 {
			if tilt := p.h.Bodies[b.Parent].AxialInclination; tilt != 0 {
				rx := mgl64.Rotate3DX(tilt)
				pos, vel = rx.Mul3x1(pos), rx.Mul3x1(vel)
			}
		}
		return pos, vel, nil

	default:
		return mgl64.Vec3{}, mgl64.Vec3{}, nil
	}
}

// Step positions every body at simMJD into st. Bodies that fail keep the
// previous tick's local position. The returned error is non-nil only when
// ctx is cancelled mid-step.
func (p *Propagator) Step(ctx context.Context, simMJD float64, st *State) (Stats, error) {
	start := time.Now()
	var stats Stats
	var noConv atomic.Int64

	for depth, level := range p.h.Levels {
		failed, err := p.pool.RunLevel(ctx, level, func(i int) error {
			b := &p.h.Bodies[i]
			st.Rotation[i] = Orientation(b, simMJD)

			pos, vel, err := p.Local(i, simMJD)
			switch {
			case errors.Is(err, orbit.ErrNoConvergence):
				// The last iterate is still a usable position.
				noConv.Add(1)
				p.logger.Warn("kepler solver did not converge", "body", b.Name)
			case err != nil:
				if b.Parent >= 0 {
					st.World[i] = st.World[b.Parent].Add(st.Local[i])
				}
				return err
			}

			st.Local[i] = pos
			st.Velocity[i] = vel
			if b.Parent < 0 {
				st.World[i] = pos
			} else {
				st.World[i] = st.World[b.Parent].Add(pos)
			}
			return nil
		})
		stats.Failed += failed
		stats.Updated += len(level) - failed
		if err != nil {
			return stats, fmt.Errorf("positioning level %d: %w", depth, err)
		}
	}

	stats.NoConvergence = int(noConv.Load())
	stats.Duration = time.Since(start)
	metrics.RecordPositioning(stats.Duration, stats.Updated, stats.Failed, stats.NoConvergence)

	p.logger.Debug("positioning complete",
		"mjd", simMJD,
		"updated", stats.Updated,
		"failed", stats.Failed,
		"duration_us", stats.Duration.Microseconds(),
	)
	return stats, nil
}

// Track samples body i's position relative to the root at n instants,
// starting at startMJD and spaced by step. It walks the ancestor chain for
// every sample, so it is meant for trails and inspection, not per tick use.
func (p *Propagator) Track(i int, startMJD float64, step time.Duration, n int) ([]mgl64.Vec3, error) {
	if i < 0 || i >= p.h.Len() {
		return nil, fmt.Errorf("body index %d out of range", i)
	}
	if n <= 0 {
		return nil, nil
	}
	chain := p.h.Ancestors(i)
	stepDays := step.Seconds() / mjd.SecondsPerDay

	out := make([]mgl64.Vec3, n)
	for k := range out {
		at := startMJD + float64(k)*stepDays
		var world mgl64.Vec3
		for _, idx := range chain {
			pos, _, err := p.Local(idx, at)
			if err != nil && !errors.Is(err, orbit.ErrNoConvergence) {
				return out[:k], fmt.Errorf("sample %d: %w", k, err)
			}
			world = world.Add(pos)
		}
		out[k] = world
	}
	return out, nil
}
