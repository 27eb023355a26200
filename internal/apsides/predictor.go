// Package apsides predicts periapsis and apoapsis passages of bodies relative
// to their parent. Kepler bodies are solved in closed form from the mean
// anomaly; SGP4 bodies are scanned coarsely for distance extrema which are
// then refined with a golden-section search.
package apsides

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/star/spacesim/internal/mjd"
	"github.com/star/spacesim/internal/orbit"
	"github.com/star/spacesim/internal/propagation"
	"github.com/star/spacesim/internal/scene"
)

// Kind is the apsis type.
type Kind string

const (
	Periapsis Kind = "periapsis"
	Apoapsis  Kind = "apoapsis"
)

// Event is one apsis passage.
type Event struct {
	Kind     Kind      `json:"kind"`
	MJD      float64   `json:"mjd"`
	Time     time.Time `json:"time"`
	Distance float64   `json:"distance"` // meters from the parent's center
	Speed    float64   `json:"speed"`    // m/s relative to the parent
}

// BodyEvents holds the predicted passages for one body.
type BodyEvents struct {
	Body   string  `json:"body"`
	Parent string  `json:"parent"`
	Motion string  `json:"motion"`
	Events []Event `json:"events"`
	Error  string  `json:"error,omitempty"`
}

// Request holds the parameters for a prediction.
type Request struct {
	Propagator *propagation.Propagator
	Bodies     []int // hierarchy indices
	StartMJD   float64
	Horizon    time.Duration
	MaxEvents  int
	// ScanStep is the coarse sampling interval for SGP4 bodies (default 60s).
	ScanStep time.Duration
}

// ErrStationary is reported for bodies that do not move around a parent.
var ErrStationary = errors.New("body is stationary")

// ErrBudget is reported when an SGP4 scan would need more than MaxScanSamples.
var ErrBudget = errors.New("scan budget exceeded")

const (
	// DefaultMaxEvents is used when Request.MaxEvents is not positive.
	DefaultMaxEvents = 10

	// MaxScanSamples bounds the coarse SGP4 scan per body.
	MaxScanSamples = 20000

	defaultScanStep = 60 * time.Second
	refineTolerance = 0.05 // seconds
)

// Predict computes apsis passages for every requested body.
// Each body is processed in its own goroutine, bounded by a semaphore.
func Predict(ctx context.Context, req Request) []BodyEvents {
	if req.MaxEvents <= 0 {
		req.MaxEvents = DefaultMaxEvents
	}
	h := req.Propagator.Hierarchy()
	results := make([]BodyEvents, len(req.Bodies))
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup

	for k, idx := range req.Bodies {
		b := &h.Bodies[idx]
		results[k] = BodyEvents{Body: b.Name, Motion: b.Motion.Kind.String()}
		if b.Parent >= 0 {
			results[k].Parent = h.Bodies[b.Parent].Name
		}

		wg.Add(1)
		go func(k, idx int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[k].Error = "cancelled"
				return
			}

			events, err := predictBody(ctx, req, idx)
			if err != nil {
				results[k].Error = err.Error()
			}
			results[k].Events = events
		}(k, idx)
	}

	wg.Wait()
	return results
}

func predictBody(ctx context.Context, req Request, idx int) ([]Event, error) {
	b := &req.Propagator.Hierarchy().Bodies[idx]
	switch b.Motion.Kind {
	case scene.Kepler:
		return keplerEvents(b.Motion.Orbit, req.StartMJD, req.Horizon, req.MaxEvents)
	case scene.SGP4:
		return scanEvents(ctx, req, idx)
	default:
		return nil, ErrStationary
	}
}

// keplerEvents walks the mean anomaly forward: periapsis at M = 0,
// apoapsis at M = π.
func keplerEvents(o *orbit.Orbit, startMJD float64, horizon time.Duration, maxEvents int) ([]Event, error) {
	el := o.Elements()
	n := el.MeanMotion()
	t0 := o.SecondsSinceEpoch(startMJD)
	m0 := o.MeanAnomaly(t0)
	end := horizon.Seconds()

	// Seconds until the mean anomaly next reaches π, then every half period.
	dt := math.Mod(math.Pi-m0+2*math.Pi, 2*math.Pi) / n
	kind := Apoapsis
	if toPeri := math.Mod(2*math.Pi-m0, 2*math.Pi) / n; toPeri < dt {
		dt, kind = toPeri, Periapsis
	}
	half := el.Period / 2

	var events []Event
	for ; dt <= end && len(events) < maxEvents; dt += half {
		st, err := o.State(t0 + dt)
		if err != nil && !errors.Is(err, orbit.ErrNoConvergence) {
			return events, err
		}
		dist := el.Periapsis()
		if kind == Apoapsis {
			dist = el.Apoapsis()
		}
		at := startMJD + dt/mjd.SecondsPerDay
		events = append(events, Event{
			Kind:     kind,
			MJD:      at,
			Time:     mjd.ToTime(at),
			Distance: dist,
			Speed:    st.Velocity.Len(),
		})
		if kind == Periapsis {
			kind = Apoapsis
		} else {
			kind = Periapsis
		}
	}
	return events, nil
}

// scanEvents samples the distance to the parent every ScanStep and refines
// every interior local extremum.
func scanEvents(ctx context.Context, req Request, idx int) ([]Event, error) {
	step := req.ScanStep
	if step <= 0 {
		step = defaultScanStep
	}
	samples := int(req.Horizon/step) + 1
	if samples > MaxScanSamples {
		return nil, fmt.Errorf("%w: %d samples, max %d", ErrBudget, samples, MaxScanSamples)
	}
	stepSec := step.Seconds()

	dist := func(sec float64) (float64, error) {
		pos, _, err := req.Propagator.Local(idx, req.StartMJD+sec/mjd.SecondsPerDay)
		return pos.Len(), err
	}

	var (
		events []Event
		prev   = math.NaN()
		cur    = math.NaN()
	)
	for k := 0; k < samples && len(events) < req.MaxEvents; k++ {
		if ctx.Err() != nil {
			return events, nil
		}
		next, err := dist(float64(k) * stepSec)
		if err != nil {
			return events, fmt.Errorf("sample %d: %w", k, err)
		}
		if !math.IsNaN(prev) {
			lo, hi := float64(k-2)*stepSec, float64(k)*stepSec
			switch {
			case cur < prev && cur <= next:
				if ev, err := refine(req, idx, Periapsis, lo, hi, dist); err == nil {
					events = append(events, ev)
				}
			case cur > prev && cur >= next:
				if ev, err := refine(req, idx, Apoapsis, lo, hi, dist); err == nil {
					events = append(events, ev)
				}
			}
		}
		prev, cur = cur, next
	}
	return events, nil
}

var invPhi = (math.Sqrt(5) - 1) / 2

// refine runs a golden-section search for the extremum of kind inside
// [lo, hi] seconds after the start.
func refine(req Request, idx int, kind Kind, lo, hi float64, dist func(float64) (float64, error)) (Event, error) {
	better := func(a, b float64) bool {
		if kind == Periapsis {
			return a < b
		}
		return a > b
	}

	c := hi - invPhi*(hi-lo)
	d := lo + invPhi*(hi-lo)
	fc, err := dist(c)
	if err != nil {
		return Event{}, err
	}
	fd, err := dist(d)
	if err != nil {
		return Event{}, err
	}
	for hi-lo > refineTolerance {
		if better(fc, fd) {
			hi, d, fd = d, c, fc
			c = hi - invPhi*(hi-lo)
			if fc, err = dist(c); err != nil {
				return Event{}, err
			}
		} else {
			lo, c, fc = c, d, fd
			d = lo + invPhi*(hi-lo)
			if fd, err = dist(d); err != nil {
				return Event{}, err
			}
		}
	}

	sec := (lo + hi) / 2
	at := req.StartMJD + sec/mjd.SecondsPerDay
	pos, vel, err := req.Propagator.Local(idx, at)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Kind:     kind,
		MJD:      at,
		Time:     mjd.ToTime(at),
		Distance: pos.Len(),
		Speed:    vel.Len(),
	}, nil
}
