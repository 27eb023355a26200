package apsides

import (
	"context"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/star/spacesim/assets"
	"github.com/star/spacesim/internal/mjd"
	"github.com/star/spacesim/internal/propagation"
	"github.com/star/spacesim/internal/scene"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testPropagator(t *testing.T) *propagation.Propagator {
	t.Helper()
	h, err := scene.Parse(assets.SolarSystem, scene.Options{Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	return propagation.NewPropagator(h, propagation.Config{Workers: 1}, testLogger())
}

func index(t *testing.T, p *propagation.Propagator, name string) int {
	t.Helper()
	i, ok := p.Hierarchy().Lookup(name)
	if !ok {
		t.Fatalf("%s missing from bundled scene", name)
	}
	return i
}

// ISS TLE epoch, 2024-04-09 12:00 UTC.
var tleEpoch = mjd.FromTime(time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC))

func TestPredictEarth(t *testing.T) {
	p := testPropagator(t)
	earth := index(t, p, "Earth")

	results := Predict(context.Background(), Request{
		Propagator: p,
		Bodies:     []int{earth},
		StartMJD:   tleEpoch,
		Horizon:    800 * 24 * time.Hour,
		MaxEvents:  10,
	})
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Error != "" {
		t.Fatalf("unexpected error: %s", r.Error)
	}
	if r.Body != "Earth" || r.Parent != "Sun" || r.Motion != "kepler" {
		t.Errorf("result header = %+v", r)
	}
	// 800 days covers a little over two orbits: four or five apsides.
	if len(r.Events) < 4 {
		t.Fatalf("got %d events, want at least 4", len(r.Events))
	}

	el := p.Hierarchy().Bodies[earth].Motion.Orbit.Elements()
	halfDays := el.Period / 2 / mjd.SecondsPerDay
	if first := r.Events[0].MJD - tleEpoch; first < 0 || first > 2*halfDays {
		t.Errorf("first event %.2f days after start, want within one period", first)
	}
	for i, ev := range r.Events {
		want := el.Periapsis()
		if ev.Kind == Apoapsis {
			want = el.Apoapsis()
		}
		if ev.Distance != want {
			t.Errorf("event %d (%s): distance %g, want %g", i, ev.Kind, ev.Distance, want)
		}
		if i == 0 {
			continue
		}
		prev := r.Events[i-1]
		if ev.Kind == prev.Kind {
			t.Errorf("events %d and %d are both %s, want alternation", i-1, i, ev.Kind)
		}
		if gap := ev.MJD - prev.MJD; math.Abs(gap-halfDays) > 1e-6 {
			t.Errorf("gap between events %d and %d = %.6f days, want %.6f", i-1, i, gap, halfDays)
		}
	}

	// Faster at periapsis than at apoapsis (Kepler's second law).
	var vPeri, vApo float64
	for _, ev := range r.Events {
		if ev.Kind == Periapsis {
			vPeri = ev.Speed
		} else {
			vApo = ev.Speed
		}
	}
	if vPeri <= vApo {
		t.Errorf("periapsis speed %.1f m/s not above apoapsis speed %.1f m/s", vPeri, vApo)
	}
	// Mean orbital speed is ~29.8 km/s.
	if vPeri < 29e3 || vPeri > 31e3 {
		t.Errorf("periapsis speed %.1f m/s outside [29, 31] km/s", vPeri)
	}
}

func TestPredictMaxEvents(t *testing.T) {
	p := testPropagator(t)
	results := Predict(context.Background(), Request{
		Propagator: p,
		Bodies:     []int{index(t, p, "Moon")},
		StartMJD:   tleEpoch,
		Horizon:    365 * 24 * time.Hour,
		MaxEvents:  3,
	})
	if got := len(results[0].Events); got != 3 {
		t.Errorf("got %d events, want 3", got)
	}
}

func TestPredictStationary(t *testing.T) {
	p := testPropagator(t)
	results := Predict(context.Background(), Request{
		Propagator: p,
		Bodies:     []int{0},
		StartMJD:   tleEpoch,
		Horizon:    24 * time.Hour,
	})
	if results[0].Error != ErrStationary.Error() {
		t.Errorf("error = %q, want %q", results[0].Error, ErrStationary.Error())
	}
	if len(results[0].Events) != 0 {
		t.Errorf("stationary body has %d events", len(results[0].Events))
	}
}

func TestPredictISS(t *testing.T) {
	p := testPropagator(t)
	iss := index(t, p, "ISS")

	results := Predict(context.Background(), Request{
		Propagator: p,
		Bodies:     []int{iss},
		StartMJD:   tleEpoch,
		Horizon:    3 * time.Hour,
		MaxEvents:  20,
		ScanStep:   30 * time.Second,
	})
	r := results[0]
	if r.Error != "" {
		t.Fatalf("unexpected error: %s", r.Error)
	}
	if r.Motion != "sgp4" {
		t.Errorf("motion = %q, want sgp4", r.Motion)
	}
	if len(r.Events) == 0 {
		t.Fatal("expected apsis events for the ISS over 3 hours")
	}

	for i, ev := range r.Events {
		// LEO: 6371 km Earth radius plus 370-460 km altitude.
		if ev.Distance < 6.65e6 || ev.Distance > 6.9e6 {
			t.Errorf("event %d: distance %.0f m outside LEO band", i, ev.Distance)
		}
		if ev.Speed < 7.5e3 || ev.Speed > 7.8e3 {
			t.Errorf("event %d: speed %.1f m/s outside LEO band", i, ev.Speed)
		}
		if i > 0 && ev.MJD <= r.Events[i-1].MJD {
			t.Errorf("events %d and %d out of order", i-1, i)
		}

		// A refined extremum beats its neighbors 20 s away.
		for _, off := range []float64{-20, 20} {
			pos, _, err := p.Local(iss, ev.MJD+off/mjd.SecondsPerDay)
			if err != nil {
				t.Fatal(err)
			}
			d := pos.Len()
			if ev.Kind == Periapsis && d < ev.Distance-1 {
				t.Errorf("event %d: periapsis %.1f m but %.1f m at %+.0fs", i, ev.Distance, d, off)
			}
			if ev.Kind == Apoapsis && d > ev.Distance+1 {
				t.Errorf("event %d: apoapsis %.1f m but %.1f m at %+.0fs", i, ev.Distance, d, off)
			}
		}
	}
}

func TestPredictScanBudget(t *testing.T) {
	p := testPropagator(t)
	results := Predict(context.Background(), Request{
		Propagator: p,
		Bodies:     []int{index(t, p, "ISS")},
		StartMJD:   tleEpoch,
		Horizon:    60 * 24 * time.Hour,
	})
	if !strings.Contains(results[0].Error, ErrBudget.Error()) {
		t.Errorf("error = %q, want it to mention %q", results[0].Error, ErrBudget.Error())
	}
}

func TestPredictCancelled(t *testing.T) {
	p := testPropagator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := Predict(ctx, Request{
		Propagator: p,
		Bodies:     []int{index(t, p, "Earth"), index(t, p, "Mars")},
		StartMJD:   tleEpoch,
		Horizon:    24 * time.Hour,
	})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		// Either the semaphore was never acquired, or the body finished before
		// noticing; a cancelled request must never panic or hang.
		if r.Error != "" && r.Error != "cancelled" {
			t.Errorf("%s: unexpected error %q", r.Body, r.Error)
		}
	}
}
