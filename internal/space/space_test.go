package space

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func mustGrid(t *testing.T) *Grid {
	t.Helper()
	g, err := NewGrid(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestTranslationToGrid(t *testing.T) {
	g := mustGrid(t)
	tests := []struct {
		name     string
		pos      mgl64.Vec3
		wantCell Cell
	}{
		{"origin", mgl64.Vec3{0, 0, 0}, Cell{0, 0, 0}},
		{"rounds down", mgl64.Vec3{4999, 0, 0}, Cell{0, 0, 0}},
		{"rounds up", mgl64.Vec3{5001, 0, 0}, Cell{1, 0, 0}},
		{"negative", mgl64.Vec3{-15001, 0, 25000}, Cell{-2, 0, 3}},
		{"earth orbit", mgl64.Vec3{1.49598023e11, 0, -2.5e10}, Cell{14959802, 0, -2500000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gp, err := g.TranslationToGrid(tt.pos)
			if err != nil {
				t.Fatal(err)
			}
			if gp.Cell != tt.wantCell {
				t.Errorf("cell = %v, want %v", gp.Cell, tt.wantCell)
			}
			for i := range 3 {
				if math.Abs(float64(gp.Offset[i])) > g.CellLength()/2+1e-3 {
					t.Errorf("offset %v exceeds half a cell", gp.Offset)
				}
			}
			back := g.GridToTranslation(gp)
			if d := back.Sub(tt.pos).Len(); d > 1e-3 {
				t.Errorf("round trip error %v m", d)
			}
		})
	}
}

func TestTranslationToGridOverflow(t *testing.T) {
	g := mustGrid(t)
	limit := float64(math.MaxInt32) * g.CellLength()
	for _, pos := range []mgl64.Vec3{
		{limit * 2, 0, 0},
		{0, -limit * 2, 0},
		{0, 0, math.Inf(1)},
		{math.NaN(), 0, 0},
	} {
		if _, err := g.TranslationToGrid(pos); !errors.Is(err, ErrGridOverflow) {
			t.Errorf("TranslationToGrid(%v) error = %v, want ErrGridOverflow", pos, err)
		}
	}
}

func TestNewGridValidation(t *testing.T) {
	bad := []Config{
		{CellLength: 0, SwitchingThreshold: 1},
		{CellLength: -5, SwitchingThreshold: 1},
		{CellLength: 100, SwitchingThreshold: 50},
		{CellLength: 100, SwitchingThreshold: -1},
		{CellLength: math.Inf(1), SwitchingThreshold: 1},
	}
	for _, cfg := range bad {
		if _, err := NewGrid(cfg); err == nil {
			t.Errorf("NewGrid(%+v) expected error", cfg)
		}
	}
}

func TestRecenterPreservesPosition(t *testing.T) {
	g := mustGrid(t)
	start := mgl64.Vec3{1.49598023e11, 1234, -7.5e9}
	c, err := NewCoordinator("main", g, start, nil, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	// Walk the anchor along a path that crosses many cells, in steps both
	// smaller and larger than a cell.
	pos := start
	steps := []mgl64.Vec3{
		{50, 0, 0}, {5200, 0, 0}, {0, -7000, 300}, {1e6, 2e5, -3e7},
		{-12345.678, 0.5, 0}, {90, 90, 90}, {4e9, 0, 0},
	}
	var tick uint64
	for _, step := range steps {
		tick++
		c.Events().Begin(tick)
		oldOrigin := c.Origin()

		pos = pos.Add(step)
		gp, moved, err := c.Recenter(pos)
		if err != nil {
			t.Fatal(err)
		}

		// cell·L + offset still names the same absolute position.
		if d := g.GridToTranslation(gp).Sub(pos).Len(); d > 1e-2 {
			t.Errorf("tick %d: position jumped by %v m across recenter", tick, d)
		}
		if moved {
			if l := gp.Offset.Len(); float64(l) >= g.CellLength() {
				t.Errorf("tick %d: offset %v after recenter not below cell length", tick, l)
			}
			if c.Events().Len() != 1 {
				t.Fatalf("tick %d: expected one event, got %d", tick, c.Events().Len())
			}
			ev := c.Events().All()[0]
			if ev.Tick != tick || ev.Old != oldOrigin || ev.New != c.Origin() {
				t.Errorf("event = %+v", ev)
			}
			wantDelta := g.CellOrigin(ev.New).Sub(g.CellOrigin(ev.Old))
			if !ev.Delta.ApproxEqualThreshold(wantDelta, 1e-6) {
				t.Errorf("delta = %v, want %v", ev.Delta, wantDelta)
			}
		} else if c.Events().Len() != 0 {
			t.Errorf("tick %d: event emitted without recenter", tick)
		}
	}
}

func TestRecenterHysteresis(t *testing.T) {
	g := mustGrid(t)
	c, err := NewCoordinator("main", g, mgl64.Vec3{}, nil, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	// Just past the cell boundary but inside the switching threshold.
	if _, moved, _ := c.Recenter(mgl64.Vec3{5050, 0, 0}); moved {
		t.Error("recentered inside switching threshold")
	}
	if c.Origin() != (Cell{}) {
		t.Errorf("origin moved to %v", c.Origin())
	}

	if _, moved, _ := c.Recenter(mgl64.Vec3{5101, 0, 0}); !moved {
		t.Error("did not recenter past switching threshold")
	}
	if c.Origin() != (Cell{1, 0, 0}) {
		t.Errorf("origin = %v, want {1 0 0}", c.Origin())
	}

	// Coming back just past the boundary does not flip straight back.
	if _, moved, _ := c.Recenter(mgl64.Vec3{4950, 0, 0}); moved {
		t.Error("recentered back without passing threshold")
	}
}

func TestLocalRelativeToOrigin(t *testing.T) {
	g := mustGrid(t)
	camera := mgl64.Vec3{1.5e11, 0, 0}
	c, err := NewCoordinator("main", g, camera, nil, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	body := camera.Add(mgl64.Vec3{12.25, -3.5, 7000.125})
	gp, err := c.Place(body)
	if err != nil {
		t.Fatal(err)
	}
	local := c.Local(gp)
	want := body.Sub(g.CellOrigin(c.Origin()))
	for i := range 3 {
		if math.Abs(float64(local[i])-want[i]) > 1e-3 {
			t.Errorf("local = %v, want %v", local, want)
		}
	}
	if got := c.LocalFromAbsolute(body); !got.ApproxEqualThreshold(local, 1e-3) {
		t.Errorf("LocalFromAbsolute = %v, Local = %v", got, local)
	}
}

func TestEventsBeginClears(t *testing.T) {
	var e Events
	e.Begin(1)
	e.emit(RecenterEvent{Space: "main"})
	if e.Len() != 1 || e.All()[0].Tick != 1 {
		t.Fatalf("events = %+v", e.All())
	}
	e.Begin(2)
	if e.Len() != 0 || e.All() != nil {
		t.Error("Begin did not clear events")
	}
}

func TestOverflowIsFatalForCoordinator(t *testing.T) {
	g := mustGrid(t)
	far := mgl64.Vec3{float64(math.MaxInt32) * g.CellLength() * 4, 0, 0}
	if _, err := NewCoordinator("main", g, far, nil, testLogger()); !errors.Is(err, ErrGridOverflow) {
		t.Errorf("expected ErrGridOverflow, got %v", err)
	}

	c, _ := NewCoordinator("main", g, mgl64.Vec3{}, nil, testLogger())
	if _, _, err := c.Recenter(far); !errors.Is(err, ErrGridOverflow) {
		t.Errorf("expected ErrGridOverflow from Recenter, got %v", err)
	}
}
