// Package space implements the floating-origin grid. Absolute positions are
// float64 meters; each one is split into an integer cell and a small float32
// offset inside that cell. Rendering happens relative to the cell of the
// floating origin (the camera), so values near the camera keep full float32
// precision regardless of how far from the scene root they are.
package space

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
)

// ErrGridOverflow is returned when a position falls outside the range of an
// int32 cell index. It always indicates a units or configuration bug.
var ErrGridOverflow = errors.New("position exceeds grid range")

// Defaults match the solar system scale: 10 km cells with a 100 m switching
// threshold.
const (
	DefaultCellLength         = 10_000.0
	DefaultSwitchingThreshold = 100.0
)

// Cell is an integer grid coordinate.
type Cell [3]int32

// Sub returns c - o widened to int64.
func (c Cell) Sub(o Cell) [3]int64 {
	return [3]int64{
		int64(c[0]) - int64(o[0]),
		int64(c[1]) - int64(o[1]),
		int64(c[2]) - int64(o[2]),
	}
}

// GridPosition is a cell plus an offset from that cell's center.
type GridPosition struct {
	Cell   Cell
	Offset mgl32.Vec3
}

// Config describes a grid.
type Config struct {
	CellLength         float64
	SwitchingThreshold float64
}

// DefaultConfig returns the solar system grid configuration.
func DefaultConfig() Config {
	return Config{
		CellLength:         DefaultCellLength,
		SwitchingThreshold: DefaultSwitchingThreshold,
	}
}

// Grid converts between absolute positions and grid positions.
type Grid struct {
	cellLength float64
	threshold  float64
	maxOffset  float64 // cellLength/2 + threshold
}

// NewGrid validates cfg.
func NewGrid(cfg Config) (*Grid, error) {
	if !(cfg.CellLength > 0) || math.IsInf(cfg.CellLength, 0) {
		return nil, fmt.Errorf("cell length must be positive and finite, got %v", cfg.CellLength)
	}
	if cfg.SwitchingThreshold < 0 || cfg.SwitchingThreshold >= cfg.CellLength/2 {
		return nil, fmt.Errorf("switching threshold %v must be within [0, %v)", cfg.SwitchingThreshold, cfg.CellLength/2)
	}
	return &Grid{
		cellLength: cfg.CellLength,
		threshold:  cfg.SwitchingThreshold,
		maxOffset:  cfg.CellLength/2 + cfg.SwitchingThreshold,
	}, nil
}

// CellLength returns the cell edge length in meters.
func (g *Grid) CellLength() float64 { return g.cellLength }

// SwitchingThreshold returns the hysteresis distance past the cell boundary.
func (g *Grid) SwitchingThreshold() float64 { return g.threshold }

// MaxOffset is the largest per-axis offset tolerated before a position must
// move to another cell.
func (g *Grid) MaxOffset() float64 { return g.maxOffset }

// TranslationToGrid rounds pos to the nearest cell and returns the remainder
// as the in-cell offset.
func (g *Grid) TranslationToGrid(pos mgl64.Vec3) (GridPosition, error) {
	var gp GridPosition
	for i, v := range pos {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return GridPosition{}, fmt.Errorf("%w: axis %d is %v", ErrGridOverflow, i, v)
		}
		n := math.Round(v / g.cellLength)
		if n > math.MaxInt32 || n < math.MinInt32 {
			return GridPosition{}, fmt.Errorf("%w: axis %d at %.6g m needs cell %.6g", ErrGridOverflow, i, v, n)
		}
		gp.Cell[i] = int32(n)
		gp.Offset[i] = float32(v - n*g.cellLength)
	}
	return gp, nil
}

// GridToTranslation returns the absolute position of gp.
func (g *Grid) GridToTranslation(gp GridPosition) mgl64.Vec3 {
	return g.CellOrigin(gp.Cell).Add(mgl64.Vec3{
		float64(gp.Offset[0]),
		float64(gp.Offset[1]),
		float64(gp.Offset[2]),
	})
}

// CellOrigin returns the absolute position of the center of c.
func (g *Grid) CellOrigin(c Cell) mgl64.Vec3 {
	return mgl64.Vec3{
		float64(c[0]) * g.cellLength,
		float64(c[1]) * g.cellLength,
		float64(c[2]) * g.cellLength,
	}
}

// Relative returns the float32 translation of gp as seen from the origin
// cell. This is what the renderer consumes.
func (g *Grid) Relative(gp GridPosition, origin Cell) mgl32.Vec3 {
	d := gp.Cell.Sub(origin)
	return mgl32.Vec3{
		float32(float64(d[0])*g.cellLength + float64(gp.Offset[0])),
		float32(float64(d[1])*g.cellLength + float64(gp.Offset[1])),
		float32(float64(d[2])*g.cellLength + float64(gp.Offset[2])),
	}
}

// NeedsRecenter reports whether offset has drifted past the switching
// threshold on any axis.
func (g *Grid) NeedsRecenter(offset mgl64.Vec3) bool {
	return math.Abs(offset[0]) > g.maxOffset ||
		math.Abs(offset[1]) > g.maxOffset ||
		math.Abs(offset[2]) > g.maxOffset
}
