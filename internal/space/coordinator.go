package space

import (
	"fmt"
	"log/slog"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
)

// Coordinator owns one coordinate space and its single floating origin. The
// origin is supplied once at construction and then only moved by Recenter,
// so a space can never be without an anchor or have two.
type Coordinator struct {
	name   string
	grid   *Grid
	origin Cell
	anchor GridPosition
	events *Events
	logger *slog.Logger
}

// NewCoordinator creates a space whose floating origin starts at anchor.
// events may be shared between spaces; nil allocates a private buffer.
func NewCoordinator(name string, grid *Grid, anchor mgl64.Vec3, events *Events, logger *slog.Logger) (*Coordinator, error) {
	gp, err := grid.TranslationToGrid(anchor)
	if err != nil {
		return nil, fmt.Errorf("space %s: placing floating origin: %w", name, err)
	}
	if events == nil {
		events = &Events{}
	}
	return &Coordinator{
		name:   name,
		grid:   grid,
		origin: gp.Cell,
		anchor: gp,
		events: events,
		logger: logger.With("component", "space", "space", name),
	}, nil
}

// Name returns the space name.
func (c *Coordinator) Name() string { return c.name }

// Grid returns the space's grid.
func (c *Coordinator) Grid() *Grid { return c.grid }

// Origin returns the floating origin's current cell.
func (c *Coordinator) Origin() Cell { return c.origin }

// Anchor returns the floating origin's grid position from the last Recenter.
func (c *Coordinator) Anchor() GridPosition { return c.anchor }

// Events returns the event buffer this space writes to.
func (c *Coordinator) Events() *Events { return c.events }

// Recenter moves the floating origin to anchorPos. When the anchor has drifted
// past the switching threshold from the current origin cell, the origin
// moves to the anchor's nearest cell and a RecenterEvent is emitted. The
// returned flag reports whether that happened.
func (c *Coordinator) Recenter(anchorPos mgl64.Vec3) (GridPosition, bool, error) {
	offset := anchorPos.Sub(c.grid.CellOrigin(c.origin))
	if !c.grid.NeedsRecenter(offset) {
		c.anchor = GridPosition{Cell: c.origin, Offset: mgl32.Vec3{float32(offset[0]), float32(offset[1]), float32(offset[2])}}
		return c.anchor, false, nil
	}

	gp, err := c.grid.TranslationToGrid(anchorPos)
	if err != nil {
		return GridPosition{}, false, fmt.Errorf("space %s: recentering: %w", c.name, err)
	}
	old := c.origin
	c.origin = gp.Cell
	c.anchor = gp
	delta := c.grid.CellOrigin(gp.Cell).Sub(c.grid.CellOrigin(old))
	c.events.emit(RecenterEvent{Space: c.name, Old: old, New: gp.Cell, Delta: delta})

	c.logger.Debug("floating origin recentered",
		"old_cell", old,
		"new_cell", gp.Cell,
		"delta_m", delta.Len(),
	)
	return gp, true, nil
}

// Place converts an absolute position into a grid position in this space.
func (c *Coordinator) Place(pos mgl64.Vec3) (GridPosition, error) {
	gp, err := c.grid.TranslationToGrid(pos)
	if err != nil {
		return GridPosition{}, fmt.Errorf("space %s: %w", c.name, err)
	}
	return gp, nil
}

// Local returns the render translation of gp relative to the floating origin
// cell.
func (c *Coordinator) Local(gp GridPosition) mgl32.Vec3 {
	return c.grid.Relative(gp, c.origin)
}

// LocalFromAbsolute returns the render translation of an absolute position
// without materializing a grid position.
func (c *Coordinator) LocalFromAbsolute(pos mgl64.Vec3) mgl32.Vec3 {
	d := pos.Sub(c.grid.CellOrigin(c.origin))
	return mgl32.Vec3{float32(d[0]), float32(d[1]), float32(d[2])}
}
