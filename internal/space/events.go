package space

import "github.com/go-gl/mathgl/mgl64"

// RecenterEvent records the floating origin moving to another cell.
type RecenterEvent struct {
	Tick  uint64     `json:"tick"`
	Space string     `json:"space"`
	Old   Cell       `json:"old"`
	New   Cell       `json:"new"`
	Delta mgl64.Vec3 `json:"delta"` // meters, New origin - Old origin
}

// Events is the per-tick recenter event buffer. The coordinator is the only
// writer; dependents read it after the coordinator has run in the same tick.
// It is cleared when the next tick begins.
type Events struct {
	tick   uint64
	events []RecenterEvent
}

// Begin discards the previous tick's events.
func (e *Events) Begin(tick uint64) {
	e.tick = tick
	e.events = e.events[:0]
}

func (e *Events) emit(ev RecenterEvent) {
	ev.Tick = e.tick
	e.events = append(e.events, ev)
}

// Tick returns the tick the buffer belongs to.
func (e *Events) Tick() uint64 { return e.tick }

// All returns a copy of this tick's events.
func (e *Events) All() []RecenterEvent {
	if len(e.events) == 0 {
		return nil
	}
	out := make([]RecenterEvent, len(e.events))
	copy(out, e.events)
	return out
}

// Len returns the number of events this tick.
func (e *Events) Len() int { return len(e.events) }
