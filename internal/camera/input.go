package camera

import "github.com/go-gl/mathgl/mgl32"

// Button identifies a pointer button.
type Button uint8

const (
	ButtonLeft Button = iota
	ButtonMiddle
	ButtonRight
)

// ScrollUnit distinguishes notched wheels (lines) from smooth scrolling
// devices (pixels).
type ScrollUnit uint8

const (
	ScrollLine ScrollUnit = iota
	ScrollPixel
)

// EventKind tags an input Event.
type EventKind string

const (
	EventMotion   EventKind = "motion"
	EventScroll   EventKind = "scroll"
	EventButton   EventKind = "button"
	EventModifier EventKind = "modifier"
	EventRecenter EventKind = "recenter"
	EventBlock    EventKind = "block"
)

// Event is one host input event. Deltas are in window coordinates (Y down).
type Event struct {
	Kind    EventKind  `json:"kind"`
	Delta   mgl32.Vec2 `json:"delta,omitempty"`
	Unit    ScrollUnit `json:"unit,omitempty"`
	Button  Button     `json:"button,omitempty"`
	Pressed bool       `json:"pressed,omitempty"`
}

// Input is everything the controller needs for one tick.
type Input struct {
	Motion       mgl32.Vec2
	ScrollLines  mgl32.Vec2
	ScrollPixels mgl32.Vec2
	Held         [3]bool
	JustPressed  [3]bool
	Shift        bool
	Recenter     bool
	// Blocked is set while another consumer (an overlay) owns the pointer.
	Blocked bool
}

// InputState accumulates events between ticks. Button and modifier state
// persists across ticks; deltas and edge flags are reset by Drain.
type InputState struct {
	cur Input
}

// Apply folds ev into the pending input.
func (s *InputState) Apply(ev Event) {
	switch ev.Kind {
	case EventMotion:
		s.cur.Motion = s.cur.Motion.Add(ev.Delta)
	case EventScroll:
		// Wheel Y is inverted so that scrolling up zooms in.
		d := mgl32.Vec2{ev.Delta[0], -ev.Delta[1]}
		if ev.Unit == ScrollPixel {
			s.cur.ScrollPixels = s.cur.ScrollPixels.Add(d)
		} else {
			s.cur.ScrollLines = s.cur.ScrollLines.Add(d)
		}
	case EventButton:
		if int(ev.Button) >= len(s.cur.Held) {
			return
		}
		if ev.Pressed && !s.cur.Held[ev.Button] {
			s.cur.JustPressed[ev.Button] = true
		}
		s.cur.Held[ev.Button] = ev.Pressed
	case EventModifier:
		s.cur.Shift = ev.Pressed
	case EventRecenter:
		s.cur.Recenter = true
	case EventBlock:
		s.cur.Blocked = ev.Pressed
	}
}

// Drain returns the accumulated input and clears the per-tick parts.
func (s *InputState) Drain() Input {
	in := s.cur
	s.cur.Motion = mgl32.Vec2{}
	s.cur.ScrollLines = mgl32.Vec2{}
	s.cur.ScrollPixels = mgl32.Vec2{}
	s.cur.JustPressed = [3]bool{}
	s.cur.Recenter = false
	return in
}
