package sim

import (
	"errors"
	"fmt"
	"math"

	"github.com/star/spacesim/internal/camera"
	"github.com/star/spacesim/internal/metrics"
)

// CommandKind tags a Command.
type CommandKind string

const (
	CmdCamera   CommandKind = "camera"
	CmdPause    CommandKind = "pause"
	CmdSpeedUp  CommandKind = "speed_up"
	CmdSlowDown CommandKind = "slow_down"
	CmdSetSpeed CommandKind = "set_speed"
	CmdSetTime  CommandKind = "set_time"
	CmdTarget   CommandKind = "target"
	CmdResize   CommandKind = "resize"
)

// Command is one queued host input. Event is set for CmdCamera, Value holds
// the speed for CmdSetSpeed and the MJD for CmdSetTime, Target names the body
// for CmdTarget, and Width/Height carry the viewport for CmdResize.
type Command struct {
	Kind   CommandKind   `json:"kind"`
	Event  *camera.Event `json:"event,omitempty"`
	Value  float64       `json:"value,omitempty"`
	Target string        `json:"target,omitempty"`
	Width  uint32        `json:"width,omitempty"`
	Height uint32        `json:"height,omitempty"`
}

// ErrInvalidCommand is returned by Command.Validate.
var ErrInvalidCommand = errors.New("invalid command")

// Validate checks that cmd carries what its kind needs. It does not resolve
// target names; an unknown target is logged and ignored when applied.
func (cmd Command) Validate() error {
	switch cmd.Kind {
	case CmdPause, CmdSpeedUp, CmdSlowDown:
		return nil
	case CmdCamera:
		if cmd.Event == nil {
			return fmt.Errorf("%w: camera command without event", ErrInvalidCommand)
		}
		return nil
	case CmdSetSpeed, CmdSetTime:
		if math.IsNaN(cmd.Value) || math.IsInf(cmd.Value, 0) {
			return fmt.Errorf("%w: %s value %v is not finite", ErrInvalidCommand, cmd.Kind, cmd.Value)
		}
		return nil
	case CmdTarget:
		if cmd.Target == "" {
			return fmt.Errorf("%w: target command without body name", ErrInvalidCommand)
		}
		return nil
	case CmdResize:
		if cmd.Width == 0 || cmd.Height == 0 {
			return fmt.Errorf("%w: resize to %dx%d", ErrInvalidCommand, cmd.Width, cmd.Height)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidCommand, cmd.Kind)
	}
}

// Submit queues cmd for the next tick. It never blocks: when the queue is
// full the command is dropped, counted, and false is returned.
func (s *Session) Submit(cmd Command) bool {
	if s == nil || !s.ready {
		return false
	}
	select {
	case s.commands <- cmd:
		return true
	default:
		s.dropped.Add(1)
		metrics.IncInputDropped()
		return false
	}
}

// Dropped returns how many commands were dropped on a full queue.
func (s *Session) Dropped() int64 { return s.dropped.Load() }

// drainCommands applies everything queued since the last tick. Only the tick
// goroutine calls it.
func (s *Session) drainCommands() {
	for {
		select {
		case cmd := <-s.commands:
			s.apply(cmd)
		default:
			return
		}
	}
}

func (s *Session) apply(cmd Command) {
	switch cmd.Kind {
	case CmdCamera:
		if cmd.Event != nil {
			s.input.Apply(*cmd.Event)
		}
	case CmdPause:
		s.clock.TogglePause()
	case CmdSpeedUp:
		s.clock.SpeedUp()
	case CmdSlowDown:
		s.clock.SlowDown()
	case CmdSetSpeed:
		s.clock.SetSpeed(cmd.Value)
	case CmdSetTime:
		s.clock.Set(cmd.Value)
	case CmdTarget:
		i, ok := s.h.Lookup(cmd.Target)
		if !ok {
			s.logger.Warn("ignoring camera target", "target", cmd.Target, "error", "no such body")
			return
		}
		s.target = i
		s.rig.Recenter()
		s.logger.Info("camera target changed", "target", cmd.Target)
	case CmdResize:
		s.width, s.height = cmd.Width, cmd.Height
	default:
		s.logger.Warn("ignoring unknown command", "kind", cmd.Kind)
	}
}
