package cache

import (
	"math"
	"time"

	"github.com/star/spacesim/internal/metrics"
	"github.com/star/spacesim/internal/mjd"
	"github.com/star/spacesim/internal/sim"
)

// discontinuous reports whether next cannot follow the last recorded frame:
// simulation time moved against the clock's direction, or further than the
// clock speed allows for the wall time elapsed plus MaxJump days.
func (h *History) discontinuous(next *sim.Frame, now time.Time) bool {
	h.mu.RLock()
	if h.size == 0 {
		h.mu.RUnlock()
		return false
	}
	last := h.at(h.size - 1)
	h.mu.RUnlock()

	if next.Tick <= last.Frame.Tick {
		return false
	}
	jump := next.MJD - last.Frame.MJD
	if jump*next.Speed < 0 && !next.Paused {
		return true
	}
	wall := now.Sub(last.RecordedAt).Seconds()
	speed := math.Max(math.Abs(next.Speed), math.Abs(last.Frame.Speed))
	expected := speed * wall / mjd.SecondsPerDay
	return math.Abs(jump) > expected+h.config.MaxJump
}

// performCutover drops every recorded frame and starts a new timeline at f.
// Readers see either the old ring or the new one, never a mix.
func (h *History) performCutover(f *sim.Frame, now time.Time) {
	old := h.Stats()

	h.replaceAll([]Entry{{Frame: f, RecordedAt: now}})
	h.resets.Add(1)
	metrics.IncHistoryResets()

	h.logger.Info("history reset on time discontinuity",
		"old_mjd", old.NewestMJD,
		"new_mjd", f.MJD,
		"frames_dropped", old.Frames,
		"tick", f.Tick,
	)
}
