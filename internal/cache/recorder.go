package cache

import (
	"context"
	"time"

	"github.com/star/spacesim/internal/sim"
)

// FrameSource publishes frames. *sim.Session implements it.
type FrameSource interface {
	Latest() *sim.Frame
}

// Start samples src every Interval and records new frames, resetting the
// history first when simulation time jumped. Blocks until ctx is cancelled.
func (h *History) Start(ctx context.Context, src FrameSource) {
	ticker := time.NewTicker(h.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("history recorder stopped", "frames", h.Len())
			return
		case now := <-ticker.C:
			h.record(src.Latest(), now)
		}
	}
}

// record stores f, first performing a cutover if f does not continue the
// recorded timeline.
func (h *History) record(f *sim.Frame, now time.Time) {
	if f == nil {
		return
	}
	if h.discontinuous(f, now) {
		h.performCutover(f, now)
		return
	}
	if h.Put(f, now) {
		h.logger.Debug("frame recorded", "tick", f.Tick, "mjd", f.MJD)
	}
}
