// Package cache keeps a rolling history of published simulation frames.
//
// A background recorder samples the session's latest frame at a fixed
// interval and appends it to a bounded ring. The history backs body trails in
// the frame stream and the history endpoint. When simulation time jumps (the
// clock was set, or time reversed direction) the ring is replaced wholesale so
// trails never connect positions from two different epochs.
package cache

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/spacesim/internal/metrics"
	"github.com/star/spacesim/internal/sim"
)

// Config holds history configuration loaded from environment variables.
type Config struct {
	Capacity int           // Frames kept (default: 600)
	Interval time.Duration // Sampling interval (default: 100ms)
	MaxJump  float64       // Extra MJD days tolerated between samples before a reset (default: 1)
}

// DefaultConfig returns one minute of history at 10 samples per second.
func DefaultConfig() Config {
	return Config{
		Capacity: 600,
		Interval: 100 * time.Millisecond,
		MaxJump:  1,
	}
}

// Entry wraps a frame with the wall time it was recorded at.
type Entry struct {
	Frame      *sim.Frame
	RecordedAt time.Time
}

// History is a bounded ring of frames, oldest first.
// Safe for concurrent use by multiple goroutines.
type History struct {
	mu      sync.RWMutex
	entries []Entry
	start   int // index of the oldest entry
	size    int

	config Config
	logger *slog.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	resets    atomic.Int64
}

// NewHistory creates an empty history.
func NewHistory(config Config, logger *slog.Logger) *History {
	if config.Capacity <= 0 {
		config.Capacity = DefaultConfig().Capacity
	}
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	logger = logger.With("component", "history")
	logger.Info("history initialized",
		"capacity", config.Capacity,
		"interval_ms", config.Interval.Milliseconds(),
		"max_jump_days", config.MaxJump,
	)
	return &History{
		entries: make([]Entry, config.Capacity),
		config:  config,
		logger:  logger,
	}
}

// Config returns the history configuration.
func (h *History) Config() Config { return h.config }

// Put appends f unless it is nil or not newer than the last recorded frame.
// A full ring evicts its oldest entry. It reports whether f was stored.
func (h *History) Put(f *sim.Frame, at time.Time) bool {
	if f == nil {
		return false
	}

	h.mu.Lock()
	if h.size > 0 && f.Tick <= h.at(h.size-1).Frame.Tick {
		h.mu.Unlock()
		return false
	}
	evicted := false
	if h.size == len(h.entries) {
		h.start = (h.start + 1) % len(h.entries)
		h.size--
		evicted = true
	}
	h.entries[(h.start+h.size)%len(h.entries)] = Entry{Frame: f, RecordedAt: at}
	h.size++
	n := h.size
	h.mu.Unlock()

	if evicted {
		h.evictions.Add(1)
	}
	metrics.SetHistoryFrames(n)
	return true
}

// at returns the i-th oldest entry. Caller must hold mu.
func (h *History) at(i int) Entry {
	return h.entries[(h.start+i)%len(h.entries)]
}

// Latest returns the most recent frame, or nil when the history is empty.
func (h *History) Latest() *sim.Frame {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.size == 0 {
		h.misses.Add(1)
		return nil
	}
	h.hits.Add(1)
	return h.at(h.size - 1).Frame
}

// Recent returns up to count frames ending with the latest, oldest first.
func (h *History) Recent(count int) []*sim.Frame {
	if count <= 0 {
		return nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	count = min(count, h.size)
	out := make([]*sim.Frame, 0, count)
	for i := h.size - count; i < h.size; i++ {
		out = append(out, h.at(i).Frame)
	}
	return out
}

// Since returns the frames recorded after tick, oldest first.
func (h *History) Since(tick uint64) []*sim.Frame {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*sim.Frame
	for i := 0; i < h.size; i++ {
		if f := h.at(i).Frame; f.Tick > tick {
			out = append(out, f)
		}
	}
	return out
}

// Trail returns up to count root-relative positions of the named body, oldest
// first. Frames in which the body is missing are skipped.
func (h *History) Trail(body string, count int) [][3]float64 {
	frames := h.Recent(count)
	if len(frames) == 0 {
		return nil
	}
	out := make([][3]float64, 0, len(frames))
	for _, f := range frames {
		if b := f.Body(body); b != nil {
			out = append(out, [3]float64(b.World))
		}
	}
	return out
}

// Len returns the number of recorded frames.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// replaceAll swaps the ring for one holding only entries, oldest first.
func (h *History) replaceAll(entries []Entry) {
	ring := make([]Entry, len(h.entries))
	n := copy(ring, entries)

	h.mu.Lock()
	h.entries = ring
	h.start = 0
	h.size = n
	h.mu.Unlock()

	metrics.SetHistoryFrames(n)
}

// Stats returns current history statistics.
func (h *History) Stats() Stats {
	h.mu.RLock()
	st := Stats{
		Frames:   h.size,
		Capacity: len(h.entries),
	}
	if h.size > 0 {
		oldest, newest := h.at(0), h.at(h.size-1)
		st.OldestTick = oldest.Frame.Tick
		st.NewestTick = newest.Frame.Tick
		st.OldestMJD = oldest.Frame.MJD
		st.NewestMJD = newest.Frame.MJD
	}
	h.mu.RUnlock()

	st.Hits = h.hits.Load()
	st.Misses = h.misses.Load()
	st.Evictions = h.evictions.Load()
	st.Resets = h.resets.Load()
	return st
}

// Stats holds history statistics for the history endpoint.
type Stats struct {
	Frames     int     `json:"frames"`
	Capacity   int     `json:"capacity"`
	OldestTick uint64  `json:"oldest_tick"`
	NewestTick uint64  `json:"newest_tick"`
	OldestMJD  float64 `json:"oldest_mjd"`
	NewestMJD  float64 `json:"newest_mjd"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	Evictions  int64   `json:"evictions"`
	Resets     int64   `json:"resets"`
}
