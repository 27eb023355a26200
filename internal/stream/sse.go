// Package stream implements Server-Sent Events (SSE) streaming of simulation
// frames. Clients connect via GET /api/v1/stream/frames and receive the
// latest published frame at the rate they asked for, with optional trails of
// recent root-relative body positions taken from the frame history.
//
// SSE message format:
//
//	data: {"type":"frame","tick":42,"mjd":60409.5,"origin":[0,0,0],"camera":{...},"bodies":[...]}\n\n
//
// First message is always metadata describing the hierarchy:
//
//	data: {"type":"metadata","root":"Sun","bodies":[{"name":"Earth","parent":"Sun","radius":6371000}]}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval to prevent timeout.
// Reconnecting clients receive a fresh metadata message on each connection.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/star/spacesim/internal/cache"
	"github.com/star/spacesim/internal/httputil"
	"github.com/star/spacesim/internal/metrics"
	"github.com/star/spacesim/internal/scene"
	"github.com/star/spacesim/internal/sim"
	"github.com/star/spacesim/internal/space"
)

// Config holds streaming configuration loaded from environment variables.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxConcurrent      int           // Max concurrent streams overall (default: 1000).
	BandwidthLimit     int           // Bytes per second per stream (default: 1048576).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	MaxRate            int           // Max frames per second a client may request (default: 30).
	TrustProxy         bool          // Take the client IP from X-Forwarded-For.
}

// DefaultConfig returns the streaming defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentPerIP: 10,
		MaxConcurrent:      defaultMaxTotal,
		BandwidthLimit:     1048576,
		KeepaliveInterval:  30 * time.Second,
		MaxRate:            30,
	}
}

// Handler manages SSE streaming connections.
type Handler struct {
	history *cache.History
	scene   *scene.Hierarchy
	config  Config
	limiter *streamLimiter
	logger  *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(history *cache.History, h *scene.Hierarchy, config Config, logger *slog.Logger) *Handler {
	if config.MaxRate <= 0 {
		config.MaxRate = DefaultConfig().MaxRate
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = DefaultConfig().KeepaliveInterval
	}
	return &Handler{
		history: history,
		scene:   h,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP, config.MaxConcurrent),
		logger:  logger.With("component", "stream"),
	}
}

// Active returns the number of open streams.
func (h *Handler) Active() int { return h.limiter.active() }

func (h *Handler) clientIP(r *http.Request) string {
	return httputil.ClientIP(r, h.config.TrustProxy)
}

func badRequest(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// HandleFrames serves the SSE frame stream.
// GET /api/v1/stream/frames?hz=10&trail=20&bodies=Earth,Moon
func (h *Handler) HandleFrames(w http.ResponseWriter, r *http.Request) {
	hz := min(10, h.config.MaxRate)
	if v := r.URL.Query().Get("hz"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > h.config.MaxRate {
			badRequest(w, fmt.Sprintf("invalid hz parameter, must be 1-%d", h.config.MaxRate))
			return
		}
		hz = n
	}

	trail := 20
	if v := r.URL.Query().Get("trail"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 120 {
			badRequest(w, "invalid trail parameter, must be 0-120")
			return
		}
		trail = n
	}

	var filter map[string]bool
	if v := r.URL.Query().Get("bodies"); v != "" {
		filter = make(map[string]bool)
		for _, name := range strings.Split(v, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if _, ok := h.scene.Lookup(name); !ok {
				badRequest(w, fmt.Sprintf("unknown body %q", name))
				return
			}
			filter[name] = true
		}
	}

	// Rate limiting: enforce concurrent stream limit per IP.
	ip := h.clientIP(r)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamRejected("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "too many concurrent streams"})
		return
	}

	metrics.StreamConnected(1)
	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"hz", hz,
		"trail", trail,
		"bodies", len(filter),
	)

	// Cleanup on disconnect: release rate limit slot and update metrics.
	defer func() {
		h.limiter.release(ip)
		metrics.StreamConnected(-1)
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	// Verify flusher support (required for SSE).
	flusher, ok := w.(http.Flusher)
	if !ok {
		metrics.IncStreamRejected("no_flusher")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Clear the server's default WriteTimeout for this long-lived connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &client{
		w:       w,
		flusher: flusher,
		rc:      rc,
		ip:      ip,
		logger:  h.logger,
	}
	if h.config.BandwidthLimit > 0 {
		c.bandwidth = rate.NewLimiter(rate.Limit(h.config.BandwidthLimit), h.config.BandwidthLimit)
	}

	// Jittered retry interval (3-7s) so a server restart does not cause a
	// reconnection storm.
	retryMs := 3000 + rand.Intn(4000)
	fmt.Fprintf(w, "retry: %d\n\n", retryMs)
	flusher.Flush()

	ctx := r.Context()
	if err := c.sendJSON(ctx, buildMetadataMessage(h.scene)); err != nil {
		metrics.IncStreamRejected("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	var lastTick uint64
	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			f := h.history.Latest()
			if f == nil || f.Tick == lastTick {
				continue
			}
			lastTick = f.Tick

			var trailFrames []*sim.Frame
			if trail > 0 {
				trailFrames = h.history.Recent(trail)
			}
			data, err := json.Marshal(buildFrameMessage(f, filter, trailFrames))
			if err != nil {
				h.logger.Warn("stream marshal error", "remote_ip", ip, "error", err)
				continue
			}
			if err := c.sendRaw(ctx, data); err != nil {
				if ctx.Err() == nil {
					h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				}
				return
			}
			metrics.IncStreamFrames()

			// Reset keepalive since we just sent data.
			keepaliveTicker.Reset(h.config.KeepaliveInterval)

		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

// buildMetadataMessage describes the hierarchy so clients can label bodies.
func buildMetadataMessage(h *scene.Hierarchy) metadataMessage {
	msg := metadataMessage{
		Type:   "metadata",
		Root:   h.Root().Name,
		Bodies: make([]bodyMeta, h.Len()),
	}
	for i := range h.Bodies {
		b := &h.Bodies[i]
		msg.Bodies[i] = bodyMeta{
			Name:   b.Name,
			Radius: b.Radius,
			Motion: b.Motion.Kind.String(),
		}
		if b.Parent >= 0 {
			msg.Bodies[i].Parent = h.Bodies[b.Parent].Name
		}
	}
	return msg
}

// buildFrameMessage formats a frame into the SSE payload. A nil filter keeps
// every body. If trailFrames is non-empty each body carries its past
// root-relative positions, oldest first.
func buildFrameMessage(f *sim.Frame, filter map[string]bool, trailFrames []*sim.Frame) frameMessage {
	var trailIndex map[string][][3]float64
	if len(trailFrames) > 0 {
		trailIndex = make(map[string][][3]float64, len(f.Bodies))
		for _, tf := range trailFrames {
			for _, b := range tf.Bodies {
				if filter != nil && !filter[b.Name] {
					continue
				}
				trailIndex[b.Name] = append(trailIndex[b.Name], [3]float64(b.World))
			}
		}
	}

	bodies := make([]bodyPayload, 0, len(f.Bodies))
	for _, b := range f.Bodies {
		if filter != nil && !filter[b.Name] {
			continue
		}
		p := bodyPayload{
			N: b.Name,
			C: b.Cell,
			P: [3]float32(b.Translation),
			W: [3]float64(b.World),
			R: b.Rotation,
		}
		if trailIndex != nil {
			p.Tr = trailIndex[b.Name]
		}
		bodies = append(bodies, p)
	}

	msg := frameMessage{
		Type:   "frame",
		Tick:   f.Tick,
		MJD:    f.MJD,
		T:      f.Time.UTC().Format(time.RFC3339Nano),
		Origin: f.Camera.Cell,
		Camera: cameraPayload{
			P: [3]float32(f.Camera.Translation),
			R: f.Camera.Rotation,
		},
		Bodies:    bodies,
		Recenters: f.Recenters,
	}
	if f.Flare.Visible {
		ndc := [3]float32(f.Flare.NDC)
		msg.Flare = &ndc
	}
	return msg
}

// SSE message payload types.

type metadataMessage struct {
	Type   string     `json:"type"`
	Root   string     `json:"root"`
	Bodies []bodyMeta `json:"bodies"`
}

type bodyMeta struct {
	Name   string  `json:"name"`
	Parent string  `json:"parent,omitempty"`
	Radius float64 `json:"radius"`
	Motion string  `json:"motion"`
}

type frameMessage struct {
	Type      string                `json:"type"`
	Tick      uint64                `json:"tick"`
	MJD       float64               `json:"mjd"`
	T         string                `json:"t"`
	Origin    space.Cell            `json:"origin"`
	Camera    cameraPayload         `json:"camera"`
	Bodies    []bodyPayload         `json:"bodies"`
	Flare     *[3]float32           `json:"flare,omitempty"`
	Recenters []space.RecenterEvent `json:"recenters,omitempty"`
}

type cameraPayload struct {
	P [3]float32 `json:"p"`
	R [4]float32 `json:"r"`
}

type bodyPayload struct {
	N  string       `json:"n"`
	C  space.Cell   `json:"c"`
	P  [3]float32   `json:"p"` // relative to the floating origin cell
	W  [3]float64   `json:"w"` // relative to the root
	R  [4]float32   `json:"r"`
	Tr [][3]float64 `json:"tr,omitempty"`
}
