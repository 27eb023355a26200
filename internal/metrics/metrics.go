package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacesim_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spacesim_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	tickDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "spacesim_tick_duration_seconds",
			Help:    "Wall time spent in one simulation tick.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14),
		},
	)

	ticksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spacesim_ticks_total",
			Help: "Total number of simulation ticks.",
		},
	)

	positioningDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "spacesim_positioning_duration_seconds",
			Help:    "Wall time spent positioning the body hierarchy.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 14),
		},
	)

	bodyUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacesim_body_updates_total",
			Help: "Body position updates by result.",
		},
		[]string{"result"},
	)

	keplerNoConvergenceTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spacesim_kepler_no_convergence_total",
			Help: "Kepler solves that hit the iteration limit and used the last iterate.",
		},
	)

	bodiesGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spacesim_bodies",
			Help: "Bodies in the loaded hierarchy by motion kind.",
		},
		[]string{"motion"},
	)

	recentersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacesim_recenters_total",
			Help: "Floating origin recenter events by space.",
		},
		[]string{"space"},
	)

	simTimeMJD = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "spacesim_sim_time_mjd",
			Help: "Current simulation time as a Modified Julian Date.",
		},
	)

	inputDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spacesim_input_dropped_total",
			Help: "Input events dropped because the queue was full.",
		},
	)

	streamClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "spacesim_stream_clients",
			Help: "Connected SSE frame stream clients.",
		},
	)

	streamFramesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spacesim_stream_frames_total",
			Help: "Frames written to SSE clients.",
		},
	)

	streamRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacesim_stream_rejected_total",
			Help: "SSE connections rejected by reason.",
		},
		[]string{"reason"},
	)

	streamBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spacesim_stream_bytes_total",
			Help: "Bytes written to SSE clients.",
		},
	)

	historyFrames = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "spacesim_history_frames",
			Help: "Frames held in the trail history.",
		},
	)

	historyResetsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spacesim_history_resets_total",
			Help: "Trail history resets caused by simulation time discontinuities.",
		},
	)

	inputMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacesim_input_messages_total",
			Help: "Websocket input messages by result.",
		},
		[]string{"result"},
	)

	settingsReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacesim_postprocess_reloads_total",
			Help: "Postprocess settings reloads by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		tickDurationSeconds,
		ticksTotal,
		positioningDurationSeconds,
		bodyUpdatesTotal,
		keplerNoConvergenceTotal,
		bodiesGauge,
		recentersTotal,
		simTimeMJD,
		inputDroppedTotal,
		streamClients,
		streamFramesTotal,
		streamRejectedTotal,
		streamBytesTotal,
		historyFrames,
		historyResetsTotal,
		inputMessagesTotal,
		settingsReloadsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordTick records one simulation tick.
func RecordTick(d time.Duration, mjd float64) {
	ticksTotal.Inc()
	tickDurationSeconds.Observe(d.Seconds())
	simTimeMJD.Set(mjd)
}

// RecordPositioning records one hierarchy positioning pass.
func RecordPositioning(d time.Duration, updated, failed, noConvergence int) {
	positioningDurationSeconds.Observe(d.Seconds())
	bodyUpdatesTotal.WithLabelValues("ok").Add(float64(updated))
	if failed > 0 {
		bodyUpdatesTotal.WithLabelValues("failed").Add(float64(failed))
	}
	if noConvergence > 0 {
		keplerNoConvergenceTotal.Add(float64(noConvergence))
	}
}

// SetBodies publishes the loaded hierarchy size per motion kind.
func SetBodies(kind string, n int) {
	bodiesGauge.WithLabelValues(kind).Set(float64(n))
}

// IncRecenter counts a floating origin recenter in the named space.
func IncRecenter(space string) {
	recentersTotal.WithLabelValues(space).Inc()
}

// IncInputDropped counts an input event dropped on a full queue.
func IncInputDropped() {
	inputDroppedTotal.Inc()
}

// StreamConnected adjusts the SSE client gauge by delta.
func StreamConnected(delta int) {
	streamClients.Add(float64(delta))
}

// IncStreamFrames counts frames written to SSE clients.
func IncStreamFrames() {
	streamFramesTotal.Inc()
}

// IncStreamRejected counts a rejected SSE connection.
func IncStreamRejected(reason string) {
	streamRejectedTotal.WithLabelValues(reason).Inc()
}

// AddStreamBytes counts bytes written to SSE clients.
func AddStreamBytes(n int64) {
	streamBytesTotal.Add(float64(n))
}

// SetHistoryFrames publishes the trail history size.
func SetHistoryFrames(n int) {
	historyFrames.Set(float64(n))
}

// IncHistoryResets counts a trail history reset.
func IncHistoryResets() {
	historyResetsTotal.Inc()
}

// IncInputMessages counts a websocket input message by result
// ("queued", "dropped", "invalid").
func IncInputMessages(result string) {
	inputMessagesTotal.WithLabelValues(result).Inc()
}

// RecordSettingsReload counts a postprocess settings reload attempt.
func RecordSettingsReload(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	settingsReloadsTotal.WithLabelValues(result).Inc()
}

// knownRoutes are exact paths that keep their own label.
var knownRoutes = map[string]bool{
	"/":                     true,
	"/healthz":              true,
	"/readyz":               true,
	"/metrics":              true,
	"/api/v1/frame":         true,
	"/api/v1/bodies":        true,
	"/api/v1/render-graph":  true,
	"/api/v1/stream/frames": true,
	"/api/v1/input":         true,
	"/api/v1/history":       true,
	"/api/v1/postprocess":   true,
}

// normalizeRoute maps a request path to a bounded set of labels so that
// per-body paths and scanner noise cannot blow up series cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if rest, ok := strings.CutPrefix(path, "/api/v1/bodies/"); ok && rest != "" {
		name, sub, _ := strings.Cut(rest, "/")
		switch {
		case name == "":
			return "other"
		case sub == "":
			return "/api/v1/bodies/{name}"
		case sub == "track":
			return "/api/v1/bodies/{name}/track"
		case sub == "apsides":
			return "/api/v1/bodies/{name}/apsides"
		}
	}
	if rest, ok := strings.CutPrefix(path, "/api/v1/shaders/"); ok && rest != "" && !strings.Contains(rest, "/") {
		return "/api/v1/shaders/{name}"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the underlying writer so SSE keeps working behind the
// middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack forwards to the underlying writer for the websocket upgrade.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		path := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(path, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(path, r.Method).Observe(duration)
	})
}
