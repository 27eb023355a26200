// Package api serves the read-only inspector over HTTP: the latest frame,
// the body hierarchy, orbit tracks and apsides, the postprocess render graph
// and its shaders, and the websocket input feed that drives the session.
package api

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/star/spacesim/internal/auth"
	"github.com/star/spacesim/internal/cache"
	"github.com/star/spacesim/internal/health"
	"github.com/star/spacesim/internal/metrics"
	"github.com/star/spacesim/internal/postprocess"
	"github.com/star/spacesim/internal/propagation"
	"github.com/star/spacesim/internal/scene"
	"github.com/star/spacesim/internal/sim"
	"github.com/star/spacesim/internal/stream"
)

// Simulation is the part of *sim.Session the HTTP layer reads and drives.
type Simulation interface {
	Latest() *sim.Frame
	Plan() *postprocess.Plan
	Hierarchy() *scene.Hierarchy
	Propagator() *propagation.Propagator
	Submit(cmd sim.Command) bool
}

// Deps are the collaborators of the server.
type Deps struct {
	Sim     Simulation
	History *cache.History
	Stream  *stream.Handler
	Post    *postprocess.Store
	Auth    auth.Config
	// MaxFrameAge fails readiness when the latest frame is older than this
	// in wall time. Zero disables the check.
	MaxFrameAge time.Duration
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, deps Deps) *Server {
	logger = logger.With("component", "api")
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(frameCheck(deps.Sim, deps.MaxFrameAge)))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /{$}", indexHandler)

	mux.HandleFunc("GET /api/v1/frame", frameHandler(deps.Sim))
	mux.HandleFunc("GET /api/v1/bodies", bodiesHandler(deps.Sim))
	mux.HandleFunc("GET /api/v1/bodies/{name}", bodyHandler(deps.Sim))
	mux.HandleFunc("GET /api/v1/bodies/{name}/track", trackHandler(logger, deps.Sim))
	mux.HandleFunc("GET /api/v1/bodies/{name}/apsides", apsidesHandler(deps.Sim))
	mux.HandleFunc("GET /api/v1/render-graph", renderGraphHandler(deps.Sim))
	mux.HandleFunc("GET /api/v1/shaders/{name}", shaderHandler)
	mux.HandleFunc("GET /api/v1/postprocess", settingsHandler(deps.Post))
	mux.HandleFunc("PUT /api/v1/postprocess", updateSettingsHandler(logger, deps.Post))
	mux.HandleFunc("GET /api/v1/input", inputHandler(logger, deps.Sim))
	if deps.History != nil {
		mux.HandleFunc("GET /api/v1/history", historyHandler(deps.History))
	}
	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/frames", deps.Stream.HandleFrames)
	}

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(deps.Auth)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// frameCheck is ready once a frame has been published, and, with maxAge set,
// while the session keeps publishing.
func frameCheck(s Simulation, maxAge time.Duration) health.Check {
	return func() error {
		f := s.Latest()
		if f == nil {
			return errors.New("no frame published")
		}
		if maxAge > 0 && !f.Published.IsZero() && time.Since(f.Published) > maxAge {
			return errors.New("simulation stalled")
		}
		return nil
	}
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the wrapped writer so the frame stream keeps working.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack forwards to the wrapped writer for the websocket upgrade.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// Unwrap lets http.ResponseController reach the wrapped writer.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
