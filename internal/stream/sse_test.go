package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/star/spacesim/assets"
	"github.com/star/spacesim/internal/cache"
	"github.com/star/spacesim/internal/scene"
	"github.com/star/spacesim/internal/sim"
	"github.com/star/spacesim/internal/space"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

func testScene(t *testing.T) *scene.Hierarchy {
	t.Helper()
	h, err := scene.Parse(assets.SolarSystem, scene.Options{Logger: testLogger()})
	if err != nil {
		t.Fatalf("parsing bundled scene: %v", err)
	}
	return h
}

func testFrame(tick uint64, earthX float64) *sim.Frame {
	return &sim.Frame{
		Tick: tick,
		MJD:  60409.5,
		Time: time.Date(2024, 4, 8, 12, 0, 0, 0, time.UTC),
		Camera: sim.CameraFrame{
			Cell:        space.Cell{1, 2, 3},
			Translation: mgl32.Vec3{1, 2, 3},
			Rotation:    [4]float32{0, 0, 0, 1},
		},
		Bodies: []sim.BodyFrame{
			{Name: "Sun", Rotation: [4]float32{0, 0, 0, 1}},
			{
				Name:        "Earth",
				Parent:      "Sun",
				Cell:        space.Cell{14959, 0, 0},
				Translation: mgl32.Vec3{10, 0, 0},
				World:       mgl64.Vec3{earthX, 0, 0},
				Rotation:    [4]float32{0, 0, 0, 1},
			},
		},
		Flare: sim.Flare{NDC: mgl32.Vec3{0.5, 0.25, 0}, Visible: true},
	}
}

func testHistory(frames ...*sim.Frame) *cache.History {
	h := cache.NewHistory(cache.Config{Capacity: 16, Interval: time.Second, MaxJump: 1}, testLogger())
	for _, f := range frames {
		h.Put(f, time.Now())
	}
	return h
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.KeepaliveInterval = 5 * time.Second
	return cfg
}

// TestBuildFrameMessage verifies the frame payload structure.
func TestBuildFrameMessage(t *testing.T) {
	msg := buildFrameMessage(testFrame(7, 1.5e11), nil, nil)

	if msg.Type != "frame" {
		t.Errorf("type = %q, want %q", msg.Type, "frame")
	}
	if msg.Tick != 7 {
		t.Errorf("tick = %d, want 7", msg.Tick)
	}
	if msg.T != "2024-04-08T12:00:00Z" {
		t.Errorf("t = %q, want %q", msg.T, "2024-04-08T12:00:00Z")
	}
	if msg.Origin != (space.Cell{1, 2, 3}) {
		t.Errorf("origin = %v, want [1 2 3]", msg.Origin)
	}
	if len(msg.Bodies) != 2 {
		t.Fatalf("body count = %d, want 2", len(msg.Bodies))
	}
	earth := msg.Bodies[1]
	if earth.N != "Earth" || earth.W != [3]float64{1.5e11, 0, 0} || earth.P != [3]float32{10, 0, 0} {
		t.Errorf("earth payload = %+v", earth)
	}
	if earth.Tr != nil {
		t.Errorf("trail without history = %v, want nil", earth.Tr)
	}
	if msg.Flare == nil || *msg.Flare != [3]float32{0.5, 0.25, 0} {
		t.Errorf("flare = %v, want [0.5 0.25 0]", msg.Flare)
	}
}

// TestBuildFrameMessageFilterAndTrail verifies body filtering and trails.
func TestBuildFrameMessageFilterAndTrail(t *testing.T) {
	trail := []*sim.Frame{testFrame(1, 1), testFrame(2, 2), testFrame(3, 3)}
	msg := buildFrameMessage(trail[2], map[string]bool{"Earth": true}, trail)

	if len(msg.Bodies) != 1 || msg.Bodies[0].N != "Earth" {
		t.Fatalf("bodies = %+v, want only Earth", msg.Bodies)
	}
	tr := msg.Bodies[0].Tr
	if len(tr) != 3 {
		t.Fatalf("trail length = %d, want 3", len(tr))
	}
	for i, p := range tr {
		if p[0] != float64(i+1) {
			t.Errorf("trail[%d].x = %g, want %d (oldest first)", i, p[0], i+1)
		}
	}
}

// TestFrameMessageJSON verifies the short JSON keys of the wire format.
func TestFrameMessageJSON(t *testing.T) {
	data, err := json.Marshal(buildFrameMessage(testFrame(1, 5), nil, nil))
	if err != nil {
		t.Fatal(err)
	}

	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatal(err)
	}
	if parsed["type"] != "frame" {
		t.Errorf("type = %v, want frame", parsed["type"])
	}
	bodies, ok := parsed["bodies"].([]any)
	if !ok || len(bodies) != 2 {
		t.Fatalf("bodies = %v, want 2-element array", parsed["bodies"])
	}
	earth := bodies[1].(map[string]any)
	for _, key := range []string{"n", "c", "p", "w", "r"} {
		if _, ok := earth[key]; !ok {
			t.Errorf("body payload missing %q", key)
		}
	}
	if _, ok := earth["tr"]; ok {
		t.Error("empty trail should be omitted")
	}
}

// TestMetadataMessage verifies the hierarchy description.
func TestMetadataMessage(t *testing.T) {
	h := testScene(t)
	msg := buildMetadataMessage(h)

	if msg.Type != "metadata" || msg.Root != "Sun" {
		t.Errorf("metadata = %q root %q, want metadata root Sun", msg.Type, msg.Root)
	}
	if len(msg.Bodies) != h.Len() {
		t.Fatalf("bodies = %d, want %d", len(msg.Bodies), h.Len())
	}
	if msg.Bodies[0].Parent != "" {
		t.Errorf("root parent = %q, want empty", msg.Bodies[0].Parent)
	}
	i, _ := h.Lookup("Moon")
	if msg.Bodies[i].Parent != "Earth" || msg.Bodies[i].Motion != "kepler" {
		t.Errorf("moon meta = %+v", msg.Bodies[i])
	}
}

// TestSSEMessageFormat verifies the SSE wire format: "data: {json}\n\n".
func TestSSEMessageFormat(t *testing.T) {
	handler := NewHandler(testHistory(testFrame(1, 1)), testScene(t), testConfig(), testLogger())

	req := httptest.NewRequest("GET", "/api/v1/stream/frames?hz=30&trail=5", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	ctx, cancel := context.WithTimeout(req.Context(), 300*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	handler.HandleFrames(w, req)

	resp := w.Result()
	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", resp.Header.Get("Content-Type"))
	}
	if resp.Header.Get("Cache-Control") != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", resp.Header.Get("Cache-Control"))
	}

	body := w.Body.String()
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var types []string
	for scanner.Scan() {
		line := scanner.Text()
		if jsonStr, ok := strings.CutPrefix(line, "data: "); ok {
			var msg map[string]any
			if err := json.Unmarshal([]byte(jsonStr), &msg); err != nil {
				t.Errorf("invalid JSON in SSE data line: %v", err)
				continue
			}
			types = append(types, msg["type"].(string))
		}
	}

	if len(types) < 2 || types[0] != "metadata" || types[1] != "frame" {
		t.Fatalf("message types = %v, want metadata then frame", types)
	}
	// The history never advanced, so the same tick must not be resent.
	if len(types) != 2 {
		t.Errorf("got %d messages, want exactly 2", len(types))
	}

	for _, line := range strings.Split(body, "\n") {
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data: ") && !strings.HasPrefix(line, "retry: ") && line != ":" {
			t.Errorf("unexpected SSE line: %q", line)
		}
	}
	if handler.Active() != 0 {
		t.Errorf("active streams after disconnect = %d, want 0", handler.Active())
	}
}

// TestRateLimiting verifies per-IP concurrent stream limits.
func TestRateLimiting(t *testing.T) {
	limiter := newStreamLimiter(3, 0)

	for i := 0; i < 3; i++ {
		if !limiter.acquire("10.0.0.1") {
			t.Fatalf("acquire %d should succeed", i+1)
		}
	}
	if limiter.acquire("10.0.0.1") {
		t.Error("acquire beyond limit should fail")
	}
	if !limiter.acquire("10.0.0.2") {
		t.Error("different IP should not be rate limited")
	}

	limiter.release("10.0.0.1")
	if !limiter.acquire("10.0.0.1") {
		t.Error("acquire after release should succeed")
	}

	if c := limiter.count("10.0.0.1"); c != 3 {
		t.Errorf("count = %d, want 3", c)
	}
	if c := limiter.count("10.0.0.2"); c != 1 {
		t.Errorf("count = %d, want 1", c)
	}
	if c := limiter.active(); c != 4 {
		t.Errorf("active = %d, want 4", c)
	}
}

// TestGlobalLimit verifies the overall cap applies across IPs.
func TestGlobalLimit(t *testing.T) {
	limiter := newStreamLimiter(10, 2)
	if !limiter.acquire("10.0.0.1") || !limiter.acquire("10.0.0.2") {
		t.Fatal("first two acquires should succeed")
	}
	if limiter.acquire("10.0.0.3") {
		t.Error("acquire beyond global cap should fail")
	}
}

// TestRateLimitingConcurrent verifies rate limiter thread safety.
func TestRateLimitingConcurrent(t *testing.T) {
	limiter := newStreamLimiter(100, 0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.acquire("10.0.0.1") {
				defer limiter.release("10.0.0.1")
				time.Sleep(10 * time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if c := limiter.count("10.0.0.1"); c != 0 {
		t.Errorf("count after all released = %d, want 0", c)
	}
}

// TestRateLimitHTTPResponse verifies 429 response when limit exceeded.
func TestRateLimitHTTPResponse(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentPerIP = 1
	handler := NewHandler(testHistory(), testScene(t), cfg, testLogger())

	ready := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest("GET", "/api/v1/stream/frames", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		ctx, cancel := context.WithCancel(req.Context())
		req = req.WithContext(ctx)
		w := httptest.NewRecorder()

		go func() {
			time.Sleep(50 * time.Millisecond)
			close(ready)
			time.Sleep(200 * time.Millisecond)
			cancel()
		}()

		handler.HandleFrames(w, req)
	}()

	<-ready

	req := httptest.NewRequest("GET", "/api/v1/stream/frames", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	w := httptest.NewRecorder()
	handler.HandleFrames(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	<-done
}

// TestInvalidQueryParams verifies error responses for bad parameters.
func TestInvalidQueryParams(t *testing.T) {
	handler := NewHandler(testHistory(), testScene(t), testConfig(), testLogger())

	tests := []struct {
		name  string
		query string
	}{
		{"bad hz", "?hz=0"},
		{"hz too large", "?hz=100"},
		{"hz non-numeric", "?hz=abc"},
		{"negative trail", "?trail=-1"},
		{"trail too large", "?trail=500"},
		{"unknown body", "?bodies=Earth,Vulcan"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/stream/frames"+tt.query, nil)
			req.RemoteAddr = "127.0.0.1:12345"
			w := httptest.NewRecorder()
			handler.HandleFrames(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

// TestClientIPTrustProxy verifies the forwarded address is used only when trusted.
func TestClientIPTrustProxy(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/v1/stream/frames", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("X-Forwarded-For", "203.0.113.9")

	cfg := testConfig()
	h := NewHandler(testHistory(), testScene(t), cfg, testLogger())
	if got := h.clientIP(r); got != "10.0.0.1" {
		t.Errorf("untrusted clientIP = %q, want 10.0.0.1", got)
	}

	cfg.TrustProxy = true
	h = NewHandler(testHistory(), testScene(t), cfg, testLogger())
	if got := h.clientIP(r); got != "203.0.113.9" {
		t.Errorf("trusted clientIP = %q, want 203.0.113.9", got)
	}
}
