package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/star/spacesim/internal/apsides"
	"github.com/star/spacesim/internal/cache"
	"github.com/star/spacesim/internal/httputil"
	"github.com/star/spacesim/internal/orbit"
	"github.com/star/spacesim/internal/postprocess"
	"github.com/star/spacesim/internal/scene"
	"github.com/star/spacesim/internal/sim"
)

const (
	// maxTrackPoints bounds the positions one track request may compute.
	maxTrackPoints = 5000
	// maxSettingsBytes bounds a postprocess settings upload.
	maxSettingsBytes = 64 << 10
	// maxApsidesDays bounds the apsides search window.
	maxApsidesDays = 100 * 365
	// maxTrackStep bounds the spacing of track samples, in seconds.
	maxTrackStep = 100 * 365 * 24 * 3600
)

func indexHandler(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]any{
		"service": "spacesim",
		"endpoints": []string{
			"/api/v1/frame",
			"/api/v1/bodies",
			"/api/v1/bodies/{name}",
			"/api/v1/bodies/{name}/track",
			"/api/v1/bodies/{name}/apsides",
			"/api/v1/render-graph",
			"/api/v1/shaders/{name}",
			"/api/v1/postprocess",
			"/api/v1/history",
			"/api/v1/stream/frames",
			"/api/v1/input",
		},
	})
}

func frameHandler(s Simulation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := s.Latest()
		if f == nil {
			httputil.Error(w, http.StatusServiceUnavailable, "no frame published yet")
			return
		}
		httputil.JSON(w, http.StatusOK, f)
	}
}

// bodySummary is one entry of the bodies listing.
type bodySummary struct {
	Name     string  `json:"name"`
	Parent   string  `json:"parent,omitempty"`
	Path     string  `json:"path"`
	Depth    int     `json:"depth"`
	Motion   string  `json:"motion"`
	Radius   float64 `json:"radius"`
	Distance float64 `json:"distance,omitempty"` // from the camera, meters
}

func bodiesHandler(s Simulation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := s.Hierarchy()
		f := s.Latest()
		out := make([]bodySummary, h.Len())
		for i := range h.Bodies {
			b := &h.Bodies[i]
			out[i] = bodySummary{
				Name:   b.Name,
				Path:   h.PathOf(i),
				Depth:  b.Depth,
				Motion: b.Motion.Kind.String(),
				Radius: b.Radius,
			}
			if b.Parent >= 0 {
				out[i].Parent = h.Bodies[b.Parent].Name
			}
			if f != nil && i < len(f.Bodies) {
				out[i].Distance = f.Bodies[i].Distance
			}
		}
		httputil.JSON(w, http.StatusOK, map[string]any{
			"count":  len(out),
			"bodies": out,
		})
	}
}

// elementsPayload reports orbital elements in configuration units: degrees
// and days.
type elementsPayload struct {
	Epoch         float64 `json:"epoch"`
	PeriodDays    float64 `json:"period_days"`
	SemiMajorAxis float64 `json:"semi_major_axis"`
	Eccentricity  float64 `json:"eccentricity"`
	Inclination   float64 `json:"inclination"`
	LongAscNode   float64 `json:"longitude_of_ascending_node"`
	ArgPeriapsis  float64 `json:"argument_of_periapsis"`
	Periapsis     float64 `json:"periapsis"`
	Apoapsis      float64 `json:"apoapsis"`
}

func newElementsPayload(el orbit.Elements) *elementsPayload {
	deg := 180 / math.Pi
	return &elementsPayload{
		Epoch:         el.Epoch,
		PeriodDays:    el.Period / 86400,
		SemiMajorAxis: el.SemiMajorAxis,
		Eccentricity:  el.Eccentricity,
		Inclination:   el.Inclination * deg,
		LongAscNode:   el.LongAscNode * deg,
		ArgPeriapsis:  el.ArgPeriapsis * deg,
		Periapsis:     el.Periapsis(),
		Apoapsis:      el.Apoapsis(),
	}
}

type bodyDetail struct {
	bodySummary
	Mass             float64          `json:"mass,omitempty"`
	SiderialDay      float64          `json:"siderial_day"`
	AxialInclination float64          `json:"axial_inclination"`
	Color            string           `json:"color"`
	EmissivePower    float64          `json:"emissive_power,omitempty"`
	Satellites       []string         `json:"satellites,omitempty"`
	Orbit            *elementsPayload `json:"orbit,omitempty"`
	NORADID          int              `json:"norad_id,omitempty"`
	State            *sim.BodyFrame   `json:"state,omitempty"`
}

// lookupBody resolves the {name} path value or writes a 404.
func lookupBody(w http.ResponseWriter, r *http.Request, h *scene.Hierarchy) (int, bool) {
	name := r.PathValue("name")
	i, ok := h.Lookup(name)
	if !ok {
		httputil.Error(w, http.StatusNotFound, fmt.Sprintf("no body named %q", name))
	}
	return i, ok
}

func bodyHandler(s Simulation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := s.Hierarchy()
		i, ok := lookupBody(w, r, h)
		if !ok {
			return
		}
		b := &h.Bodies[i]
		d := bodyDetail{
			bodySummary: bodySummary{
				Name:   b.Name,
				Path:   h.PathOf(i),
				Depth:  b.Depth,
				Motion: b.Motion.Kind.String(),
				Radius: b.Radius,
			},
			Mass:             b.Mass,
			SiderialDay:      b.SiderialDay,
			AxialInclination: b.AxialInclination * 180 / math.Pi,
			Color:            b.Material.Color.Hex(),
			EmissivePower:    b.Material.EmissivePower,
		}
		if b.Parent >= 0 {
			d.Parent = h.Bodies[b.Parent].Name
		}
		for _, c := range b.Children {
			d.Satellites = append(d.Satellites, h.Bodies[c].Name)
		}
		switch b.Motion.Kind {
		case scene.Kepler:
			d.Orbit = newElementsPayload(b.Motion.Orbit.Elements())
		case scene.SGP4:
			d.NORADID = b.Motion.TLE.NORADID
		}
		if f := s.Latest(); f != nil && i < len(f.Bodies) {
			st := f.Bodies[i]
			d.State = &st
			d.Distance = st.Distance
		}
		httputil.JSON(w, http.StatusOK, d)
	}
}

// queryFloat parses an optional float query parameter.
func queryFloat(r *http.Request, key string, def float64) (float64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid %s parameter", key)
	}
	return f, nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter", key)
	}
	return n, nil
}

// startMJD returns the start query parameter, defaulting to the latest
// frame's simulation time.
func startMJD(r *http.Request, s Simulation) (float64, error) {
	def := 0.0
	if f := s.Latest(); f != nil {
		def = f.MJD
	}
	return queryFloat(r, "start", def)
}

// trackHandler samples a body's root-relative position.
// GET /api/v1/bodies/{name}/track?start=60409.5&step=3600&n=100
func trackHandler(logger *slog.Logger, s Simulation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := s.Hierarchy()
		i, ok := lookupBody(w, r, h)
		if !ok {
			return
		}
		start, err := startMJD(r, s)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		step, err := queryFloat(r, "step", 3600)
		if err != nil || step < 1 || step > maxTrackStep {
			httputil.Error(w, http.StatusBadRequest, fmt.Sprintf("invalid step parameter, must be in [1, %d] seconds", maxTrackStep))
			return
		}
		n, err := queryInt(r, "n", 100)
		if err != nil || n < 1 {
			httputil.Error(w, http.StatusBadRequest, "invalid n parameter, must be positive")
			return
		}
		if n > maxTrackPoints {
			httputil.JSON(w, http.StatusBadRequest, map[string]any{
				"error":         "too many positions requested",
				"max_positions": maxTrackPoints,
			})
			return
		}

		stepDur := time.Duration(step * float64(time.Second))
		points, err := s.Propagator().Track(i, start, stepDur, n)
		if err != nil {
			logger.Warn("track failed", "body", h.Bodies[i].Name, "error", err)
			httputil.Error(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		out := make([][3]float64, len(points))
		for k, p := range points {
			out[k] = [3]float64(p)
		}
		httputil.JSON(w, http.StatusOK, map[string]any{
			"body":         h.Bodies[i].Name,
			"frame":        h.Root().Name,
			"start_mjd":    start,
			"step_seconds": step,
			"positions":    out,
		})
	}
}

// apsidesHandler predicts periapsis and apoapsis passages.
// GET /api/v1/bodies/{name}/apsides?start=60409.5&days=365&max=10
func apsidesHandler(s Simulation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := s.Hierarchy()
		i, ok := lookupBody(w, r, h)
		if !ok {
			return
		}
		start, err := startMJD(r, s)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		days, err := queryFloat(r, "days", 365)
		if err != nil || days <= 0 || days > maxApsidesDays {
			httputil.Error(w, http.StatusBadRequest, fmt.Sprintf("invalid days parameter, must be in (0, %d]", maxApsidesDays))
			return
		}
		horizon := time.Duration(days * 24 * float64(time.Hour))
		maxEvents, err := queryInt(r, "max", apsides.DefaultMaxEvents)
		if err != nil || maxEvents < 1 || maxEvents > 1000 {
			httputil.Error(w, http.StatusBadRequest, "invalid max parameter, must be 1-1000")
			return
		}

		res := apsides.Predict(r.Context(), apsides.Request{
			Propagator: s.Propagator(),
			Bodies:     []int{i},
			StartMJD:   start,
			Horizon:    horizon,
			MaxEvents:  maxEvents,
		})[0]
		status := http.StatusOK
		if res.Error != "" {
			status = http.StatusUnprocessableEntity
		}
		httputil.JSON(w, status, res)
	}
}

func renderGraphHandler(s Simulation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := s.Plan()
		if p == nil {
			httputil.Error(w, http.StatusServiceUnavailable, "no valid render graph for the current viewport")
			return
		}
		httputil.JSON(w, http.StatusOK, p)
	}
}

func shaderHandler(w http.ResponseWriter, r *http.Request) {
	src, err := postprocess.Shader(r.PathValue("name"))
	if err != nil {
		httputil.Error(w, http.StatusNotFound, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/wgsl; charset=utf-8")
	io.WriteString(w, src)
}

func settingsHandler(st *postprocess.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, version := st.Load()
		httputil.JSON(w, http.StatusOK, map[string]any{
			"version":  version,
			"settings": s,
		})
	}
}

// updateSettingsHandler replaces the postprocess settings with a TOML body.
// The session picks the new version up on its next tick.
func updateSettingsHandler(logger *slog.Logger, st *postprocess.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSettingsBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				httputil.Error(w, http.StatusRequestEntityTooLarge, "settings too large")
				return
			}
			httputil.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		s, err := postprocess.ParseSettings(data)
		if err == nil {
			err = st.Set(s)
		}
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		_, version := st.Load()
		logger.Info("postprocess settings updated", "version", version, "remote_ip", r.RemoteAddr)
		httputil.JSON(w, http.StatusOK, map[string]any{
			"version":  version,
			"settings": s,
		})
	}
}

func historyHandler(hist *cache.History) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, hist.Stats())
	}
}
