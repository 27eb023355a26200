package scene

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/star/spacesim/internal/tle"
)

// Defaults for satellites attached from a TLE catalog.
const (
	catalogSatelliteRadius = 50.0 // meters
)

var catalogSatelliteColor = colorful.Color{R: 0.8, G: 0.8, B: 0.85}

// Options control how a manifest is resolved.
type Options struct {
	// BaseDir resolves relative tle-catalog paths. Empty means the working directory.
	BaseDir string
	Logger  *slog.Logger
}

// Load reads and builds the manifest at path. Relative catalog paths are
// resolved against the manifest's directory.
func Load(path string, logger *slog.Logger) (*Hierarchy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scene: %w", err)
	}
	return Parse(data, Options{BaseDir: filepath.Dir(path), Logger: logger})
}

// Parse decodes a manifest and builds the hierarchy.
func Parse(data []byte, opts Options) (*Hierarchy, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	cam, root, err := decodeManifest(data)
	if err != nil {
		return nil, err
	}
	if err := attachCatalogs(root, opts); err != nil {
		return nil, err
	}
	return build(cam, root, opts.Logger)
}

// attachCatalogs expands tle-catalog references into satellite configs.
func attachCatalogs(cfg *bodyConfig, opts Options) error {
	if cfg.tleCatalog != "" {
		path := cfg.tleCatalog
		if !filepath.IsAbs(path) && opts.BaseDir != "" {
			path = filepath.Join(opts.BaseDir, path)
		}
		entries, err := tle.ParseFile(path, cfg.tleLimit, opts.Logger)
		if err != nil {
			return &ParseError{Path: cfg.path + ".tle-catalog", Err: err}
		}
		for i := range entries {
			e := entries[i]
			name := trimName(e.Name)
			cfg.satellites = append(cfg.satellites, &bodyConfig{
				name:     name,
				path:     joinPath(cfg.path+".satellites", name),
				radius:   catalogSatelliteRadius,
				material: Material{Color: catalogSatelliteColor},
				tle:      &e,
			})
		}
		opts.Logger.Info("attached TLE catalog", "parent", cfg.name, "path", path, "count", len(entries))
	}
	for _, child := range cfg.satellites {
		if err := attachCatalogs(child, opts); err != nil {
			return err
		}
	}
	return nil
}

// build flattens the tree breadth-first so parents precede children.
func build(cam *cameraConfig, root *bodyConfig, logger *slog.Logger) (*Hierarchy, error) {
	h := &Hierarchy{byName: make(map[string]int)}

	type item struct {
		cfg    *bodyConfig
		parent int
		depth  int
	}
	queue := []item{{cfg: root, parent: -1}}

	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]

		name := it.cfg.name
		if _, dup := h.byName[name]; dup {
			if it.cfg.tle == nil {
				return nil, &ParseError{Path: it.cfg.path, Err: fmt.Errorf("%w %q", ErrDuplicateName, name)}
			}
			// Catalogs often repeat names; the catalog number disambiguates.
			name = fmt.Sprintf("%s [%d]", name, it.cfg.tle.NORADID)
			if _, dup := h.byName[name]; dup {
				logger.Warn("skipping duplicate catalog satellite", "name", name)
				continue
			}
		}

		idx := len(h.Bodies)
		body := Body{
			Index:            idx,
			Parent:           it.parent,
			Depth:            it.depth,
			Name:             name,
			Radius:           it.cfg.radius,
			Mass:             it.cfg.mass,
			SiderialDay:      it.cfg.siderialDay,
			AxialInclination: it.cfg.inclination,
			Material:         it.cfg.material,
		}
		switch {
		case it.cfg.orbit != nil:
			body.Motion = Motion{Kind: Kepler, Orbit: it.cfg.orbit}
		case it.cfg.tle != nil:
			body.Motion = Motion{Kind: SGP4, TLE: it.cfg.tle}
		}
		if it.parent < 0 && body.Motion.Kind != Stationary {
			logger.Warn("root body motion ignored", "name", name)
			body.Motion = Motion{}
		}

		h.Bodies = append(h.Bodies, body)
		h.byName[name] = idx
		if it.parent >= 0 {
			h.Bodies[it.parent].Children = append(h.Bodies[it.parent].Children, idx)
		}
		for len(h.Levels) <= it.depth {
			h.Levels = append(h.Levels, nil)
		}
		h.Levels[it.depth] = append(h.Levels[it.depth], idx)

		for _, child := range it.cfg.satellites {
			queue = append(queue, item{cfg: child, parent: idx, depth: it.depth + 1})
		}
	}

	target, ok := h.byName[cam.target]
	if !ok {
		return nil, &ParseError{Path: "camera.target", Err: fmt.Errorf("%w: %q", ErrCameraTargetNotFound, cam.target)}
	}
	h.Camera = Camera{
		Target:      cam.target,
		TargetIndex: target,
		Radius:      cam.radius,
		Rotation:    cam.rotation,
	}

	counts := h.CountByKind()
	logger.Info("scene hierarchy built",
		"bodies", len(h.Bodies),
		"depth", len(h.Levels),
		"kepler", counts[Kepler],
		"sgp4", counts[SGP4],
		"camera_target", cam.target,
	)
	return h, nil
}
