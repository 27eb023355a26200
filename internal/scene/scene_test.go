package scene

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/star/spacesim/assets"
	"github.com/star/spacesim/internal/orbit"
	"github.com/star/spacesim/internal/units"
)

func testOptions() Options {
	return Options{Logger: slog.New(slog.NewJSONHandler(io.Discard, nil))}
}

const minimal = `
camera:
  target: Moon
  radius: 10k
root:
  name: Sun
  radius: 696.340M
  siderial-day: 25.05d
  material:
    color: [1, 1, 0.9]
    emissive-power: 100
  satellites:
    Venus:
      radius: 6051.8k
      siderial-day: 243d
      material: {color: [1, 0.9, 0.6]}
      orbit:
        epoch: 51544.5
        period: 224.701d
        semi-major-axis: 108208000k
        eccentricity: 0.006772
        inclination: 3.39458
        longitude-of-ascending-node: 76.68
        argument-of-periapsis: 54.884
    Earth:
      radius: 6371k
      siderial-day: 0.99726968d
      inclination: 23.44
      material: {color: "#3366dd"}
      orbit:
        epoch: 51544.5
        period: 365.256363004d
        semi-major-axis: 149598023k
        eccentricity: 0.0167086
        inclination: 0.00005
        longitude-of-ascending-node: -11.26064
        argument-of-periapsis: 114.20783
      satellites:
        Moon:
          radius: 1737.4k
          siderial-day: 27.321661d
          material: {color: [0.6, 0.6, 0.6]}
          orbit:
            epoch: 51544.5
            period: 27.321661d
            semi-major-axis: 384399k
            eccentricity: 0.0549
            inclination: 5.145
            longitude-of-ascending-node: 125.08
            argument-of-periapsis: 318.15
    Mars:
      radius: 3389.5k
      siderial-day: 1.025957d
      material: {color: [0.8, 0.4, 0.2]}
`

func TestParseMinimal(t *testing.T) {
	h, err := Parse([]byte(minimal), testOptions())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	wantOrder := []string{"Sun", "Venus", "Earth", "Mars", "Moon"}
	if h.Len() != len(wantOrder) {
		t.Fatalf("got %d bodies, want %d", h.Len(), len(wantOrder))
	}
	for i, name := range wantOrder {
		if h.Bodies[i].Name != name {
			t.Errorf("body %d = %q, want %q", i, h.Bodies[i].Name, name)
		}
	}

	sun := h.Root()
	if sun.Parent != -1 || sun.Motion.Kind != Stationary {
		t.Errorf("root = %+v", sun)
	}
	if math.Abs(sun.Radius-696340000) > 1e-3 {
		t.Errorf("sun radius = %v", sun.Radius)
	}
	if math.Abs(sun.SiderialDay-25.05*86400) > 1e-6 {
		t.Errorf("sun siderial day = %v s", sun.SiderialDay)
	}

	earth, ok := h.Lookup("Earth")
	if !ok {
		t.Fatal("Earth not found")
	}
	if h.Bodies[earth].Motion.Kind != Kepler {
		t.Errorf("Earth motion = %v", h.Bodies[earth].Motion.Kind)
	}
	if got := h.Bodies[earth].AxialInclination; math.Abs(got-23.44*math.Pi/180) > 1e-12 {
		t.Errorf("inclination = %v rad", got)
	}
	el := h.Bodies[earth].Motion.Orbit.Elements()
	if math.Abs(el.Period-365.256363004*86400) > 1e-3 {
		t.Errorf("period = %v s", el.Period)
	}
	if el.SemiMajorAxis != 149598023e3 {
		t.Errorf("semi-major-axis = %v", el.SemiMajorAxis)
	}

	mars, _ := h.Lookup("Mars")
	if h.Bodies[mars].Motion.Kind != Stationary {
		t.Error("body without orbit should be stationary")
	}

	moon, _ := h.Lookup("Moon")
	if h.Bodies[moon].Parent != earth || h.Bodies[moon].Depth != 2 {
		t.Errorf("moon parent/depth = %d/%d", h.Bodies[moon].Parent, h.Bodies[moon].Depth)
	}
	if h.PathOf(moon) != "Sun/Earth/Moon" {
		t.Errorf("PathOf(moon) = %q", h.PathOf(moon))
	}

	if h.Camera.TargetIndex != moon || h.Camera.Radius != 10000 {
		t.Errorf("camera = %+v", h.Camera)
	}
}

func TestParentsPrecedeChildren(t *testing.T) {
	h, err := Parse(assets.SolarSystem, testOptions())
	if err != nil {
		t.Fatalf("Parse bundled scene: %v", err)
	}
	for _, b := range h.Bodies {
		if b.Parent >= b.Index {
			t.Errorf("%s: parent index %d not before %d", b.Name, b.Parent, b.Index)
		}
		for _, c := range b.Children {
			if h.Bodies[c].Parent != b.Index {
				t.Errorf("%s lists child %s with parent %d", b.Name, h.Bodies[c].Name, h.Bodies[c].Parent)
			}
			if h.Bodies[c].Depth != b.Depth+1 {
				t.Errorf("%s depth %d under %s depth %d", h.Bodies[c].Name, h.Bodies[c].Depth, b.Name, b.Depth)
			}
		}
	}
	total := 0
	for d, level := range h.Levels {
		for _, idx := range level {
			if h.Bodies[idx].Depth != d {
				t.Errorf("level %d holds %s at depth %d", d, h.Bodies[idx].Name, h.Bodies[idx].Depth)
			}
		}
		total += len(level)
	}
	if total != h.Len() {
		t.Errorf("levels hold %d bodies, hierarchy has %d", total, h.Len())
	}
	if counts := h.CountByKind(); counts[SGP4] != 1 {
		t.Errorf("sgp4 bodies = %d, want 1 (ISS)", counts[SGP4])
	}
}

func TestBundledEarthOrbit(t *testing.T) {
	h, err := Parse(assets.SolarSystem, testOptions())
	if err != nil {
		t.Fatal(err)
	}
	i, ok := h.Lookup("Earth")
	if !ok {
		t.Fatal("Earth missing from bundled scene")
	}
	o := h.Bodies[i].Motion.Orbit
	el := o.Elements()
	p, err := o.Position(0)
	if err != nil && !errors.Is(err, orbit.ErrNoConvergence) {
		t.Fatal(err)
	}
	if d := p.Len(); d < el.Periapsis()-1 || d > el.Apoapsis()+1 {
		t.Errorf("Earth at epoch %v m from the Sun, outside [%v, %v]", d, el.Periapsis(), el.Apoapsis())
	}
}

func TestParseErrorsNameFieldPath(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(string) string
		wantPath string
		wantErr  error
	}{
		{
			name:     "bad suffix",
			mutate:   func(s string) string { return strings.Replace(s, "semi-major-axis: 149598023k", "semi-major-axis: 149598023q", 1) },
			wantPath: "root.satellites.Earth.orbit.semi-major-axis",
			wantErr:  units.ErrUnknownSuffix,
		},
		{
			name:     "missing period",
			mutate:   func(s string) string { return strings.Replace(s, "        period: 365.256363004d\n", "", 1) },
			wantPath: "root.satellites.Earth.orbit.period",
			wantErr:  ErrMissingField,
		},
		{
			name:     "missing radius",
			mutate:   func(s string) string { return strings.Replace(s, "      radius: 3389.5k\n", "", 1) },
			wantPath: "root.satellites.Mars.radius",
			wantErr:  ErrMissingField,
		},
		{
			name:     "unknown field",
			mutate:   func(s string) string { return strings.Replace(s, "radius: 1737.4k", "radius: 1737.4k\n          colour: red", 1) },
			wantPath: "root.satellites.Earth.satellites.Moon.colour",
			wantErr:  ErrUnknownField,
		},
		{
			name:     "hyperbolic orbit",
			mutate:   func(s string) string { return strings.Replace(s, "eccentricity: 0.0549", "eccentricity: 1.5", 1) },
			wantPath: "root.satellites.Earth.satellites.Moon.orbit",
			wantErr:  orbit.ErrInvalidElements,
		},
		{
			name:     "camera target",
			mutate:   func(s string) string { return strings.Replace(s, "target: Moon", "target: Pluto", 1) },
			wantPath: "camera.target",
			wantErr:  ErrCameraTargetNotFound,
		},
		{
			name:     "null eccentricity",
			mutate:   func(s string) string { return strings.Replace(s, "eccentricity: 0.0167086", "eccentricity:", 1) },
			wantPath: "root.satellites.Earth.orbit.eccentricity",
			wantErr:  ErrMissingField,
		},
		{
			name:     "null inclination",
			mutate:   func(s string) string { return strings.Replace(s, "inclination: 5.145", "inclination: ~", 1) },
			wantPath: "root.satellites.Earth.satellites.Moon.orbit.inclination",
			wantErr:  ErrMissingField,
		},
		{
			name:     "null argument of periapsis",
			mutate:   func(s string) string { return strings.Replace(s, "argument-of-periapsis: 54.884", "argument-of-periapsis: null", 1) },
			wantPath: "root.satellites.Venus.orbit.argument-of-periapsis",
			wantErr:  ErrMissingField,
		},
		{
			name:     "null siderial day",
			mutate:   func(s string) string { return strings.Replace(s, "siderial-day: 25.05d", "siderial-day:", 1) },
			wantPath: "root.siderial-day",
			wantErr:  ErrMissingField,
		},
		{
			name:     "bad duration",
			mutate:   func(s string) string { return strings.Replace(s, "siderial-day: 25.05d", "siderial-day: 25.05w", 1) },
			wantPath: "root.siderial-day",
			wantErr:  units.ErrUnknownSuffix,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := tt.mutate(minimal)
			if src == minimal {
				t.Fatal("mutation did not apply")
			}
			_, err := Parse([]byte(src), testOptions())
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %v", err)
			}
			if pe.Path != tt.wantPath {
				t.Errorf("path = %q, want %q", pe.Path, tt.wantPath)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error %v does not wrap %v", err, tt.wantErr)
			}
		})
	}
}

func TestDuplicateNames(t *testing.T) {
	src := strings.Replace(minimal, "    Mars:", "    Moon:", 1)
	_, err := Parse([]byte(src), testOptions())
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestTLECatalog(t *testing.T) {
	dir := t.TempDir()
	catalog := "ISS (ZARYA)\n" +
		"1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005\n" +
		"2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09\n" +
		"STARLINK-1007\n" +
		"1 44713U 19074A   24100.50000000  .00001000  00000-0  10000-4 0  9995\n" +
		"2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    05\n"
	if err := os.WriteFile(filepath.Join(dir, "leo.tle"), []byte(catalog), 0o644); err != nil {
		t.Fatal(err)
	}

	src := strings.Replace(minimal, "      inclination: 23.44\n",
		"      inclination: 23.44\n      tle-catalog: leo.tle\n      tle-limit: 1\n", 1)
	manifest := filepath.Join(dir, "scene.yaml")
	if err := os.WriteFile(manifest, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	h, err := Load(manifest, testOptions().Logger)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	iss, ok := h.Lookup("ISS (ZARYA)")
	if !ok {
		t.Fatal("catalog satellite not attached")
	}
	earth, _ := h.Lookup("Earth")
	if h.Bodies[iss].Parent != earth || h.Bodies[iss].Motion.Kind != SGP4 {
		t.Errorf("iss = %+v", h.Bodies[iss])
	}
	if _, ok := h.Lookup("STARLINK-1007"); ok {
		t.Error("tle-limit not honored")
	}
}

func TestMaterialEmissive(t *testing.T) {
	h, err := Parse([]byte(minimal), testOptions())
	if err != nil {
		t.Fatal(err)
	}
	em := h.Root().Material.Emissive()
	// Linear channel of sRGB 1.0 is 1.0.
	if math.Abs(em[0]-100) > 1e-9 {
		t.Errorf("emissive = %v", em)
	}
	if em[2] >= em[0] {
		t.Errorf("blue %v should be below red %v for a warm color", em[2], em[0])
	}
}

func TestAncestors(t *testing.T) {
	h, err := Parse([]byte(minimal), testOptions())
	if err != nil {
		t.Fatal(err)
	}
	moon, _ := h.Lookup("Moon")
	earth, _ := h.Lookup("Earth")
	got := h.Ancestors(moon)
	if len(got) != 3 || got[0] != 0 || got[1] != earth || got[2] != moon {
		t.Errorf("Ancestors = %v", got)
	}
}
