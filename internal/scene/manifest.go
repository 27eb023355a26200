package scene

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"

	"github.com/star/spacesim/internal/orbit"
	"github.com/star/spacesim/internal/tle"
	"github.com/star/spacesim/internal/units"
)

// bodyConfig is one decoded manifest node before flattening.
type bodyConfig struct {
	name        string
	path        string
	radius      float64
	mass        float64
	siderialDay float64
	inclination float64
	material    Material
	orbit       *orbit.Orbit
	tle         *tle.Entry
	tleCatalog  string
	tleLimit    int
	satellites  []*bodyConfig
}

type cameraConfig struct {
	target   string
	radius   float64
	rotation [2]float64
}

// colorValue accepts `[r, g, b]` in 0..1 or a hex string like "#ffcc00".
type colorValue struct {
	c colorful.Color
}

func (cv *colorValue) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		c, err := colorful.Hex(n.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		cv.c = c
		return nil
	case yaml.SequenceNode:
		var rgb []float64
		if err := n.Decode(&rgb); err != nil {
			return err
		}
		if len(rgb) != 3 {
			return fmt.Errorf("line %d: color needs 3 components, got %d", n.Line, len(rgb))
		}
		cv.c = colorful.Color{R: rgb[0], G: rgb[1], B: rgb[2]}
		if !cv.c.IsValid() {
			return fmt.Errorf("line %d: color components must be within [0, 1]", n.Line)
		}
		return nil
	}
	return fmt.Errorf("line %d: color must be a hex string or [r, g, b]", n.Line)
}

type tleLines struct {
	Line1 string `yaml:"line1"`
	Line2 string `yaml:"line2"`
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// decodeMapping decodes every key of n into the matching target. Unknown keys
// are rejected. It returns the set of keys present; a key with a null value
// counts as absent.
func decodeMapping(n *yaml.Node, path string, fields map[string]any) (map[string]bool, error) {
	if n.Kind != yaml.MappingNode {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("line %d: expected a mapping", n.Line)}
	}
	seen := make(map[string]bool, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i].Value, n.Content[i+1]
		target, ok := fields[key]
		if !ok {
			return nil, &ParseError{Path: joinPath(path, key), Err: ErrUnknownField}
		}
		if val.Kind == yaml.ScalarNode && val.Tag == "!!null" {
			continue
		}
		if err := val.Decode(target); err != nil {
			return nil, &ParseError{Path: joinPath(path, key), Err: err}
		}
		seen[key] = true
	}
	return seen, nil
}

func require(seen map[string]bool, path string, keys ...string) error {
	for _, k := range keys {
		if !seen[k] {
			return &ParseError{Path: joinPath(path, k), Err: ErrMissingField}
		}
	}
	return nil
}

// decodeManifest decodes the document into the camera and the body tree.
func decodeManifest(data []byte) (*cameraConfig, *bodyConfig, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, &ParseError{Path: "", Err: err}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, nil, &ParseError{Path: "", Err: fmt.Errorf("empty manifest")}
	}

	var cameraNode, rootNode yaml.Node
	seen, err := decodeMapping(doc.Content[0], "", map[string]any{
		"camera": &cameraNode,
		"root":   &rootNode,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := require(seen, "", "camera", "root"); err != nil {
		return nil, nil, err
	}

	cam, err := decodeCamera(&cameraNode)
	if err != nil {
		return nil, nil, err
	}
	root, err := decodeBody(&rootNode, "root", "")
	if err != nil {
		return nil, nil, err
	}
	return cam, root, nil
}

func decodeCamera(n *yaml.Node) (*cameraConfig, error) {
	const path = "camera"
	var (
		target   string
		radius   units.Quantity
		rotation [2]float64
	)
	seen, err := decodeMapping(n, path, map[string]any{
		"target":   &target,
		"radius":   &radius,
		"rotation": &rotation,
	})
	if err != nil {
		return nil, err
	}
	if err := require(seen, path, "target", "radius"); err != nil {
		return nil, err
	}
	if radius.Base() <= 0 {
		return nil, &ParseError{Path: path + ".radius", Err: fmt.Errorf("must be positive, got %v", radius)}
	}
	return &cameraConfig{
		target:   target,
		radius:   radius.Base(),
		rotation: [2]float64{mgl64.DegToRad(rotation[0]), mgl64.DegToRad(rotation[1])},
	}, nil
}

// decodeBody decodes a body node. The root carries its name as a field;
// satellites are named by their mapping key.
func decodeBody(n *yaml.Node, path, name string) (*bodyConfig, error) {
	var (
		bodyName    string
		radius      units.Quantity
		mass        units.Quantity
		siderialDay units.Duration
		inclination units.Quantity
		materialN   yaml.Node
		orbitN      yaml.Node
		tleN        tleLines
		catalog     string
		limit       int
		satellites  yaml.Node
	)
	fields := map[string]any{
		"radius":       &radius,
		"mass":         &mass,
		"siderial-day": &siderialDay,
		"inclination":  &inclination,
		"material":     &materialN,
		"orbit":        &orbitN,
		"tle":          &tleN,
		"tle-catalog":  &catalog,
		"tle-limit":    &limit,
		"satellites":   &satellites,
	}
	if name == "" {
		fields["name"] = &bodyName
	}
	seen, err := decodeMapping(n, path, fields)
	if err != nil {
		return nil, err
	}
	if name == "" {
		if err := require(seen, path, "name"); err != nil {
			return nil, err
		}
		name = bodyName
	}

	required := []string{"radius", "material"}
	if !seen["tle"] {
		required = append(required, "siderial-day")
	}
	if err := require(seen, path, required...); err != nil {
		return nil, err
	}
	if seen["orbit"] && seen["tle"] {
		return nil, &ParseError{Path: path + ".tle", Err: fmt.Errorf("a body cannot have both orbit and tle")}
	}
	if radius.Base() <= 0 {
		return nil, &ParseError{Path: path + ".radius", Err: fmt.Errorf("must be positive, got %v", radius)}
	}

	material, err := decodeMaterial(&materialN, path+".material")
	if err != nil {
		return nil, err
	}

	cfg := &bodyConfig{
		name:        name,
		path:        path,
		radius:      radius.Base(),
		mass:        mass.Base(),
		siderialDay: siderialDay.Seconds(),
		inclination: mgl64.DegToRad(inclination.Base()),
		material:    material,
		tleCatalog:  catalog,
		tleLimit:    limit,
	}

	if seen["orbit"] {
		o, err := decodeOrbit(&orbitN, path+".orbit")
		if err != nil {
			return nil, err
		}
		cfg.orbit = o
	}
	if seen["tle"] {
		entry, err := tle.ParseLines(name, tleN.Line1, tleN.Line2)
		if err != nil {
			return nil, &ParseError{Path: path + ".tle", Err: err}
		}
		cfg.tle = &entry
	}

	if seen["satellites"] {
		satPath := path + ".satellites"
		if satellites.Kind != yaml.MappingNode {
			return nil, &ParseError{Path: satPath, Err: fmt.Errorf("line %d: expected a mapping", satellites.Line)}
		}
		// Mapping node content keeps declaration order.
		for i := 0; i+1 < len(satellites.Content); i += 2 {
			satName := satellites.Content[i].Value
			child, err := decodeBody(satellites.Content[i+1], joinPath(satPath, satName), satName)
			if err != nil {
				return nil, err
			}
			cfg.satellites = append(cfg.satellites, child)
		}
	}
	return cfg, nil
}

func decodeMaterial(n *yaml.Node, path string) (Material, error) {
	var (
		color   colorValue
		power   units.Quantity
		texture string
	)
	seen, err := decodeMapping(n, path, map[string]any{
		"color":          &color,
		"emissive-power": &power,
		"texture":        &texture,
	})
	if err != nil {
		return Material{}, err
	}
	if err := require(seen, path, "color"); err != nil {
		return Material{}, err
	}
	return Material{Color: color.c, EmissivePower: power.Base(), Texture: texture}, nil
}

func decodeOrbit(n *yaml.Node, path string) (*orbit.Orbit, error) {
	var (
		epoch, axis, ecc, incl, node, argp units.Quantity
		period                             units.Duration
	)
	seen, err := decodeMapping(n, path, map[string]any{
		"epoch":                       &epoch,
		"period":                      &period,
		"semi-major-axis":             &axis,
		"eccentricity":                &ecc,
		"inclination":                 &incl,
		"longitude-of-ascending-node": &node,
		"argument-of-periapsis":       &argp,
	})
	if err != nil {
		return nil, err
	}
	if err := require(seen, path,
		"epoch", "period", "semi-major-axis", "eccentricity",
		"inclination", "longitude-of-ascending-node", "argument-of-periapsis",
	); err != nil {
		return nil, err
	}

	o, err := orbit.New(orbit.Elements{
		Epoch:         epoch.Base(),
		Period:        period.Seconds(),
		SemiMajorAxis: axis.Base(),
		Eccentricity:  ecc.Base(),
		Inclination:   mgl64.DegToRad(incl.Base()),
		LongAscNode:   mgl64.DegToRad(node.Base()),
		ArgPeriapsis:  mgl64.DegToRad(argp.Base()),
	})
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return o, nil
}

// trimName normalizes catalog names for use as body names.
func trimName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
