// Package scene builds the celestial body hierarchy from a YAML manifest.
//
// The tree is stored flat: bodies live in one slice in breadth-first order so
// every parent precedes its children, and Levels groups body indices by depth
// for level-by-level parallel updates.
package scene

import (
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/star/spacesim/internal/orbit"
	"github.com/star/spacesim/internal/tle"
)

// MotionKind tags how a body moves relative to its parent.
type MotionKind int

const (
	Stationary MotionKind = iota
	Kepler
	SGP4
)

func (k MotionKind) String() string {
	switch k {
	case Kepler:
		return "kepler"
	case SGP4:
		return "sgp4"
	default:
		return "stationary"
	}
}

// Motion is a tagged variant: exactly one of Orbit or TLE is set, matching Kind.
type Motion struct {
	Kind  MotionKind
	Orbit *orbit.Orbit
	TLE   *tle.Entry
}

// Material is a body's surface description.
type Material struct {
	Color         colorful.Color // sRGB
	EmissivePower float64
	Texture       string
}

// Emissive returns the linear-space emissive color, base color × power.
func (m Material) Emissive() [3]float64 {
	r, g, b := m.Color.LinearRgb()
	return [3]float64{r * m.EmissivePower, g * m.EmissivePower, b * m.EmissivePower}
}

// Body is one node of the hierarchy. Parent is -1 for the root.
type Body struct {
	Index            int
	Parent           int
	Depth            int
	Name             string
	Radius           float64 // meters
	Mass             float64 // kg, 0 when not given
	SiderialDay      float64 // seconds, 0 means no spin
	AxialInclination float64 // radians
	Material         Material
	Motion           Motion
	Children         []int
}

// Camera is the initial camera placement from the manifest.
type Camera struct {
	Target      string
	TargetIndex int
	Radius      float64    // meters
	Rotation    [2]float64 // yaw, pitch in radians
}

// Hierarchy is the immutable result of Build.
type Hierarchy struct {
	Bodies []Body
	Levels [][]int
	Camera Camera

	byName map[string]int
}

// Lookup returns the index of the named body.
func (h *Hierarchy) Lookup(name string) (int, bool) {
	i, ok := h.byName[name]
	return i, ok
}

// Root returns the root body.
func (h *Hierarchy) Root() *Body {
	return &h.Bodies[0]
}

// Len returns the number of bodies.
func (h *Hierarchy) Len() int { return len(h.Bodies) }

// Ancestors returns the chain of indices from the root down to i, inclusive.
func (h *Hierarchy) Ancestors(i int) []int {
	var chain []int
	for ; i >= 0; i = h.Bodies[i].Parent {
		chain = append(chain, i)
	}
	for l, r := 0, len(chain)-1; l < r; l, r = l+1, r-1 {
		chain[l], chain[r] = chain[r], chain[l]
	}
	return chain
}

// PathOf renders the manifest path of body i, e.g. "Sun/Earth/Moon".
func (h *Hierarchy) PathOf(i int) string {
	chain := h.Ancestors(i)
	names := make([]string, len(chain))
	for k, idx := range chain {
		names[k] = h.Bodies[idx].Name
	}
	return strings.Join(names, "/")
}

// CountByKind returns how many bodies use each motion kind.
func (h *Hierarchy) CountByKind() map[MotionKind]int {
	counts := make(map[MotionKind]int, 3)
	for _, b := range h.Bodies {
		counts[b.Motion.Kind]++
	}
	return counts
}
