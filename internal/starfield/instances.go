package starfield

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/star/spacesim/internal/space"
)

// Star grid defaults: stars live at SkyDistance, so cells can be huge.
const (
	DefaultCellLength         = 1e9
	DefaultSwitchingThreshold = 100.0
)

// InstanceSize is the byte size of one packed instance.
const InstanceSize = 32

// Instance is the per-star vertex data of the instanced sphere draw:
//
//	position: vec3<f32>  // offset 0, relative to the origin cell
//	scale: f32           // offset 12
//	color: vec4<f32>     // offset 16, linear RGB premultiplied by emissive power
type Instance struct {
	Position mgl32.Vec3
	Scale    float32
	Color    [4]float32
}

// AppendBytes appends the packed little-endian layout of in.
func (in Instance) AppendBytes(b []byte) []byte {
	for _, v := range [...]float32{
		in.Position[0], in.Position[1], in.Position[2], in.Scale,
		in.Color[0], in.Color[1], in.Color[2], in.Color[3],
	} {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
	}
	return b
}

// Field is the placed, visible part of a catalog.
type Field struct {
	grid  *space.Grid
	stars []Star
	cells []space.GridPosition
	base  []Instance // Position unset
}

// NewField places every visible star on grid. Stars without a direction are
// dropped.
func NewField(stars []Star, grid *space.Grid) (*Field, error) {
	f := &Field{grid: grid}
	for _, s := range stars {
		if !s.Visible() {
			continue
		}
		pos, ok := s.SkyPosition()
		if !ok {
			continue
		}
		gp, err := grid.TranslationToGrid(pos)
		if err != nil {
			return nil, fmt.Errorf("placing star %q: %w", s.Name, err)
		}
		r, g, b := s.Color().LinearRgb()
		power := s.EmissivePower()
		f.stars = append(f.stars, s)
		f.cells = append(f.cells, gp)
		f.base = append(f.base, Instance{
			Scale: float32(s.MeshScale()),
			Color: [4]float32{float32(r * power), float32(g * power), float32(b * power), 1},
		})
	}
	return f, nil
}

// Len returns the number of placed stars.
func (f *Field) Len() int { return len(f.stars) }

// Stars returns the placed stars in instance order.
func (f *Field) Stars() []Star { return f.stars }

// Grid returns the star grid.
func (f *Field) Grid() *space.Grid { return f.grid }

// Instances returns the instance data relative to the origin cell.
func (f *Field) Instances(origin space.Cell) []Instance {
	out := make([]Instance, len(f.base))
	for i, in := range f.base {
		in.Position = f.grid.Relative(f.cells[i], origin)
		out[i] = in
	}
	return out
}

// Buffer packs the instances relative to origin into a vertex buffer.
func (f *Field) Buffer(origin space.Cell) []byte {
	b := make([]byte, 0, len(f.base)*InstanceSize)
	for _, in := range f.Instances(origin) {
		b = in.AppendBytes(b)
	}
	return b
}
