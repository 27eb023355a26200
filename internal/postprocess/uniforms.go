package postprocess

import (
	"encoding/binary"
	"math"
)

// Uniform buffer sizes in bytes. Each struct is padded to the 16-byte
// alignment std140 requires for uniform buffers, which WebGL2 enforces.
const (
	KawaseUniformSize    = 32
	LensFlareUniformSize = 32
	MixerUniformSize     = 16
)

// Uniform is a shader uniform block with a fixed std140 encoding.
type Uniform interface {
	Size() int
	AppendStd140(b []byte) []byte
}

// Encode returns the std140 bytes of u.
func Encode(u Uniform) []byte {
	return u.AppendStd140(make([]byte, 0, u.Size()))
}

// KawaseUniforms matches
//
//	struct KawaseParams {
//	    texel_size: vec2<f32>,  // offset 0
//	    half_size: vec2<f32>,   // offset 8
//	    kernel_size: f32,       // offset 16
//	    scale: f32,             // offset 20
//	}                           // size 24, padded to 32
type KawaseUniforms struct {
	TexelSize  [2]float32
	HalfSize   [2]float32
	KernelSize float32
	Scale      float32
}

// NewKawaseUniforms derives texel sizes from the texture being sampled.
func NewKawaseUniforms(width, height uint32, kernel, scale float32) KawaseUniforms {
	texel := [2]float32{1 / float32(width), 1 / float32(height)}
	return KawaseUniforms{
		TexelSize:  texel,
		HalfSize:   [2]float32{texel[0] / 2, texel[1] / 2},
		KernelSize: kernel,
		Scale:      scale,
	}
}

func (KawaseUniforms) Size() int { return KawaseUniformSize }

func (u KawaseUniforms) AppendStd140(b []byte) []byte {
	b = appendF32(b, u.TexelSize[0], u.TexelSize[1], u.HalfSize[0], u.HalfSize[1], u.KernelSize, u.Scale)
	return pad(b, 8)
}

// LensFlareUniforms matches
//
//	struct LensFlareSettings {
//	    position: vec3<f32>,       // offset 0
//	    intensity: f32,            // offset 12
//	    aspect: f32,               // offset 16
//	    distortion_barrel: f32,    // offset 20
//	    gamma: f32,                // offset 24
//	    orb_flare_count: u32,      // offset 28
//	}                              // size 32
//
// Position is the flare source in NDC; z carries depth.
type LensFlareUniforms struct {
	Position         [3]float32
	Intensity        float32
	Aspect           float32
	DistortionBarrel float32
	Gamma            float32
	OrbFlareCount    uint32
}

func (LensFlareUniforms) Size() int { return LensFlareUniformSize }

func (u LensFlareUniforms) AppendStd140(b []byte) []byte {
	b = appendF32(b, u.Position[0], u.Position[1], u.Position[2], u.Intensity, u.Aspect, u.DistortionBarrel, u.Gamma)
	return binary.LittleEndian.AppendUint32(b, u.OrbFlareCount)
}

// MixerUniforms matches
//
//	struct MixerSettings {
//	    intensity: f32,   // offset 0
//	}                     // size 4, padded to 16
type MixerUniforms struct {
	Intensity float32
}

func (MixerUniforms) Size() int { return MixerUniformSize }

func (u MixerUniforms) AppendStd140(b []byte) []byte {
	return pad(appendF32(b, u.Intensity), 12)
}

func appendF32(b []byte, vs ...float32) []byte {
	for _, v := range vs {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
	}
	return b
}

func pad(b []byte, n int) []byte {
	for range n {
		b = append(b, 0)
	}
	return b
}
