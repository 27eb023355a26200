// Package postprocess describes the postprocessing render graph on the host
// side: which passes run, which textures they read and write, their sizes and
// formats, and the uniform bytes each pass binds. Dispatching the passes is
// the host renderer's job; this package makes sure what it is handed is
// consistent.
package postprocess

import (
	"errors"
	"fmt"
	"math/bits"
)

// ErrInvalidTexture is returned when a requested texture size or mip level
// cannot be allocated.
var ErrInvalidTexture = errors.New("invalid texture")

// ErrHazard is returned when a pass reads a texture subresource it writes, or
// reads something no earlier pass produced.
var ErrHazard = errors.New("render graph hazard")

// Format is a WebGPU texture format name.
type Format string

const (
	Rgba16Float Format = "rgba16float"
	Rgba8Unorm  Format = "rgba8unorm"
	R8Unorm     Format = "r8unorm"
)

// DefaultMaxTextureDimension is the WebGPU default limit for 2D textures.
const DefaultMaxTextureDimension = 8192

// Texture names. SceneColor and SceneOutput are the view target's two
// buffers; everything else is allocated by the plan.
const (
	SceneColor  = "scene.main"
	SceneOutput = "scene.alt"
	Downsample  = "downsample"
	KawaseA     = "kawase.a"
	KawaseB     = "kawase.b"
	Flare       = "lens_flare"
)

// Texture is an allocation request.
type Texture struct {
	Name      string `json:"name"`
	Width     uint32 `json:"width"`
	Height    uint32 `json:"height"`
	MipLevels uint32 `json:"mip_levels"`
	Format    Format `json:"format"`
	External  bool   `json:"external,omitempty"` // owned by the host view target
}

// MaxMipLevels returns the length of a full mip chain for a w×h texture.
func MaxMipLevels(w, h uint32) uint32 {
	return uint32(bits.Len32(max(w, h)))
}

// MipSize returns the dimensions of mip level m.
func (t Texture) MipSize(m uint32) (uint32, uint32) {
	return max(1, t.Width>>m), max(1, t.Height>>m)
}

// Ref names one mip level of a texture.
type Ref struct {
	Texture string `json:"texture"`
	Mip     uint32 `json:"mip"`
}

func (r Ref) String() string {
	if r.Mip == 0 {
		return r.Texture
	}
	return fmt.Sprintf("%s@%d", r.Texture, r.Mip)
}

// Kind identifies the shader a pass runs.
type Kind string

const (
	KindDownsample Kind = "downsample"
	KindKawase     Kind = "kawase"
	KindLensFlare  Kind = "lens_flare"
	KindMixer      Kind = "mixer"
)

// Pass is one full-screen draw.
type Pass struct {
	Name       string `json:"name"`
	Kind       Kind   `json:"kind"`
	Shader     string `json:"shader"`
	VertEntry  string `json:"vertex_entry"`
	FragEntry  string `json:"fragment_entry"`
	Inputs     []Ref  `json:"inputs"`
	Output     Ref    `json:"output"`
	Width      uint32 `json:"width"`
	Height     uint32 `json:"height"`
	UniformLen int    `json:"uniform_size,omitempty"`

	kernel float32
}

// Plan is the ordered pass list for one viewport and settings combination.
// It is rebuilt whenever either changes.
type Plan struct {
	Width    uint32    `json:"width"`
	Height   uint32    `json:"height"`
	HDR      bool      `json:"hdr"`
	Textures []Texture `json:"textures"`
	Passes   []Pass    `json:"passes"`
	Final    Ref       `json:"final"`

	settings Settings
	textures map[string]int
}

// BuildPlan lays out the chain for a width×height viewport: N downsample
// passes into a mip chain, kawase passes ping-ponging between two buffers at
// the smallest mip's tier, the lens flare, and the mixer compositing onto the
// view target's alternate buffer.
func BuildPlan(s Settings, width, height uint32, hdr bool) (*Plan, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("%w: viewport %dx%d", ErrInvalidTexture, width, height)
	}

	p := &Plan{
		Width:    width,
		Height:   height,
		HDR:      hdr,
		settings: s,
		textures: make(map[string]int),
	}
	viewFormat, chainFormat := Rgba8Unorm, R8Unorm
	if hdr {
		viewFormat, chainFormat = Rgba16Float, Rgba16Float
	}
	p.addTexture(Texture{Name: SceneColor, Width: width, Height: height, MipLevels: 1, Format: viewFormat, External: true})
	p.addTexture(Texture{Name: SceneOutput, Width: width, Height: height, MipLevels: 1, Format: viewFormat, External: true})

	src := Ref{Texture: SceneColor}

	if n := uint32(s.Downsample.Iterations); n > 0 {
		// Mip m holds the viewport halved m+1 times. Small viewports run
		// out of mips before the configured iteration count.
		cw, ch := max(1, width/2), max(1, height/2)
		n = min(n, MaxMipLevels(cw, ch))
		chain := Texture{
			Name:      Downsample,
			Width:     cw,
			Height:    ch,
			MipLevels: n,
			Format:    chainFormat,
		}
		p.addTexture(chain)
		for m := range n {
			w, h := chain.MipSize(m)
			out := Ref{Texture: Downsample, Mip: m}
			p.Passes = append(p.Passes, Pass{
				Name:      fmt.Sprintf("downsample.%d", m),
				Kind:      KindDownsample,
				Shader:    "resample.wgsl",
				VertEntry: "fullscreen_vert",
				FragEntry: "downsample",
				Inputs:    []Ref{src},
				Output:    out,
				Width:     w,
				Height:    h,
			})
			src = out
		}
	}

	if len(s.Kawase.Kernels) > 0 {
		w, h := p.sizeOf(src)
		p.addTexture(Texture{Name: KawaseA, Width: w, Height: h, MipLevels: 1, Format: Rgba16Float})
		p.addTexture(Texture{Name: KawaseB, Width: w, Height: h, MipLevels: 1, Format: Rgba16Float})
		for i, k := range s.Kawase.Kernels {
			// Even passes write B, odd passes write A; the first pass
			// reads the chain output instead of A.
			out := Ref{Texture: KawaseB}
			if i%2 == 1 {
				out = Ref{Texture: KawaseA}
			}
			p.Passes = append(p.Passes, Pass{
				Name:       fmt.Sprintf("kawase.%d", i),
				Kind:       KindKawase,
				Shader:     "kawase.wgsl",
				VertEntry:  "kawase_vert",
				FragEntry:  "kawase",
				Inputs:     []Ref{src},
				Output:     out,
				Width:      w,
				Height:     h,
				UniformLen: KawaseUniformSize,
				kernel:     k,
			})
			src = out
		}
	}

	bloom := src
	if s.LensFlare.Enabled {
		w, h := p.sizeOf(bloom)
		p.addTexture(Texture{Name: Flare, Width: w, Height: h, MipLevels: 1, Format: Rgba16Float})
		out := Ref{Texture: Flare}
		p.Passes = append(p.Passes, Pass{
			Name:       "lens_flare",
			Kind:       KindLensFlare,
			Shader:     "lens_flare.wgsl",
			VertEntry:  "fullscreen_vert",
			FragEntry:  "lens_flare",
			Inputs:     []Ref{bloom},
			Output:     out,
			Width:      w,
			Height:     h,
			UniformLen: LensFlareUniformSize,
		})
		bloom = out
	}

	final := Ref{Texture: SceneColor}
	if bloom != final {
		final = Ref{Texture: SceneOutput}
		p.Passes = append(p.Passes, Pass{
			Name:       "mixer",
			Kind:       KindMixer,
			Shader:     "mixer.wgsl",
			VertEntry:  "fullscreen_vert",
			FragEntry:  "mixer",
			Inputs:     []Ref{{Texture: SceneColor}, bloom},
			Output:     final,
			Width:      width,
			Height:     height,
			UniformLen: MixerUniformSize,
		})
	}
	p.Final = final
	return p, nil
}

func (p *Plan) addTexture(t Texture) {
	p.textures[t.Name] = len(p.Textures)
	p.Textures = append(p.Textures, t)
}

// Texture returns the named texture.
func (p *Plan) Texture(name string) (Texture, bool) {
	i, ok := p.textures[name]
	if !ok {
		return Texture{}, false
	}
	return p.Textures[i], true
}

// Settings returns the settings the plan was built from.
func (p *Plan) Settings() Settings { return p.settings }

func (p *Plan) sizeOf(r Ref) (uint32, uint32) {
	t, _ := p.Texture(r.Texture)
	return t.MipSize(r.Mip)
}

// Validate checks the plan against the device limit. Every texture must be
// non-empty, within maxDim and no deeper than its full mip chain. No pass may
// read a subresource it writes, and every input must be external or written
// by an earlier pass.
func (p *Plan) Validate(maxDim uint32) error {
	if maxDim == 0 {
		maxDim = DefaultMaxTextureDimension
	}
	for _, t := range p.Textures {
		if t.Width == 0 || t.Height == 0 || t.MipLevels == 0 {
			return fmt.Errorf("%w: %s is %dx%d with %d mips", ErrInvalidTexture, t.Name, t.Width, t.Height, t.MipLevels)
		}
		if t.Width > maxDim || t.Height > maxDim {
			return fmt.Errorf("%w: %s is %dx%d, device limit %d", ErrInvalidTexture, t.Name, t.Width, t.Height, maxDim)
		}
		if limit := MaxMipLevels(t.Width, t.Height); t.MipLevels > limit {
			return fmt.Errorf("%w: %s is %dx%d with %d mips, at most %d", ErrInvalidTexture, t.Name, t.Width, t.Height, t.MipLevels, limit)
		}
	}

	written := make(map[Ref]bool)
	for _, t := range p.Textures {
		if t.External {
			written[Ref{Texture: t.Name}] = true
		}
	}
	for _, pass := range p.Passes {
		if err := p.checkRef(pass.Output); err != nil {
			return fmt.Errorf("pass %s output: %w", pass.Name, err)
		}
		for _, in := range pass.Inputs {
			if err := p.checkRef(in); err != nil {
				return fmt.Errorf("pass %s input: %w", pass.Name, err)
			}
			if in == pass.Output {
				return fmt.Errorf("%w: pass %s reads and writes %s", ErrHazard, pass.Name, in)
			}
			if !written[in] {
				return fmt.Errorf("%w: pass %s reads %s before anything writes it", ErrHazard, pass.Name, in)
			}
		}
		if w, h := p.sizeOf(pass.Output); w != pass.Width || h != pass.Height {
			return fmt.Errorf("%w: pass %s renders %dx%d into %s of %dx%d", ErrInvalidTexture, pass.Name, pass.Width, pass.Height, pass.Output, w, h)
		}
		written[pass.Output] = true
	}
	return nil
}

func (p *Plan) checkRef(r Ref) error {
	t, ok := p.Texture(r.Texture)
	if !ok {
		return fmt.Errorf("%w: unknown texture %q", ErrInvalidTexture, r.Texture)
	}
	if r.Mip >= t.MipLevels {
		return fmt.Errorf("%w: %s has %d mips", ErrInvalidTexture, r, t.MipLevels)
	}
	return nil
}

// FrameInput is the per-frame data the uniforms depend on.
type FrameInput struct {
	FlarePosition [3]float32 // NDC of the flare source
	FlareVisible  bool
}

// Uniforms encodes the uniform buffer of every pass that has one, indexed
// like Passes. Entries for passes without uniforms are nil.
func (p *Plan) Uniforms(in FrameInput) [][]byte {
	out := make([][]byte, len(p.Passes))
	aspect := float32(p.Width) / float32(p.Height)
	for i, pass := range p.Passes {
		switch pass.Kind {
		case KindKawase:
			w, h := p.sizeOf(pass.Inputs[0])
			out[i] = Encode(NewKawaseUniforms(w, h, pass.kernel, p.settings.Kawase.Scale))
		case KindLensFlare:
			lf := p.settings.LensFlare
			intensity := lf.Intensity
			if !in.FlareVisible {
				intensity = 0
			}
			out[i] = Encode(LensFlareUniforms{
				Position:         in.FlarePosition,
				Intensity:        intensity,
				Aspect:           aspect,
				DistortionBarrel: lf.DistortionBarrel,
				Gamma:            lf.Gamma,
				OrbFlareCount:    lf.OrbFlareCount,
			})
		case KindMixer:
			out[i] = Encode(MixerUniforms{Intensity: p.settings.Mixer.Intensity})
		}
	}
	return out
}
