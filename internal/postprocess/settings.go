package postprocess

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Settings tunes the postprocessing chain. The zero value is not usable;
// start from DefaultSettings.
type Settings struct {
	Downsample DownsampleSettings `toml:"downsample" json:"downsample"`
	Kawase     KawaseSettings     `toml:"kawase" json:"kawase"`
	LensFlare  LensFlareSettings  `toml:"lens_flare" json:"lens_flare"`
	Mixer      MixerSettings      `toml:"mixer" json:"mixer"`
}

// DownsampleSettings configures the mip chain.
type DownsampleSettings struct {
	Iterations int `toml:"iterations" json:"iterations"`
}

// KawaseSettings configures the blur. One pass runs per kernel size.
type KawaseSettings struct {
	Kernels []float32 `toml:"kernels" json:"kernels"`
	Scale   float32   `toml:"scale" json:"scale"`
}

type LensFlareSettings struct {
	Enabled          bool    `toml:"enabled" json:"enabled"`
	Intensity        float32 `toml:"intensity" json:"intensity"`
	DistortionBarrel float32 `toml:"distortion_barrel" json:"distortion_barrel"`
	Gamma            float32 `toml:"gamma" json:"gamma"`
	OrbFlareCount    uint32  `toml:"orb_flare_count" json:"orb_flare_count"`
}

type MixerSettings struct {
	Intensity float32 `toml:"intensity" json:"intensity"`
}

// MaxDownsample bounds the mip chain; 2^12 covers any realistic viewport.
const MaxDownsample = 12

// DefaultSettings returns the stock tuning.
func DefaultSettings() Settings {
	return Settings{
		Downsample: DownsampleSettings{Iterations: 4},
		Kawase: KawaseSettings{
			Kernels: []float32{1, 2, 3.5, 5},
			Scale:   0.4,
		},
		LensFlare: LensFlareSettings{
			Enabled:          true,
			Intensity:        2e-5,
			DistortionBarrel: 1,
			Gamma:            1.85,
			OrbFlareCount:    10,
		},
		Mixer: MixerSettings{Intensity: 1},
	}
}

// Validate checks ranges.
func (s Settings) Validate() error {
	var errs []error
	if s.Downsample.Iterations < 0 || s.Downsample.Iterations > MaxDownsample {
		errs = append(errs, fmt.Errorf("downsample.iterations %d outside [0, %d]", s.Downsample.Iterations, MaxDownsample))
	}
	for i, k := range s.Kawase.Kernels {
		if !finite(k) || k < 0 {
			errs = append(errs, fmt.Errorf("kawase.kernels[%d] = %v must be a non-negative number", i, k))
		}
	}
	if !finite(s.Kawase.Scale) || s.Kawase.Scale <= 0 {
		errs = append(errs, fmt.Errorf("kawase.scale %v must be positive", s.Kawase.Scale))
	}
	if !finite(s.LensFlare.Intensity) || s.LensFlare.Intensity < 0 {
		errs = append(errs, fmt.Errorf("lens_flare.intensity %v must be non-negative", s.LensFlare.Intensity))
	}
	if !finite(s.LensFlare.Gamma) || s.LensFlare.Gamma <= 0 {
		errs = append(errs, fmt.Errorf("lens_flare.gamma %v must be positive", s.LensFlare.Gamma))
	}
	if !finite(s.LensFlare.DistortionBarrel) {
		errs = append(errs, fmt.Errorf("lens_flare.distortion_barrel %v must be finite", s.LensFlare.DistortionBarrel))
	}
	if !finite(s.Mixer.Intensity) || s.Mixer.Intensity < 0 {
		errs = append(errs, fmt.Errorf("mixer.intensity %v must be non-negative", s.Mixer.Intensity))
	}
	return errors.Join(errs...)
}

// ParseSettings decodes TOML on top of the defaults, so a file only needs the
// keys it changes. Unknown keys are rejected.
func ParseSettings(data []byte) (Settings, error) {
	s := DefaultSettings()
	// Arrays are decoded into a fresh slice rather than over the defaults.
	s.Kawase.Kernels = nil
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Settings{}, fmt.Errorf("postprocess settings: %s", strict.String())
		}
		return Settings{}, fmt.Errorf("postprocess settings: %w", err)
	}
	if s.Kawase.Kernels == nil {
		s.Kawase.Kernels = DefaultSettings().Kawase.Kernels
	}
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("postprocess settings: %w", err)
	}
	return s, nil
}

// LoadSettings reads a TOML settings file.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("reading postprocess settings: %w", err)
	}
	return ParseSettings(data)
}

// TOML renders s as a settings file.
func (s Settings) TOML() ([]byte, error) {
	return toml.Marshal(s)
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
