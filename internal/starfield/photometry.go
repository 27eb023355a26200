package starfield

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/lucasb-eyer/go-colorful"
)

const (
	solarLuminosity     = 3.828e26 // W
	solarAbsMagnitude   = 4.83
	solarApparentMag    = -26.7
	stefanBoltzmann     = 5.670374419e-8 // W m^-2 K^-4
	sunlightIlluminance = 120_000.0
	baseMeshScale       = 6e11
	baseMeshMagnitude   = 0.0
	magnitudeBias       = 0.4
	meshScaleBias       = 0.1
)

// SkyDistance is how far from the origin every star is drawn. Real distances
// would put them far past any depth range; only direction and brightness
// matter for a sky.
const SkyDistance = 5e14

// Luminosity returns the radiant power in watts from the absolute magnitude.
func (s Star) Luminosity() float64 {
	return solarLuminosity * math.Pow(10, 0.4*(solarAbsMagnitude-s.AbsoluteMagnitude))
}

// Temperature estimates the effective temperature in kelvin from the B-V
// color index (Ballesteros 2012).
func (s Star) Temperature() float64 {
	x := 0.92 * s.ColorIndex
	return 4600 * (1/(x+1.7) + 1/(x+0.62))
}

// Radius derives the stellar radius in meters from the Stefan-Boltzmann law.
func (s Star) Radius() float64 {
	t := s.Temperature()
	return math.Sqrt(s.Luminosity() / (4 * math.Pi * stefanBoltzmann * t * t * t * t))
}

// magnitudeScaling scales base by the brightness ratio between baseMag and the
// star's apparent magnitude.
func (s Star) magnitudeScaling(base, baseMag, bias float64) float64 {
	return base * math.Pow(10, bias*(baseMag-s.Magnitude))
}

// EmissivePower is the star's brightness relative to sunlight, in the same
// units as the scene's directional light.
func (s Star) EmissivePower() float64 {
	return s.magnitudeScaling(sunlightIlluminance, solarApparentMag, magnitudeBias)
}

// MeshScale is the radius of the sphere drawn for the star at SkyDistance.
func (s Star) MeshScale() float64 {
	return s.magnitudeScaling(baseMeshScale, baseMeshMagnitude, meshScaleBias)
}

// Color returns the blackbody color of the star's temperature.
func (s Star) Color() colorful.Color {
	return Blackbody(s.Temperature())
}

// SkyPosition maps the equatorial catalog position onto the scene axes (y up)
// at SkyDistance. The second return is false for a star at the origin.
func (s Star) SkyPosition() (mgl64.Vec3, bool) {
	p := mgl64.Vec3{s.Position.X(), s.Position.Z(), -s.Position.Y()}
	l := p.Len()
	if l == 0 || math.IsNaN(l) || math.IsInf(l, 0) {
		return mgl64.Vec3{}, false
	}
	return p.Mul(SkyDistance / l), true
}

// Blackbody approximates the sRGB color of a blackbody at kelvin (Tanner
// Helland's fit). It is crude but good enough for point-like stars.
func Blackbody(kelvin float64) colorful.Color {
	t := kelvin / 100
	var r, g, b float64
	if t <= 66 {
		r = 255
		if t > 10 {
			g = 99.4708025861*math.Log(t-10) - 161.1195681661
		}
		if t > 19 {
			b = 138.5177312231*math.Log(t-10) - 305.0447927307
		}
	} else {
		r = 329.698727446 * math.Pow(t-60, -0.1332047592)
		g = 288.1221695283 * math.Pow(t-60, -0.0755148492)
		b = 255
	}
	return colorful.Color{R: r / 255, G: g / 255, B: b / 255}.Clamped()
}
