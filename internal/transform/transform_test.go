package transform

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
)

func TestTEMEToScene(t *testing.T) {
	teme := PositionTEME{X: 6778, Y: 0, Z: 0, VX: 0, VY: 7.67, VZ: 0}
	pos, vel := TEMEToScene(teme)

	if !pos.ApproxEqualThreshold(mgl64.Vec3{6778e3, 0, 0}, 1e-6) {
		t.Errorf("pos = %v", pos)
	}
	// TEME +Y (in the equatorial plane) becomes scene -Z.
	if !vel.ApproxEqualThreshold(mgl64.Vec3{0, 0, -7670}, 1e-6) {
		t.Errorf("vel = %v", vel)
	}

	// TEME +Z (the pole) becomes scene +Y.
	pole, _ := TEMEToScene(PositionTEME{Z: 7000})
	if !pole.ApproxEqualThreshold(mgl64.Vec3{0, 7e6, 0}, 1e-6) {
		t.Errorf("pole = %v", pole)
	}

	if math.Abs(teme.Magnitude()*1000-pos.Len()) > 1e-6 {
		t.Error("conversion must preserve magnitude")
	}
}

func TestZUpToYUpPreservesHandedness(t *testing.T) {
	x := ZUpToYUp(mgl64.Vec3{1, 0, 0})
	y := ZUpToYUp(mgl64.Vec3{0, 1, 0})
	z := ZUpToYUp(mgl64.Vec3{0, 0, 1})
	if !x.Cross(y).ApproxEqual(z) {
		t.Errorf("x×y = %v, want %v", x.Cross(y), z)
	}
}

func TestFinite(t *testing.T) {
	if !Finite(mgl64.Vec3{1, 2, 3}) {
		t.Error("finite vector reported non-finite")
	}
	if Finite(mgl64.Vec3{1, math.NaN(), 3}) {
		t.Error("NaN not detected")
	}
	if Finite(mgl64.Vec3{math.Inf(-1), 0, 0}) {
		t.Error("Inf not detected")
	}
}

func TestWorldToNDC(t *testing.T) {
	view := View(mgl32.Vec3{0, 0, 0}, mgl32.QuatIdent())
	proj := PerspectiveInfiniteReverse(DefaultFovY, 16.0/9.0, DefaultNear)
	vp := proj.Mul4(view)

	tests := []struct {
		name   string
		p      mgl32.Vec3
		wantOK bool
		center bool
	}{
		{"straight ahead", mgl32.Vec3{0, 0, -1e9}, true, true},
		{"behind", mgl32.Vec3{0, 0, 10}, false, false},
		{"off to the right", mgl32.Vec3{1e9, 0, -1e9}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ndc, ok := WorldToNDC(vp, tt.p)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if tt.center && (math.Abs(float64(ndc.X())) > 1e-6 || math.Abs(float64(ndc.Y())) > 1e-6) {
				t.Errorf("ndc = %v, want screen center", ndc)
			}
			if ndc.Z() <= 0 || ndc.Z() > 1 {
				t.Errorf("reverse depth %v outside (0, 1]", ndc.Z())
			}
		})
	}
}

func TestWorldToNDCRotatedCamera(t *testing.T) {
	// Camera turned 90° left (yaw +90° about Y) looks down -X.
	rot := mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 1, 0})
	vp := PerspectiveInfiniteReverse(DefaultFovY, 1, DefaultNear).Mul4(View(mgl32.Vec3{}, rot))

	ndc, ok := WorldToNDC(vp, mgl32.Vec3{-100, 0, 0})
	if !ok || !OnScreen(ndc) {
		t.Fatalf("point in front of rotated camera not visible: %v %v", ndc, ok)
	}
	if _, ok := WorldToNDC(vp, mgl32.Vec3{100, 0, 0}); ok {
		t.Error("point behind rotated camera reported visible")
	}
}

func TestNDCToViewport(t *testing.T) {
	tests := []struct {
		ndc  mgl32.Vec3
		want mgl32.Vec2
	}{
		{mgl32.Vec3{0, 0, 0}, mgl32.Vec2{640, 360}},
		{mgl32.Vec3{-1, 1, 0}, mgl32.Vec2{0, 0}},
		{mgl32.Vec3{1, -1, 0}, mgl32.Vec2{1280, 720}},
	}
	for _, tt := range tests {
		if got := NDCToViewport(tt.ndc, 1280, 720); !got.ApproxEqual(tt.want) {
			t.Errorf("NDCToViewport(%v) = %v, want %v", tt.ndc, got, tt.want)
		}
	}
}

func TestAspect(t *testing.T) {
	if got := Aspect(1920, 1080); math.Abs(float64(got)-16.0/9.0) > 1e-6 {
		t.Errorf("Aspect = %v", got)
	}
	if Aspect(0, 1080) != 1 {
		t.Error("degenerate viewport should report aspect 1")
	}
}
