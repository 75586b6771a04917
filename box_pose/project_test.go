package boxpose

import (
	"errors"
	"image"
	"math"
	"testing"
)

func TestBackProject_PrincipalPoint(t *testing.T) {
	p := testPipeline(t)

	cam, err := p.BackProject(Observation{Pixel: image.Point{X: 32, Y: 24}, Depth: 500})
	if err != nil {
		t.Fatalf("BackProject failed: %v", err)
	}
	if cam.X != 0 || cam.Y != 0 {
		t.Errorf("ray through principal point = (%v, %v), want (0, 0)", cam.X, cam.Y)
	}
	if math.Abs(cam.Z-0.5) > 1e-12 {
		t.Errorf("z = %v, want 0.5", cam.Z)
	}
}

func TestBackProject_KnownOffset(t *testing.T) {
	p := testPipeline(t)

	// (u - ppx) * d / fx = 30 * 600 / 600 = 30mm.
	cam, err := p.BackProject(Observation{Pixel: image.Point{X: 62, Y: 24}, Depth: 600})
	if err != nil {
		t.Fatalf("BackProject failed: %v", err)
	}
	if math.Abs(cam.X-0.030) > 1e-12 {
		t.Errorf("x = %v, want 0.030", cam.X)
	}
	if cam.Y != 0 {
		t.Errorf("y = %v, want 0", cam.Y)
	}
	if math.Abs(cam.Z-0.6) > 1e-12 {
		t.Errorf("z = %v, want 0.6", cam.Z)
	}
}

func TestBackProject_TruncatesToMillimeters(t *testing.T) {
	p := testPipeline(t)

	// 1px off center at 500mm is 0.83mm, which truncates to zero.
	cam, err := p.BackProject(Observation{Pixel: image.Point{X: 33, Y: 24}, Depth: 500})
	if err != nil {
		t.Fatalf("BackProject failed: %v", err)
	}
	if cam.X != 0 {
		t.Errorf("x = %v, want 0 after truncation", cam.X)
	}

	// 2px off center at 500mm is 1.67mm, which truncates to 1mm.
	cam, err = p.BackProject(Observation{Pixel: image.Point{X: 34, Y: 24}, Depth: 500})
	if err != nil {
		t.Fatalf("BackProject failed: %v", err)
	}
	if math.Abs(cam.X-0.001) > 1e-12 {
		t.Errorf("x = %v, want 0.001 after truncation", cam.X)
	}
}

func TestBackProject_ZeroDepth(t *testing.T) {
	p := testPipeline(t)

	if _, err := p.BackProject(Observation{Pixel: image.Point{X: 32, Y: 24}}); !errors.Is(err, ErrZeroDepth) {
		t.Errorf("err = %v, want ErrZeroDepth", err)
	}
}

func TestBackProject_RoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	p, err := NewPipeline(cfg)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	pixels := []image.Point{{X: 100, Y: 100}, {X: 330, Y: 247}, {X: 550, Y: 400}}
	for _, px := range pixels {
		for _, depth := range []float64{500, 800, 1200} {
			cam, err := p.BackProject(Observation{Pixel: px, Depth: depth})
			if err != nil {
				t.Fatalf("BackProject(%v, %v) failed: %v", px, depth, err)
			}
			u, v := cfg.Intrinsics.PointToPixel(cam.X*1000, cam.Y*1000, cam.Z*1000)
			if math.Abs(u-float64(px.X)) > 2 || math.Abs(v-float64(px.Y)) > 2 {
				t.Errorf("round trip of %v at %vmm landed at (%.1f, %.1f)", px, depth, u, v)
			}
		}
	}
}
