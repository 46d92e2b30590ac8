package rectify

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/ironsheep/card-scanner/internal/geometry"
)

// createPatternImage returns an opaque image whose every pixel differs from
// its neighbours.
func createPatternImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8((x * 7) % 256),
				G: uint8((y * 13) % 256),
				B: uint8((x*y + 31) % 256),
				A: 255,
			})
		}
	}
	return img
}

func TestWarpAxisAlignedIsCrop(t *testing.T) {
	src := createPatternImage(120, 100)
	// Deliberately scrambled vertex order.
	quad := geometry.Polygon{{X: 83, Y: 98}, {X: 20, Y: 10}, {X: 20, Y: 98}, {X: 83, Y: 10}}

	out, err := Warp(src, quad)
	if err != nil {
		t.Fatalf("Warp failed: %v", err)
	}
	if got := out.Bounds(); got.Dx() != 63 || got.Dy() != 88 {
		t.Fatalf("size: got %dx%d, want 63x88", got.Dx(), got.Dy())
	}

	for y := 0; y < 88; y++ {
		for x := 0; x < 63; x++ {
			got := out.NRGBAAt(x, y)
			want := src.NRGBAAt(20+x, 10+y)
			if got != want {
				t.Fatalf("pixel (%d,%d): got %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestWarpOutsideIsBlack(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 40, 40))
	for i := range src.Pix {
		src.Pix[i] = 255
	}
	quad := geometry.Polygon{{X: -10, Y: -10}, {X: 50, Y: -10}, {X: 50, Y: 50}, {X: -10, Y: 50}}

	out, err := Warp(src, quad)
	if err != nil {
		t.Fatalf("Warp failed: %v", err)
	}
	if got := out.NRGBAAt(0, 0); got != (color.NRGBA{A: 255}) {
		t.Errorf("outside pixel: got %v, want opaque black", got)
	}
	if got := out.NRGBAAt(30, 30); got != (color.NRGBA{255, 255, 255, 255}) {
		t.Errorf("inside pixel: got %v, want white", got)
	}
}

func TestWarpErrors(t *testing.T) {
	src := createPatternImage(10, 10)
	tests := []struct {
		name string
		quad geometry.Polygon
	}{
		{"triangle", geometry.Polygon{{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 0, Y: 5}}},
		{"collapsed", geometry.Polygon{{X: 3, Y: 3}, {X: 3, Y: 3}, {X: 3, Y: 3}, {X: 3, Y: 3}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Warp(src, tt.quad); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := Warp(src, geometry.Polygon{{X: 3, Y: 3}, {X: 3, Y: 3}, {X: 3, Y: 3}, {X: 3, Y: 3}}); !errors.Is(err, ErrEmptyTarget) {
		t.Errorf("collapsed quad: got %v, want ErrEmptyTarget", err)
	}
}

func TestNewHomographyMapsCorners(t *testing.T) {
	from := [4]geometry.Point{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 140}, {X: 0, Y: 140}}
	to := [4]geometry.Point{{X: 12, Y: 30}, {X: 95, Y: 18}, {X: 110, Y: 160}, {X: 5, Y: 150}}

	H, err := NewHomography(from, to)
	if err != nil {
		t.Fatalf("NewHomography failed: %v", err)
	}
	for i := range from {
		x, y := H.Apply(from[i].X, from[i].Y)
		if math.Abs(x-to[i].X) > 1e-6 || math.Abs(y-to[i].Y) > 1e-6 {
			t.Errorf("corner %d: got (%v,%v), want %v", i, x, y, to[i])
		}
	}
}

func TestSize(t *testing.T) {
	// Trapezoid: top 60, bottom 80.5, sides about 50.
	quad := geometry.OrderCounterClockwise([]geometry.Point{{X: 10, Y: 0}, {X: 70, Y: 0}, {X: 80.5, Y: 50}, {X: 0, Y: 50}})
	w, h := Size(quad)
	if w != 80 {
		t.Errorf("width: got %d, want 80", w)
	}
	if h != 51 {
		t.Errorf("height: got %d, want 51", h)
	}
}

func TestInset(t *testing.T) {
	src := createPatternImage(100, 200)
	tests := []struct {
		name   string
		factor float64
		wantW  int
		wantH  int
	}{
		{"no inset", 1, 100, 200},
		{"above one", 1.2, 100, 200},
		{"typical", 0.978, 97, 195},
		{"half", 0.5, 50, 100},
		{"round-off below one", 0.99999999999999978, 100, 200},
		{"just below a pixel", 0.995 - 1e-12, 99, 199},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Inset(src, tt.factor)
			if out.Bounds().Dx() != tt.wantW || out.Bounds().Dy() != tt.wantH {
				t.Errorf("size: got %dx%d, want %dx%d", out.Bounds().Dx(), out.Bounds().Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestRectify(t *testing.T) {
	src := createPatternImage(120, 100)
	quad := geometry.Polygon{{X: 20, Y: 10}, {X: 83, Y: 10}, {X: 83, Y: 98}, {X: 20, Y: 98}}

	out, err := Rectify(src, quad, 0.978)
	if err != nil {
		t.Fatalf("Rectify failed: %v", err)
	}
	if out.Bounds().Dx() != 61 || out.Bounds().Dy() != 86 {
		t.Errorf("size: got %dx%d, want 61x86", out.Bounds().Dx(), out.Bounds().Dy())
	}
}

func TestRectifyTinyQuad(t *testing.T) {
	src := createPatternImage(120, 100)
	quad := geometry.Polygon{{X: 10, Y: 10}, {X: 11, Y: 10}, {X: 11, Y: 40}, {X: 10, Y: 40}}

	if _, err := Warp(src, quad); err != nil {
		t.Fatalf("Warp failed: %v", err)
	}
	if _, err := Rectify(src, quad, 0.95); !errors.Is(err, ErrEmptyTarget) {
		t.Errorf("err: got %v, want ErrEmptyTarget", err)
	}
}
