package segment

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/ausocean/utils/logging"

	"github.com/ironsheep/card-scanner/internal/geometry"
)

func fillGray(img *image.Gray, r image.Rectangle, v uint8) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
}

func bbox(c geometry.Contour) image.Rectangle {
	r := image.Rectangle{Min: c[0], Max: c[0]}
	for _, p := range c {
		r.Min.X, r.Min.Y = min(r.Min.X, p.X), min(r.Min.Y, p.Y)
		r.Max.X, r.Max.Y = max(r.Max.X, p.X), max(r.Max.Y, p.Y)
	}
	return r
}

// createPhoto draws a light card on a dark table.
func createPhoto(w, h int, card image.Rectangle) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{R: 30, G: 32, B: 28, A: 255}
			if image.Pt(x, y).In(card) {
				c = color.NRGBA{R: 205, G: 200, B: 195, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestTraceRectangle(t *testing.T) {
	mask := image.NewGray(image.Rect(0, 0, 64, 64))
	fillGray(mask, image.Rect(20, 10, 40, 50), 255)

	contours := Trace(mask, 1)
	if len(contours) != 1 {
		t.Fatalf("contours: got %d, want 1", len(contours))
	}
	c := contours[0]
	if got, want := bbox(c), image.Rect(20, 10, 39, 49); got != want {
		t.Errorf("bbox: got %v, want %v", got, want)
	}
	if len(c) != 2*(19+39) {
		t.Errorf("boundary length: got %d, want %d", len(c), 2*(19+39))
	}
	if got := geometry.ContourArea(c); got != 19*39 {
		t.Errorf("area: got %v, want %v", got, 19*39)
	}

	seen := make(map[image.Point]bool)
	for _, p := range c {
		if seen[p] {
			t.Fatalf("boundary pixel %v visited twice", p)
		}
		seen[p] = true
	}
}

func TestTraceHole(t *testing.T) {
	mask := image.NewGray(image.Rect(0, 0, 50, 50))
	fillGray(mask, mask.Bounds(), 255)
	hole := image.Rect(10, 15, 30, 40)
	fillGray(mask, hole, 0)

	contours := Trace(mask, 1)
	if len(contours) != 2 {
		t.Fatalf("contours: got %d, want 2 (frame and hole)", len(contours))
	}
	found := false
	for _, c := range contours {
		if bbox(c) == image.Rect(10, 15, 29, 39) {
			found = true
		}
	}
	if !found {
		t.Errorf("hole contour not found among %v, %v", bbox(contours[0]), bbox(contours[1]))
	}
}

func TestTraceSmallRegionsAndConnectivity(t *testing.T) {
	tests := []struct {
		name      string
		fill      []image.Rectangle
		minRegion int
		want      int
	}{
		{"single pixel kept", []image.Rectangle{image.Rect(5, 5, 6, 6)}, 1, 1},
		{"single pixel dropped", []image.Rectangle{image.Rect(5, 5, 6, 6)}, 2, 0},
		{"diagonal squares join", []image.Rectangle{image.Rect(2, 2, 6, 6), image.Rect(6, 6, 10, 10)}, 1, 1},
		{"separate squares", []image.Rectangle{image.Rect(2, 2, 6, 6), image.Rect(8, 2, 12, 6)}, 1, 2},
		{"empty", nil, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mask := image.NewGray(image.Rect(0, 0, 20, 20))
			for _, r := range tt.fill {
				fillGray(mask, r, 255)
			}
			if got := len(Trace(mask, tt.minRegion)); got != tt.want {
				t.Errorf("contours: got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTraceOffsetBounds(t *testing.T) {
	mask := image.NewGray(image.Rect(100, 200, 140, 240))
	fillGray(mask, image.Rect(110, 210, 120, 220), 255)

	contours := Trace(mask, 1)
	if len(contours) != 1 {
		t.Fatalf("contours: got %d, want 1", len(contours))
	}
	if got, want := bbox(contours[0]), image.Rect(110, 210, 119, 219); got != want {
		t.Errorf("bbox: got %v, want %v", got, want)
	}
}

func TestPreprocessResize(t *testing.T) {
	tests := []struct {
		name        string
		w, h        int
		maxSize     int
		wantW, wantH int
	}{
		{"landscape", 2000, 1000, 1000, 1000, 500},
		{"portrait", 600, 1200, 300, 150, 300},
		{"already small", 400, 300, 1000, 400, 300},
		{"disabled", 400, 300, 0, 400, 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			o.MaxSize = tt.maxSize
			o.ClipLimit = 0
			out := Preprocess(image.NewNRGBA(image.Rect(0, 0, tt.w, tt.h)), o)
			if out.Bounds().Dx() != tt.wantW || out.Bounds().Dy() != tt.wantH {
				t.Errorf("size: got %dx%d, want %dx%d", out.Bounds().Dx(), out.Bounds().Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestPreprocessEqualizationStretchesContrast(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 160, 120))
	for y := 0; y < 120; y++ {
		for x := 0; x < 160; x++ {
			v := uint8(100 + (x+y)%30)
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}

	out := Preprocess(img, DefaultOptions())
	if spread(out) <= spread(img)*1.5 {
		t.Errorf("spread: got %.2f, want well above %.2f", spread(out), spread(img))
	}
}

func spread(img *image.NRGBA) float64 {
	var sum, sq float64
	n := 0
	for i := 0; i < len(img.Pix); i += 4 {
		v := float64(img.Pix[i+1])
		sum += v
		sq += v * v
		n++
	}
	mean := sum / float64(n)
	return math.Sqrt(sq/float64(n) - mean*mean)
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		input   string
		want    Strategy
		wantErr bool
	}{
		{"simple", Simple, false},
		{"Adaptive", Adaptive, false},
		{"RGB", RGB, false},
		{"otsu", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseStrategy(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err: got %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("strategy: got %v, want %v", got, tt.want)
			}
		})
	}

	var s Strategy
	if err := s.UnmarshalText([]byte("rgb")); err != nil || s != RGB {
		t.Errorf("UnmarshalText: got %v, %v", s, err)
	}
	if Strategy(42).String() != "Strategy(42)" {
		t.Errorf("String of unknown: got %q", Strategy(42).String())
	}
}

func TestNewUnknownStrategy(t *testing.T) {
	if _, err := New(Strategy(9), DefaultOptions(), (*logging.TestLogger)(t)); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestSegmentFindsCard(t *testing.T) {
	card := image.Rect(100, 80, 352, 432)
	photo := createPhoto(600, 500, card)

	for _, strategy := range []Strategy{Simple, RGB} {
		t.Run(strategy.String(), func(t *testing.T) {
			s, err := New(strategy, DefaultOptions(), (*logging.TestLogger)(t))
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			pre, contours := s.Segment(photo)
			if pre.Bounds() != photo.Bounds() {
				t.Errorf("preprocessed bounds: got %v, want %v", pre.Bounds(), photo.Bounds())
			}

			want := image.Rect(card.Min.X, card.Min.Y, card.Max.X-1, card.Max.Y-1)
			found := false
			for _, c := range contours {
				if bbox(c) == want {
					found = true
				}
			}
			if !found {
				t.Errorf("no contour with bbox %v among %d contours", want, len(contours))
			}
		})
	}
}

func TestSegmentAdaptive(t *testing.T) {
	photo := createPhoto(400, 300, image.Rect(100, 60, 268, 294-60))
	s, err := New(Adaptive, DefaultOptions(), (*logging.TestLogger)(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, contours := s.Segment(photo); len(contours) == 0 {
		t.Error("adaptive thresholding found no contours")
	}
}

func TestAdaptiveBlock(t *testing.T) {
	if got := adaptiveBlock(1000, 750); got != 101 {
		t.Errorf("adaptiveBlock(1000, 750): got %d, want 101", got)
	}
	if got := adaptiveBlock(1000, 20); got != 41 {
		t.Errorf("adaptiveBlock(1000, 20): got %d, want 41", got)
	}
}
