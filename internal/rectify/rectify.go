// Package rectify maps a card quadrilateral onto an upright rectangle with a
// four-point perspective transform.
package rectify

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/mat"

	"github.com/ironsheep/card-scanner/internal/geometry"
)

// ErrEmptyTarget is returned when the quad collapses to less than one pixel
// in either direction.
var ErrEmptyTarget = errors.New("rectified size is empty")

// Homography is a row-major 3×3 projective transform with h[8] == 1.
type Homography [9]float64

// Apply maps (x, y) through h.
func (h Homography) Apply(x, y float64) (float64, float64) {
	w := h[6]*x + h[7]*y + h[8]
	if w == 0 {
		return math.Inf(1), math.Inf(1)
	}
	return (h[0]*x + h[1]*y + h[2]) / w, (h[3]*x + h[4]*y + h[5]) / w
}

// NewHomography solves for the transform taking from[i] to to[i].
func NewHomography(from, to [4]geometry.Point) (Homography, error) {
	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)
	for i := 0; i < 4; i++ {
		X, Y := from[i].X, from[i].Y
		x, y := to[i].X, to[i].Y
		r := 2 * i
		a.SetRow(r, []float64{X, Y, 1, 0, 0, 0, -X * x, -Y * x})
		b.SetVec(r, x)
		a.SetRow(r+1, []float64{0, 0, 0, X, Y, 1, -X * y, -Y * y})
		b.SetVec(r+1, y)
	}

	qr := new(mat.QR)
	qr.Factorize(a)
	h := mat.NewVecDense(8, nil)
	if err := qr.SolveVecTo(h, false, b); err != nil {
		return Homography{}, fmt.Errorf("could not solve homography: %w", err)
	}
	var H Homography
	for i := 0; i < 8; i++ {
		H[i] = h.AtVec(i)
	}
	H[8] = 1
	return H, nil
}

// Size returns the rectified width and height for quad: the longer of each
// pair of opposite sides, rounded down. quad must be in ascending-angle order.
func Size(quad geometry.Polygon) (int, int) {
	top := quad[0].Dist(quad[1])
	bottom := quad[2].Dist(quad[3])
	left := quad[3].Dist(quad[0])
	right := quad[1].Dist(quad[2])
	w := int(math.Max(math.Floor(top), math.Floor(bottom)))
	h := int(math.Max(math.Floor(left), math.Floor(right)))
	return w, h
}

// Warp resamples the region of img bounded by quad into a W×H image. The
// quad's first vertex after angle ordering lands on (0,0) and the rest on
// (W,0), (W,H) and (0,H), so an axis-aligned rectangle yields an exact crop.
// Pixels mapping outside img are black.
func Warp(img image.Image, quad geometry.Polygon) (*image.NRGBA, error) {
	if len(quad) != 4 {
		return nil, fmt.Errorf("quad has %d vertices, want 4", len(quad))
	}
	src := geometry.OrderCounterClockwise(quad)
	w, h := Size(src)
	if w < 1 || h < 1 {
		return nil, ErrEmptyTarget
	}

	dst := [4]geometry.Point{{X: 0, Y: 0}, {X: float64(w), Y: 0}, {X: float64(w), Y: float64(h)}, {X: 0, Y: float64(h)}}
	H, err := NewHomography(dst, [4]geometry.Point{src[0], src[1], src[2], src[3]})
	if err != nil {
		return nil, err
	}

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx, sy := H.Apply(float64(x), float64(y))
			out.SetNRGBA(x, y, bilinear(img, sx, sy))
		}
	}
	return out, nil
}

// Inset crops the centre of img to cropFactor of its width and height. A
// factor of 1 or more returns a copy. Scaled sizes within insetEpsilon of a
// whole pixel round to that pixel rather than down.
func Inset(img image.Image, cropFactor float64) *image.NRGBA {
	if cropFactor >= 1 {
		return imaging.Clone(img)
	}
	b := img.Bounds()
	w, h := insetSize(b.Dx(), cropFactor), insetSize(b.Dy(), cropFactor)
	if w == b.Dx() && h == b.Dy() {
		return imaging.Clone(img)
	}
	return imaging.CropCenter(img, w, h)
}

const insetEpsilon = 1e-6

func insetSize(n int, cropFactor float64) int {
	return int(math.Floor(float64(n)*cropFactor + insetEpsilon))
}

// Rectify warps quad out of img and insets the result by cropFactor. It
// returns ErrEmptyTarget when the inset leaves no pixels.
func Rectify(img image.Image, quad geometry.Polygon, cropFactor float64) (*image.NRGBA, error) {
	warped, err := Warp(img, quad)
	if err != nil {
		return nil, err
	}
	out := Inset(warped, cropFactor)
	if out.Bounds().Empty() {
		return nil, ErrEmptyTarget
	}
	return out, nil
}

// snap absorbs floating point error from the homography solve so that
// integer source positions sample exactly.
const snap = 1e-6

func bilinear(img image.Image, x, y float64) color.NRGBA {
	b := img.Bounds()
	if rx := math.Round(x); math.Abs(x-rx) < snap {
		x = rx
	}
	if ry := math.Round(y); math.Abs(y-ry) < snap {
		y = ry
	}
	if x < float64(b.Min.X) || y < float64(b.Min.Y) || x > float64(b.Max.X-1) || y > float64(b.Max.Y-1) {
		return color.NRGBA{A: 255}
	}

	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	x1, y1 := x0+1, y0+1
	if x1 >= b.Max.X {
		x1 = b.Max.X - 1
	}
	if y1 >= b.Max.Y {
		y1 = b.Max.Y - 1
	}
	fx, fy := x-float64(x0), y-float64(y0)

	c00 := nrgba(img.At(x0, y0))
	c10 := nrgba(img.At(x1, y0))
	c01 := nrgba(img.At(x0, y1))
	c11 := nrgba(img.At(x1, y1))

	var px [4]uint8
	for i := range px {
		top := c00[i] + (c10[i]-c00[i])*fx
		bottom := c01[i] + (c11[i]-c01[i])*fx
		px[i] = uint8(math.Round(top + (bottom-top)*fy))
	}
	return color.NRGBA{R: px[0], G: px[1], B: px[2], A: px[3]}
}

func nrgba(c color.Color) [4]float64 {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return [4]float64{float64(n.R), float64(n.G), float64(n.B), float64(n.A)}
}
