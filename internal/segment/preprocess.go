package segment

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

// Preprocess shrinks img so its longest side is at most o.MaxSize and
// equalises its CIE L*a*b* lightness with contrast-limited adaptive
// histogram equalisation. Chroma is left untouched.
func Preprocess(img image.Image, o Options) *image.NRGBA {
	b := img.Bounds()
	var out *image.NRGBA
	if o.MaxSize > 0 && max(b.Dx(), b.Dy()) > o.MaxSize {
		out = imaging.Fit(img, o.MaxSize, o.MaxSize, imaging.Lanczos)
	} else {
		out = imaging.Clone(img)
	}
	if o.ClipLimit > 0 {
		equalizeLightness(out, o.ClipLimit, o.TileGrid)
	}
	return out
}

// equalizeLightness applies CLAHE to the L channel of img in place. The
// image is split into grid×grid tiles; each tile's lightness histogram is
// clipped at clipLimit times the mean bin height, the excess is spread
// evenly, and pixel values are interpolated bilinearly between the mappings
// of the four nearest tile centres.
func equalizeLightness(img *image.NRGBA, clipLimit float64, grid int) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w == 0 || h == 0 {
		return
	}
	if grid < 1 {
		grid = 1
	}

	light := make([]uint8, w*h)
	chroma := make([][2]float64, w*h)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			c := colorful.Color{
				R: float64(row[4*x]) / 255,
				G: float64(row[4*x+1]) / 255,
				B: float64(row[4*x+2]) / 255,
			}
			l, a, bb := c.Lab()
			light[y*w+x] = uint8(math.Round(clamp01(l) * 255))
			chroma[y*w+x] = [2]float64{a, bb}
		}
	}

	tileW := (w + grid - 1) / grid
	tileH := (h + grid - 1) / grid
	tilesX := (w + tileW - 1) / tileW
	tilesY := (h + tileH - 1) / tileH

	luts := make([][256]uint8, tilesX*tilesY)
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			x0, y0 := tx*tileW, ty*tileH
			x1, y1 := min(x0+tileW, w), min(y0+tileH, h)
			var hist [256]int
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					hist[light[y*w+x]]++
				}
			}
			luts[ty*tilesX+tx] = clippedMapping(hist, (x1-x0)*(y1-y0), clipLimit)
		}
	}

	// Tile centre coordinates for interpolation.
	pos := func(v, tile, n int) (int, int, float64) {
		f := (float64(v)+0.5)/float64(tile) - 0.5
		i0 := int(math.Floor(f))
		wgt := f - float64(i0)
		i1 := i0 + 1
		if i0 < 0 {
			i0, wgt = 0, 0
		}
		if i1 > n-1 {
			i1 = n - 1
		}
		if i0 > n-1 {
			i0 = n - 1
		}
		return i0, i1, wgt
	}

	for y := 0; y < h; y++ {
		ty0, ty1, wy := pos(y, tileH, tilesY)
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			tx0, tx1, wx := pos(x, tileW, tilesX)
			v := light[y*w+x]
			top := lerp(float64(luts[ty0*tilesX+tx0][v]), float64(luts[ty0*tilesX+tx1][v]), wx)
			bottom := lerp(float64(luts[ty1*tilesX+tx0][v]), float64(luts[ty1*tilesX+tx1][v]), wx)
			l := lerp(top, bottom, wy) / 255

			ch := chroma[y*w+x]
			r, g, bl := colorful.Lab(l, ch[0], ch[1]).Clamped().RGB255()
			row[4*x], row[4*x+1], row[4*x+2] = r, g, bl
		}
	}
}

// clippedMapping builds the equalisation lookup table for one tile.
func clippedMapping(hist [256]int, pixels int, clipLimit float64) [256]uint8 {
	limit := int(clipLimit * float64(pixels) / 256)
	if limit < 1 {
		limit = 1
	}
	excess := 0
	for i, n := range hist {
		if n > limit {
			excess += n - limit
			hist[i] = limit
		}
	}
	share, rest := excess/256, excess%256
	for i := range hist {
		hist[i] += share
		if i < rest {
			hist[i]++
		}
	}

	var lut [256]uint8
	cdf := 0
	for i, n := range hist {
		cdf += n
		lut[i] = uint8(math.Round(float64(cdf) * 255 / float64(pixels)))
	}
	return lut
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
