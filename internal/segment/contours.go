package segment

import (
	"image"

	"github.com/ironsheep/card-scanner/internal/geometry"
)

// Trace finds the connected regions of a binary mask and returns the outer
// boundary of each as a contour in image coordinates.
//
// Foreground (non-zero) pixels are grouped with 8-connectivity and
// background pixels with 4-connectivity. Every foreground region is traced,
// as is every background region that does not touch the image border: the
// holes, which is where a dark card on a light table ends up. Regions with
// fewer than minRegion pixels are skipped as noise.
//
// # Algorithm
//
//  1. Labelling: raster scan, iterative flood fill from each unlabelled
//     pixel. The first pixel reached in raster order is the region's
//     top-left-most pixel, whose west neighbour is outside the region.
//  2. Tracing: Moore-neighbour tracing clockwise from that pixel, starting
//     the search at its west neighbour, until the trace would leave the
//     start pixel the same way it first did.
func Trace(mask *image.Gray, minRegion int) []geometry.Contour {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil
	}

	fg := make([]bool, w*h)
	for y := 0; y < h; y++ {
		row := mask.Pix[y*mask.Stride:]
		for x := 0; x < w; x++ {
			fg[y*w+x] = row[x] != 0
		}
	}

	labels := make([]int32, w*h)
	next := int32(0)
	var contours []geometry.Contour

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if labels[y*w+x] != 0 {
				continue
			}
			next++
			size, border := floodFill(fg, labels, x, y, w, h, next)
			if size < minRegion || (!fg[y*w+x] && border) {
				continue
			}
			c := traceBoundary(labels, image.Pt(x, y), w, h, next)
			for i := range c {
				c[i] = c[i].Add(b.Min)
			}
			contours = append(contours, c)
		}
	}
	return contours
}

var (
	neighbours8 = []image.Point{{-1, 0}, {-1, -1}, {0, -1}, {1, -1}, {1, 0}, {1, 1}, {0, 1}, {-1, 1}}
	neighbours4 = []image.Point{{-1, 0}, {0, -1}, {1, 0}, {0, 1}}
)

// floodFill labels the region containing (startX, startY) and reports its
// size and whether it touches the image border. Foreground spreads to all
// eight neighbours, background to four.
//
// Uses an explicit stack rather than recursion to avoid stack overflow on
// large regions.
func floodFill(fg []bool, labels []int32, startX, startY, width, height int, label int32) (int, bool) {
	value := fg[startY*width+startX]
	steps := neighbours4
	if value {
		steps = neighbours8
	}

	size, border := 0, false
	labels[startY*width+startX] = label
	stack := []image.Point{{X: startX, Y: startY}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		size++
		if p.X == 0 || p.Y == 0 || p.X == width-1 || p.Y == height-1 {
			border = true
		}

		for _, d := range steps {
			n := p.Add(d)
			if n.X < 0 || n.X >= width || n.Y < 0 || n.Y >= height {
				continue
			}
			i := n.Y*width + n.X
			if labels[i] != 0 || fg[i] != value {
				continue
			}
			labels[i] = label
			stack = append(stack, n)
		}
	}
	return size, border
}

// traceBoundary follows the outer boundary of the region with the given
// label, starting at its top-left-most pixel.
func traceBoundary(labels []int32, start image.Point, width, height int, label int32) geometry.Contour {
	inside := func(p image.Point) bool {
		return p.X >= 0 && p.X < width && p.Y >= 0 && p.Y < height && labels[p.Y*width+p.X] == label
	}

	// step returns the next boundary pixel clockwise from cur, searching from
	// the neighbour after back, and the backtrack direction for that pixel.
	step := func(cur image.Point, back int) (image.Point, int, bool) {
		for i := 1; i <= 8; i++ {
			d := (back + i) % 8
			n := cur.Add(neighbours8[d])
			if !inside(n) {
				continue
			}
			prev := cur.Add(neighbours8[(d+7)%8])
			return n, direction(prev.Sub(n)), true
		}
		return image.Point{}, 0, false
	}

	contour := geometry.Contour{start}
	second, back, ok := step(start, 0)
	if !ok {
		return contour
	}

	limit := 4*len(labels) + 8
	cur := second
	for len(contour) < limit {
		if cur == start {
			n, _, _ := step(cur, back)
			if n == second {
				break
			}
		}
		contour = append(contour, cur)
		cur, back, _ = step(cur, back)
	}
	return contour
}

// direction returns the index of d in neighbours8.
func direction(d image.Point) int {
	for i, n := range neighbours8 {
		if n == d {
			return i
		}
	}
	return 0
}
