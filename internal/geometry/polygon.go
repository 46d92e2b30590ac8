package geometry

import (
	"image"
	"math"
	"sort"
)

// Point is a 2D position in continuous image coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Add returns p + q.
func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

// Mul returns p scaled by k.
func (p Point) Mul(k float64) Point { return Point{p.X * k, p.Y * k} }

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 { return math.Hypot(p.X-q.X, p.Y-q.Y) }

// cross returns the z component of (a-o) × (b-o).
func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// Polygon is a closed ring of vertices without a repeated closing vertex.
type Polygon []Point

// Contour is a raw boundary traced from a binary image, in pixel coordinates.
type Contour []image.Point

// Points converts a pixel contour to continuous points.
func (c Contour) Points() []Point {
	pts := make([]Point, len(c))
	for i, p := range c {
		pts[i] = Point{float64(p.X), float64(p.Y)}
	}
	return pts
}

// ContourArea returns the absolute area enclosed by a pixel contour, treating
// it as a closed polygon through the pixel centres.
func ContourArea(c Contour) float64 {
	if len(c) < 3 {
		return 0
	}
	var sum int
	for i := range c {
		j := (i + 1) % len(c)
		sum += c[i].X*c[j].Y - c[j].X*c[i].Y
	}
	return math.Abs(float64(sum)) / 2
}

// Centroid returns the vertex average of the polygon. This is the reference
// point for angle ordering and shrinking, not the area centroid.
func (poly Polygon) Centroid() Point {
	var c Point
	if len(poly) == 0 {
		return c
	}
	for _, p := range poly {
		c.X += p.X
		c.Y += p.Y
	}
	n := float64(len(poly))
	return Point{c.X / n, c.Y / n}
}

// SignedArea returns the shoelace area; positive for ascending-angle order.
func (poly Polygon) SignedArea() float64 {
	if len(poly) < 3 {
		return 0
	}
	var sum float64
	for i := range poly {
		j := (i + 1) % len(poly)
		sum += poly[i].X*poly[j].Y - poly[j].X*poly[i].Y
	}
	return sum / 2
}

// Area returns the absolute enclosed area.
func (poly Polygon) Area() float64 {
	return math.Abs(poly.SignedArea())
}

// Perimeter returns the length of the closed ring.
func (poly Polygon) Perimeter() float64 {
	var total float64
	for _, d := range poly.SideLengths() {
		total += d
	}
	return total
}

// SideLengths returns the length of edge i, from vertex i to vertex i+1.
func (poly Polygon) SideLengths() []float64 {
	d := make([]float64, len(poly))
	for i := range poly {
		d[i] = poly[i].Dist(poly[(i+1)%len(poly)])
	}
	return d
}

// MinSide returns the length of the shortest edge.
func (poly Polygon) MinSide() float64 {
	if len(poly) < 2 {
		return 0
	}
	sides := poly.SideLengths()
	m := sides[0]
	for _, d := range sides[1:] {
		if d < m {
			m = d
		}
	}
	return m
}

// Scale moves every vertex toward (factor < 1) or away from (factor > 1) the
// given point.
func (poly Polygon) Scale(about Point, factor float64) Polygon {
	out := make(Polygon, len(poly))
	for i, p := range poly {
		out[i] = about.Add(p.Sub(about).Mul(factor))
	}
	return out
}

// OrderCounterClockwise sorts points by ascending atan2 angle around their
// vertex average. The sort is stable so coincident angles keep input order.
func OrderCounterClockwise(pts []Point) Polygon {
	out := make(Polygon, len(pts))
	copy(out, pts)
	c := out.Centroid()
	sort.SliceStable(out, func(i, j int) bool {
		return math.Atan2(out[i].Y-c.Y, out[i].X-c.X) < math.Atan2(out[j].Y-c.Y, out[j].X-c.X)
	})
	return out
}

// IsConvex reports whether the polygon is strictly convex in either winding.
func (poly Polygon) IsConvex() bool {
	n := len(poly)
	if n < 3 {
		return false
	}
	sign := 0
	for i := 0; i < n; i++ {
		c := cross(poly[i], poly[(i+1)%n], poly[(i+2)%n])
		switch {
		case c > 0:
			if sign < 0 {
				return false
			}
			sign = 1
		case c < 0:
			if sign > 0 {
				return false
			}
			sign = -1
		}
	}
	return sign != 0
}

// ContainsPoint reports whether p lies inside or on a convex polygon.
func (poly Polygon) ContainsPoint(p Point) bool {
	n := len(poly)
	if n < 3 {
		return false
	}
	orient := 1.0
	if poly.SignedArea() < 0 {
		orient = -1
	}
	for i := 0; i < n; i++ {
		if orient*cross(poly[i], poly[(i+1)%n], p) < -containsEpsilon {
			return false
		}
	}
	return true
}

const containsEpsilon = 1e-9

// ContainsPolygon reports whether the convex polygon poly fully contains
// inner. For convex containers it is sufficient to test inner's vertices.
func (poly Polygon) ContainsPolygon(inner Polygon) bool {
	if !poly.IsConvex() {
		return false
	}
	for _, p := range inner {
		if !poly.ContainsPoint(p) {
			return false
		}
	}
	return true
}
