package geometry

import (
	"math"
	"sort"
)

// ConvexHull returns the convex hull of pts using Andrew's monotone chain.
// Collinear points are dropped and the result is in ascending-angle order.
// Fewer than three distinct points yield those points unchanged.
func ConvexHull(pts []Point) Polygon {
	sorted := make([]Point, len(pts))
	copy(sorted, pts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})
	sorted = dedupe(sorted)
	if len(sorted) < 3 {
		return Polygon(sorted)
	}

	hull := make(Polygon, 0, 2*len(sorted))
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

func dedupe(sorted []Point) []Point {
	out := sorted[:0]
	for i, p := range sorted {
		if i > 0 && p == sorted[i-1] {
			continue
		}
		out = append(out, p)
	}
	return out
}

// LineIntersection returns the intersection of the infinite line through p0
// and p1 with the infinite line through p2 and p3. ok is false when the lines
// are parallel (exactly equal slopes) or the result is not finite.
func LineIntersection(p0, p1, p2, p3 Point) (pt Point, ok bool) {
	slope0 := (p0.X - p1.X) * (p2.Y - p3.Y)
	slope2 := (p0.Y - p1.Y) * (p2.X - p3.X)
	if slope0 == slope2 {
		return Point{}, false
	}
	xy01 := p0.X*p1.Y - p0.Y*p1.X
	xy23 := p2.X*p3.Y - p2.Y*p3.X
	denom := slope0 - slope2

	pt = Point{
		X: (xy01*(p2.X-p3.X) - (p0.X-p1.X)*xy23) / denom,
		Y: (xy01*(p2.Y-p3.Y) - (p0.Y-p1.Y)*xy23) / denom,
	}
	if math.IsNaN(pt.X) || math.IsNaN(pt.Y) || math.IsInf(pt.X, 0) || math.IsInf(pt.Y, 0) {
		return Point{}, false
	}
	return pt, true
}
