package quad

import "github.com/ironsheep/card-scanner/internal/geometry"

// CornerDiff measures how much of the quad's corner regions the hull fails to
// cover. Each corner region is the part of the quad beyond a line through the
// point regionSize of the way from the centre to the corner, orthogonal to
// that direction. The result is 1 - covered/total over all four corners,
// clamped to [0, 1]: 0 for a sharp hull, larger for rounder ones.
func CornerDiff(hull, q geometry.Polygon, regionSize float64) float64 {
	m := q.Centroid()
	var quadArea, hullArea float64
	for _, c := range q {
		v := c.Sub(m)
		inner := m.Add(v.Mul(regionSize))
		a := geometry.Point{X: inner.X + v.Y, Y: inner.Y - v.X}
		b := geometry.Point{X: inner.X - v.Y, Y: inner.Y + v.X}

		region := geometry.ClipHalfPlane(q, a, b, c)
		if len(region) == 0 {
			continue
		}
		quadArea += region.Area()
		hullArea += geometry.ClipConvex(hull, region).Area()
	}
	if quadArea == 0 {
		return 1
	}
	d := 1 - hullArea/quadArea
	switch {
	case d < cornerDiffEpsilon:
		return 0
	case d > 1:
		return 1
	}
	return d
}

// cornerDiffEpsilon absorbs clipping round-off on hulls that are already
// sharp.
const cornerDiffEpsilon = 1e-9

// FormFactor returns area / (perimeter × shortest side). A 63×88 card scores
// about 0.29, a square 0.25.
func FormFactor(poly geometry.Polygon) float64 {
	d := poly.Perimeter() * poly.MinSide()
	if d == 0 {
		return 0
	}
	return poly.Area() / d
}
