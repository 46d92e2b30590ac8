// Package quad fits a sharp-cornered bounding quadrilateral to the rounded
// convex hull of a photographed card and decides whether the result is
// plausibly a card.
package quad

import (
	"errors"
	"sort"

	"github.com/ausocean/utils/logging"

	"github.com/ironsheep/card-scanner/internal/geometry"
)

// ErrDegenerateQuad is returned when no containing quadrilateral can be
// generated from a hull. Callers skip the contour.
var ErrDegenerateQuad = errors.New("no bounding quadrilateral")

// BoundingQuad is the minimum-area enclosing quadrilateral of a hull with its
// shape metrics.
type BoundingQuad struct {
	Vertices   geometry.Polygon `json:"vertices"`
	Area       float64          `json:"area"`
	CornerDiff float64          `json:"corner_diff"`
	FormFactor float64          `json:"form_factor"`
}

// Candidate is the outcome of characterising one contour.
type Candidate struct {
	Hull       geometry.Polygon `json:"-"`
	Quad       BoundingQuad     `json:"quad"`
	CropFactor float64          `json:"crop_factor"`
	Valid      bool             `json:"valid"`

	// Continue is false once the hull is below the card size range; smaller
	// contours need not be examined.
	Continue bool `json:"-"`
}

// Fitter characterises contours with a fixed parameter set. It has no
// mutable state and may be shared between goroutines.
type Fitter struct {
	params Params
	log    logging.Logger
}

// NewFitter returns a Fitter using p.
func NewFitter(p Params, log logging.Logger) *Fitter {
	return &Fitter{params: p, log: log}
}

// Params returns the fitter's parameters.
func (f *Fitter) Params() Params { return f.params }

// Fit computes the hull of contour, bounds it with a quadrilateral and runs
// the candidacy test. maxSegmentArea is the area of the largest contour in
// the image and imageArea the pixel area of the image the contour came from.
//
// An ErrDegenerateQuad result still has Continue set, so the caller moves on
// to the next contour.
func (f *Fitter) Fit(contour geometry.Contour, maxSegmentArea, imageArea float64) (Candidate, error) {
	p := f.params
	hull := geometry.ConvexHull(contour.Points())
	hullArea := hull.Area()

	if hullArea < p.MinSegmentFraction*maxSegmentArea || hullArea < p.MinImageFraction*imageArea {
		return Candidate{Hull: hull, CropFactor: 1}, nil
	}

	bq, err := Bound(hull, p)
	if err != nil {
		f.log.Debug("skipping contour", "points", len(contour), "hullVertices", len(hull), "error", err.Error())
		return Candidate{Hull: hull, CropFactor: 1, Continue: true}, err
	}

	c := Candidate{
		Hull:       hull,
		Quad:       bq,
		CropFactor: p.CropFactor(bq.CornerDiff),
		Valid:      p.Accepts(bq.Area, bq.CornerDiff, bq.FormFactor, maxSegmentArea, imageArea),
		Continue:   true,
	}
	f.log.Debug("characterised contour",
		"area", bq.Area, "cornerDiff", bq.CornerDiff, "formFactor", bq.FormFactor, "valid", c.Valid)
	return c, nil
}

// Bound returns the minimum-area quadrilateral containing hull together with
// its corner difference and form factor.
func Bound(hull geometry.Polygon, p Params) (BoundingQuad, error) {
	simple := Simplify(hull, p.LengthCutoff, p.MaxSearchVertices)
	quads := Candidates(simple, p.ShrinkFactor)
	if len(quads) == 0 {
		return BoundingQuad{}, ErrDegenerateQuad
	}

	best, bestArea := quads[0], quads[0].Area()
	for _, q := range quads[1:] {
		if a := q.Area(); a < bestArea {
			best, bestArea = q, a
		}
	}
	return BoundingQuad{
		Vertices:   best,
		Area:       bestArea,
		CornerDiff: CornerDiff(hull, best, p.RegionSize),
		FormFactor: FormFactor(best),
	}, nil
}

// Simplify collapses short edges of a convex polygon. The shortest edge is
// removed while it is shorter than cutoff times the perimeter, by extending
// its two neighbouring edges to their intersection. Once no edge qualifies,
// edges keep collapsing regardless of length until at most maxVertices
// remain. Simplification never goes below four vertices.
func Simplify(poly geometry.Polygon, cutoff float64, maxVertices int) geometry.Polygon {
	out := make(geometry.Polygon, len(poly))
	copy(out, poly)

	for len(out) > 4 {
		sides := out.SideLengths()
		var total float64
		for _, d := range sides {
			total += d
		}
		forced := maxVertices > 0 && len(out) > maxVertices

		order := make([]int, len(sides))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool { return sides[order[a]] < sides[order[b]] })

		collapsed := false
		for _, k := range order {
			if !forced && sides[k] >= cutoff*total {
				break
			}
			if next, ok := collapseEdge(out, k); ok {
				out = next
				collapsed = true
				break
			}
		}
		if !collapsed {
			break
		}
	}
	return out
}

// collapseEdge replaces edge k (vertex k to k+1) by the intersection of the
// lines through edges k-1 and k+1.
func collapseEdge(poly geometry.Polygon, k int) (geometry.Polygon, bool) {
	n := len(poly)
	at := func(i int) geometry.Point { return poly[((i%n)+n)%n] }

	pt, ok := geometry.LineIntersection(at(k-1), at(k), at(k+1), at(k+2))
	if !ok {
		return nil, false
	}
	drop := (k + 1) % n
	out := make(geometry.Polygon, 0, n-1)
	for i, v := range poly {
		switch i {
		case k:
			out = append(out, pt)
		case drop:
		default:
			out = append(out, v)
		}
	}
	return out, true
}

// Candidates returns every quadrilateral formed by extending four edges
// i<j<k<l of poly that contains poly shrunk by shrink toward its centroid.
func Candidates(poly geometry.Polygon, shrink float64) []geometry.Polygon {
	ordered := geometry.OrderCounterClockwise(poly)
	n := len(ordered)
	if n < 4 {
		return nil
	}
	shrunk := ordered.Scale(ordered.Centroid(), shrink)

	edge := func(i int) (geometry.Point, geometry.Point) {
		return ordered[i], ordered[(i+1)%n]
	}
	corner := func(a, b int) (geometry.Point, bool) {
		p0, p1 := edge(a)
		p2, p3 := edge(b)
		return geometry.LineIntersection(p0, p1, p2, p3)
	}

	var quads []geometry.Polygon
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				for l := k + 1; l < n; l++ {
					pts := make([]geometry.Point, 0, 4)
					for _, e := range [4][2]int{{i, j}, {j, k}, {k, l}, {l, i}} {
						pt, ok := corner(e[0], e[1])
						if !ok {
							break
						}
						pts = append(pts, pt)
					}
					if len(pts) != 4 {
						continue
					}
					q := geometry.OrderCounterClockwise(pts)
					if q.ContainsPolygon(shrunk) {
						quads = append(quads, q)
					}
				}
			}
		}
	}
	return quads
}
