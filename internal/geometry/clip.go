package geometry

// ClipHalfPlane keeps the part of poly on the side of the directed line a→b
// where keep lies. The line is infinite; a and b only fix its position.
func ClipHalfPlane(poly Polygon, a, b, keep Point) Polygon {
	side := cross(a, b, keep)
	if side == 0 {
		return nil
	}
	inside := func(p Point) bool {
		c := cross(a, b, p)
		return (side > 0 && c >= 0) || (side < 0 && c <= 0)
	}
	return clipAgainst(poly, a, b, inside)
}

// ClipConvex returns the intersection of subject with the convex polygon clip
// using Sutherland–Hodgman. subject may be any simple polygon; clip must be
// convex. The result is empty when they do not overlap.
func ClipConvex(subject, clip Polygon) Polygon {
	if len(subject) < 3 || len(clip) < 3 {
		return nil
	}
	orient := 1.0
	if clip.SignedArea() < 0 {
		orient = -1
	}
	out := subject
	for i := range clip {
		a, b := clip[i], clip[(i+1)%len(clip)]
		out = clipAgainst(out, a, b, func(p Point) bool {
			return orient*cross(a, b, p) >= 0
		})
		if len(out) == 0 {
			return nil
		}
	}
	return out
}

func clipAgainst(poly Polygon, a, b Point, inside func(Point) bool) Polygon {
	if len(poly) == 0 {
		return nil
	}
	out := make(Polygon, 0, len(poly)+2)
	prev := poly[len(poly)-1]
	prevIn := inside(prev)
	for _, cur := range poly {
		curIn := inside(cur)
		if curIn != prevIn {
			if p, ok := LineIntersection(prev, cur, a, b); ok {
				out = append(out, p)
			}
		}
		if curIn {
			out = append(out, cur)
		}
		prev, prevIn = cur, curIn
	}
	if len(out) < 3 {
		return nil
	}
	return out
}
