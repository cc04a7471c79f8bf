package shp

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Intersects reports whether g shares at least one point with the closed
// rectangle b. Touching boundaries count as intersecting.
func Intersects(g orb.Geometry, b orb.Bound) bool {
	switch g := g.(type) {
	case nil:
		return false
	case orb.Point:
		return b.Contains(g)
	case orb.MultiPoint:
		for _, p := range g {
			if b.Contains(p) {
				return true
			}
		}
		return false
	case orb.LineString:
		return pathIntersects(g, b)
	case orb.MultiLineString:
		for _, ls := range g {
			if pathIntersects(ls, b) {
				return true
			}
		}
		return false
	case orb.Ring:
		return polygonIntersects(orb.Polygon{g}, b)
	case orb.Polygon:
		return polygonIntersects(g, b)
	case orb.MultiPolygon:
		for _, p := range g {
			if polygonIntersects(p, b) {
				return true
			}
		}
		return false
	case orb.Collection:
		for _, c := range g {
			if Intersects(c, b) {
				return true
			}
		}
		return false
	case orb.Bound:
		return g.Intersects(b)
	default:
		return g.Bound().Intersects(b)
	}
}

func pathIntersects(pts []orb.Point, b orb.Bound) bool {
	if len(pts) == 1 {
		return b.Contains(pts[0])
	}
	for i := 0; i+1 < len(pts); i++ {
		if segmentIntersectsBound(pts[i], pts[i+1], b) {
			return true
		}
	}
	return false
}

func polygonIntersects(p orb.Polygon, b orb.Bound) bool {
	if len(p) == 0 || !p.Bound().Intersects(b) {
		return false
	}
	for _, r := range p {
		if pathIntersects(r, b) {
			return true
		}
	}
	// No edge reaches the rectangle, so it is either wholly inside the
	// polygon or wholly outside it.
	return planar.PolygonContains(p, b.Min)
}

func segmentIntersectsBound(a, c orb.Point, b orb.Bound) bool {
	if b.Contains(a) || b.Contains(c) {
		return true
	}
	corners := [4]orb.Point{
		b.Min,
		{b.Max[0], b.Min[1]},
		b.Max,
		{b.Min[0], b.Max[1]},
	}
	for i := range corners {
		if segmentsIntersect(a, c, corners[i], corners[(i+1)%4]) {
			return true
		}
	}
	return false
}

func orientation(p, q, r orb.Point) float64 {
	return (q[0]-p[0])*(r[1]-p[1]) - (q[1]-p[1])*(r[0]-p[0])
}

func onSegment(p, q, r orb.Point) bool {
	return q[0] >= min(p[0], r[0]) && q[0] <= max(p[0], r[0]) &&
		q[1] >= min(p[1], r[1]) && q[1] <= max(p[1], r[1])
}

// segmentsIntersect reports whether closed segments p1p2 and p3p4 meet.
func segmentsIntersect(p1, p2, p3, p4 orb.Point) bool {
	d1 := orientation(p3, p4, p1)
	d2 := orientation(p3, p4, p2)
	d3 := orientation(p1, p2, p3)
	d4 := orientation(p1, p2, p4)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	switch {
	case d1 == 0 && onSegment(p3, p1, p4):
		return true
	case d2 == 0 && onSegment(p3, p2, p4):
		return true
	case d3 == 0 && onSegment(p1, p3, p2):
		return true
	case d4 == 0 && onSegment(p1, p4, p2):
		return true
	}
	return false
}
