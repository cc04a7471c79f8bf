package shp

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"go.uber.org/zap"
)

// prepareRing drops rings with fewer than 4 points and closes open rings
// by repeating the first point.
func prepareRing(pts []orb.Point, diag diagnostics) (orb.Ring, bool) {
	if len(pts) < 4 {
		diag.debug("dropping degenerate ring", zap.Int("points", len(pts)))
		return nil, false
	}
	ring := make(orb.Ring, len(pts), len(pts)+1)
	copy(ring, pts)
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return ring, true
}

// ringWithin reports whether every vertex of inner lies inside or on outer.
func ringWithin(inner, outer orb.Ring) bool {
	ob := outer.Bound()
	ib := inner.Bound()
	if ib.Min[0] < ob.Min[0] || ib.Min[1] < ob.Min[1] ||
		ib.Max[0] > ob.Max[0] || ib.Max[1] > ob.Max[1] {
		return false
	}
	for _, p := range inner {
		if !planar.RingContains(outer, p) {
			return false
		}
	}
	return true
}

// ringGroup collects one polygon: an outer ring and its holes.
//
// The outer ring is the first ring of the group. A later ring inside it is a
// hole. A later ring that contains the outer ring, arriving before any hole,
// swaps roles with it once. Any other ring cannot join the group.
type ringGroup struct {
	rings   orb.Polygon
	swapped bool
}

// add tries to place r in the group and reports whether it fit.
func (g *ringGroup) add(r orb.Ring, diag diagnostics) bool {
	if len(g.rings) == 0 {
		g.rings = orb.Polygon{r}
		return true
	}
	if ringWithin(r, g.rings[0]) {
		g.rings = append(g.rings, r)
		return true
	}
	if !g.swapped && len(g.rings) == 1 && ringWithin(g.rings[0], r) {
		diag.debug("reordering rings, later ring contains the first")
		g.rings = orb.Polygon{r, g.rings[0]}
		g.swapped = true
		return true
	}
	return false
}

// assemblePolygons groups the parts of a Polygon record into polygons.
//
// The shapefile format does not say which rings belong together; rings are
// processed in file order, the first ring of each group taken as its outer
// boundary. Only one level of nesting is resolved.
func assemblePolygons(parts [][]orb.Point, diag diagnostics) orb.MultiPolygon {
	out := orb.MultiPolygon{}
	g := ringGroup{}
	for _, part := range parts {
		ring, ok := prepareRing(part, diag)
		if !ok {
			continue
		}
		if g.add(ring, diag) {
			continue
		}
		out = append(out, g.rings)
		g = ringGroup{rings: orb.Polygon{ring}}
	}
	if len(g.rings) > 0 {
		out = append(out, g.rings)
	}
	return out
}
