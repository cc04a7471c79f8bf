package shp

import (
	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

type patchPart struct {
	kind   PartType
	points []orb.Point
}

// patchState is the state of the MultiPatch reassembly machine.
type patchState int

const (
	patchIdle  patchState = iota
	patchOuter            // collecting an OUTER_RING group
	patchFirst            // collecting a FIRST_RING group
)

// patchFold is the accumulator of the reassembly. Each step returns a new
// value; nothing outlives a single record.
type patchFold struct {
	state patchState
	group ringGroup
	done  orb.MultiPolygon
}

func (f patchFold) flush() patchFold {
	if f.state != patchIdle && len(f.group.rings) > 0 {
		f.done = append(f.done, f.group.rings)
	}
	f.state = patchIdle
	f.group = ringGroup{}
	return f
}

func triangle(a, b, c orb.Point) orb.Polygon {
	return orb.Polygon{orb.Ring{a, b, c, a}}
}

func (f patchFold) step(p patchPart, diag diagnostics) patchFold {
	pts := p.points
	switch p.kind {
	case PartTriangleStrip:
		f = f.flush()
		for i := 0; i+2 < len(pts); i++ {
			f.done = append(f.done, triangle(pts[i], pts[i+1], pts[i+2]))
		}

	case PartTriangleFan:
		f = f.flush()
		for i := 1; i+1 < len(pts); i++ {
			f.done = append(f.done, triangle(pts[0], pts[i], pts[i+1]))
		}

	case PartOuterRing:
		f = f.flush()
		if ring, ok := prepareRing(pts, diag); ok {
			f.state = patchOuter
			f.group = ringGroup{rings: orb.Polygon{ring}, swapped: true}
		}

	case PartInnerRing:
		if f.state != patchOuter {
			diag.debug("dropping inner ring without outer ring")
			break
		}
		if ring, ok := prepareRing(pts, diag); ok {
			f.group.rings = append(f.group.rings, ring)
		}

	case PartFirstRing:
		f = f.flush()
		if ring, ok := prepareRing(pts, diag); ok {
			f.state = patchFirst
			f.group = ringGroup{rings: orb.Polygon{ring}}
		}

	case PartRing:
		ring, ok := prepareRing(pts, diag)
		if f.state == patchFirst {
			if !ok || f.group.add(ring, diag) {
				break
			}
			diag.debug("ring does not fit first ring group, emitting separately")
		}
		f = f.flush()
		if ok {
			f.done = append(f.done, orb.Polygon{ring})
		}

	default:
		diag.warn("skipping multipatch part of unknown type", zap.Int32("part_type", int32(p.kind)))
	}
	return f
}

// assembleMultiPatch folds MultiPatch parts into polygons.
//
// Triangle strips yield one triangle per consecutive vertex triple and
// triangle fans one triangle per edge around the first vertex. An
// OUTER_RING collects the INNER_RING parts that follow it; an INNER_RING
// with no open OUTER_RING is dropped. A FIRST_RING collects the RING parts
// that follow it, their roles decided by containment. A RING outside any
// group is a polygon of its own. Starting any part other than an inner
// ring closes the open OUTER_RING group.
func assembleMultiPatch(parts []patchPart, diag diagnostics) orb.MultiPolygon {
	f := patchFold{done: orb.MultiPolygon{}}
	for _, p := range parts {
		f = f.step(p, diag)
	}
	return f.flush().done
}
