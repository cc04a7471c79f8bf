// Package filter provides the predicate and sort model used to query
// feature stores.
//
// Filters are plain values that can be inspected by a store (to answer
// parts of them from an index) and evaluated in memory against any
// Feature.
//
// Example:
//
//	f := filter.And{
//	    filter.Compare{Property: "TYPE", Op: filter.Eq, Value: "harbour"},
//	    filter.BBox{Bound: orb.Bound{Min: orb.Point{4, 51}, Max: orb.Point{5, 52}}},
//	}
//	if f.Evaluate(feature) {
//	    // ...
//	}
package filter

import (
	"math"

	"github.com/paulmach/orb"
)

// Feature is the view of a feature that filters evaluate against.
type Feature interface {
	ID() string
	Property(name string) (any, bool)
	Geometry() orb.Geometry
}

// Filter is a predicate over features.
type Filter interface {
	Evaluate(f Feature) bool
}

// Op is a binary comparison operator.
type Op int

const (
	Eq Op = iota
	Ne
	Lt
	Le
	Gt
	Ge
)

func (o Op) String() string {
	switch o {
	case Eq:
		return "="
	case Ne:
		return "<>"
	case Lt:
		return "<"
	case Le:
		return "<="
	case Gt:
		return ">"
	case Ge:
		return ">="
	}
	return "?"
}

// holds reports whether a comparison result c satisfies the operator.
func (o Op) holds(c int) bool {
	switch o {
	case Eq:
		return c == 0
	case Ne:
		return c != 0
	case Lt:
		return c < 0
	case Le:
		return c <= 0
	case Gt:
		return c > 0
	case Ge:
		return c >= 0
	}
	return false
}

// Compare tests a property against a literal. An absent property or a
// value that cannot be compared with the literal never matches, for any
// operator.
type Compare struct {
	Property string
	Op       Op
	Value    any
}

func (c Compare) Evaluate(f Feature) bool {
	v, ok := f.Property(c.Property)
	if !ok {
		return false
	}
	r, ok := CompareValues(v, c.Value)
	return ok && c.Op.holds(r)
}

// Between matches when Lower <= property <= Upper.
type Between struct {
	Property     string
	Lower, Upper any
}

func (b Between) Evaluate(f Feature) bool {
	v, ok := f.Property(b.Property)
	if !ok {
		return false
	}
	lo, ok1 := CompareValues(v, b.Lower)
	hi, ok2 := CompareValues(v, b.Upper)
	return ok1 && ok2 && lo >= 0 && hi <= 0
}

// IsNull matches features where the property is absent.
type IsNull struct {
	Property string
}

func (n IsNull) Evaluate(f Feature) bool {
	_, ok := f.Property(n.Property)
	return !ok
}

// And matches when every child matches. An empty And matches everything.
type And []Filter

func (a And) Evaluate(f Feature) bool {
	for _, c := range a {
		if !c.Evaluate(f) {
			return false
		}
	}
	return true
}

// Or matches when any child matches. An empty Or matches nothing.
type Or []Filter

func (o Or) Evaluate(f Feature) bool {
	for _, c := range o {
		if c.Evaluate(f) {
			return true
		}
	}
	return false
}

// Not negates its child.
type Not struct {
	Filter Filter
}

func (n Not) Evaluate(f Feature) bool {
	return !n.Filter.Evaluate(f)
}

// IDs matches features whose id is in the list.
type IDs []string

func (ids IDs) Evaluate(f Feature) bool {
	id := f.ID()
	for _, s := range ids {
		if s == id {
			return true
		}
	}
	return false
}

// BBox matches features whose geometry bounding box intersects Bound.
// Boundaries are closed. Features without geometry, or whose bounding box
// has a NaN ordinate, never match.
type BBox struct {
	Bound orb.Bound
}

func (b BBox) Evaluate(f Feature) bool {
	g := f.Geometry()
	if g == nil {
		return false
	}
	gb := g.Bound()
	if hasNaN(gb) || hasNaN(b.Bound) {
		return false
	}
	return gb.Intersects(b.Bound)
}

func hasNaN(b orb.Bound) bool {
	return math.IsNaN(b.Min[0]) || math.IsNaN(b.Min[1]) || math.IsNaN(b.Max[0]) || math.IsNaN(b.Max[1])
}

// SplitBBox separates bounding-box constraints from the rest of f.
//
// A top-level BBox, or BBox children of a top-level And, are removed and
// intersected into a single bound. ok is false when f holds no such
// constraint, in which case rest is f unchanged. rest is nil when nothing
// remains. Two disjoint boxes yield empty = true: nothing can match.
func SplitBBox(f Filter) (b orb.Bound, rest Filter, ok, empty bool) {
	switch t := f.(type) {
	case BBox:
		return t.Bound, nil, true, false
	case And:
		var others And
		for _, c := range t {
			bb, isBox := c.(BBox)
			if !isBox {
				others = append(others, c)
				continue
			}
			if !ok {
				b, ok = bb.Bound, true
				continue
			}
			if !b.Intersects(bb.Bound) {
				empty = true
			}
			b = intersection(b, bb.Bound)
		}
		if !ok {
			return orb.Bound{}, f, false, false
		}
		switch len(others) {
		case 0:
			return b, nil, true, empty
		case 1:
			return b, others[0], true, empty
		}
		return b, others, true, empty
	}
	return orb.Bound{}, f, false, false
}

func intersection(a, b orb.Bound) orb.Bound {
	return orb.Bound{
		Min: orb.Point{max(a.Min[0], b.Min[0]), max(a.Min[1], b.Min[1])},
		Max: orb.Point{min(a.Max[0], b.Max[0]), min(a.Max[1], b.Max[1])},
	}
}

// CollectIDs returns the id list of a top-level IDs filter, or of IDs
// children of a top-level And (intersected), and what remains of f.
func CollectIDs(f Filter) (ids []string, rest Filter, ok bool) {
	switch t := f.(type) {
	case IDs:
		return t, nil, true
	case And:
		var others And
		var set map[string]bool
		for _, c := range t {
			list, isIDs := c.(IDs)
			if !isIDs {
				others = append(others, c)
				continue
			}
			next := make(map[string]bool, len(list))
			for _, id := range list {
				if set == nil || set[id] {
					next[id] = true
				}
			}
			set = next
			ok = true
		}
		if !ok {
			return nil, f, false
		}
		for _, c := range t {
			if list, isIDs := c.(IDs); isIDs {
				for _, id := range list {
					if set[id] {
						ids = append(ids, id)
						delete(set, id)
					}
				}
			}
		}
		switch len(others) {
		case 0:
			return ids, nil, true
		case 1:
			return ids, others[0], true
		}
		return ids, others, true
	}
	return nil, f, false
}
