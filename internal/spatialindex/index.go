// Package spatialindex maintains the R-tree over shapefile record envelopes
// and its on-disk side-car copy.
package spatialindex

import (
	"math"
	"slices"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"

	"github.com/beetlebugorg/shapestore/internal/shp"
)

// Tree fan-out (min=25 children, max=50 children).
const (
	minChildren = 25
	maxChildren = 50
)

// Entry is one indexed record: its envelope and the offset of its content
// in the .shp file.
type Entry struct {
	Bound   orb.Bound
	Pointer int64
}

// node adapts an Entry to rtreego.Spatial. The rectangle is computed once
// since the tree asks for it repeatedly while loading.
type node struct {
	Entry
	rect rtreego.Rect
}

func (n *node) Bounds() rtreego.Rect { return n.rect }

// rectOf converts a closed bound into a tree rectangle. rtreego rejects
// touching rectangles and zero-length sides, so every side is widened by
// one unit in the last place; callers filter candidates with the exact
// bound afterwards.
func rectOf(b orb.Bound) (rtreego.Rect, bool) {
	if hasNaN(b) {
		return rtreego.Rect{}, false
	}
	lo := rtreego.Point{
		math.Nextafter(b.Min[0], math.Inf(-1)),
		math.Nextafter(b.Min[1], math.Inf(-1)),
	}
	hi := rtreego.Point{
		math.Nextafter(b.Max[0], math.Inf(1)),
		math.Nextafter(b.Max[1], math.Inf(1)),
	}
	r, err := rtreego.NewRectFromPoints(lo, hi)
	if err != nil {
		return rtreego.Rect{}, false
	}
	return r, true
}

func hasNaN(b orb.Bound) bool {
	return math.IsNaN(b.Min[0]) || math.IsNaN(b.Min[1]) || math.IsNaN(b.Max[0]) || math.IsNaN(b.Max[1])
}

// intersects is orb.Bound.Intersects, except that a NaN ordinate on
// either side never matches.
func intersects(a, b orb.Bound) bool {
	return !hasNaN(a) && !hasNaN(b) && a.Intersects(b)
}

// Index answers "which records may intersect this rectangle".
//
// An Index is immutable after Build and safe for concurrent queries.
type Index struct {
	tree      *rtreego.Rtree
	entries   []Entry // all entries in file order, persisted as is
	loose     []Entry // entries whose bound cannot go in the tree (NaN)
	records   int
	numbering shp.Numbering
}

// Build bulk-loads an index from the result of an envelope scan.
func Build(scan shp.ScanResult) *Index {
	entries := make([]Entry, len(scan.Entries))
	for i, e := range scan.Entries {
		entries[i] = Entry{Bound: e.Bound, Pointer: e.Pointer}
	}
	return newIndex(entries, scan.Records, scan.Numbering)
}

func newIndex(entries []Entry, records int, numbering shp.Numbering) *Index {
	idx := &Index{entries: entries, records: records, numbering: numbering}

	objs := make([]rtreego.Spatial, 0, len(entries))
	for _, e := range entries {
		r, ok := rectOf(e.Bound)
		if !ok {
			idx.loose = append(idx.loose, e)
			continue
		}
		objs = append(objs, &node{Entry: e, rect: r})
	}
	idx.tree = rtreego.NewTree(2, minChildren, maxChildren, objs...)
	return idx
}

// Query returns, in ascending file order, the pointers of all records whose
// envelope intersects b. Boundaries are closed: touching envelopes match.
func (idx *Index) Query(b orb.Bound) []int64 {
	var out []int64
	if r, ok := rectOf(b); ok {
		for _, s := range idx.tree.SearchIntersect(r) {
			n := s.(*node)
			if n.Bound.Intersects(b) {
				out = append(out, n.Pointer)
			}
		}
	}
	for _, e := range idx.loose {
		if intersects(e.Bound, b) {
			out = append(out, e.Pointer)
		}
	}
	slices.Sort(out)
	return out
}

// All returns the pointers of every indexed record in file order.
func (idx *Index) All() []int64 {
	out := make([]int64, len(idx.entries))
	for i, e := range idx.entries {
		out[i] = e.Pointer
	}
	return out
}

// Len returns the number of indexed (non-null) records.
func (idx *Index) Len() int { return len(idx.entries) }

// Records returns the number of records in the file, null shapes included.
func (idx *Index) Records() int { return idx.records }

// Numbering returns the record numbering base detected when the index was
// built.
func (idx *Index) Numbering() shp.Numbering { return idx.numbering }

// Entries returns the indexed entries in file order.
func (idx *Index) Entries() []Entry { return idx.entries }
