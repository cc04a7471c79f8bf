package shapestore

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/beetlebugorg/shapestore/internal/shp"
	"github.com/beetlebugorg/shapestore/pkg/filter"
)

// Query selects features of a store.
//
// Example:
//
//	bbox := orb.Bound{Min: orb.Point{-7960000, 5190000}, Max: orb.Point{-7870000, 5230000}}
//	q := shapestore.Query{
//	    TypeName: "app:Ports",
//	    BBox:     &bbox,
//	    CRS:      "EPSG:3857",
//	    Filter: filter.And{
//	        filter.Compare{Property: "DEPTH", Op: filter.Ge, Value: 5.0},
//	        filter.Like{Property: "NAME", Pattern: "port%"},
//	    },
//	    Sort:  []filter.SortBy{{Property: "NAME"}},
//	    Exact: true,
//	}
type Query struct {
	// TypeName must designate the served type. Empty matches.
	TypeName string

	// BBox restricts results to features whose envelope intersects it.
	BBox *orb.Bound

	// CRS of BBox. Empty means the storage CRS.
	CRS string

	Filter filter.Filter
	Sort   []filter.SortBy

	// Exact re-checks candidate geometries against the bounding box
	// instead of accepting envelope intersection.
	Exact bool

	// MaxFeatures truncates the result after sorting. Zero means no limit.
	MaxFeatures int
}

// Cursor iterates over query results.
//
// A Cursor keeps the files it was produced from open until it is closed
// or exhausted.
//
// Example:
//
//	cur, err := store.Query(ctx, q)
//	if err != nil {
//	    return err
//	}
//	defer cur.Close()
//	for cur.Next() {
//	    fmt.Println(cur.Feature().ID())
//	}
//	return cur.Err()
type Cursor struct {
	features []*Feature
	pos      int
	snap     *snapshot
	err      error
}

// Next advances to the next feature.
func (c *Cursor) Next() bool {
	if c.pos < len(c.features) {
		c.pos++
		return true
	}
	c.Close()
	return false
}

// Feature returns the current feature.
func (c *Cursor) Feature() *Feature {
	if c.pos == 0 || c.pos > len(c.features) {
		return nil
	}
	return c.features[c.pos-1]
}

// Len returns the total number of features of the cursor.
func (c *Cursor) Len() int { return len(c.features) }

// Err returns the error that ended iteration, if any.
func (c *Cursor) Err() error { return c.err }

// Close releases the cursor. It is safe to call more than once.
func (c *Cursor) Close() error {
	if c.snap != nil {
		c.snap.release()
		c.snap = nil
	}
	return nil
}

// All returns the remaining features and closes the cursor.
func (c *Cursor) All() []*Feature {
	defer c.Close()
	rest := c.features[c.pos:]
	c.pos = len(c.features)
	return rest
}

// Query runs the queries against one state of the files and returns their
// results one after the other.
func (s *Store) Query(ctx context.Context, queries ...Query) (*Cursor, error) {
	for _, q := range queries {
		if !s.name.Matches(q.TypeName) {
			s.metrics.queries.WithLabelValues(s.label, "error").Inc()
			return nil, &TypeMismatchError{Requested: q.TypeName, Served: s.name}
		}
	}

	start := time.Now()
	snap, err := s.acquire(ctx)
	if err != nil {
		s.metrics.queries.WithLabelValues(s.label, "error").Inc()
		return nil, err
	}

	var out []*Feature
	for _, q := range queries {
		fs, err := s.run(ctx, snap, q)
		if err != nil {
			snap.release()
			s.metrics.queries.WithLabelValues(s.label, "error").Inc()
			return nil, err
		}
		out = append(out, fs...)
	}

	s.metrics.queries.WithLabelValues(s.label, "ok").Inc()
	s.metrics.queryDuration.WithLabelValues(s.label).Observe(time.Since(start).Seconds())
	s.metrics.features.WithLabelValues(s.label).Add(float64(len(out)))
	return &Cursor{features: out, snap: snap}, nil
}

// QueryHits returns the number of features Query would return.
func (s *Store) QueryHits(ctx context.Context, queries ...Query) (int, error) {
	cur, err := s.Query(ctx, queries...)
	if err != nil {
		return 0, err
	}
	defer cur.Close()
	return cur.Len(), nil
}

// plan is a query after splitting its filter between the indexes and
// memory.
type plan struct {
	bound    orb.Bound
	bounded  bool
	empty    bool
	ids      *roaring.Bitmap // nil when the filter names no ids
	cand     *roaring.Bitmap // nil when the attribute index did not narrow
	order    []uint32        // record order answered by the attribute index
	residual filter.Filter
	sort     []filter.SortBy
}

func (s *Store) run(ctx context.Context, snap *snapshot, q Query) ([]*Feature, error) {
	p := s.plan(ctx, snap, q)
	s.log.Debug("query plan", zap.Stringer("plan", p))
	if p.empty {
		return nil, nil
	}

	var ptrs []int64
	if p.bounded {
		ptrs = snap.spatial.Query(p.bound)
	} else {
		ptrs = snap.spatial.All()
	}
	hits, err := snap.reader.QueryByPointers(ptrs, false)
	if err != nil {
		return nil, &unavailable{name: s.label, cause: err}
	}

	hits = slices.DeleteFunc(hits, func(h shp.Hit) bool {
		rec := uint32(h.Record)
		return h.Record < 0 ||
			(p.ids != nil && !p.ids.Contains(rec)) ||
			(p.cand != nil && !p.cand.Contains(rec))
	})
	if p.order != nil {
		hits = reorder(hits, p.order)
	}

	features := make([]*Feature, 0, len(hits))
	for _, h := range hits {
		f := s.feature(snap, h)
		if p.residual != nil && !p.residual.Evaluate(f) {
			continue
		}
		if q.Exact && p.bounded && !shp.Intersects(f.Geometry(), p.bound) {
			continue
		}
		features = append(features, f)
	}

	if len(p.sort) > 0 {
		filter.Sort(features, p.sort)
	}
	if q.MaxFeatures > 0 && len(features) > q.MaxFeatures {
		features = features[:q.MaxFeatures]
	}
	return features, nil
}

func (s *Store) plan(ctx context.Context, snap *snapshot, q Query) plan {
	p := plan{residual: q.Filter, sort: q.Sort}

	if q.BBox != nil {
		p.bound, p.bounded = s.toStorage(*q.BBox, q.CRS, snap.crs), true
	}
	if p.residual != nil {
		b, rest, ok, empty := filter.SplitBBox(p.residual)
		if ok {
			p.residual = rest
			switch {
			case empty, p.bounded && !p.bound.Intersects(b):
				p.empty = true
				return p
			case p.bounded:
				p.bound = intersect(p.bound, b)
			default:
				p.bound, p.bounded = b, true
			}
		}
	}
	if p.residual != nil {
		if ids, rest, ok := filter.CollectIDs(p.residual); ok {
			p.residual = rest
			p.ids = s.recordsOf(ids, snap)
			if p.ids.IsEmpty() {
				p.empty = true
				return p
			}
		}
	}

	if p.residual == nil && len(p.sort) == 0 {
		return p
	}
	idx, rebuilt, err := s.attributeIndex(ctx, snap)
	if rebuilt {
		s.metrics.rebuilds.WithLabelValues(s.label, "attribute").Inc()
	}
	if err != nil {
		s.log.Warn("attribute index unavailable, filtering in memory", zap.Error(err))
		s.metrics.indexFallbacks.WithLabelValues(s.label).Inc()
		return p
	}
	if idx == nil {
		return p
	}
	res, err := idx.Translate(ctx, p.residual, p.sort)
	if err != nil {
		s.log.Warn("attribute index query failed, filtering in memory", zap.Error(err))
		s.metrics.indexFallbacks.WithLabelValues(s.label).Inc()
		return p
	}
	// A newer snapshot may have rebuilt the index from another table
	// while this one was translating.
	if s.current.Load() != snap {
		s.log.Debug("snapshot retired during query, filtering in memory", zap.Uint64("generation", snap.gen))
		return p
	}
	p.cand, p.order = res.Candidates, res.Order
	p.residual, p.sort = res.Residual, res.ResidualSort
	return p
}

func intersect(a, b orb.Bound) orb.Bound {
	return orb.Bound{
		Min: orb.Point{max(a.Min[0], b.Min[0]), max(a.Min[1], b.Min[1])},
		Max: orb.Point{min(a.Max[0], b.Max[0]), min(a.Max[1], b.Max[1])},
	}
}

// toStorage transforms b from crs into the storage CRS. Transformation
// failures are logged and b is used as given.
func (s *Store) toStorage(b orb.Bound, crs, storage string) orb.Bound {
	if crs == "" {
		return b
	}
	t, err := s.transformer.Transform(b, crs, storage)
	if err != nil {
		s.log.Warn("cannot transform query envelope, using it untransformed",
			zap.String("from", crs), zap.String("to", storage), zap.Error(err))
		return b
	}
	return t
}

// recordsOf maps feature ids to record indexes. Ids of other stores and
// malformed ids are ignored.
func (s *Store) recordsOf(ids []string, snap *snapshot) *roaring.Bitmap {
	prefix := s.fidPrefix
	bm := roaring.New()
	for _, id := range ids {
		n, err := strconv.ParseUint(strings.TrimPrefix(id, prefix), 10, 32)
		if err != nil || !strings.HasPrefix(id, prefix) || int(n) >= snap.spatial.Records() {
			continue
		}
		bm.Add(uint32(n))
	}
	return bm
}

// reorder returns the hits in the given record order. Hits whose record is
// not listed keep their relative order at the end.
func reorder(hits []shp.Hit, order []uint32) []shp.Hit {
	pos := make(map[int]int, len(hits))
	for i, h := range hits {
		pos[h.Record] = i
	}
	out := make([]shp.Hit, 0, len(hits))
	for _, rec := range order {
		if i, ok := pos[int(rec)]; ok {
			out = append(out, hits[i])
			delete(pos, int(rec))
		}
	}
	for _, h := range hits {
		if _, ok := pos[h.Record]; ok {
			out = append(out, h)
		}
	}
	return out
}

// feature returns the cached feature of hit or assembles it.
func (s *Store) feature(snap *snapshot, h shp.Hit) *Feature {
	id := featureID(s.fidPrefix, h.Record)
	if f, ok := s.cache.Get(id, snap.gen); ok {
		s.metrics.cacheHits.WithLabelValues(s.label).Inc()
		return f
	}
	s.metrics.cacheMisses.WithLabelValues(s.label).Inc()

	f := &Feature{id: id, record: h.Record}
	shape, err := snap.reader.Decode(h.Pointer)
	if err != nil {
		snap.log.Warn("failed to decode geometry", zap.Int("record", h.Record), zap.Error(err))
	} else {
		f.shape = shape
	}
	if snap.table != nil && h.Record < snap.table.NumRecords() {
		rec, err := snap.table.GetRecord(h.Record)
		if err != nil {
			snap.log.Warn("failed to decode attributes", zap.Int("record", h.Record), zap.Error(err))
		} else {
			f.props, f.deleted = rec.Values, rec.Deleted
		}
	}
	s.cache.Add(id, snap.gen, f)
	return f
}

func (p plan) String() string {
	return fmt.Sprintf("bbox=%v(%t) ids=%v cand=%v residual=%v sort=%v",
		p.bound, p.bounded, p.ids != nil, p.cand != nil, p.residual, p.sort)
}
