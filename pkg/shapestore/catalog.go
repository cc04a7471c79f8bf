package shapestore

import (
	"context"
	"fmt"
	"io/fs"
	"math"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

// Catalog serves the shapefiles found under a directory, one store per
// file, and answers which of them cover an area.
//
// Example:
//
//	cat, errs, err := shapestore.OpenDir(ctx, "/data/shapes", shapestore.DefaultConfig(),
//	    shapestore.DefaultLoadOptions(), shapestore.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cat.Close()
//
//	// Which layers cover Boston harbour?
//	harbour := orb.Bound{Min: orb.Point{-71.1, 42.3}, Max: orb.Point{-70.9, 42.4}}
//	for _, e := range cat.Query(harbour) {
//	    fmt.Println(e.Name, e.Records)
//	}
type Catalog struct {
	entries []CatalogEntry // sorted by name
	stores  map[string]*Store
	tree    *rtreego.Rtree
	log     *zap.Logger
}

// CatalogEntry describes one store of a catalog.
type CatalogEntry struct {
	Name     string    // feature type local name
	Path     string    // .shp path
	CRS      string    // storage CRS
	Envelope orb.Bound // in CRS:84
	Indexed  bool      // false when the envelope could not be brought to CRS:84
	Records  int
}

type catalogNode struct {
	entry int
	rect  rtreego.Rect
}

func (n *catalogNode) Bounds() rtreego.Rect { return n.rect }

// FindShapefiles returns the .shp files under root, any case, sorted.
func FindShapefiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".shp") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	slices.Sort(paths)
	return paths, nil
}

// OpenDir opens every shapefile under root in parallel. base supplies the
// settings shared by all stores; its File and feature type name are set
// per file. Stores that fail to open are reported in the returned slice
// when opts.SkipErrors is set.
func OpenDir(ctx context.Context, root string, base Config, opts LoadOptions, storeOpts ...Option) (*Catalog, []error, error) {
	paths, err := FindShapefiles(root)
	if err != nil {
		return nil, nil, err
	}
	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("no shapefiles found in %s", root)
	}

	cfgs := make([]Config, 0, len(paths))
	var skipped []error
	seen := make(map[string]string)
	for _, p := range paths {
		cfg := base
		cfg.File = p
		cfg.FeatureType.Name = strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		if prev, dup := seen[cfg.FeatureType.Name]; dup {
			err := fmt.Errorf("%s: feature type %q already served by %s", p, cfg.FeatureType.Name, prev)
			if !opts.SkipErrors {
				return nil, nil, err
			}
			skipped = append(skipped, err)
			continue
		}
		seen[cfg.FeatureType.Name] = p
		cfgs = append(cfgs, cfg)
	}

	stores, errs := OpenStores(ctx, cfgs, opts, storeOpts...)
	if !opts.SkipErrors && len(errs) > 0 {
		return nil, nil, errs[0]
	}
	errs = append(skipped, errs...)
	if len(stores) == 0 {
		return nil, errs, fmt.Errorf("no shapefile could be opened (%d errors)", len(errs))
	}

	log := stores[0].log.With(zap.String("catalog", root))
	logErrors(log, errs)
	return NewCatalog(stores, log), errs, nil
}

// NewCatalog indexes already initialized stores. The catalog takes
// ownership of them.
func NewCatalog(stores []*Store, log *zap.Logger) *Catalog {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Catalog{stores: make(map[string]*Store, len(stores)), log: log}

	for _, st := range stores {
		e := CatalogEntry{Name: st.Name().Local, Path: st.cfg.File}
		crs, err := st.StorageCRS()
		if err != nil {
			log.Warn("store unavailable while cataloguing", zap.String("name", e.Name), zap.Error(err))
		}
		e.CRS = crs
		env, _ := st.Envelope("")
		e.Records, _ = st.Records()
		if crs != "" {
			if b, err := st.transformer.Transform(env, crs, CRS84); err == nil {
				e.Envelope, e.Indexed = b, true
			} else {
				log.Debug("envelope not indexed", zap.String("name", e.Name), zap.Error(err))
			}
		}
		c.entries = append(c.entries, e)
		c.stores[e.Name] = st
	}
	slices.SortFunc(c.entries, func(a, b CatalogEntry) int { return strings.Compare(a.Name, b.Name) })

	var objs []rtreego.Spatial
	for i, e := range c.entries {
		if !e.Indexed {
			continue
		}
		if r, ok := catalogRect(e.Envelope); ok {
			objs = append(objs, &catalogNode{entry: i, rect: r})
		}
	}
	c.tree = rtreego.NewTree(2, 4, 16, objs...)
	return c
}

func catalogRect(b orb.Bound) (rtreego.Rect, bool) {
	lo := rtreego.Point{math.Nextafter(b.Min[0], math.Inf(-1)), math.Nextafter(b.Min[1], math.Inf(-1))}
	hi := rtreego.Point{math.Nextafter(b.Max[0], math.Inf(1)), math.Nextafter(b.Max[1], math.Inf(1))}
	r, err := rtreego.NewRectFromPoints(lo, hi)
	return r, err == nil
}

// Get returns the store serving the named feature type.
func (c *Catalog) Get(name string) (*Store, bool) {
	st, ok := c.stores[name]
	return st, ok
}

// Names returns the served feature type names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.Name
	}
	return names
}

// Entries returns all entries, sorted by name.
func (c *Catalog) Entries() []CatalogEntry { return slices.Clone(c.entries) }

// Query returns the entries whose CRS:84 envelope intersects b, sorted
// by name. Entries whose envelope could not be transformed never match.
func (c *Catalog) Query(b orb.Bound) []CatalogEntry {
	r, ok := catalogRect(b)
	if !ok {
		return nil
	}
	var hits []int
	for _, s := range c.tree.SearchIntersect(r) {
		n := s.(*catalogNode)
		if c.entries[n.entry].Envelope.Intersects(b) {
			hits = append(hits, n.entry)
		}
	}
	slices.Sort(hits)
	out := make([]CatalogEntry, len(hits))
	for i, h := range hits {
		out[i] = c.entries[h]
	}
	return out
}

// Close destroys every store of the catalog.
func (c *Catalog) Close() {
	for _, st := range c.stores {
		st.Destroy()
	}
}
