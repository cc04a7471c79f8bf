// Package shapestore serves the records of a shapefile and its dBASE
// table as features, with a persisted spatial index, an optional SQLite
// attribute index and a feature cache.
//
// A Store is read-only. It watches the modification times of its files
// and reopens them, rebuilding its indexes, when they change. Queries in
// flight keep reading the files they started with.
//
// Example:
//
//	cfg := shapestore.DefaultConfig()
//	cfg.File = "data/ports.shp"
//
//	store, err := shapestore.New(cfg, shapestore.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := store.Init(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Destroy()
//
//	bbox := orb.Bound{Min: orb.Point{-71.2, 42.2}, Max: orb.Point{-70.8, 42.5}}
//	cur, err := store.Query(ctx, shapestore.Query{
//	    BBox:   &bbox,
//	    Filter: filter.Compare{Property: "DEPTH", Op: filter.Gt, Value: 10.0},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cur.Close()
//	for cur.Next() {
//	    f := cur.Feature()
//	    fmt.Println(f.ID(), f.Properties()["NAME"])
//	}
package shapestore

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// FeatureStore is the contract shared by feature store backends.
type FeatureStore interface {
	Init(ctx context.Context) error
	Destroy()
	Available() bool
	Query(ctx context.Context, queries ...Query) (*Cursor, error)
	QueryHits(ctx context.Context, queries ...Query) (int, error)
	Envelope(typeName string) (orb.Bound, error)
	Schema() (*Schema, error)
	AcquireTransaction(ctx context.Context) (Transaction, error)
	LockManager() (LockManager, error)
	ObjectByID(ctx context.Context, id string) (*Feature, error)
}

// Transaction is a write transaction. Shapefile stores never hand one out.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// LockManager coordinates feature locks. Shapefile stores have none.
type LockManager interface {
	Lock(ctx context.Context, ids []string) (string, error)
	Release(ctx context.Context, lockID string) error
}

var _ FeatureStore = (*Store)(nil)

// Store serves one shapefile. It is safe for concurrent use.
type Store struct {
	cfg         Config
	name        QName
	label       string // metrics label
	fidPrefix   string
	log         *zap.Logger
	transformer EnvelopeTransformer
	metrics     *Metrics
	cache       *FeatureCache

	current atomic.Pointer[snapshot]
	gen     atomic.Uint64
	group   singleflight.Group
	attrMu  sync.Mutex // serializes attribute index opens across snapshots

	mu        sync.Mutex
	destroyed bool
	fatal     error // configuration error found by Init
	watcher   *watcher
}

// New creates a store for cfg. No file is opened before Init.
func New(cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base := filepath.Base(cfg.File)
	if strings.EqualFold(filepath.Ext(base), ".shp") {
		base = base[:len(base)-len(".shp")]
	}
	name := QName{
		Namespace: cfg.FeatureType.Namespace,
		Prefix:    cfg.FeatureType.Prefix,
		Local:     cfg.FeatureType.Name,
	}
	if name.Local == "" {
		name.Local = base
	}

	s := &Store{
		cfg:         cfg,
		name:        name,
		label:       name.String(),
		fidPrefix:   strings.ToUpper(name.Local) + "_",
		log:         zap.NewNop(),
		transformer: ProjectTransformer{},
		metrics:     noopMetrics,
		cache:       NewFeatureCache(cfg.Cache.MaxEntries),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("store", s.label))
	return s, nil
}

// Init opens the files and builds or loads the indexes.
//
// A configuration error is returned as *ConfigError and is permanent.
// Any other failure leaves the store unavailable; the next query tries
// to open the files again.
func (s *Store) Init(ctx context.Context) error {
	err := s.refresh(ctx, false)
	var cerr *ConfigError
	if errors.As(err, &cerr) {
		s.mu.Lock()
		s.fatal = cerr
		s.mu.Unlock()
		return cerr
	}
	if err != nil {
		return err
	}

	if s.cfg.Watch.Enabled {
		w, err := newWatcher(s, s.cfg.Watch.Debounce)
		if err != nil {
			s.log.Warn("file watching disabled", zap.Error(err))
			return nil
		}
		s.mu.Lock()
		s.watcher = w
		s.mu.Unlock()
		w.start()
	}
	return nil
}

// Destroy stops file watching and releases the files once running
// queries finish. The store is unusable afterwards.
func (s *Store) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	w := s.watcher
	s.mu.Unlock()

	if w != nil {
		w.stop()
	}
	if old := s.current.Swap(nil); old != nil {
		old.release()
	}
	s.cache.Clear()
}

// Available reports whether the store has its files open.
func (s *Store) Available() bool {
	s.mu.Lock()
	destroyed := s.destroyed
	s.mu.Unlock()
	return !destroyed && s.current.Load() != nil
}

// Name returns the served feature type name.
func (s *Store) Name() QName { return s.name }

// Refresh reopens the files if they changed on disk.
func (s *Store) Refresh(ctx context.Context) error {
	snap, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	snap.release()
	return nil
}

// Rebuild reopens the files and rebuilds both indexes from scratch,
// ignoring any persisted index.
func (s *Store) Rebuild(ctx context.Context) error {
	if err := s.checkUsable(); err != nil {
		return err
	}
	_, err, _ := s.group.Do("rebuild", func() (any, error) {
		return nil, s.refresh(ctx, true)
	})
	if err != nil {
		return err
	}
	return s.EnsureIndexes(ctx)
}

// EnsureIndexes brings the spatial side-car and, when enabled, the
// attribute index up to date without waiting for a query to need them.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	snap, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer snap.release()
	_, rebuilt, err := s.attributeIndex(ctx, snap)
	if rebuilt {
		s.metrics.rebuilds.WithLabelValues(s.label, "attribute").Inc()
	}
	return err
}

// Envelope returns the bounding box of the served type in the storage
// CRS, as declared by the .shp header.
func (s *Store) Envelope(typeName string) (orb.Bound, error) {
	if !s.name.Matches(typeName) {
		return orb.Bound{}, &TypeMismatchError{Requested: typeName, Served: s.name}
	}
	snap, err := s.acquire(context.Background())
	if err != nil {
		return orb.Bound{}, err
	}
	defer snap.release()
	return snap.envelope, nil
}

// Schema returns the served feature type.
func (s *Store) Schema() (*Schema, error) {
	snap, err := s.acquire(context.Background())
	if err != nil {
		return nil, err
	}
	defer snap.release()
	return snap.schema, nil
}

// StorageCRS returns the CRS of the stored coordinates in AUTHORITY:CODE
// form.
func (s *Store) StorageCRS() (string, error) {
	snap, err := s.acquire(context.Background())
	if err != nil {
		return "", err
	}
	defer snap.release()
	return snap.crs, nil
}

// Records returns the number of records in the .shp file, null shapes
// included.
func (s *Store) Records() (int, error) {
	snap, err := s.acquire(context.Background())
	if err != nil {
		return 0, err
	}
	defer snap.release()
	return snap.spatial.Records(), nil
}

// CacheStats returns the feature cache counters.
func (s *Store) CacheStats() CacheStats { return s.cache.Stats() }

// AcquireTransaction always fails: shapefile stores are read-only.
func (s *Store) AcquireTransaction(context.Context) (Transaction, error) {
	return nil, &UnsupportedOperationError{Op: "AcquireTransaction"}
}

// LockManager always fails: shapefile stores are read-only.
func (s *Store) LockManager() (LockManager, error) {
	return nil, &UnsupportedOperationError{Op: "LockManager"}
}

// ObjectByID always fails. Query with a filter.IDs filter instead.
func (s *Store) ObjectByID(context.Context, string) (*Feature, error) {
	return nil, &UnsupportedOperationError{Op: "ObjectByID"}
}

func (s *Store) checkUsable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.destroyed:
		return &unavailable{name: s.label, cause: errors.New("store destroyed")}
	case s.fatal != nil:
		return s.fatal
	}
	return nil
}

// acquire returns a referenced snapshot of the current files, reopening
// them first when they changed on disk or are not open. Concurrent
// callers share one reopen.
func (s *Store) acquire(ctx context.Context) (*snapshot, error) {
	for {
		if err := s.checkUsable(); err != nil {
			return nil, err
		}
		snap := s.current.Load()
		if snap != nil && !snap.stale() {
			if snap.acquire() {
				return snap, nil
			}
			continue
		}
		_, err, _ := s.group.Do("refresh", func() (any, error) {
			// Another caller may have published while we waited.
			if cur := s.current.Load(); cur != nil && cur != snap && !cur.stale() {
				return nil, nil
			}
			return nil, s.refresh(ctx, false)
		})
		if err != nil {
			return nil, err
		}
	}
}

// refresh opens a new snapshot and publishes it. On failure the store
// becomes unavailable. The cache is cleared either way.
func (s *Store) refresh(_ context.Context, force bool) error {
	snap, err := s.openSnapshot(force)
	if err != nil {
		if old := s.current.Swap(nil); old != nil {
			old.release()
		}
		s.cache.Clear()
		var cerr *ConfigError
		if errors.As(err, &cerr) {
			s.log.Error("invalid store configuration", zap.Error(err))
			return cerr
		}
		s.log.Error("store unavailable", zap.Error(err))
		return &unavailable{name: s.label, cause: err}
	}

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		snap.release()
		return &unavailable{name: s.label, cause: errors.New("store destroyed")}
	}
	old := s.current.Swap(snap)
	s.mu.Unlock()

	s.cache.Clear()
	if old != nil {
		old.release()
	}
	s.metrics.rebuilds.WithLabelValues(s.label, "snapshot").Inc()
	s.log.Info("store opened",
		zap.Uint64("generation", snap.gen),
		zap.Int("records", snap.spatial.Records()),
		zap.Bool("attributes", snap.table != nil),
		zap.String("crs", snap.crs))
	return nil
}
