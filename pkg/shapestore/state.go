package shapestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"

	"github.com/beetlebugorg/shapestore/internal/attrindex"
	"github.com/beetlebugorg/shapestore/internal/dbf"
	"github.com/beetlebugorg/shapestore/internal/shp"
	"github.com/beetlebugorg/shapestore/internal/spatialindex"
)

// snapshot is one opened state of the files. It is immutable once
// published, except for the lazily opened attribute index.
//
// The store holds one reference while the snapshot is current and every
// running query holds another. The files are unmapped when the last
// reference is dropped.
type snapshot struct {
	gen      uint64
	files    fileSet
	shpMod   time.Time
	dbfMod   time.Time // zero when there is no .dbf
	prjMod   time.Time
	cpgMod   time.Time
	reader   *shp.Reader
	table    *dbf.Reader // nil when serving geometry only
	spatial  *spatialindex.Index
	schema   *Schema
	crs      string
	envelope orb.Bound

	attrOnce  sync.Once
	attrPath  string // empty when the attribute index is disabled
	attrForce bool
	attrConns int
	attr      *attrindex.Index
	attrErr   error

	refs atomic.Int64
	log  *zap.Logger
}

// acquire takes a reference. It fails once the snapshot has been retired
// and released by everyone.
func (s *snapshot) acquire() bool {
	for {
		n := s.refs.Load()
		if n <= 0 {
			return false
		}
		if s.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (s *snapshot) release() {
	if s.refs.Add(-1) == 0 {
		s.close()
	}
}

func (s *snapshot) close() {
	if s.attr != nil {
		if err := s.attr.Close(); err != nil {
			s.log.Warn("closing attribute index", zap.Error(err))
		}
	}
	if s.table != nil {
		s.table.Close()
	}
	s.reader.Close()
}

// stale reports whether the files on disk differ from the ones mapped.
func (s *snapshot) stale() bool {
	return changed(s.files.shp, s.shpMod) ||
		s.sideChanged(s.files.dbf, s.dbfMod, ".dbf") ||
		s.sideChanged(s.files.prj, s.prjMod, ".prj") ||
		s.sideChanged(s.files.cpg, s.cpgMod, ".cpg")
}

// sideChanged reports whether an optional side file changed or went away,
// or, when it was absent, whether it has appeared since.
func (s *snapshot) sideChanged(path string, mod time.Time, ext string) bool {
	if path != "" {
		return changed(path, mod)
	}
	dir := filepath.Dir(s.files.shp)
	for _, e := range []string{ext, strings.ToUpper(ext)} {
		if info, err := os.Stat(filepath.Join(dir, s.files.base+e)); err == nil && info.Mode().IsRegular() {
			return true
		}
	}
	return false
}

func changed(path string, mod time.Time) bool {
	info, err := os.Stat(path)
	return err != nil || !info.ModTime().Equal(mod)
}

// modTime returns the modification time of path, or the zero time when
// path is empty or cannot be read.
func modTime(path string) time.Time {
	if path == "" {
		return time.Time{}
	}
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// attributeIndex opens the attribute index on first use.
// Callers go through Store.attributeIndex.
func (s *snapshot) attributeIndex(ctx context.Context) (*attrindex.Index, bool, error) {
	if s.attrPath == "" || s.table == nil {
		return nil, false, nil
	}
	rebuilt := false
	s.attrOnce.Do(func() {
		stamp := attrindex.Stamp{Size: s.table.Size(), ModTime: s.dbfMod}
		s.attr, rebuilt, s.attrErr = attrindex.Open(ctx, s.attrPath, s.table, stamp, attrindex.Options{
			MaxConnections: s.attrConns,
			Force:          s.attrForce,
			Logger:         s.log,
		})
	})
	return s.attr, rebuilt, s.attrErr
}

// attributeIndex returns the attribute index of snap. Every snapshot of
// a store shares one database file, so only the current snapshot may open
// it, and with it rebuild it. A retired snapshot gets no index and its
// queries are filtered in memory.
func (st *Store) attributeIndex(ctx context.Context, snap *snapshot) (*attrindex.Index, bool, error) {
	st.attrMu.Lock()
	defer st.attrMu.Unlock()
	if st.current.Load() != snap {
		return nil, false, nil
	}
	return snap.attributeIndex(ctx)
}

// openSnapshot opens the files named by the configuration and builds or
// loads the spatial index.
func (st *Store) openSnapshot(force bool) (*snapshot, error) {
	files, err := resolveFiles(st.cfg.File)
	if err != nil {
		return nil, err
	}
	log := st.log.With(zap.String("file", files.shp))

	reader, err := shp.Open(files.shp, shp.WithLogger(log))
	if err != nil {
		return nil, err
	}
	spatial, rebuilt, err := spatialindex.OpenOrBuild(spatialindex.SidecarPath(files.shp), reader,
		spatialindex.OpenOptions{Force: force, Logger: log})
	if err != nil {
		reader.Close()
		return nil, err
	}
	if rebuilt {
		st.metrics.rebuilds.WithLabelValues(st.label, "spatial").Inc()
	}

	snap := &snapshot{
		files:    files,
		shpMod:   reader.Source().ModTime(),
		reader:   reader,
		spatial:  spatial,
		envelope: reader.Header().Bound,
		log:      log,
	}

	snap.dbfMod = modTime(files.dbf)
	snap.prjMod = modTime(files.prj)
	snap.cpgMod = modTime(files.cpg)
	if snap.table, err = st.openTable(files, spatial.Records(), log); err != nil {
		reader.Close()
		return nil, err
	}
	if snap.table != nil {
		snap.dbfMod = snap.table.ModTime()
		if st.cfg.AttributeIndex.Enabled {
			snap.attrPath = st.cfg.AttributeIndex.Path
			if snap.attrPath == "" {
				snap.attrPath = attrindex.PathFor(files.dbf)
			}
			snap.attrForce = force
			snap.attrConns = st.cfg.AttributeIndex.MaxConnections
		}
	}

	if snap.crs, err = st.storageCRS(files, log); err != nil {
		snap.close()
		return nil, err
	}
	snap.schema = buildSchema(st.name, reader.Header(), snap.table)
	snap.gen = st.gen.Add(1)
	snap.refs.Store(1)
	return snap, nil
}

// openTable opens the attribute table. A missing table, an unreadable
// header or a record count that disagrees with the geometry file leaves
// the store serving geometry only.
func (st *Store) openTable(files fileSet, records int, log *zap.Logger) (*dbf.Reader, error) {
	if files.dbf == "" {
		log.Warn("no attribute table found, serving geometry only")
		return nil, nil
	}

	var enc encoding.Encoding
	switch {
	case st.cfg.Encoding != "":
		e, err := dbf.LookupEncoding(st.cfg.Encoding)
		if err != nil {
			return nil, &ConfigError{Field: "encoding", Err: err}
		}
		enc = e
	case files.cpg != "":
		e, err := dbf.ReadCPG(files.cpg)
		if err != nil {
			log.Warn("ignoring code page file", zap.String("cpg", files.cpg), zap.Error(err))
		} else {
			enc = e
		}
	}

	opts := []dbf.Option{dbf.WithLogger(log)}
	if enc != nil {
		opts = append(opts, dbf.WithEncoding(enc))
	}
	table, err := dbf.Open(files.dbf, opts...)
	switch {
	case errors.Is(err, dbf.ErrHeader):
		log.Warn("unreadable attribute table, serving geometry only", zap.Error(err))
		return nil, nil
	case err != nil:
		return nil, err
	}

	if table.NumRecords() != records {
		log.Warn("record counts differ, serving geometry only",
			zap.Int("geometries", records), zap.Int("attributes", table.NumRecords()))
		table.Close()
		return nil, nil
	}
	return table, nil
}

// storageCRS resolves the storage CRS: configuration, then .prj, then
// CRS:84.
func (st *Store) storageCRS(files fileSet, log *zap.Logger) (string, error) {
	if st.cfg.CRS != "" {
		crs, err := NormalizeCRS(st.cfg.CRS)
		if err != nil {
			return "", &ConfigError{Field: "crs", Err: err}
		}
		return crs, nil
	}
	if files.prj == "" {
		log.Warn("no projection file, assuming " + CRS84)
		return CRS84, nil
	}
	crs, err := ReadPRJ(files.prj)
	switch {
	case errors.Is(err, ErrUnknownCRS):
		log.Warn("unrecognized projection file, assuming "+CRS84, zap.String("prj", files.prj), zap.Error(err))
		return CRS84, nil
	case err != nil:
		return "", err
	}
	return crs, nil
}
