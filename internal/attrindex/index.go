// Package attrindex keeps a secondary index over the attribute columns of
// a dBASE table in an embedded SQLite database and answers filter
// predicates from it.
//
// The database holds one table, records, keyed by the zero-based record
// number with one column and one single-column index per field, plus a
// meta table that fingerprints the .dbf it was built from.
package attrindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/beetlebugorg/shapestore/internal/dbf"
)

const formatVersion = "1"

// Table is the attribute source an index is built from. *dbf.Reader
// satisfies it.
type Table interface {
	Fields() []dbf.Field
	NumRecords() int
	GetRecord(n int) (dbf.Record, error)
}

// Stamp identifies the state of a .dbf file. An index is reused only when
// its stamp matches.
type Stamp struct {
	Size    int64
	ModTime time.Time
}

// PathFor returns the default index path for a .dbf path.
func PathFor(dbfPath string) string {
	return strings.TrimSuffix(dbfPath, filepath.Ext(dbfPath)) + ".idx.sqlite"
}

// Options controls Open.
type Options struct {
	// MaxConnections bounds the connection pool; callers beyond it block.
	// Zero means 4.
	MaxConnections int
	// Force rebuilds the index even when the stamp matches.
	Force  bool
	Logger *zap.Logger
}

type column struct {
	ident string
	typ   dbf.FieldType
}

// Index is an open attribute index. It is safe for concurrent use.
type Index struct {
	db      *sql.DB
	path    string
	columns map[string]column
	log     *zap.Logger
}

// Open opens the index database at path, rebuilding it from t when it is
// missing, was built from another state of the table, or Force is set.
// rebuilt reports whether records were (re)inserted.
func Open(ctx context.Context, path string, t Table, stamp Stamp, opts Options) (idx *Index, rebuilt bool, err error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	conns := opts.MaxConnections
	if conns <= 0 {
		conns = 4
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, false, fmt.Errorf("open attribute index %s: %w", path, err)
	}
	db.SetMaxOpenConns(conns)

	idx = &Index{db: db, path: path, columns: columnsOf(t.Fields()), log: log}
	fp := fingerprint(t.Fields(), stamp)

	if !opts.Force {
		current, err := idx.stored(ctx)
		if err == nil && current == fp {
			log.Debug("reusing attribute index", zap.String("path", path))
			return idx, false, nil
		}
	}

	log.Info("building attribute index", zap.String("path", path), zap.Int("records", t.NumRecords()))
	if err := idx.rebuild(ctx, t, fp); err != nil {
		db.Close()
		return nil, true, fmt.Errorf("build attribute index %s: %w", path, err)
	}
	return idx, true, nil
}

// Close closes the database.
func (idx *Index) Close() error { return idx.db.Close() }

// Path returns the database path.
func (idx *Index) Path() string { return idx.path }

// Has reports whether property is an indexed column.
func (idx *Index) Has(property string) bool {
	_, ok := idx.columns[property]
	return ok
}

func columnsOf(fields []dbf.Field) map[string]column {
	cols := make(map[string]column, len(fields))
	for i, f := range fields {
		cols[f.Name] = column{ident: "c" + strconv.Itoa(i), typ: f.Type}
	}
	return cols
}

// fingerprint captures what the stored rows depend on.
func fingerprint(fields []dbf.Field, s Stamp) string {
	var b strings.Builder
	b.WriteString(formatVersion)
	fmt.Fprintf(&b, "|%d|%d", s.Size, s.ModTime.UnixNano())
	for _, f := range fields {
		fmt.Fprintf(&b, "|%s:%s", f.Name, f.Type)
	}
	return b.String()
}

func (idx *Index) stored(ctx context.Context) (string, error) {
	var v string
	err := idx.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'fingerprint'`).Scan(&v)
	return v, err
}

func sqlType(t dbf.FieldType) string {
	switch t {
	case dbf.String:
		return "TEXT"
	case dbf.Decimal:
		return "REAL"
	}
	return "INTEGER"
}

// storeValue converts a decoded attribute to its column representation.
// Booleans are stored as 0/1 and times as Unix milliseconds.
func storeValue(v any) any {
	switch x := v.(type) {
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case time.Time:
		return x.UnixMilli()
	}
	return v
}

func (idx *Index) rebuild(ctx context.Context, t Table, fp string) (err error) {
	fields := t.Fields()
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	defs := []string{"rec INTEGER PRIMARY KEY"}
	names := []string{"rec"}
	marks := []string{"?"}
	for _, f := range fields {
		c := idx.columns[f.Name]
		defs = append(defs, c.ident+" "+sqlType(f.Type))
		names = append(names, c.ident)
		marks = append(marks, "?")
	}
	stmts := []string{
		`DROP TABLE IF EXISTS records`,
		`DROP TABLE IF EXISTS meta`,
		`CREATE TABLE meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		`CREATE TABLE records (` + strings.Join(defs, ", ") + `)`,
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return err
		}
	}

	insert, err := tx.PrepareContext(ctx,
		`INSERT INTO records (`+strings.Join(names, ", ")+`) VALUES (`+strings.Join(marks, ", ")+`)`)
	if err != nil {
		return err
	}
	defer insert.Close()

	args := make([]any, len(fields)+1)
	for n := 0; n < t.NumRecords(); n++ {
		clear(args)
		args[0] = n
		rec, err := t.GetRecord(n)
		if err != nil {
			if errors.Is(err, dbf.ErrTruncated) {
				idx.log.Warn("attribute table truncated, index stops early", zap.Int("record", n))
				break
			}
			return err
		}
		for i, f := range fields {
			if v, ok := rec.Values[f.Name]; ok {
				args[i+1] = storeValue(v)
			}
		}
		if _, err := insert.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert record %d: %w", n, err)
		}
	}

	for _, f := range fields {
		c := idx.columns[f.Name]
		if _, err := tx.ExecContext(ctx, `CREATE INDEX records_`+c.ident+` ON records (`+c.ident+`)`); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES ('fingerprint', ?)`, fp); err != nil {
		return err
	}
	return tx.Commit()
}
