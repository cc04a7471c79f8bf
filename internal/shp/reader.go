package shp

import (
	"fmt"
	"sync/atomic"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/beetlebugorg/shapestore/internal/bytesource"
)

const (
	headerSize       = 100
	recordHeaderSize = 8
	fileCode         = 9994
	fileVersion      = 1000
)

// Reader decodes records from a shapefile byte source.
//
// A Reader is safe for concurrent use. Every read derives its own cursor
// from the shared source; the only mutable state is the record numbering
// base, which can switch once from one-based to zero-based.
type Reader struct {
	src       *bytesource.Source
	header    Header
	log       *zap.Logger
	zeroBased atomic.Bool
}

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger used for format diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reader) {
		if l != nil {
			r.log = l
		}
	}
}

// WithNumbering presets the record numbering base, typically from a
// persisted spatial index.
func WithNumbering(n Numbering) Option {
	return func(r *Reader) {
		r.zeroBased.Store(n == ZeroBased)
	}
}

// Open maps the shapefile at path and parses its header.
func Open(path string, opts ...Option) (*Reader, error) {
	src, err := bytesource.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(src, opts...)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// NewReader parses the header of src. The reader takes ownership of src.
func NewReader(src *bytesource.Source, opts ...Option) (*Reader, error) {
	r := &Reader{src: src, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	if src.Len() < headerSize {
		return nil, ErrHeader
	}

	c := src.Cursor(0)
	h := Header{}
	h.FileCode = c.Int32BE()
	c.Seek(24)
	h.FileLength = int64(c.Int32BE()) * 2
	h.Version = c.Int32LE()
	h.ShapeType = ShapeType(c.Int32LE())
	xmin, ymin := c.Float64LE(), c.Float64LE()
	xmax, ymax := c.Float64LE(), c.Float64LE()
	h.Bound = orb.Bound{Min: orb.Point{xmin, ymin}, Max: orb.Point{xmax, ymax}}
	h.Z = Range{Min: c.Float64LE(), Max: c.Float64LE()}
	h.M = Range{Min: c.Float64LE(), Max: c.Float64LE()}
	if err := c.Err(); err != nil {
		return nil, err
	}
	r.header = h

	if h.FileCode != fileCode {
		r.log.Warn("unexpected shapefile file code",
			zap.String("file", src.Path()), zap.Int32("code", h.FileCode))
	}
	if h.Version != fileVersion {
		r.log.Warn("unexpected shapefile version",
			zap.String("file", src.Path()), zap.Int32("version", h.Version))
	}
	if !h.ShapeType.Valid() {
		r.log.Warn("unknown shape type in file header",
			zap.String("file", src.Path()), zap.Int32("type", int32(h.ShapeType)))
	}
	if h.FileLength != src.Len() {
		r.log.Debug("declared file length differs from actual size",
			zap.String("file", src.Path()),
			zap.Int64("declared", h.FileLength), zap.Int64("actual", src.Len()))
	}
	return r, nil
}

// Header returns the parsed main file header.
func (r *Reader) Header() Header { return r.header }

// Source returns the underlying byte source.
func (r *Reader) Source() *bytesource.Source { return r.src }

// Numbering returns the record numbering base currently in effect.
func (r *Reader) Numbering() Numbering {
	if r.zeroBased.Load() {
		return ZeroBased
	}
	return OneBased
}

// AssumeNumbering applies a numbering base detected earlier, typically
// read back from a persisted index. Only a switch to zero-based has an
// effect; a reader never returns to one-based numbering.
func (r *Reader) AssumeNumbering(n Numbering) {
	if n == ZeroBased {
		r.zeroBased.Store(true)
	}
}

// Close releases the byte source. It must not be called while reads are
// in progress.
func (r *Reader) Close() error {
	return r.src.Close()
}

// ScanResult is the outcome of a header-only pass over all records.
type ScanResult struct {
	Entries   []Entry   // one per non-null record
	Records   int       // total records seen, null shapes included
	Numbering Numbering // detected numbering base
}

// ScanEnvelopes walks all record headers and collects each record's
// bounding box without decoding coordinates.
//
// Point records yield a degenerate box at the point; other types yield the
// box stored at the start of the record. A record numbered 0 marks the
// file as zero-based. A record whose declared length runs past the end of
// the file ends the scan.
func (r *Reader) ScanEnvelopes() (ScanResult, error) {
	res := ScanResult{}
	size := r.src.Len()
	off := int64(headerSize)
	zeroBased := false

	for off+recordHeaderSize <= size {
		c := r.src.Cursor(off)
		num := c.Int32BE()
		length := int64(c.Int32BE()) * 2
		content := off + recordHeaderSize
		if length < 4 || content+length > size {
			r.log.Warn("record length out of range, stopping scan",
				zap.String("file", r.src.Path()),
				zap.Int64("offset", off), zap.Int64("length", length))
			break
		}
		if num == 0 {
			zeroBased = true
		}
		res.Records++

		typ := ShapeType(c.Int32LE())
		switch typ.Family() {
		case FamilyNull:
			if typ != TypeNull {
				r.log.Warn("unknown shape type, record not indexed",
					zap.Int32("record", num), zap.Int32("type", int32(typ)))
			}
		case FamilyPoint:
			if length < 20 {
				r.log.Warn("point record too short", zap.Int32("record", num))
				break
			}
			x, y := c.Float64LE(), c.Float64LE()
			res.Entries = append(res.Entries, Entry{
				Bound:   orb.Bound{Min: orb.Point{x, y}, Max: orb.Point{x, y}},
				Pointer: content,
				Record:  num,
			})
		default:
			if length < 36 {
				r.log.Warn("record too short for bounding box", zap.Int32("record", num))
				break
			}
			xmin, ymin := c.Float64LE(), c.Float64LE()
			xmax, ymax := c.Float64LE(), c.Float64LE()
			res.Entries = append(res.Entries, Entry{
				Bound:   orb.Bound{Min: orb.Point{xmin, ymin}, Max: orb.Point{xmax, ymax}},
				Pointer: content,
				Record:  num,
			})
		}
		if err := c.Err(); err != nil {
			return res, &RecordError{Pointer: content, Err: err}
		}
		off = content + length
	}

	if zeroBased {
		r.log.Warn("shapefile uses zero-based record numbers", zap.String("file", r.src.Path()))
		r.zeroBased.Store(true)
	}
	res.Numbering = r.Numbering()
	return res, nil
}

// RecordIndex converts a stored record number into a zero-based index.
//
// Meeting record number 0 in a file believed to be one-based switches the
// reader to zero-based numbering for the rest of its life. The switch
// happens at most once.
func (r *Reader) RecordIndex(num int32) int {
	if num == 0 && r.zeroBased.CompareAndSwap(false, true) {
		r.log.Warn("zero-based record number found while reading, switching numbering",
			zap.String("file", r.src.Path()))
	}
	if r.zeroBased.Load() {
		return int(num)
	}
	return int(num) - 1
}

// contentLength returns the declared content length of the record whose
// content starts at ptr.
func (r *Reader) contentLength(ptr int64) (int64, error) {
	if ptr < headerSize+recordHeaderSize || ptr > r.src.Len() {
		return 0, fmt.Errorf("%w: %d", ErrBadPointer, ptr)
	}
	c := r.src.Cursor(ptr - 4)
	length := int64(c.Int32BE()) * 2
	if err := c.Err(); err != nil {
		return 0, err
	}
	if length < 4 || ptr+length > r.src.Len() {
		return 0, fmt.Errorf("%w: %d bytes at %d", ErrTruncated, length, ptr)
	}
	return length, nil
}

// Decode decodes the record whose content starts at ptr.
func (r *Reader) Decode(ptr int64) (*Shape, error) {
	length, err := r.contentLength(ptr)
	if err != nil {
		return nil, &RecordError{Pointer: ptr, Err: err}
	}
	d := recordDecoder{
		c:      r.src.Section(ptr, length),
		length: length,
		diag:   diagnostics{log: r.log, ptr: ptr},
	}
	s, err := d.decode()
	if err != nil {
		return nil, &RecordError{Pointer: ptr, Err: err}
	}
	return s, nil
}

// QueryByPointers resolves the record number of each pointer and, when
// withGeometry is set, decodes its geometry.
//
// A record that fails to decode is logged and returned without a shape.
func (r *Reader) QueryByPointers(ptrs []int64, withGeometry bool) ([]Hit, error) {
	hits := make([]Hit, 0, len(ptrs))
	for _, ptr := range ptrs {
		if ptr < headerSize+recordHeaderSize || ptr > r.src.Len() {
			return hits, &RecordError{Pointer: ptr, Err: ErrBadPointer}
		}
		c := r.src.Cursor(ptr - recordHeaderSize)
		num := c.Int32BE()
		if err := c.Err(); err != nil {
			return hits, &RecordError{Pointer: ptr, Err: err}
		}

		h := Hit{Record: r.RecordIndex(num), Pointer: ptr}
		if withGeometry {
			s, err := r.Decode(ptr)
			if err != nil {
				r.log.Warn("failed to decode record", zap.Int("record", h.Record), zap.Error(err))
			} else {
				h.Shape = s
			}
		}
		hits = append(hits, h)
	}
	return hits, nil
}

// diagnostics reports geometry assembly anomalies for one record.
type diagnostics struct {
	log *zap.Logger
	ptr int64
}

func (d diagnostics) debug(msg string, fields ...zap.Field) {
	d.log.Debug(msg, append(fields, zap.Int64("offset", d.ptr))...)
}

func (d diagnostics) warn(msg string, fields ...zap.Field) {
	d.log.Warn(msg, append(fields, zap.Int64("offset", d.ptr))...)
}
