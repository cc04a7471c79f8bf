package dbf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"

	"github.com/beetlebugorg/shapestore/internal/bytesource"
)

const (
	tableHeaderSize = 32
	descriptorSize  = 32
	terminator      = 0x0D
	deletedMarker   = '*'

	// julianUnixEpoch is the Julian day number of 1970-01-01.
	julianUnixEpoch = 2440588
)

// Reader decodes records of one table. It is safe for concurrent use.
type Reader struct {
	src    *bytesource.Source
	header Header
	fields []Field
	text   textDecoder
	log    *zap.Logger
	enc    encoding.Encoding
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

// WithEncoding forces the character encoding of names and text values.
// Without it the language driver byte is consulted, then the content is
// guessed per value.
func WithEncoding(enc encoding.Encoding) Option {
	return func(r *Reader) { r.enc = enc }
}

// Open maps the table at path and decodes its header.
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

// NewReader decodes the header and field descriptors of src. The reader
// takes ownership of src.
func NewReader(src *bytesource.Source, opts ...Option) (*Reader, error) {
	r := &Reader{src: src, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.readHeader(); err != nil {
		return nil, err
	}

	enc := r.enc
	if enc == nil {
		enc = languageDrivers[r.header.LanguageDriver]
	}
	r.text = decoderFor(enc)

	if err := r.readFields(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) readHeader() error {
	if r.src.Len() < tableHeaderSize {
		return fmt.Errorf("%w: %d bytes", ErrHeader, r.src.Len())
	}
	c := r.src.Cursor(0)
	h := Header{}
	h.Version = c.Byte()
	yy, mm, dd := c.Byte(), c.Byte(), c.Byte()
	if mm >= 1 && mm <= 12 && dd >= 1 && dd <= 31 {
		h.LastUpdate = time.Date(1900+int(yy), time.Month(mm), int(dd), 0, 0, 0, 0, time.UTC)
	}
	h.NumRecords = int(c.Uint32LE())
	h.HeaderLength = int(c.Uint16LE())
	h.RecordLength = int(c.Uint16LE())
	c.Seek(14)
	h.Incomplete = c.Byte() != 0
	h.Encrypted = c.Byte() != 0
	c.Seek(29)
	h.LanguageDriver = c.Byte()
	if err := c.Err(); err != nil {
		return err
	}

	if h.HeaderLength < tableHeaderSize+1 || h.RecordLength < 1 {
		return fmt.Errorf("%w: header length %d, record length %d", ErrHeader, h.HeaderLength, h.RecordLength)
	}
	if h.Incomplete {
		r.log.Warn("dbf has incomplete transaction flag set", zap.String("file", r.src.Path()))
	}
	if h.Encrypted {
		r.log.Warn("dbf has encryption flag set", zap.String("file", r.src.Path()))
	}
	if avail := (r.src.Len() - int64(h.HeaderLength)) / int64(h.RecordLength); avail < int64(h.NumRecords) {
		r.log.Warn("dbf declares more records than the file holds",
			zap.String("file", r.src.Path()),
			zap.Int("declared", h.NumRecords), zap.Int64("available", avail))
	}
	r.header = h
	return nil
}

func (r *Reader) readFields() error {
	h := r.header
	offset := 0
	seen := map[string]int{}

	for pos := int64(tableHeaderSize); pos < int64(h.HeaderLength); pos += descriptorSize {
		c := r.src.Cursor(pos)
		if c.Byte() == terminator {
			break
		}
		if pos+descriptorSize > int64(h.HeaderLength) {
			r.log.Warn("field descriptors not terminated", zap.String("file", r.src.Path()))
			break
		}
		c.Seek(pos)
		raw := c.Bytes(11)
		code := c.Byte()
		c.Skip(4)
		length := int(c.Byte())
		decimals := int(c.Byte())
		c.Skip(13)
		indexed := c.Byte() != 0
		if err := c.Err(); err != nil {
			return fmt.Errorf("%w: field descriptor at %d: %v", ErrHeader, pos, err)
		}

		if i := bytes.IndexByte(raw, 0); i >= 0 {
			raw = raw[:i]
		}
		name := strings.TrimSpace(r.text.decode(raw))

		// Character fields wider than 255 bytes keep the high byte of the
		// width in the decimal count.
		if code == 'C' {
			length += decimals * 256
			decimals = 0
		}

		f := Field{
			Name:         name,
			Code:         code,
			Length:       length,
			DecimalCount: decimals,
			Indexed:      indexed,
			offset:       offset,
		}
		offset += length
		if offset+1 > h.RecordLength {
			r.log.Warn("field extends past record length, ignoring remaining fields",
				zap.String("field", name), zap.Int("record_length", h.RecordLength))
			break
		}

		typ, ok := fieldTypeOf(code)
		if !ok {
			r.log.Warn("skipping field of unsupported type",
				zap.String("field", name), zap.String("code", string(code)))
			continue
		}
		f.Type = typ

		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			f.Name = name + "__" + strconv.Itoa(n)
			r.log.Debug("renaming duplicate field", zap.String("field", name), zap.String("as", f.Name))
		} else {
			seen[name] = 1
		}
		r.fields = append(r.fields, f)
	}
	return nil
}

// Header returns the decoded table header.
func (r *Reader) Header() Header { return r.header }

// Fields returns the supported fields in table order.
func (r *Reader) Fields() []Field { return r.fields }

// NumRecords returns the record count stored in the header.
func (r *Reader) NumRecords() int { return r.header.NumRecords }

// ModTime returns the modification time of the underlying file.
func (r *Reader) ModTime() time.Time { return r.src.ModTime() }

// Size returns the size of the underlying file in bytes.
func (r *Reader) Size() int64 { return r.src.Len() }

// Close releases the byte source. It must not be called while reads are
// in progress.
func (r *Reader) Close() error { return r.src.Close() }

// GetRecord decodes record n (zero-based).
func (r *Reader) GetRecord(n int) (Record, error) {
	h := r.header
	if n < 0 || n >= h.NumRecords {
		return Record{}, fmt.Errorf("%w: %d of %d", ErrRecordRange, n, h.NumRecords)
	}
	off := int64(h.HeaderLength) + int64(n)*int64(h.RecordLength)
	c := r.src.Section(off, int64(h.RecordLength))
	data := c.Bytes(h.RecordLength)
	if err := c.Err(); err != nil {
		return Record{}, fmt.Errorf("%w: record %d: %v", ErrTruncated, n, err)
	}

	rec := Record{
		Number:  n,
		Deleted: data[0] == deletedMarker,
		Values:  make(map[string]any, len(r.fields)),
	}
	for i := range r.fields {
		f := &r.fields[i]
		raw := data[1+f.offset : 1+f.offset+f.Length]
		if v, ok := r.value(f, raw, n); ok {
			rec.Values[f.Name] = v
		}
	}
	return rec, nil
}

// blank reports whether b holds only padding. Binary fields treat NUL as
// data, so only spaces count as padding for them.
func blank(b []byte, binaryField bool) bool {
	for _, c := range b {
		if c == ' ' || (c == 0 && !binaryField) {
			continue
		}
		return false
	}
	return true
}

// value decodes one field. ok is false for blank or unparseable values.
func (r *Reader) value(f *Field, raw []byte, rec int) (any, bool) {
	if blank(raw, f.Code == 'I' || f.Code == '@') {
		return nil, false
	}

	switch f.Code {
	case 'C':
		s := strings.TrimSpace(r.text.decode(bytes.TrimRight(raw, "\x00")))
		return s, s != ""

	case 'N', 'F':
		s := string(bytes.TrimSpace(raw))
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(v) {
			r.log.Debug("unparseable numeric value",
				zap.String("field", f.Name), zap.Int("record", rec), zap.String("value", s))
			return nil, false
		}
		return v, true

	case 'L':
		switch raw[0] {
		case 'Y', 'y', 'T', 't':
			return true, true
		case 'N', 'n', 'F', 'f':
			return false, true
		}
		return nil, false

	case 'D':
		s := string(bytes.TrimSpace(raw))
		if s == "00000000" {
			return nil, false
		}
		t, err := time.Parse("20060102", s)
		if err != nil {
			r.log.Debug("unparseable date value",
				zap.String("field", f.Name), zap.Int("record", rec), zap.String("value", s))
			return nil, false
		}
		return t, true

	case 'I':
		if len(raw) < 4 {
			return nil, false
		}
		return int64(int32(binary.LittleEndian.Uint32(raw))), true

	case '@':
		if len(raw) < 8 {
			return nil, false
		}
		days := int64(int32(binary.LittleEndian.Uint32(raw[0:])))
		ms := int64(int32(binary.LittleEndian.Uint32(raw[4:])))
		if days == 0 && ms == 0 {
			return nil, false
		}
		return time.UnixMilli((days-julianUnixEpoch)*86400000 + ms).UTC(), true
	}
	return nil, false
}
