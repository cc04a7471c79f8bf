package shapetest

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// Field describes one dBASE column of a fixture.
//
// For type 'C' the effective width is Length + Decimals*256, mirroring the
// extended character field convention.
type Field struct {
	Name     string
	Type     byte
	Length   byte
	Decimals byte
}

// Width returns the number of bytes the field occupies in a record.
func (f Field) Width() int {
	if f.Type == 'C' {
		return int(f.Length) + int(f.Decimals)*256
	}
	return int(f.Length)
}

// DBF is a synthetic .dbf file. Each row holds the raw text of each field;
// values are padded to the field width (numbers right-aligned).
type DBF struct {
	Fields         []Field
	Rows           [][]string
	Deleted        map[int]bool
	LanguageDriver byte
	Incomplete     bool
	Encrypted      bool
	// RecordCount overrides the stored record count when non-zero.
	RecordCount int32
}

func pad(v string, width int, right bool) string {
	if len(v) >= width {
		return v[:width]
	}
	fill := strings.Repeat(" ", width-len(v))
	if right {
		return fill + v
	}
	return v + fill
}

// Bytes encodes the file.
func (d DBF) Bytes() []byte {
	recLen := 1
	for _, f := range d.Fields {
		recLen += f.Width()
	}
	headerLen := 32 + 32*len(d.Fields) + 1
	count := int32(len(d.Rows))
	if d.RecordCount != 0 {
		count = d.RecordCount
	}

	h := make([]byte, 32)
	h[0] = 0x03
	h[1], h[2], h[3] = 124, 1, 15
	binary.LittleEndian.PutUint32(h[4:], uint32(count))
	binary.LittleEndian.PutUint16(h[8:], uint16(headerLen))
	binary.LittleEndian.PutUint16(h[10:], uint16(recLen))
	if d.Incomplete {
		h[14] = 1
	}
	if d.Encrypted {
		h[15] = 1
	}
	h[29] = d.LanguageDriver

	out := h
	for _, f := range d.Fields {
		desc := make([]byte, 32)
		copy(desc[0:11], f.Name)
		desc[11] = f.Type
		desc[16] = f.Length
		desc[17] = f.Decimals
		out = append(out, desc...)
	}
	out = append(out, 0x0D)

	for i, row := range d.Rows {
		if d.Deleted[i] {
			out = append(out, '*')
		} else {
			out = append(out, ' ')
		}
		for j, f := range d.Fields {
			v := ""
			if j < len(row) {
				v = row[j]
			}
			right := f.Type == 'N' || f.Type == 'F'
			out = append(out, pad(v, f.Width(), right)...)
		}
	}
	return append(out, 0x1A)
}

// Write writes the file to dir/name and returns the path.
func (d DBF) Write(t testing.TB, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, d.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// Int32 encodes v as the raw bytes of an 'I' field.
func Int32(v int32) string {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return string(b)
}

// Timestamp encodes t as the raw bytes of an '@' field: Julian day number
// followed by milliseconds since midnight, both little-endian.
func Timestamp(t time.Time) string {
	t = t.UTC()
	days := int64(2440588) + t.Unix()/86400
	if t.Unix() < 0 && t.Unix()%86400 != 0 {
		days--
	}
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	ms := t.Sub(midnight).Milliseconds()
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:], uint32(days))
	binary.LittleEndian.PutUint32(b[4:], uint32(ms))
	return string(b)
}
