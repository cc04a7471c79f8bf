// Package dbf decodes dBASE III/IV attribute tables (.dbf) as shipped with
// shapefiles.
//
// A table is a 32-byte header, a list of 32-byte field descriptors closed by
// 0x0D, and fixed-length records. Each record starts with a deletion flag
// byte followed by the fields in descriptor order.
package dbf

import (
	"errors"
	"fmt"
	"time"
)

// FieldType is the semantic type a storage code decodes to.
type FieldType int

const (
	String FieldType = iota
	Decimal
	Integer
	Boolean
	Date
	DateTime
)

func (t FieldType) String() string {
	switch t {
	case String:
		return "string"
	case Decimal:
		return "decimal"
	case Integer:
		return "integer"
	case Boolean:
		return "boolean"
	case Date:
		return "date"
	case DateTime:
		return "datetime"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

// fieldTypeOf maps a storage code to its semantic type.
func fieldTypeOf(code byte) (FieldType, bool) {
	switch code {
	case 'C':
		return String, true
	case 'N', 'F':
		return Decimal, true
	case 'L':
		return Boolean, true
	case 'D':
		return Date, true
	case 'I':
		return Integer, true
	case '@':
		return DateTime, true
	}
	return 0, false
}

// Field is a decoded field descriptor.
type Field struct {
	Name         string    // trimmed, unique within the table
	Code         byte      // storage type code
	Type         FieldType // semantic type
	Length       int       // width in bytes, extended for 'C'
	DecimalCount int
	Indexed      bool // production index flag (dBASE IV)
	offset       int  // from the start of the record, after the deletion flag
}

// Header is the fixed table header.
type Header struct {
	Version        byte
	LastUpdate     time.Time
	NumRecords     int
	HeaderLength   int
	RecordLength   int
	Incomplete     bool // incomplete transaction flag
	Encrypted      bool
	LanguageDriver byte
}

// Record is one decoded row. Fields whose value is blank or unparseable
// have no entry in Values.
type Record struct {
	Number  int // zero-based
	Deleted bool
	Values  map[string]any
}

var (
	// ErrHeader indicates a malformed table header.
	ErrHeader = errors.New("dbf: malformed header")

	// ErrRecordRange indicates a record number outside the table.
	ErrRecordRange = errors.New("dbf: record number out of range")

	// ErrTruncated indicates a record extends past the end of the file.
	ErrTruncated = errors.New("dbf: truncated record")
)

// UnknownEncodingError reports an encoding name that cannot be resolved.
type UnknownEncodingError struct {
	Name string
}

func (e *UnknownEncodingError) Error() string {
	return fmt.Sprintf("dbf: unknown encoding %q", e.Name)
}
