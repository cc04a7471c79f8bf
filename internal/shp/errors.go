package shp

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated indicates a record extends past the end of the file.
	ErrTruncated = errors.New("shp: truncated record")

	// ErrBadPointer indicates a file pointer that cannot address a record.
	ErrBadPointer = errors.New("shp: invalid record pointer")

	// ErrHeader indicates a file too short to hold the main file header.
	ErrHeader = errors.New("shp: file shorter than header")
)

// UnsupportedShapeError reports a shape type code outside the documented set.
type UnsupportedShapeError struct {
	Code ShapeType
}

func (e *UnsupportedShapeError) Error() string {
	return fmt.Sprintf("shp: unsupported shape type %d", int32(e.Code))
}

// RecordError wraps a decoding failure of a single record.
type RecordError struct {
	Pointer int64
	Err     error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("shp: record at offset %d: %v", e.Pointer, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// LengthMismatchError reports a record whose declared content length is
// shorter than its payload requires.
type LengthMismatchError struct {
	Type     ShapeType
	Declared int64
	Required int64
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("shp: %v record declares %d bytes, needs %d", e.Type, e.Declared, e.Required)
}
