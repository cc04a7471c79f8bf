package shapestore

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is returned by queries while the store cannot read its
	// files. The next query retries opening them.
	ErrUnavailable = errors.New("shapestore: store unavailable")

	// ErrUnsupported is matched by every UnsupportedOperationError.
	ErrUnsupported = errors.New("shapestore: operation not supported")

	// ErrUnknownCRS is returned by transformers for a CRS they cannot
	// handle.
	ErrUnknownCRS = errors.New("shapestore: unknown CRS")
)

// UnsupportedOperationError reports a write or lookup operation the
// read-only store does not provide.
type UnsupportedOperationError struct {
	Op string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("shapestore: %s is not supported by shapefile stores", e.Op)
}

func (e *UnsupportedOperationError) Is(target error) bool {
	return target == ErrUnsupported
}

// TypeMismatchError reports a query for a feature type the store does not
// serve.
type TypeMismatchError struct {
	Requested string
	Served    QName
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("shapestore: feature type %q requested, store serves %s", e.Requested, e.Served)
}

// ConfigError reports an invalid store configuration. It is fatal to Init.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("shapestore: invalid configuration %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// unavailable wraps cause so that errors.Is matches both ErrUnavailable
// and the cause.
type unavailable struct {
	name  string
	cause error
}

func (e *unavailable) Error() string {
	return fmt.Sprintf("shapestore: %s unavailable: %v", e.name, e.cause)
}

func (e *unavailable) Unwrap() []error { return []error{ErrUnavailable, e.cause} }
