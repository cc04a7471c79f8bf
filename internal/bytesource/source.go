// Package bytesource exposes a file as an immutable byte arena.
//
// A Source is shared by every reader of a file. Readers never mutate it;
// each read obtains its own Cursor positioned at an absolute offset, so
// concurrent decoders need no locking.
package bytesource

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/edsrzf/mmap-go"
)

// ErrClosed is returned when a cursor is requested from a closed source.
var ErrClosed = errors.New("bytesource: source closed")

// Source is a read-only view of a file's bytes.
type Source struct {
	path    string
	f       *os.File
	m       mmap.MMap
	data    []byte
	modTime time.Time
	closed  bool
}

// Open maps the file at path read-only.
//
// Empty files are valid and produce a zero-length source (mmap refuses
// zero-length mappings, so nothing is mapped in that case).
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	s := &Source{path: path, f: f, modTime: info.ModTime()}
	if info.Size() == 0 {
		return s, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	s.m = m
	s.data = m
	return s, nil
}

// FromBytes wraps an in-memory buffer. The caller must not modify b afterwards.
func FromBytes(b []byte) *Source {
	return &Source{data: b}
}

// Path returns the file path, or "" for in-memory sources.
func (s *Source) Path() string { return s.path }

// ModTime returns the modification time observed when the file was opened.
func (s *Source) ModTime() time.Time { return s.modTime }

// Len returns the size of the source in bytes.
func (s *Source) Len() int64 { return int64(len(s.data)) }

// Bytes returns the whole arena. The slice is valid until Close and must
// not be modified.
func (s *Source) Bytes() []byte { return s.data }

// Cursor returns an independent cursor positioned at off.
func (s *Source) Cursor(off int64) *Cursor {
	c := &Cursor{data: s.data}
	if s.closed {
		c.err = ErrClosed
		return c
	}
	c.Seek(off)
	return c
}

// Section returns a cursor restricted to the n bytes starting at off.
// Positions reported by the returned cursor are relative to off.
func (s *Source) Section(off, n int64) *Cursor {
	if s.closed {
		return &Cursor{err: ErrClosed}
	}
	if off < 0 || n < 0 || off+n > int64(len(s.data)) {
		return &Cursor{err: fmt.Errorf("%w: section [%d,+%d) of %d bytes", ErrShortRead, off, n, len(s.data))}
	}
	return &Cursor{data: s.data[off : off+n]}
}

// Close unmaps the file and closes it.
func (s *Source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.data = nil
	if s.m != nil {
		if err := s.m.Unmap(); err != nil {
			s.f.Close()
			return fmt.Errorf("unmap %s: %w", s.path, err)
		}
		s.m = nil
	}
	if s.f != nil {
		err := s.f.Close()
		s.f = nil
		return err
	}
	return nil
}
