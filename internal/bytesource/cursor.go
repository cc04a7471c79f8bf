package bytesource

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrShortRead reports a read past the end of the source.
var ErrShortRead = errors.New("bytesource: read past end of data")

// Cursor reads fixed-width values from a Source.
//
// Errors are sticky: after the first failed read every accessor returns the
// zero value and Err reports the failure. Decoders can therefore read a
// whole structure and check Err once.
type Cursor struct {
	data []byte
	off  int64
	err  error
}

// Pos returns the current absolute offset.
func (c *Cursor) Pos() int64 { return c.off }

// Remaining returns the number of bytes left after the current offset.
func (c *Cursor) Remaining() int64 {
	if c.off >= int64(len(c.data)) {
		return 0
	}
	return int64(len(c.data)) - c.off
}

// Err returns the first error encountered.
func (c *Cursor) Err() error { return c.err }

// Seek moves the cursor to an absolute offset.
func (c *Cursor) Seek(off int64) {
	if c.err != nil {
		return
	}
	if off < 0 || off > int64(len(c.data)) {
		c.err = fmt.Errorf("%w: seek to %d (size %d)", ErrShortRead, off, len(c.data))
		return
	}
	c.off = off
}

// Skip advances the cursor by n bytes.
func (c *Cursor) Skip(n int64) {
	c.Seek(c.off + n)
}

func (c *Cursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if n < 0 || c.off+int64(n) > int64(len(c.data)) {
		c.err = fmt.Errorf("%w: need %d bytes at %d (size %d)", ErrShortRead, n, c.off, len(c.data))
		return nil
	}
	b := c.data[c.off : c.off+int64(n)]
	c.off += int64(n)
	return b
}

// Bytes returns the next n bytes without copying.
func (c *Cursor) Bytes(n int) []byte { return c.take(n) }

// Byte reads one byte.
func (c *Cursor) Byte() byte {
	b := c.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// Int32BE reads a big-endian int32.
func (c *Cursor) Int32BE() int32 {
	b := c.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

// Int32LE reads a little-endian int32.
func (c *Cursor) Int32LE() int32 {
	b := c.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(b))
}

// Uint16LE reads a little-endian uint16.
func (c *Cursor) Uint16LE() uint16 {
	b := c.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// Uint32LE reads a little-endian uint32.
func (c *Cursor) Uint32LE() uint32 {
	b := c.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// Float64LE reads a little-endian IEEE 754 double.
func (c *Cursor) Float64LE() float64 {
	b := c.take(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

// Float64sLE reads n little-endian doubles into a new slice.
func (c *Cursor) Float64sLE(n int) []float64 {
	b := c.take(n * 8)
	if b == nil {
		return nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return out
}

// Int32sLE reads n little-endian int32 values into a new slice.
func (c *Cursor) Int32sLE(n int) []int32 {
	b := c.take(n * 4)
	if b == nil {
		return nil
	}
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
