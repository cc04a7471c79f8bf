// Package shapetest writes synthetic shapefile and dBASE fixtures for tests.
package shapetest

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/beetlebugorg/shapestore/internal/shp"
)

// Shape is one record of a fixture file.
//
// Parts holds the coordinate parts (a single part for points). PartTypes is
// used for MultiPatch only. Z is written for Z types (zeros if empty); M is
// written only when non-empty.
type Shape struct {
	Type      shp.ShapeType
	Parts     [][]orb.Point
	PartTypes []shp.PartType
	Z         []float64
	M         []float64
	Number    int32 // stored record number; 0 means sequential
}

// Null returns a null shape.
func Null() Shape { return Shape{Type: shp.TypeNull} }

// Point returns a Point shape.
func Point(x, y float64) Shape {
	return Shape{Type: shp.TypePoint, Parts: [][]orb.Point{{{x, y}}}}
}

// MultiPoint returns a MultiPoint shape.
func MultiPoint(pts ...orb.Point) Shape {
	return Shape{Type: shp.TypeMultiPoint, Parts: [][]orb.Point{pts}}
}

// PolyLine returns a PolyLine shape.
func PolyLine(parts ...[]orb.Point) Shape {
	return Shape{Type: shp.TypePolyLine, Parts: parts}
}

// Polygon returns a Polygon shape with the given rings.
func Polygon(rings ...[]orb.Point) Shape {
	return Shape{Type: shp.TypePolygon, Parts: rings}
}

// Patch is one MultiPatch part.
type Patch struct {
	Type   shp.PartType
	Points []orb.Point
}

// MultiPatch returns a MultiPatch shape.
func MultiPatch(patches ...Patch) Shape {
	s := Shape{Type: shp.TypeMultiPatch}
	for _, p := range patches {
		s.Parts = append(s.Parts, p.Points)
		s.PartTypes = append(s.PartTypes, p.Type)
	}
	return s
}

// Box returns the closed ring of an axis-aligned rectangle.
func Box(x1, y1, x2, y2 float64) []orb.Point {
	return []orb.Point{{x1, y1}, {x1, y2}, {x2, y2}, {x2, y1}, {x1, y1}}
}

// As returns a copy of s with a different shape type, used to build Z and
// M variants.
func (s Shape) As(t shp.ShapeType) Shape {
	s.Type = t
	return s
}

// WithZ returns a copy of s carrying Z values.
func (s Shape) WithZ(z ...float64) Shape {
	s.Z = z
	return s
}

// WithM returns a copy of s carrying M values.
func (s Shape) WithM(m ...float64) Shape {
	s.M = m
	return s
}

// Numbered returns a copy of s with an explicit stored record number.
func (s Shape) Numbered(n int32) Shape {
	s.Number = n
	return s
}

func (s Shape) points() []orb.Point {
	var pts []orb.Point
	for _, p := range s.Parts {
		pts = append(pts, p...)
	}
	return pts
}

// Bound returns the bounding box of all points of s.
func (s Shape) Bound() orb.Bound {
	pts := s.points()
	if len(pts) == 0 {
		return orb.Bound{}
	}
	b := orb.Bound{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		b = b.Extend(p)
	}
	return b
}

// File is a synthetic .shp file.
type File struct {
	Type      shp.ShapeType
	Shapes    []Shape
	ZeroBased bool // number records from 0 instead of 1
}

type buf struct{ b []byte }

func (w *buf) i32be(v int32) { w.b = binary.BigEndian.AppendUint32(w.b, uint32(v)) }
func (w *buf) i32le(v int32) { w.b = binary.LittleEndian.AppendUint32(w.b, uint32(v)) }
func (w *buf) f64(v float64) { w.b = binary.LittleEndian.AppendUint64(w.b, math.Float64bits(v)) }
func (w *buf) bound(b orb.Bound) {
	w.f64(b.Min[0])
	w.f64(b.Min[1])
	w.f64(b.Max[0])
	w.f64(b.Max[1])
}

func ordinateRange(v []float64) (float64, float64) {
	if len(v) == 0 {
		return 0, 0
	}
	lo, hi := v[0], v[0]
	for _, x := range v[1:] {
		lo, hi = min(lo, x), max(hi, x)
	}
	return lo, hi
}

func (w *buf) block(v []float64, n int) {
	vals := make([]float64, n)
	copy(vals, v)
	lo, hi := ordinateRange(vals)
	w.f64(lo)
	w.f64(hi)
	for _, x := range vals {
		w.f64(x)
	}
}

// content encodes the record payload, shape type included.
func (s Shape) content() []byte {
	w := &buf{}
	w.i32le(int32(s.Type))
	pts := s.points()

	switch s.Type.Family() {
	case shp.FamilyNull:
	case shp.FamilyPoint:
		w.f64(pts[0][0])
		w.f64(pts[0][1])
		if s.Type == shp.TypePointZ {
			z := 0.0
			if len(s.Z) > 0 {
				z = s.Z[0]
			}
			w.f64(z)
		}
		if len(s.M) > 0 {
			w.f64(s.M[0])
		}
	case shp.FamilyMultiPoint:
		w.bound(s.Bound())
		w.i32le(int32(len(pts)))
		for _, p := range pts {
			w.f64(p[0])
			w.f64(p[1])
		}
		if s.Type.HasZ() {
			w.block(s.Z, len(pts))
		}
		if len(s.M) > 0 {
			w.block(s.M, len(pts))
		}
	default:
		w.bound(s.Bound())
		w.i32le(int32(len(s.Parts)))
		w.i32le(int32(len(pts)))
		start := int32(0)
		for _, p := range s.Parts {
			w.i32le(start)
			start += int32(len(p))
		}
		if s.Type == shp.TypeMultiPatch {
			for _, t := range s.PartTypes {
				w.i32le(int32(t))
			}
		}
		for _, p := range pts {
			w.f64(p[0])
			w.f64(p[1])
		}
		if s.Type.HasZ() {
			w.block(s.Z, len(pts))
		}
		if len(s.M) > 0 {
			w.block(s.M, len(pts))
		}
	}
	return w.b
}

// Bytes encodes the whole file.
func (f File) Bytes() []byte {
	body := &buf{}
	var all orb.Bound
	first := true
	var zs, ms []float64
	for i, s := range f.Shapes {
		num := int32(i + 1)
		if f.ZeroBased {
			num = int32(i)
		}
		if s.Number != 0 {
			num = s.Number
		}
		c := s.content()
		body.i32be(num)
		body.i32be(int32(len(c) / 2))
		body.b = append(body.b, c...)

		if s.Type != shp.TypeNull {
			if first {
				all = s.Bound()
				first = false
			} else {
				all = all.Union(s.Bound())
			}
			zs = append(zs, s.Z...)
			ms = append(ms, s.M...)
		}
	}

	h := &buf{}
	h.i32be(9994)
	for i := 0; i < 5; i++ {
		h.i32be(0)
	}
	h.i32be(int32((100 + len(body.b)) / 2))
	h.i32le(1000)
	h.i32le(int32(f.Type))
	h.bound(all)
	zlo, zhi := ordinateRange(zs)
	mlo, mhi := ordinateRange(ms)
	h.f64(zlo)
	h.f64(zhi)
	h.f64(mlo)
	h.f64(mhi)
	return append(h.b, body.b...)
}

// Write writes the file to dir/name and returns the path.
func (f File) Write(t testing.TB, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, f.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// Touch sets the modification time of path to mtime.
func Touch(t testing.TB, path string, mtime time.Time) {
	t.Helper()
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("touch %s: %v", path, err)
	}
}
