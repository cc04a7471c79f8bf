package shp

import (
	"fmt"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/beetlebugorg/shapestore/internal/bytesource"
)

// recordDecoder decodes one record's content. The cursor is restricted to
// the declared content length and starts at the shape type.
type recordDecoder struct {
	c      *bytesource.Cursor
	length int64
	diag   diagnostics
}

func (d *recordDecoder) decode() (*Shape, error) {
	typ := ShapeType(d.c.Int32LE())
	if err := d.c.Err(); err != nil {
		return nil, err
	}

	var (
		s   *Shape
		err error
	)
	switch typ.Family() {
	case FamilyNull:
		if typ != TypeNull {
			return nil, &UnsupportedShapeError{Code: typ}
		}
		s = &Shape{Type: TypeNull}
	case FamilyPoint:
		s, err = d.point(typ)
	case FamilyMultiPoint:
		s, err = d.multiPoint(typ)
	case FamilyPolyLine:
		s, err = d.poly(typ, false)
	case FamilyPolygon:
		s, err = d.poly(typ, true)
	case FamilyMultiPatch:
		s, err = d.multiPatch()
	}
	if err != nil {
		return nil, err
	}
	if err := d.c.Err(); err != nil {
		return nil, fmt.Errorf("%v record: %w", typ, err)
	}
	return s, nil
}

// require checks that the declared length covers n bytes.
func (d *recordDecoder) require(typ ShapeType, n int64) error {
	if d.length < n {
		return &LengthMismatchError{Type: typ, Declared: d.length, Required: n}
	}
	return nil
}

func (d *recordDecoder) bound() orb.Bound {
	xmin, ymin := d.c.Float64LE(), d.c.Float64LE()
	xmax, ymax := d.c.Float64LE(), d.c.Float64LE()
	return orb.Bound{Min: orb.Point{xmin, ymin}, Max: orb.Point{xmax, ymax}}
}

func (d *recordDecoder) points(n int) []orb.Point {
	raw := d.c.Float64sLE(2 * n)
	if raw == nil {
		return nil
	}
	pts := make([]orb.Point, n)
	for i := range pts {
		pts[i] = orb.Point{raw[2*i], raw[2*i+1]}
	}
	return pts
}

// ordinates reads an optional Z or M block of n values when the declared
// length reaches end, the offset just past the block. The values are nil
// when the block is absent.
func (d *recordDecoder) ordinates(n int, end int64) (Range, []float64) {
	if d.length < end {
		return Range{}, nil
	}
	r := Range{Min: d.c.Float64LE(), Max: d.c.Float64LE()}
	return r, d.c.Float64sLE(n)
}

// count reads a part or point count and rejects negative values.
func (d *recordDecoder) count(what string) (int, error) {
	n := d.c.Int32LE()
	if n < 0 {
		return 0, fmt.Errorf("negative %s count %d", what, n)
	}
	return int(n), nil
}

func (d *recordDecoder) point(typ ShapeType) (*Shape, error) {
	if err := d.require(typ, 20); err != nil {
		return nil, err
	}
	x, y := d.c.Float64LE(), d.c.Float64LE()
	p := orb.Point{x, y}
	s := &Shape{Type: typ, Geometry: p, Bound: p.Bound()}

	switch typ {
	case TypePointZ:
		if d.length >= 28 {
			z := d.c.Float64LE()
			s.Z = []float64{z}
			s.ZRange = Range{Min: z, Max: z}
		}
		if d.length >= 36 {
			m := d.c.Float64LE()
			s.M = []float64{m}
			s.MRange = Range{Min: m, Max: m}
		}
	case TypePointM:
		if d.length >= 28 {
			m := d.c.Float64LE()
			s.M = []float64{m}
			s.MRange = Range{Min: m, Max: m}
		}
	}
	return s, nil
}

func (d *recordDecoder) multiPoint(typ ShapeType) (*Shape, error) {
	if err := d.require(typ, 40); err != nil {
		return nil, err
	}
	b := d.bound()
	n, err := d.count("point")
	if err != nil {
		return nil, err
	}
	base := int64(40) + 16*int64(n)
	if err := d.require(typ, base); err != nil {
		return nil, err
	}
	pts := d.points(n)
	s := &Shape{Type: typ, Geometry: orb.MultiPoint(pts), Bound: b}

	block := 16 + 8*int64(n)
	end := base
	if typ.HasZ() {
		end += block
		s.ZRange, s.Z = d.ordinates(n, end)
	}
	if typ.MayHaveM() {
		s.MRange, s.M = d.ordinates(n, end+block)
	}
	return s, nil
}

// partsHeader reads the common box, part and point counts and part offsets of
// PolyLine, Polygon and MultiPatch records.
func (d *recordDecoder) partsHeader(typ ShapeType) (orb.Bound, []int32, int, error) {
	if err := d.require(typ, 44); err != nil {
		return orb.Bound{}, nil, 0, err
	}
	b := d.bound()
	numParts, err := d.count("part")
	if err != nil {
		return b, nil, 0, err
	}
	numPoints, err := d.count("point")
	if err != nil {
		return b, nil, 0, err
	}
	if err := d.require(typ, 44+4*int64(numParts)); err != nil {
		return b, nil, 0, err
	}
	parts := d.c.Int32sLE(numParts)
	for i, p := range parts {
		if p < 0 || int(p) > numPoints || (i > 0 && p < parts[i-1]) {
			return b, nil, 0, fmt.Errorf("part %d starts at invalid point index %d", i, p)
		}
	}
	return b, parts, numPoints, nil
}

// split slices pts into parts using the stored start offsets.
func split(pts []orb.Point, parts []int32) [][]orb.Point {
	out := make([][]orb.Point, len(parts))
	for i, start := range parts {
		end := len(pts)
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		out[i] = pts[start:end]
	}
	return out
}

func (d *recordDecoder) poly(typ ShapeType, polygon bool) (*Shape, error) {
	b, parts, numPoints, err := d.partsHeader(typ)
	if err != nil {
		return nil, err
	}
	base := 44 + 4*int64(len(parts)) + 16*int64(numPoints)
	if err := d.require(typ, base); err != nil {
		return nil, err
	}
	pts := d.points(numPoints)
	if err := d.c.Err(); err != nil {
		return nil, err
	}

	s := &Shape{Type: typ, Bound: b}
	block := 16 + 8*int64(numPoints)
	end := base
	if typ.HasZ() {
		end += block
		s.ZRange, s.Z = d.ordinates(numPoints, end)
	}
	if typ.MayHaveM() {
		s.MRange, s.M = d.ordinates(numPoints, end+block)
	}

	pieces := split(pts, parts)
	if polygon {
		s.Geometry = assemblePolygons(pieces, d.diag)
		return s, nil
	}
	mls := make(orb.MultiLineString, 0, len(pieces))
	for _, p := range pieces {
		mls = append(mls, orb.LineString(p))
	}
	s.Geometry = mls
	return s, nil
}

func (d *recordDecoder) multiPatch() (*Shape, error) {
	typ := TypeMultiPatch
	b, parts, numPoints, err := d.partsHeader(typ)
	if err != nil {
		return nil, err
	}
	base := 44 + 8*int64(len(parts)) + 16*int64(numPoints)
	if err := d.require(typ, base); err != nil {
		return nil, err
	}
	kinds := d.c.Int32sLE(len(parts))
	pts := d.points(numPoints)
	if err := d.c.Err(); err != nil {
		return nil, err
	}

	s := &Shape{Type: typ, Bound: b}
	block := 16 + 8*int64(numPoints)
	s.ZRange, s.Z = d.ordinates(numPoints, base+block)
	s.MRange, s.M = d.ordinates(numPoints, base+2*block)

	pieces := split(pts, parts)
	patch := make([]patchPart, len(pieces))
	for i := range pieces {
		patch[i] = patchPart{kind: PartType(kinds[i]), points: pieces[i]}
	}
	s.Geometry = assembleMultiPatch(patch, d.diag)
	if len(s.Geometry.(orb.MultiPolygon)) == 0 && len(parts) > 0 {
		d.diag.debug("multipatch produced no polygons", zap.Int("parts", len(parts)))
	}
	return s, nil
}
