package shp_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/beetlebugorg/shapestore/internal/bytesource"
	"github.com/beetlebugorg/shapestore/internal/shapetest"
	"github.com/beetlebugorg/shapestore/internal/shp"
)

func newReader(t *testing.T, f shapetest.File, opts ...shp.Option) *shp.Reader {
	t.Helper()
	opts = append([]shp.Option{shp.WithLogger(zaptest.NewLogger(t))}, opts...)
	r, err := shp.NewReader(bytesource.FromBytes(f.Bytes()), opts...)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	return r
}

func allShapeTypes() shapetest.File {
	line := []orb.Point{{1, 1}, {4, 6}, {7, 2}}
	ring := shapetest.Box(10, 10, 20, 25)
	hole := shapetest.Box(12, 12, 14, 14)
	return shapetest.File{
		Type: shp.TypePolygon,
		Shapes: []shapetest.Shape{
			shapetest.Point(3, 4),
			shapetest.Point(-5, 8).As(shp.TypePointZ).WithZ(12).WithM(3),
			shapetest.Point(7, -1).As(shp.TypePointM).WithM(9),
			shapetest.Null(),
			shapetest.MultiPoint(orb.Point{0, 0}, orb.Point{2, 9}, orb.Point{-3, 4}),
			shapetest.MultiPoint(orb.Point{1, 2}, orb.Point{3, 4}).As(shp.TypeMultiPointZ).WithZ(5, 6),
			shapetest.MultiPoint(orb.Point{1, 2}, orb.Point{3, 4}).As(shp.TypeMultiPointM).WithM(1, 2),
			shapetest.PolyLine(line, []orb.Point{{-2, -2}, {0, 3}}),
			shapetest.PolyLine(line).As(shp.TypePolyLineZ).WithZ(1, 2, 3),
			shapetest.PolyLine(line).As(shp.TypePolyLineM).WithM(4, 5, 6),
			shapetest.Polygon(ring, hole),
			shapetest.Polygon(ring).As(shp.TypePolygonZ).WithZ(1, 1, 1, 1, 1).WithM(0, 0, 0, 0, 0),
			shapetest.Polygon(ring).As(shp.TypePolygonM).WithM(2, 2, 2, 2, 2),
			shapetest.MultiPatch(
				shapetest.Patch{Type: shp.PartTriangleStrip, Points: []orb.Point{{0, 0}, {1, 5}, {2, 0}, {3, 5}}},
				shapetest.Patch{Type: shp.PartOuterRing, Points: shapetest.Box(-10, -10, -1, -1)},
			).WithZ(0, 1, 2, 3, 4, 5, 6, 7, 8),
		},
	}
}

func TestScanEnvelopesMatchDecode(t *testing.T) {
	f := allShapeTypes()
	r := newReader(t, f)

	res, err := r.ScanEnvelopes()
	if err != nil {
		t.Fatalf("ScanEnvelopes: %v", err)
	}
	if res.Records != len(f.Shapes) {
		t.Errorf("Records = %d, want %d", res.Records, len(f.Shapes))
	}
	if len(res.Entries) != len(f.Shapes)-1 {
		t.Fatalf("got %d entries, want %d (null shape excluded)", len(res.Entries), len(f.Shapes)-1)
	}

	for _, e := range res.Entries {
		s, err := r.Decode(e.Pointer)
		if err != nil {
			t.Fatalf("Decode(%d): %v", e.Pointer, err)
		}
		if s.Geometry == nil {
			t.Fatalf("record %d decoded to nil geometry", e.Record)
		}
		if got := s.Geometry.Bound(); got != e.Bound {
			t.Errorf("record %d (%v): decoded bound %v, scanned bound %v", e.Record, s.Type, got, e.Bound)
		}
		if s.Bound != e.Bound {
			t.Errorf("record %d: stored bound %v, scanned %v", e.Record, s.Bound, e.Bound)
		}
	}
}

func TestDecodeOptionalBlocks(t *testing.T) {
	f := allShapeTypes()
	r := newReader(t, f)
	res, err := r.ScanEnvelopes()
	if err != nil {
		t.Fatal(err)
	}

	byRecord := map[int32]*shp.Shape{}
	for _, e := range res.Entries {
		s, err := r.Decode(e.Pointer)
		if err != nil {
			t.Fatal(err)
		}
		byRecord[e.Record] = s
	}

	tests := []struct {
		record int32
		typ    shp.ShapeType
		z, m   []float64
	}{
		{1, shp.TypePoint, nil, nil},
		{2, shp.TypePointZ, []float64{12}, []float64{3}},
		{3, shp.TypePointM, nil, []float64{9}},
		{6, shp.TypeMultiPointZ, []float64{5, 6}, nil},
		{7, shp.TypeMultiPointM, nil, []float64{1, 2}},
		{9, shp.TypePolyLineZ, []float64{1, 2, 3}, nil},
		{10, shp.TypePolyLineM, nil, []float64{4, 5, 6}},
		{12, shp.TypePolygonZ, []float64{1, 1, 1, 1, 1}, []float64{0, 0, 0, 0, 0}},
	}
	for _, tt := range tests {
		s := byRecord[tt.record]
		if s == nil {
			t.Fatalf("record %d missing", tt.record)
		}
		if s.Type != tt.typ {
			t.Errorf("record %d: type %v, want %v", tt.record, s.Type, tt.typ)
		}
		if diff := cmp.Diff(tt.z, s.Z); diff != "" {
			t.Errorf("record %d Z mismatch (-want +got):\n%s", tt.record, diff)
		}
		if diff := cmp.Diff(tt.m, s.M); diff != "" {
			t.Errorf("record %d M mismatch (-want +got):\n%s", tt.record, diff)
		}
	}

	if mp, ok := byRecord[14].Geometry.(orb.MultiPolygon); !ok || len(mp) != 3 {
		t.Errorf("multipatch: want 2 strip triangles and 1 ring polygon, got %#v", byRecord[14].Geometry)
	}
	if byRecord[14].ZRange != (shp.Range{Min: 0, Max: 8}) {
		t.Errorf("multipatch Z range = %v", byRecord[14].ZRange)
	}
}

func TestRecordNumbering(t *testing.T) {
	shapes := []shapetest.Shape{
		shapetest.Point(0, 0), shapetest.Point(1, 1), shapetest.Point(2, 2),
	}

	for _, zeroBased := range []bool{false, true} {
		name := "one-based"
		if zeroBased {
			name = "zero-based"
		}
		t.Run(name, func(t *testing.T) {
			r := newReader(t, shapetest.File{Type: shp.TypePoint, Shapes: shapes, ZeroBased: zeroBased})
			res, err := r.ScanEnvelopes()
			if err != nil {
				t.Fatal(err)
			}
			wantNumbering := shp.OneBased
			if zeroBased {
				wantNumbering = shp.ZeroBased
			}
			if res.Numbering != wantNumbering {
				t.Errorf("Numbering = %v, want %v", res.Numbering, wantNumbering)
			}

			ptrs := make([]int64, len(res.Entries))
			for i, e := range res.Entries {
				ptrs[i] = e.Pointer
			}
			// Repeated lookups must apply the correction exactly once.
			for pass := 0; pass < 3; pass++ {
				hits, err := r.QueryByPointers(ptrs, false)
				if err != nil {
					t.Fatal(err)
				}
				for i, h := range hits {
					if h.Record != i {
						t.Errorf("pass %d: hit %d has record %d", pass, i, h.Record)
					}
				}
			}
		})
	}
}

func TestZeroBasedDetectedWhileReading(t *testing.T) {
	f := shapetest.File{
		Type:      shp.TypePoint,
		Shapes:    []shapetest.Shape{shapetest.Point(0, 0), shapetest.Point(1, 1)},
		ZeroBased: true,
	}
	core, logs := observer.New(zap.WarnLevel)
	r, err := shp.NewReader(bytesource.FromBytes(f.Bytes()), shp.WithLogger(zap.New(core)), shp.WithNumbering(shp.OneBased))
	if err != nil {
		t.Fatal(err)
	}

	// Pointers of the two point records: each record is 8 + 20 bytes.
	ptrs := []int64{108, 136}
	for pass := 0; pass < 2; pass++ {
		hits, err := r.QueryByPointers(ptrs, true)
		if err != nil {
			t.Fatal(err)
		}
		if hits[0].Record != 0 || hits[1].Record != 1 {
			t.Errorf("pass %d: records %d,%d, want 0,1", pass, hits[0].Record, hits[1].Record)
		}
	}
	if r.Numbering() != shp.ZeroBased {
		t.Errorf("numbering not switched")
	}
	if n := logs.FilterMessageSnippet("zero-based").Len(); n != 1 {
		t.Errorf("expected exactly one switch warning, got %d", n)
	}
}

func TestScanStopsAtTruncatedRecord(t *testing.T) {
	f := shapetest.File{
		Type:   shp.TypePoint,
		Shapes: []shapetest.Shape{shapetest.Point(0, 0), shapetest.Point(1, 1)},
	}
	data := f.Bytes()
	data = data[:len(data)-6]

	r, err := shp.NewReader(bytesource.FromBytes(data), shp.WithLogger(zaptest.NewLogger(t)))
	if err != nil {
		t.Fatal(err)
	}
	res, err := r.ScanEnvelopes()
	if err != nil {
		t.Fatalf("truncated file should scan gracefully: %v", err)
	}
	if len(res.Entries) != 1 {
		t.Errorf("got %d entries, want 1", len(res.Entries))
	}
}

func TestDecodeErrors(t *testing.T) {
	f := shapetest.File{Type: shp.TypePoint, Shapes: []shapetest.Shape{shapetest.Point(0, 0)}}
	r := newReader(t, f)

	if _, err := r.Decode(12); !errors.Is(err, shp.ErrBadPointer) {
		t.Errorf("Decode(12) error = %v, want ErrBadPointer", err)
	}

	bad := shapetest.File{Type: shp.TypePoint, Shapes: []shapetest.Shape{{Type: 42}}}
	r = newReader(t, bad)
	_, err := r.Decode(108)
	var unsupported *shp.UnsupportedShapeError
	if !errors.As(err, &unsupported) || unsupported.Code != 42 {
		t.Errorf("Decode error = %v, want UnsupportedShapeError{42}", err)
	}
}

func TestHeader(t *testing.T) {
	f := shapetest.File{
		Type:   shp.TypePolyLine,
		Shapes: []shapetest.Shape{shapetest.PolyLine([]orb.Point{{-1, -2}, {3, 4}})},
	}
	h := newReader(t, f).Header()
	if h.FileCode != 9994 || h.Version != 1000 {
		t.Errorf("file code/version = %d/%d", h.FileCode, h.Version)
	}
	if h.ShapeType != shp.TypePolyLine {
		t.Errorf("ShapeType = %v", h.ShapeType)
	}
	if h.FileLength != int64(len(f.Bytes())) {
		t.Errorf("FileLength = %d, want %d", h.FileLength, len(f.Bytes()))
	}
	want := orb.Bound{Min: orb.Point{-1, -2}, Max: orb.Point{3, 4}}
	if h.Bound != want {
		t.Errorf("Bound = %v, want %v", h.Bound, want)
	}
}

func TestHeaderTooShort(t *testing.T) {
	_, err := shp.NewReader(bytesource.FromBytes(make([]byte, 40)))
	if !errors.Is(err, shp.ErrHeader) {
		t.Errorf("error = %v, want ErrHeader", err)
	}
}

func TestOutOfRangeCoordinatesDecode(t *testing.T) {
	f := shapetest.File{
		Type: shp.TypePolyLine,
		Shapes: []shapetest.Shape{
			shapetest.PolyLine([]orb.Point{{-1e300, 1e300}, {1e308, -1e308}, {0, 0}}),
		},
	}
	r := newReader(t, f)
	s, err := r.Decode(108)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	mls := s.Geometry.(orb.MultiLineString)
	if len(mls) != 1 || len(mls[0]) != 3 || mls[0][1][0] != 1e308 {
		t.Errorf("unexpected geometry %v", mls)
	}
}

func BenchmarkDecodePolygon(b *testing.B) {
	ring := make([]orb.Point, 0, 1001)
	for i := 0; i < 1000; i++ {
		ring = append(ring, orb.Point{float64(i), float64(i % 7)})
	}
	ring = append(ring, ring[0])
	f := shapetest.File{Type: shp.TypePolygon, Shapes: []shapetest.Shape{shapetest.Polygon(ring)}}
	r, err := shp.NewReader(bytesource.FromBytes(f.Bytes()))
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.Decode(108); err != nil {
			b.Fatal(err)
		}
	}
}
