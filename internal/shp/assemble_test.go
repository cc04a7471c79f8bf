package shp

import (
	"testing"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func box(x1, y1, x2, y2 float64) []orb.Point {
	return []orb.Point{{x1, y1}, {x1, y2}, {x2, y2}, {x2, y1}, {x1, y1}}
}

func observed() (diagnostics, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return diagnostics{log: zap.New(core)}, logs
}

func TestAssemblePolygons(t *testing.T) {
	tests := []struct {
		name      string
		parts     [][]orb.Point
		wantRings []int // rings per polygon
	}{
		{"single ring", [][]orb.Point{box(0, 0, 10, 10)}, []int{1}},
		{"outer with hole", [][]orb.Point{box(0, 0, 10, 10), box(2, 2, 4, 4)}, []int{2}},
		{"outer with two holes", [][]orb.Point{box(0, 0, 10, 10), box(2, 2, 4, 4), box(6, 6, 8, 8)}, []int{3}},
		{"disjoint rings", [][]orb.Point{box(0, 0, 1, 1), box(5, 5, 6, 6)}, []int{1, 1}},
		{"hole before outer", [][]orb.Point{box(2, 2, 4, 4), box(0, 0, 10, 10)}, []int{2}},
		{"degenerate ring dropped", [][]orb.Point{box(0, 0, 10, 10), {{1, 1}, {2, 2}, {1, 1}}}, []int{1}},
		{"two islands with holes", [][]orb.Point{
			box(0, 0, 10, 10), box(1, 1, 2, 2),
			box(20, 20, 30, 30), box(21, 21, 22, 22),
		}, []int{2, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diag, _ := observed()
			mp := assemblePolygons(tt.parts, diag)
			if len(mp) != len(tt.wantRings) {
				t.Fatalf("got %d polygons, want %d", len(mp), len(tt.wantRings))
			}
			for i, n := range tt.wantRings {
				if len(mp[i]) != n {
					t.Errorf("polygon %d has %d rings, want %d", i, len(mp[i]), n)
				}
			}
		})
	}
}

func TestAssemblePolygonsSwapsOnce(t *testing.T) {
	diag, logs := observed()
	mp := assemblePolygons([][]orb.Point{box(2, 2, 4, 4), box(0, 0, 10, 10)}, diag)
	if mp[0][0].Bound() != (orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}) {
		t.Errorf("outer ring not swapped: %v", mp[0][0])
	}
	if logs.FilterMessage("reordering rings, later ring contains the first").Len() != 1 {
		t.Error("expected reordering diagnostic")
	}

	// After a swap a third, larger ring cannot swap again and starts a new polygon.
	mp = assemblePolygons([][]orb.Point{box(2, 2, 4, 4), box(0, 0, 10, 10), box(-5, -5, 50, 50)}, diag)
	if len(mp) != 2 {
		t.Errorf("got %d polygons, want 2", len(mp))
	}
}

func TestPrepareRingClosesOpenRing(t *testing.T) {
	diag, _ := observed()
	ring, ok := prepareRing([]orb.Point{{0, 0}, {0, 1}, {1, 1}, {1, 0}}, diag)
	if !ok {
		t.Fatal("ring dropped")
	}
	if len(ring) != 5 || !ring.Closed() {
		t.Errorf("ring not closed: %v", ring)
	}

	_, ok = prepareRing([]orb.Point{{0, 0}, {0, 1}, {0, 0}}, diag)
	if ok {
		t.Error("ring with 3 points should be dropped")
	}
}

func TestMultiPatchOuterAndInnerRings(t *testing.T) {
	diag, _ := observed()
	mp := assembleMultiPatch([]patchPart{
		{kind: PartOuterRing, points: box(0, 0, 10, 10)},
		{kind: PartInnerRing, points: box(1, 1, 2, 2)},
		{kind: PartInnerRing, points: box(5, 5, 6, 6)},
	}, diag)

	if len(mp) != 1 {
		t.Fatalf("got %d polygons, want 1", len(mp))
	}
	if len(mp[0]) != 3 {
		t.Errorf("polygon has %d rings, want 1 outer and 2 inner", len(mp[0]))
	}
}

func TestMultiPatchLoneInnerRingDropped(t *testing.T) {
	diag, logs := observed()
	mp := assembleMultiPatch([]patchPart{
		{kind: PartInnerRing, points: box(1, 1, 2, 2)},
		{kind: PartRing, points: box(5, 5, 6, 6)},
	}, diag)

	if len(mp) != 1 {
		t.Fatalf("got %d polygons, want only the bare ring", len(mp))
	}
	if mp[0][0].Bound().Min != (orb.Point{5, 5}) {
		t.Errorf("unexpected polygon %v", mp[0])
	}
	if logs.FilterMessage("dropping inner ring without outer ring").Len() != 1 {
		t.Error("expected a diagnostic for the dropped inner ring")
	}
}

func TestMultiPatchInnerRingAfterFlushDropped(t *testing.T) {
	diag, logs := observed()
	mp := assembleMultiPatch([]patchPart{
		{kind: PartOuterRing, points: box(0, 0, 10, 10)},
		{kind: PartTriangleFan, points: []orb.Point{{20, 20}, {21, 20}, {21, 21}}},
		{kind: PartInnerRing, points: box(1, 1, 2, 2)},
	}, diag)

	if len(mp) != 2 {
		t.Fatalf("got %d polygons, want outer ring polygon and one triangle", len(mp))
	}
	if len(mp[0]) != 1 {
		t.Errorf("outer polygon gained rings after flush: %d", len(mp[0]))
	}
	if logs.FilterMessage("dropping inner ring without outer ring").Len() != 1 {
		t.Error("expected a diagnostic for the dropped inner ring")
	}
}

func TestMultiPatchTriangles(t *testing.T) {
	pts := []orb.Point{{0, 0}, {1, 1}, {2, 0}, {3, 1}, {4, 0}}
	tests := []struct {
		kind  PartType
		first orb.Ring
		last  orb.Ring
	}{
		{PartTriangleStrip,
			orb.Ring{{0, 0}, {1, 1}, {2, 0}, {0, 0}},
			orb.Ring{{2, 0}, {3, 1}, {4, 0}, {2, 0}}},
		{PartTriangleFan,
			orb.Ring{{0, 0}, {1, 1}, {2, 0}, {0, 0}},
			orb.Ring{{0, 0}, {3, 1}, {4, 0}, {0, 0}}},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			diag, _ := observed()
			mp := assembleMultiPatch([]patchPart{{kind: tt.kind, points: pts}}, diag)
			if len(mp) != 3 {
				t.Fatalf("got %d triangles, want 3", len(mp))
			}
			if !mp[0][0].Equal(tt.first) {
				t.Errorf("first triangle %v, want %v", mp[0][0], tt.first)
			}
			if !mp[2][0].Equal(tt.last) {
				t.Errorf("last triangle %v, want %v", mp[2][0], tt.last)
			}
		})
	}
}

func TestMultiPatchFirstRingGroup(t *testing.T) {
	diag, _ := observed()
	mp := assembleMultiPatch([]patchPart{
		{kind: PartFirstRing, points: box(0, 0, 10, 10)},
		{kind: PartRing, points: box(1, 1, 2, 2)},
		{kind: PartRing, points: box(20, 20, 30, 30)},
		{kind: PartOuterRing, points: box(40, 40, 50, 50)},
		{kind: PartRing, points: box(60, 60, 70, 70)},
	}, diag)

	want := []int{2, 1, 1, 1}
	if len(mp) != len(want) {
		t.Fatalf("got %d polygons, want %d", len(mp), len(want))
	}
	for i, n := range want {
		if len(mp[i]) != n {
			t.Errorf("polygon %d has %d rings, want %d", i, len(mp[i]), n)
		}
	}
}
