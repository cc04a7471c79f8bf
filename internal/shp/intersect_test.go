package shp

import (
	"testing"

	"github.com/paulmach/orb"
)

func TestIntersects(t *testing.T) {
	b := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}

	tests := []struct {
		name string
		g    orb.Geometry
		want bool
	}{
		{"nil", nil, false},
		{"point inside", orb.Point{5, 5}, true},
		{"point on edge", orb.Point{10, 3}, true},
		{"point outside", orb.Point{11, 3}, false},
		{"line crossing", orb.MultiLineString{{{-5, 5}, {15, 5}}}, true},
		{"line diagonal miss", orb.MultiLineString{{{11, 0}, {20, -9}}}, false},
		{"line touching corner", orb.MultiLineString{{{10, 10}, {20, 20}}}, true},
		{"polygon covering bound", orb.MultiPolygon{{orb.Ring(box(-5, -5, 20, 20))}}, true},
		{"bound inside polygon hole", orb.MultiPolygon{{orb.Ring(box(-5, -5, 20, 20)), orb.Ring(box(-1, -1, 11, 11))}}, false},
		{"polygon inside bound", orb.MultiPolygon{{orb.Ring(box(2, 2, 3, 3))}}, true},
		{"triangle near corner", orb.Polygon{orb.Ring{{11, 9}, {12, 12}, {9, 12}, {11, 9}}}, false},
		{"collection", orb.Collection{orb.Point{50, 50}, orb.Point{1, 1}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Intersects(tt.g, b); got != tt.want {
				t.Errorf("Intersects = %v, want %v", got, tt.want)
			}
		})
	}
}
