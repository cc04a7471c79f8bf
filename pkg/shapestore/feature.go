package shapestore

import (
	"maps"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/beetlebugorg/shapestore/internal/shp"
)

// Feature is one record of a store: its attributes and geometry.
//
// Features are immutable and may be shared between queries through the
// feature cache.
type Feature struct {
	id      string
	record  int
	props   map[string]any
	shape   *shp.Shape
	deleted bool
}

// featureID builds the id of record n from the id prefix of a store.
func featureID(prefix string, n int) string {
	return prefix + strconv.Itoa(n)
}

// ID returns the feature id, <TYPENAME>_<record index>, where TYPENAME is
// the upper-cased local name of the feature type.
func (f *Feature) ID() string { return f.id }

// Record returns the zero-based record index.
func (f *Feature) Record() int { return f.record }

// Property returns the value of the named attribute. Blank attributes are
// absent.
func (f *Feature) Property(name string) (any, bool) {
	v, ok := f.props[name]
	return v, ok
}

// Properties returns a copy of the attributes.
func (f *Feature) Properties() map[string]any {
	return maps.Clone(f.props)
}

// Geometry returns the decoded geometry, nil for null shapes.
func (f *Feature) Geometry() orb.Geometry {
	if f.shape == nil {
		return nil
	}
	return f.shape.Geometry
}

// Shape returns the decoded record with its Z and M ordinates, nil when
// the record could not be decoded.
func (f *Feature) Shape() *shp.Shape { return f.shape }

// Deleted reports whether the attribute record carries the deletion flag.
func (f *Feature) Deleted() bool { return f.deleted }

// GeoJSON converts the feature to a GeoJSON feature. Z and M ordinates
// are not represented.
func (f *Feature) GeoJSON() *geojson.Feature {
	gf := geojson.NewFeature(f.Geometry())
	gf.ID = f.id
	gf.Properties = f.Properties()
	if gf.Properties == nil {
		gf.Properties = geojson.Properties{}
	}
	return gf
}
