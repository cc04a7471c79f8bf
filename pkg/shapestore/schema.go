package shapestore

import (
	"strings"

	"github.com/beetlebugorg/shapestore/internal/dbf"
	"github.com/beetlebugorg/shapestore/internal/shp"
)

// GeometryProperty is the name of the synthesized geometry property.
const GeometryProperty = "geometry"

// QName is a namespace-qualified feature type name.
type QName struct {
	Namespace string
	Prefix    string
	Local     string
}

// String returns prefix:local, or local when there is no prefix.
func (q QName) String() string {
	if q.Prefix == "" {
		return q.Local
	}
	return q.Prefix + ":" + q.Local
}

// Matches reports whether name designates q. Accepted forms are the
// empty string (the store's own type), "local", "prefix:local" and
// "{namespace}local".
func (q QName) Matches(name string) bool {
	switch {
	case name == "", name == q.Local:
		return true
	case strings.HasPrefix(name, "{"):
		ns, local, ok := strings.Cut(name[1:], "}")
		return ok && ns == q.Namespace && local == q.Local
	}
	prefix, local, ok := strings.Cut(name, ":")
	return ok && prefix == q.Prefix && local == q.Local
}

// PropertyDef describes one attribute property.
type PropertyDef struct {
	Name     string
	Type     dbf.FieldType
	Code     byte // dBASE storage code
	Length   int
	Decimals int
}

// GeometryDef describes the geometry property.
type GeometryDef struct {
	Name      string        // always GeometryProperty
	ShapeType shp.ShapeType // from the .shp header
	HasZ      bool
	HasM      bool
}

// Kind returns the GeoJSON geometry type served for the shape type.
func (g GeometryDef) Kind() string {
	switch g.ShapeType.Family() {
	case shp.FamilyPoint:
		return "Point"
	case shp.FamilyMultiPoint:
		return "MultiPoint"
	case shp.FamilyPolyLine:
		return "MultiLineString"
	case shp.FamilyPolygon, shp.FamilyMultiPatch:
		return "MultiPolygon"
	default:
		return "Geometry"
	}
}

// Schema is the feature type served by a store: the attribute fields in
// table order followed by one geometry property.
type Schema struct {
	TypeName   QName
	Properties []PropertyDef
	Geometry   GeometryDef
}

// Property returns the definition of the named attribute.
func (s *Schema) Property(name string) (PropertyDef, bool) {
	for _, p := range s.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return PropertyDef{}, false
}

// buildSchema derives the schema. table may be nil when the store serves
// geometry only.
func buildSchema(name QName, header shp.Header, table *dbf.Reader) *Schema {
	s := &Schema{
		TypeName: name,
		Geometry: GeometryDef{
			Name:      GeometryProperty,
			ShapeType: header.ShapeType,
			HasZ:      header.ShapeType.HasZ(),
			HasM:      header.ShapeType.MayHaveM(),
		},
	}
	if table == nil {
		return s
	}
	for _, f := range table.Fields() {
		s.Properties = append(s.Properties, PropertyDef{
			Name:     f.Name,
			Type:     f.Type,
			Code:     f.Code,
			Length:   f.Length,
			Decimals: f.DecimalCount,
		})
	}
	return s
}
