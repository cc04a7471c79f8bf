// Package shp decodes ESRI shapefile (.shp) geometry records.
//
// The format is described in the ESRI Shapefile Technical Description
// (July 1998). The main file is a 100-byte header followed by
// variable-length records, each with an 8-byte big-endian record header and
// a little-endian payload whose layout depends on the shape type.
//
// References:
//   - ESRI Shapefile Technical Description p.3-4: main file header
//   - ESRI Shapefile Technical Description p.5-15: shape record contents
//   - ESRI Shapefile Technical Description p.16-20: MultiPatch
package shp

import (
	"fmt"

	"github.com/paulmach/orb"
)

// ShapeType is the shape type code stored in the file and record headers.
type ShapeType int32

// Shape type codes (ESRI Shapefile Technical Description p.4).
const (
	TypeNull        ShapeType = 0
	TypePoint       ShapeType = 1
	TypePolyLine    ShapeType = 3
	TypePolygon     ShapeType = 5
	TypeMultiPoint  ShapeType = 8
	TypePointZ      ShapeType = 11
	TypePolyLineZ   ShapeType = 13
	TypePolygonZ    ShapeType = 15
	TypeMultiPointZ ShapeType = 18
	TypePointM      ShapeType = 21
	TypePolyLineM   ShapeType = 23
	TypePolygonM    ShapeType = 25
	TypeMultiPointM ShapeType = 28
	TypeMultiPatch  ShapeType = 31
)

// String returns the name used in the ESRI documentation.
func (t ShapeType) String() string {
	switch t {
	case TypeNull:
		return "Null"
	case TypePoint:
		return "Point"
	case TypePolyLine:
		return "PolyLine"
	case TypePolygon:
		return "Polygon"
	case TypeMultiPoint:
		return "MultiPoint"
	case TypePointZ:
		return "PointZ"
	case TypePolyLineZ:
		return "PolyLineZ"
	case TypePolygonZ:
		return "PolygonZ"
	case TypeMultiPointZ:
		return "MultiPointZ"
	case TypePointM:
		return "PointM"
	case TypePolyLineM:
		return "PolyLineM"
	case TypePolygonM:
		return "PolygonM"
	case TypeMultiPointM:
		return "MultiPointM"
	case TypeMultiPatch:
		return "MultiPatch"
	default:
		return fmt.Sprintf("ShapeType(%d)", int32(t))
	}
}

// Valid reports whether t is one of the documented codes.
func (t ShapeType) Valid() bool {
	switch t {
	case TypeNull, TypePoint, TypePolyLine, TypePolygon, TypeMultiPoint,
		TypePointZ, TypePolyLineZ, TypePolygonZ, TypeMultiPointZ,
		TypePointM, TypePolyLineM, TypePolygonM, TypeMultiPointM,
		TypeMultiPatch:
		return true
	}
	return false
}

// Family groups shape types by their x/y geometry regardless of Z/M.
type Family int

const (
	FamilyNull Family = iota
	FamilyPoint
	FamilyMultiPoint
	FamilyPolyLine
	FamilyPolygon
	FamilyMultiPatch
)

// String returns the family name.
func (f Family) String() string {
	switch f {
	case FamilyPoint:
		return "Point"
	case FamilyMultiPoint:
		return "MultiPoint"
	case FamilyPolyLine:
		return "PolyLine"
	case FamilyPolygon:
		return "Polygon"
	case FamilyMultiPatch:
		return "MultiPatch"
	default:
		return "Null"
	}
}

// Family returns the geometry family of t.
func (t ShapeType) Family() Family {
	switch t {
	case TypePoint, TypePointZ, TypePointM:
		return FamilyPoint
	case TypeMultiPoint, TypeMultiPointZ, TypeMultiPointM:
		return FamilyMultiPoint
	case TypePolyLine, TypePolyLineZ, TypePolyLineM:
		return FamilyPolyLine
	case TypePolygon, TypePolygonZ, TypePolygonM:
		return FamilyPolygon
	case TypeMultiPatch:
		return FamilyMultiPatch
	default:
		return FamilyNull
	}
}

// HasZ reports whether records of this type carry a Z block.
func (t ShapeType) HasZ() bool {
	switch t {
	case TypePointZ, TypePolyLineZ, TypePolygonZ, TypeMultiPointZ, TypeMultiPatch:
		return true
	}
	return false
}

// MayHaveM reports whether records of this type may carry an M block.
// The block is optional for every type except PointM.
func (t ShapeType) MayHaveM() bool {
	switch t {
	case TypePointM, TypePolyLineM, TypePolygonM, TypeMultiPointM,
		TypePointZ, TypePolyLineZ, TypePolygonZ, TypeMultiPointZ, TypeMultiPatch:
		return true
	}
	return false
}

// PartType is the MultiPatch part type code.
type PartType int32

// MultiPatch part types (ESRI Shapefile Technical Description p.17).
const (
	PartTriangleStrip PartType = 0
	PartTriangleFan   PartType = 1
	PartOuterRing     PartType = 2
	PartInnerRing     PartType = 3
	PartFirstRing     PartType = 4
	PartRing          PartType = 5
)

func (p PartType) String() string {
	switch p {
	case PartTriangleStrip:
		return "TriangleStrip"
	case PartTriangleFan:
		return "TriangleFan"
	case PartOuterRing:
		return "OuterRing"
	case PartInnerRing:
		return "InnerRing"
	case PartFirstRing:
		return "FirstRing"
	case PartRing:
		return "Ring"
	default:
		return fmt.Sprintf("PartType(%d)", int32(p))
	}
}

// NoDataM is the threshold below which a measure is "no data".
const NoDataM = -1e38

// Range is a closed [Min, Max] interval on one axis.
type Range struct {
	Min, Max float64
}

// Header is the 100-byte main file header.
type Header struct {
	FileCode   int32     // 9994
	FileLength int64     // in bytes (stored as 16-bit words)
	Version    int32     // 1000
	ShapeType  ShapeType // type of all non-null shapes in the file
	Bound      orb.Bound
	Z          Range
	M          Range
}

// Shape is a decoded geometry record.
//
// Geometry is nil for null shapes. Z and M, when present, hold one value per
// point in the order the points are stored in the record.
type Shape struct {
	Type     ShapeType
	Geometry orb.Geometry
	Bound    orb.Bound // bounding box stored in the record (x/y of a point)
	Z        []float64
	ZRange   Range
	M        []float64
	MRange   Range
}

// HasMeasures reports whether any measure carries data.
func (s *Shape) HasMeasures() bool {
	for _, m := range s.M {
		if m > NoDataM {
			return true
		}
	}
	return false
}

// Entry is one result of ScanEnvelopes.
type Entry struct {
	Bound   orb.Bound
	Pointer int64 // offset of the record content, after the record header
	Record  int32 // record number as stored in the file
}

// Hit is one result of QueryByPointers.
type Hit struct {
	Record  int    // base-corrected record index (0-based)
	Pointer int64  // offset of the record content
	Shape   *Shape // nil unless geometry was requested
}

// Numbering is the record numbering base of a file.
type Numbering int

const (
	// OneBased files number their first record 1, as documented.
	OneBased Numbering = iota
	// ZeroBased files number their first record 0 (written by some legacy tools).
	ZeroBased
)

func (n Numbering) String() string {
	if n == ZeroBased {
		return "zero-based"
	}
	return "one-based"
}
