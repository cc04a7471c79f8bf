package shapestore

import (
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// CRS84 is WGS 84 with longitude/latitude axis order, the storage CRS
// assumed when neither configuration nor a .prj file names one.
const CRS84 = "CRS:84"

var (
	crsURN  = regexp.MustCompile(`(?i)^urn:ogc:def:crs:([a-z]+):[^:]*:(\w+)$`)
	crsURL  = regexp.MustCompile(`(?i)^https?://www\.opengis\.net/def/crs/([a-z]+)/[^/]+/(\w+)$`)
	crsCode = regexp.MustCompile(`(?i)^([a-z]+):(\w+)$`)

	wktAuthority = regexp.MustCompile(`(?i)AUTHORITY\s*\[\s*"EPSG"\s*,\s*"?(\d+)"?\s*\]`)
)

// NormalizeCRS turns the usual spellings of a CRS identifier (EPSG:4326,
// urn:ogc:def:crs:EPSG::4326, http://www.opengis.net/def/crs/EPSG/0/4326,
// OGC:CRS84) into AUTHORITY:CODE form.
func NormalizeCRS(name string) (string, error) {
	name = strings.TrimSpace(name)
	var auth, code string
	for _, re := range []*regexp.Regexp{crsURN, crsURL, crsCode} {
		if m := re.FindStringSubmatch(name); m != nil {
			auth, code = strings.ToUpper(m[1]), strings.ToUpper(m[2])
			break
		}
	}
	switch {
	case auth == "":
		return "", fmt.Errorf("%w: %q", ErrUnknownCRS, name)
	case (auth == "OGC" || auth == "CRS") && code == "CRS84", auth == "CRS" && code == "84":
		return CRS84, nil
	}
	return auth + ":" + code, nil
}

// ParsePRJ extracts the CRS identifier from the content of a .prj file.
//
// The file may hold a bare identifier or ESRI/OGC WKT. For WKT the
// outermost EPSG authority wins; without one, plain WGS 84 geographic and
// Web Mercator definitions are recognized by name.
func ParsePRJ(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w: empty projection file", ErrUnknownCRS)
	}
	if !strings.Contains(content, "[") {
		line, _, _ := strings.Cut(content, "\n")
		return NormalizeCRS(line)
	}

	// The outermost AUTHORITY clause closes last.
	if m := wktAuthority.FindAllStringSubmatch(content, -1); len(m) > 0 {
		return "EPSG:" + m[len(m)-1][1], nil
	}
	upper := strings.ToUpper(content)
	switch {
	case strings.HasPrefix(upper, "GEOGCS") &&
		(strings.Contains(upper, "WGS_1984") || strings.Contains(upper, "WGS 84") || strings.Contains(upper, "WGS84")):
		return "EPSG:4326", nil
	case strings.HasPrefix(upper, "PROJCS") &&
		(strings.Contains(upper, "AUXILIARY_SPHERE") || strings.Contains(upper, "PSEUDO-MERCATOR") ||
			strings.Contains(upper, "PSEUDO_MERCATOR")):
		return "EPSG:3857", nil
	}
	return "", fmt.Errorf("%w: unrecognized WKT", ErrUnknownCRS)
}

// ReadPRJ reads and parses a .prj file.
func ReadPRJ(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return ParsePRJ(string(data))
}

// EnvelopeTransformer converts bounding boxes between coordinate
// reference systems.
type EnvelopeTransformer interface {
	Transform(b orb.Bound, from, to string) (orb.Bound, error)
}

// ProjectTransformer converts between geographic WGS 84 (EPSG:4326 and
// CRS:84, both taken in longitude/latitude order) and Web Mercator
// (EPSG:3857, EPSG:900913).
type ProjectTransformer struct{}

// Largest latitude representable in Web Mercator.
const maxMercatorLat = 85.05112877980659

type crsFamily int

const (
	familyUnknown crsFamily = iota
	familyGeographic
	familyMercator
)

func familyOf(crs string) crsFamily {
	norm, err := NormalizeCRS(crs)
	if err != nil {
		return familyUnknown
	}
	switch norm {
	case CRS84, "EPSG:4326":
		return familyGeographic
	case "EPSG:3857", "EPSG:900913", "EPSG:3785", "EPSG:102100":
		return familyMercator
	}
	return familyUnknown
}

func (ProjectTransformer) Transform(b orb.Bound, from, to string) (orb.Bound, error) {
	if same, _ := sameCRS(from, to); same {
		return b, nil
	}
	src, dst := familyOf(from), familyOf(to)
	switch {
	case src == familyUnknown:
		return b, fmt.Errorf("%w: %s", ErrUnknownCRS, from)
	case dst == familyUnknown:
		return b, fmt.Errorf("%w: %s", ErrUnknownCRS, to)
	case src == dst:
		return b, nil
	case src == familyGeographic:
		clamp := func(p orb.Point) orb.Point {
			return orb.Point{p[0], math.Max(-maxMercatorLat, math.Min(maxMercatorLat, p[1]))}
		}
		return orb.Bound{
			Min: project.WGS84.ToMercator(clamp(b.Min)),
			Max: project.WGS84.ToMercator(clamp(b.Max)),
		}, nil
	default:
		return orb.Bound{
			Min: project.Mercator.ToWGS84(b.Min),
			Max: project.Mercator.ToWGS84(b.Max),
		}, nil
	}
}

func sameCRS(a, b string) (bool, error) {
	na, err := NormalizeCRS(a)
	if err != nil {
		return false, err
	}
	nb, err := NormalizeCRS(b)
	if err != nil {
		return false, err
	}
	return na == nb, nil
}
