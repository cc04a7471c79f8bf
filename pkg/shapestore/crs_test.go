package shapestore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCRS(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"EPSG:4326", "EPSG:4326"},
		{"epsg:3857", "EPSG:3857"},
		{" EPSG:4326 ", "EPSG:4326"},
		{"urn:ogc:def:crs:EPSG::4326", "EPSG:4326"},
		{"urn:ogc:def:crs:EPSG:6.6:32632", "EPSG:32632"},
		{"urn:ogc:def:crs:OGC:1.3:CRS84", CRS84},
		{"http://www.opengis.net/def/crs/EPSG/0/3857", "EPSG:3857"},
		{"http://www.opengis.net/def/crs/OGC/1.3/CRS84", CRS84},
		{"CRS:84", CRS84},
		{"OGC:CRS84", CRS84},
	}
	for _, tt := range tests {
		got, err := NormalizeCRS(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "4326", "EPSG", "EPSG:", "not a crs"} {
		_, err := NormalizeCRS(bad)
		assert.ErrorIs(t, err, ErrUnknownCRS, bad)
	}
}

func TestParsePRJ(t *testing.T) {
	tests := []struct {
		name, prj, want string
	}{
		{"esri geographic", `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`, "EPSG:4326"},
		{"esri web mercator", `PROJCS["WGS_1984_Web_Mercator_Auxiliary_Sphere",GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Mercator_Auxiliary_Sphere"],UNIT["Meter",1.0]]`, "EPSG:3857"},
		{"ogc with authority", `PROJCS["NAD83 / UTM zone 19N",GEOGCS["NAD83",DATUM["North_American_Datum_1983",SPHEROID["GRS 1980",6378137,298.257222101,AUTHORITY["EPSG","7019"]],AUTHORITY["EPSG","6269"]],AUTHORITY["EPSG","4269"]],PROJECTION["Transverse_Mercator"],UNIT["metre",1,AUTHORITY["EPSG","9001"]],AUTHORITY["EPSG","26919"]]`, "EPSG:26919"},
		{"bare code", "EPSG:2154\n", "EPSG:2154"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePRJ(tt.prj)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParsePRJ(`PROJCS["Lambert_Conformal_Conic",GEOGCS["GCS_RGF_1993"]]`)
	assert.ErrorIs(t, err, ErrUnknownCRS)
	_, err = ParsePRJ("   ")
	assert.ErrorIs(t, err, ErrUnknownCRS)
}

func TestReadPRJ(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.prj")
	require.NoError(t, os.WriteFile(path, []byte("urn:ogc:def:crs:EPSG::4326"), 0o644))
	got, err := ReadPRJ(path)
	require.NoError(t, err)
	assert.Equal(t, "EPSG:4326", got)

	_, err = ReadPRJ(filepath.Join(t.TempDir(), "missing.prj"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestProjectTransformer(t *testing.T) {
	var tr ProjectTransformer
	geo := orb.Bound{Min: orb.Point{-71.2, 42.2}, Max: orb.Point{-70.8, 42.5}}

	same, err := tr.Transform(geo, "EPSG:4326", "urn:ogc:def:crs:EPSG::4326")
	require.NoError(t, err)
	assert.Equal(t, geo, same)
	same, err = tr.Transform(geo, CRS84, "EPSG:4326")
	require.NoError(t, err)
	assert.Equal(t, geo, same, "both are longitude/latitude")

	merc, err := tr.Transform(geo, "EPSG:4326", "EPSG:3857")
	require.NoError(t, err)
	assert.InDelta(t, -7925947.74, merc.Min[0], 1)
	assert.Less(t, merc.Min[1], merc.Max[1])

	back, err := tr.Transform(merc, "EPSG:3857", CRS84)
	require.NoError(t, err)
	assert.InDelta(t, geo.Min[0], back.Min[0], 1e-9)
	assert.InDelta(t, geo.Min[1], back.Min[1], 1e-9)
	assert.InDelta(t, geo.Max[0], back.Max[0], 1e-9)
	assert.InDelta(t, geo.Max[1], back.Max[1], 1e-9)

	world := orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}
	clamped, err := tr.Transform(world, CRS84, "EPSG:900913")
	require.NoError(t, err)
	assert.InDelta(t, 20037508.34, clamped.Max[1], 1, "latitude clamped to the mercator limit")

	_, err = tr.Transform(geo, "EPSG:4326", "EPSG:2154")
	assert.ErrorIs(t, err, ErrUnknownCRS)
	_, err = tr.Transform(geo, "bogus", "EPSG:4326")
	assert.ErrorIs(t, err, ErrUnknownCRS)
}
