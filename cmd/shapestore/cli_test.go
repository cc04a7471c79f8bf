package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/beetlebugorg/shapestore/internal/shapetest"
	"github.com/beetlebugorg/shapestore/internal/shp"
	"github.com/beetlebugorg/shapestore/pkg/shapestore"
)

// writePorts writes ports.shp/.dbf with five boxes, four of them within
// [0,0,10,10], and returns the directory.
func writePorts(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	shapetest.DBF{
		Fields: []shapetest.Field{
			{Name: "NAME", Type: 'C', Length: 10},
			{Name: "DEPTH", Type: 'N', Length: 8, Decimals: 2},
		},
		Rows: [][]string{
			{"Alpha", "10.5"},
			{"Bravo", "3"},
			{"Charlie", ""},
			{"Delta", "25"},
			{"Echo", "7.25"},
		},
	}.Write(t, dir, "ports.dbf")
	shapetest.File{
		Type: shp.TypePolygon,
		Shapes: []shapetest.Shape{
			shapetest.Polygon(shapetest.Box(2, 2, 4, 4)),
			shapetest.Polygon(shapetest.Box(20, 20, 30, 30)),
			shapetest.Polygon(shapetest.Box(8, 8, 12, 12)),
			shapetest.Polygon(shapetest.Box(6, 1, 9, 3)),
			shapetest.Polygon(shapetest.Box(1, 6, 3, 9)),
		},
	}.Write(t, dir, "ports.shp")
	return dir
}

// execute runs the CLI with args and returns its standard output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInfoCmd(t *testing.T) {
	dir := writePorts(t)
	out, err := execute(t, "info", filepath.Join(dir, "ports.shp"))
	require.NoError(t, err)

	for _, want := range []string{
		"ports",
		"Polygon (MultiPolygon)",
		"CRS:84",
		"1, 1, 30, 30",
		"5 (5 features, 0 null shapes)",
		"NAME",
		"string(10)",
		"decimal(8.2)",
	} {
		assert.Contains(t, out, want)
	}
}

func TestQueryCmd(t *testing.T) {
	dir := writePorts(t)
	out, err := execute(t, "query", filepath.Join(dir, "ports.shp"),
		"--bbox", "0,0,10,10", "--where", "DEPTH>=5", "--sort", "NAME:desc")
	require.NoError(t, err)

	fc, err := geojson.UnmarshalFeatureCollection([]byte(out))
	require.NoError(t, err)
	var names []string
	for _, f := range fc.Features {
		names = append(names, f.Properties.MustString("NAME"))
	}
	assert.Equal(t, []string{"Echo", "Delta", "Alpha"}, names)
	assert.Equal(t, "PORTS_4", fc.Features[0].ID)

	out, err = execute(t, "query", filepath.Join(dir, "ports.shp"), "--where", "NAME~%a%", "--limit", "2")
	require.NoError(t, err)
	fc, err = geojson.UnmarshalFeatureCollection([]byte(out))
	require.NoError(t, err)
	assert.Len(t, fc.Features, 2)
}

func TestQueryCmdErrors(t *testing.T) {
	path := filepath.Join(writePorts(t), "ports.shp")
	tests := []struct {
		name string
		args []string
	}{
		{"short bbox", []string{"query", path, "--bbox", "1,2,3"}},
		{"inverted bbox", []string{"query", path, "--bbox", "5,0,1,1"}},
		{"condition without operator", []string{"query", path, "--where", "DEPTH"}},
		{"bad sort direction", []string{"query", path, "--sort", "NAME:sideways"}},
		{"negative limit", []string{"query", path, "--limit", "-1"}},
		{"missing file", []string{"query", filepath.Join(t.TempDir(), "missing.shp")}},
		{"no file", []string{"info"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestIndexCmd(t *testing.T) {
	dir := writePorts(t)
	out, err := execute(t, "index", dir, "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "indexed ports (5 records)")
	assert.FileExists(t, filepath.Join(dir, "ports.rti"))
	assert.FileExists(t, filepath.Join(dir, "ports.idx.sqlite"))

	out, err = execute(t, "index", filepath.Join(dir, "ports.shp"), "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "indexed ports")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.shp"), []byte("junk"), 0o644))
	_, err = execute(t, "index", dir)
	assert.ErrorContains(t, err, "1 of 2 shapefiles")

	_, err = execute(t, "index", t.TempDir())
	assert.Error(t, err)
}

func TestServer(t *testing.T) {
	dir := writePorts(t)
	reg := prometheus.NewRegistry()
	cat, errs, err := shapestore.OpenDir(context.Background(), dir, shapestore.DefaultConfig(),
		shapestore.DefaultLoadOptions(),
		shapestore.WithLogger(zaptest.NewLogger(t)), shapestore.WithMetrics(shapestore.NewMetrics(reg)))
	require.NoError(t, err)
	require.Empty(t, errs)
	t.Cleanup(cat.Close)

	ts := httptest.NewServer((&server{catalog: cat, gatherer: reg, log: zaptest.NewLogger(t)}).routes())
	t.Cleanup(ts.Close)

	get := func(path string) (int, []byte) {
		t.Helper()
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, body
	}

	code, body := get("/collections")
	require.Equal(t, http.StatusOK, code)
	var list struct {
		Collections []collection `json:"collections"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Collections, 1)
	assert.Equal(t, "ports", list.Collections[0].ID)
	assert.Equal(t, []float64{1, 1, 30, 30}, list.Collections[0].BBox)
	assert.Equal(t, "/collections/ports/items", list.Collections[0].Links[0].Href)

	code, body = get("/collections/ports/items?bbox=0,0,10,10&sortby=NAME&limit=2")
	require.Equal(t, http.StatusOK, code, string(body))
	fc, err := geojson.UnmarshalFeatureCollection(body)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "Alpha", fc.Features[0].Properties.MustString("NAME"))
	assert.Equal(t, "Charlie", fc.Features[1].Properties.MustString("NAME"))

	code, body = get("/collections/ports/items?where=DEPTH%3C5&bbox-crs=EPSG:4326")
	require.Equal(t, http.StatusOK, code, string(body))
	fc, err = geojson.UnmarshalFeatureCollection(body)
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "Bravo", fc.Features[0].Properties.MustString("NAME"))

	for path, want := range map[string]int{
		"/collections/harbours/items":            http.StatusNotFound,
		"/collections/ports/items?limit=0":       http.StatusBadRequest,
		"/collections/ports/items?bbox=a,b,c,d":  http.StatusBadRequest,
		"/collections/ports/items?where=NAME":    http.StatusBadRequest,
		"/collections/ports/items?bbox-crs=nope": http.StatusBadRequest,
	} {
		code, _ := get(path)
		assert.Equal(t, want, code, path)
	}

	code, body = get("/metrics")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `shapestore_queries_total{result="ok",store="ports"} 2`)
}
