package shapestore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
file: data/ports.shp
crs: EPSG:4326
encoding: windows-1252
feature_type:
  namespace: http://example.com/ports
  prefix: app
  name: Ports
attribute_index:
  enabled: false
cache:
  max_entries: 500
watch:
  enabled: true
  debounce: 1s
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "data/ports.shp", cfg.File)
	assert.Equal(t, FeatureTypeConfig{Namespace: "http://example.com/ports", Prefix: "app", Name: "Ports"}, cfg.FeatureType)
	assert.False(t, cfg.AttributeIndex.Enabled)
	assert.Equal(t, 4, cfg.AttributeIndex.MaxConnections, "default kept")
	assert.Equal(t, 500, cfg.Cache.MaxEntries)
	assert.Equal(t, WatchConfig{Enabled: true, Debounce: time.Second}, cfg.Watch)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("file: [unclosed"), 0o644))
	_, err = LoadConfig(path)
	var cerr *ConfigError
	assert.ErrorAs(t, err, &cerr)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := DefaultConfig()
		cfg.File = "ports.shp"
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		field  string
		mutate func(*Config)
	}{
		{"file", func(c *Config) { c.File = "  " }},
		{"crs", func(c *Config) { c.CRS = "WGS84" }},
		{"encoding", func(c *Config) { c.Encoding = "klingon" }},
		{"feature_type.name", func(c *Config) { c.FeatureType.Name = "a:b" }},
		{"feature_type.prefix", func(c *Config) { c.FeatureType.Prefix = "p q" }},
		{"attribute_index.max_connections", func(c *Config) { c.AttributeIndex.MaxConnections = -1 }},
		{"cache.max_entries", func(c *Config) { c.Cache.MaxEntries = -5 }},
		{"watch.debounce", func(c *Config) { c.Watch.Debounce = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			var cerr *ConfigError
			require.ErrorAs(t, cfg.Validate(), &cerr)
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}
