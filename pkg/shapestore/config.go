package shapestore

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/beetlebugorg/shapestore/internal/dbf"
)

// Config describes one shapefile store.
//
// Example (YAML):
//
//	file: data/ports.shp
//	crs: EPSG:4326
//	encoding: windows-1252
//	feature_type:
//	  namespace: http://example.com/ports
//	  prefix: app
//	  name: Ports
//	attribute_index:
//	  enabled: true
//	  max_connections: 4
//	cache:
//	  max_entries: 10000
//	watch:
//	  enabled: true
//	  debounce: 250ms
type Config struct {
	// File is the path to the .shp file. The extension may be omitted.
	File string `yaml:"file"`

	// CRS overrides the storage CRS. Empty means read the .prj, falling
	// back to CRS:84.
	CRS string `yaml:"crs"`

	// Encoding forces the character encoding of the .dbf. Empty means
	// .cpg file, then language driver byte, then per-value guess.
	Encoding string `yaml:"encoding"`

	FeatureType    FeatureTypeConfig    `yaml:"feature_type"`
	AttributeIndex AttributeIndexConfig `yaml:"attribute_index"`
	Cache          CacheConfig          `yaml:"cache"`
	Watch          WatchConfig          `yaml:"watch"`
}

// FeatureTypeConfig names the served feature type. An empty Name means
// the base name of the .shp file.
type FeatureTypeConfig struct {
	Namespace string `yaml:"namespace"`
	Prefix    string `yaml:"prefix"`
	Name      string `yaml:"name"`
}

// AttributeIndexConfig controls the SQLite attribute index.
type AttributeIndexConfig struct {
	Enabled bool `yaml:"enabled"`
	// Path of the database. Empty means <dbf base>.idx.sqlite next to
	// the .dbf.
	Path           string `yaml:"path"`
	MaxConnections int    `yaml:"max_connections"`
}

// CacheConfig bounds the feature cache. Zero MaxEntries means unbounded.
type CacheConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

// WatchConfig controls file watching in long-running processes.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		AttributeIndex: AttributeIndexConfig{
			Enabled:        true,
			MaxConnections: 4,
		},
		Watch: WatchConfig{
			Debounce: 250 * time.Millisecond,
		},
	}
}

// LoadConfig reads a YAML configuration on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Field: path, Err: err}
	}
	return cfg, nil
}

// Validate checks the configuration without touching the data files.
func (c Config) Validate() error {
	if strings.TrimSpace(c.File) == "" {
		return &ConfigError{Field: "file", Err: errors.New("no shapefile configured")}
	}
	if c.CRS != "" {
		if _, err := NormalizeCRS(c.CRS); err != nil {
			return &ConfigError{Field: "crs", Err: err}
		}
	}
	if c.Encoding != "" {
		if _, err := dbf.LookupEncoding(c.Encoding); err != nil {
			return &ConfigError{Field: "encoding", Err: err}
		}
	}
	if n := c.FeatureType.Name; n != "" && strings.ContainsAny(n, ": \t\n{}") {
		return &ConfigError{Field: "feature_type.name", Err: fmt.Errorf("%q is not a valid local name", n)}
	}
	if strings.ContainsAny(c.FeatureType.Prefix, ": \t\n{}") {
		return &ConfigError{Field: "feature_type.prefix", Err: fmt.Errorf("%q is not a valid prefix", c.FeatureType.Prefix)}
	}
	if c.AttributeIndex.MaxConnections < 0 {
		return &ConfigError{Field: "attribute_index.max_connections", Err: errors.New("must not be negative")}
	}
	if c.Cache.MaxEntries < 0 {
		return &ConfigError{Field: "cache.max_entries", Err: errors.New("must not be negative")}
	}
	if c.Watch.Debounce < 0 {
		return &ConfigError{Field: "watch.debounce", Err: errors.New("must not be negative")}
	}
	return nil
}
