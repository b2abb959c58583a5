// Package config handles configuration loading and shared data structures.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the root configuration file structure.
type Config struct {
	// DataDir is the root of the zone artifact tree, one directory per
	// zone name.
	DataDir string `yaml:"data_dir,omitempty"`

	// DatabasePath is where the metadata database lives.
	DatabasePath string `yaml:"database,omitempty"`

	// PreviewSize is the edge length in pixels of rendered thumbnails.
	PreviewSize int `yaml:"preview_size,omitempty"`
}

// Defaults used when the config file omits a field or does not exist.
const (
	DefaultDataDir      = "data/geozones"
	DefaultDatabasePath = "data/geozones.db"
	DefaultPreviewSize  = 256
)

// Load reads and parses the YAML configuration file from the specified
// path. A missing file is not an error, the defaults apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = DefaultDatabasePath
	}
	if cfg.PreviewSize <= 0 {
		cfg.PreviewSize = DefaultPreviewSize
	}

	return cfg, nil
}
