package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != DefaultDataDir {
		t.Errorf("data_dir = %q, want %q", cfg.DataDir, DefaultDataDir)
	}
	if cfg.DatabasePath != DefaultDatabasePath {
		t.Errorf("database = %q, want %q", cfg.DatabasePath, DefaultDatabasePath)
	}
	if cfg.PreviewSize != DefaultPreviewSize {
		t.Errorf("preview_size = %d, want %d", cfg.PreviewSize, DefaultPreviewSize)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := "data_dir: /srv/zones\ndatabase: /srv/zones.db\npreview_size: 512\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/srv/zones" || cfg.DatabasePath != "/srv/zones.db" || cfg.PreviewSize != 512 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("data_dir: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("malformed yaml accepted")
	}
}
