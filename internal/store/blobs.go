package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirBlobs stores artifacts on the local filesystem: one directory per
// zone name, one file per version named <name>-v<version>.geojson.
type DirBlobs struct {
	root string
}

// NewDirBlobs creates the storage root if needed.
func NewDirBlobs(root string) (*DirBlobs, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root %s: %w", root, err)
	}
	return &DirBlobs{root: root}, nil
}

// Write persists data under the deterministic path for (name, version)
// and returns that path relative to the storage root. Writing the same
// path again overwrites, which only happens for a create attempt that
// subsequently loses the metadata insert.
func (b *DirBlobs) Write(name string, version int, data []byte) (string, error) {
	dir := filepath.Join(b.root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	rel := relPath(name, version)
	if err := os.WriteFile(filepath.Join(b.root, rel), data, 0o644); err != nil {
		return "", err
	}
	return rel, nil
}

func (b *DirBlobs) Read(name string, version int) ([]byte, error) {
	return os.ReadFile(filepath.Join(b.root, relPath(name, version)))
}

// Remove deletes the artifact file. A missing file is not an error: the
// store layer above already treats the metadata record as authoritative.
func (b *DirBlobs) Remove(name string, version int) error {
	err := os.Remove(filepath.Join(b.root, relPath(name, version)))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func relPath(name string, version int) string {
	return filepath.Join(name, fmt.Sprintf("%s-v%d.geojson", name, version))
}
