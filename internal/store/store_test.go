package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

var (
	twoFeatures = []byte(`{"type":"FeatureCollection","features":[` +
		`{"type":"Feature","properties":{"name":"a"},"geometry":{"type":"Point","coordinates":[17.1,48.1]}},` +
		`{"type":"Feature","properties":{"name":"b"},"geometry":{"type":"Point","coordinates":[19.7,48.6]}}]}`)
	oneFeature = []byte(`{"type":"FeatureCollection","features":[` +
		`{"type":"Feature","properties":{"name":"a"},"geometry":{"type":"Point","coordinates":[17.1,48.1]}}]}`)
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()

	meta, err := OpenSQLite(filepath.Join(dir, "zones.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { meta.Close() })

	blobs, err := NewDirBlobs(filepath.Join(dir, "zones"))
	if err != nil {
		t.Fatalf("open blobs: %v", err)
	}
	return New(meta, blobs)
}

func TestCreateAssignsSequentialVersions(t *testing.T) {
	s := newTestStore(t)

	next, err := s.NextVersion("Alpha")
	if err != nil {
		t.Fatalf("next version: %v", err)
	}
	if next != 1 {
		t.Fatalf("next version for new name = %d, want 1", next)
	}

	for want := 1; want <= 3; want++ {
		rec, err := s.Create("Alpha", "test zone", twoFeatures)
		if err != nil {
			t.Fatalf("create v%d: %v", want, err)
		}
		if rec.Version != want {
			t.Fatalf("version = %d, want %d", rec.Version, want)
		}
		if rec.FileSize != int64(len(twoFeatures)) {
			t.Fatalf("file size = %d, want %d", rec.FileSize, len(twoFeatures))
		}
	}
}

func TestDeleteLatestReusesNumber(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 2; i++ {
		if _, err := s.Create("Alpha", "", oneFeature); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := s.Delete("Alpha", 2); err != nil {
		t.Fatalf("delete v2: %v", err)
	}

	// the persisted maximum dropped, so the tail number comes back
	next, err := s.NextVersion("Alpha")
	if err != nil {
		t.Fatalf("next version: %v", err)
	}
	if next != 2 {
		t.Fatalf("next version after deleting latest = %d, want 2", next)
	}

	rec, err := s.Create("Alpha", "", twoFeatures)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Version != 2 {
		t.Fatalf("version = %d, want 2", rec.Version)
	}

	data, err := s.Read("Alpha", 2)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != string(twoFeatures) {
		t.Fatal("reused version serves stale artifact bytes")
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Create("", "", twoFeatures); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("empty name: got %v, want ErrEmptyName", err)
	}
	if _, err := s.Create("  ", "", twoFeatures); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("blank name: got %v, want ErrEmptyName", err)
	}

	var ve *ValidationError
	if _, err := s.Create("Alpha", "", []byte(`{"type":"Nope"}`)); !errors.As(err, &ve) {
		t.Fatalf("bad payload: got %v, want *ValidationError", err)
	}
	if _, err := s.Create("../escape", "", twoFeatures); !errors.As(err, &ve) {
		t.Fatalf("traversal name: got %v, want *ValidationError", err)
	}
}

func TestReadExactVersion(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Create("Alpha", "", twoFeatures); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Create("Alpha", "", oneFeature); err != nil {
		t.Fatalf("create: %v", err)
	}

	data, err := s.Read("Alpha", 1)
	if err != nil {
		t.Fatalf("read v1: %v", err)
	}
	if string(data) != string(twoFeatures) {
		t.Fatal("v1 artifact bytes changed")
	}

	if _, err := s.Read("Alpha", 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("read missing version: got %v, want ErrNotFound", err)
	}
	if _, err := s.Read("Beta", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("read missing name: got %v, want ErrNotFound", err)
	}
}

func TestReadMissingArtifactFileReportsNotFound(t *testing.T) {
	dir := t.TempDir()
	meta, err := OpenSQLite(filepath.Join(dir, "zones.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { meta.Close() })
	blobs, err := NewDirBlobs(filepath.Join(dir, "zones"))
	if err != nil {
		t.Fatalf("open blobs: %v", err)
	}
	s := New(meta, blobs)

	if _, err := s.Create("Alpha", "", twoFeatures); err != nil {
		t.Fatalf("create: %v", err)
	}

	// externally deleted file: the record remains, the contract does not
	if err := os.Remove(filepath.Join(dir, "zones", "Alpha", "Alpha-v1.geojson")); err != nil {
		t.Fatalf("remove artifact: %v", err)
	}

	if _, err := s.Read("Alpha", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestListOrderingAndLatest(t *testing.T) {
	s := newTestStore(t)

	for _, name := range []string{"Beta", "Alpha"} {
		for i := 0; i < 2; i++ {
			if _, err := s.Create(name, "", twoFeatures); err != nil {
				t.Fatalf("create %s: %v", name, err)
			}
		}
	}

	all, err := s.List("", false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("list = %d records, want 4", len(all))
	}
	want := []struct {
		name    string
		version int
	}{{"Alpha", 2}, {"Alpha", 1}, {"Beta", 2}, {"Beta", 1}}
	for i, w := range want {
		if all[i].Name != w.name || all[i].Version != w.version {
			t.Fatalf("list[%d] = %s v%d, want %s v%d", i, all[i].Name, all[i].Version, w.name, w.version)
		}
	}

	latest, err := s.List("", true)
	if err != nil {
		t.Fatalf("list latest: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("latest = %d records, want 2", len(latest))
	}
	if latest[0].Name != "Alpha" || latest[0].Version != 2 || latest[1].Name != "Beta" || latest[1].Version != 2 {
		t.Fatalf("latest = %+v", latest)
	}

	alpha, err := s.List("Alpha", false)
	if err != nil {
		t.Fatalf("list Alpha: %v", err)
	}
	if len(alpha) != 2 || alpha[0].Version != 2 {
		t.Fatalf("alpha history = %+v", alpha)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		if _, err := s.Create("Alpha", "", twoFeatures); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	// interior deletion leaves a gap, no renumbering
	if err := s.Delete("Alpha", 2); err != nil {
		t.Fatalf("delete v2: %v", err)
	}
	if _, err := s.Read("Alpha", 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted version still readable: %v", err)
	}
	if _, err := s.Read("Alpha", 3); err != nil {
		t.Fatalf("v3 unreadable after deleting v2: %v", err)
	}

	// next version continues past the maximum
	next, err := s.NextVersion("Alpha")
	if err != nil {
		t.Fatalf("next version: %v", err)
	}
	if next != 4 {
		t.Fatalf("next version = %d, want 4", next)
	}

	if err := s.Delete("Alpha", 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete: got %v, want ErrNotFound", err)
	}
}

// conflictMetadata wraps MemoryMetadata, failing the first n inserts with
// ErrVersionConflict to exercise the retry fence.
type conflictMetadata struct {
	*MemoryMetadata
	conflicts int
}

func (c *conflictMetadata) Insert(rec Record) error {
	if c.conflicts > 0 {
		c.conflicts--
		return ErrVersionConflict
	}
	return c.MemoryMetadata.Insert(rec)
}

func TestCreateRetriesOnVersionConflict(t *testing.T) {
	blobs, err := NewDirBlobs(t.TempDir())
	if err != nil {
		t.Fatalf("open blobs: %v", err)
	}

	t.Run("recovers within budget", func(t *testing.T) {
		meta := &conflictMetadata{MemoryMetadata: NewMemoryMetadata(), conflicts: 2}
		s := New(meta, blobs)
		rec, err := s.Create("Alpha", "", twoFeatures)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if rec.Version != 1 {
			t.Fatalf("version = %d, want 1", rec.Version)
		}
	})

	t.Run("surfaces after exhaustion", func(t *testing.T) {
		meta := &conflictMetadata{MemoryMetadata: NewMemoryMetadata(), conflicts: 10}
		s := New(meta, blobs)
		if _, err := s.Create("Alpha", "", twoFeatures); !errors.Is(err, ErrVersionConflict) {
			t.Fatalf("got %v, want ErrVersionConflict", err)
		}
	})
}
