// Package store owns the versioned zone artifact store: monotonic version
// assignment per zone name, the on-disk artifact, and the metadata record
// kept consistent with it.
package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/skyfence/geozone/internal/geo"

	"github.com/rs/zerolog/log"
)

// Typed failures surfaced to callers. The metadata layer returns
// ErrVersionConflict when the (name, version) uniqueness constraint fires.
var (
	ErrNotFound        = errors.New("zone version not found")
	ErrEmptyName       = errors.New("zone name is required")
	ErrVersionConflict = errors.New("zone version already exists")
)

// ValidationError wraps a rejected upload payload. User-correctable.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid zone payload: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Record is the immutable metadata of one zone version. (Name, Version)
// is the composite identity; a record is inserted exactly once and never
// mutated.
type Record struct {
	Name        string    `json:"name"`
	Version     int       `json:"version"`
	FilePath    string    `json:"filePath"`
	FileSize    int64     `json:"fileSize"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Metadata is the record store collaborator. Insert must fail with
// ErrVersionConflict on a duplicate (name, version); Get fails with
// ErrNotFound.
type Metadata interface {
	Insert(rec Record) error
	Get(name string, version int) (*Record, error)
	MaxVersion(name string) (int, error)
	List(name string, latestOnly bool) ([]Record, error)
	Delete(name string, version int) (bool, error)
	Close() error
}

// Blobs is the artifact storage collaborator. Remove tolerates a missing
// file.
type Blobs interface {
	Write(name string, version int, data []byte) (string, error)
	Read(name string, version int) ([]byte, error)
	Remove(name string, version int) error
}

// createAttempts bounds the version-conflict retry loop in Create.
const createAttempts = 3

// Store combines the metadata and blob collaborators. Construct with New;
// both collaborators are injected so tests can substitute doubles.
type Store struct {
	meta  Metadata
	blobs Blobs
}

// New creates a Store over the given collaborators.
func New(meta Metadata, blobs Blobs) *Store {
	return &Store{meta: meta, blobs: blobs}
}

// Close releases the metadata store.
func (s *Store) Close() error {
	return s.meta.Close()
}

// NextVersion returns 1 for an unknown name, otherwise the highest
// existing version plus one. Computed from persisted records at call
// time; Create re-reads it on every attempt.
func (s *Store) NextVersion(name string) (int, error) {
	max, err := s.meta.MaxVersion(name)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// Create validates data as a zone document and persists it as the next
// version of name: artifact file first, metadata record second. A crash
// between the two leaves an orphan file with no record, which is harmless;
// the record store stays authoritative. Two racing writers are fenced by
// the metadata uniqueness constraint: the loser retries with a fresh
// version number up to createAttempts times.
func (s *Store) Create(name, description string, data []byte) (*Record, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyName
	}
	if err := validName(name); err != nil {
		return nil, &ValidationError{Err: err}
	}
	if _, err := geo.Validate(data); err != nil {
		return nil, &ValidationError{Err: err}
	}

	for attempt := 0; attempt < createAttempts; attempt++ {
		version, err := s.NextVersion(name)
		if err != nil {
			return nil, err
		}

		path, err := s.blobs.Write(name, version, data)
		if err != nil {
			return nil, fmt.Errorf("write artifact %s v%d: %w", name, version, err)
		}

		rec := Record{
			Name:        name,
			Version:     version,
			FilePath:    path,
			FileSize:    int64(len(data)),
			Description: description,
			CreatedAt:   time.Now().UTC(),
		}

		err = s.meta.Insert(rec)
		if err == nil {
			log.Debug().
				Str("zone", name).
				Int("version", version).
				Int64("size", rec.FileSize).
				Msg("Zone version created")
			return &rec, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, fmt.Errorf("insert record %s v%d: %w", name, version, err)
		}

		// The artifact written for the losing attempt sits under the same
		// path as the winner's and is either identical-by-role or an
		// orphan. It is never read, since its record was not inserted.
		log.Warn().
			Str("zone", name).
			Int("version", version).
			Int("attempt", attempt+1).
			Msg("Version conflict on create, retrying")
	}

	return nil, fmt.Errorf("create %s: %w after %d attempts", name, ErrVersionConflict, createAttempts)
}

// Read returns the raw artifact bytes of an exact version. A missing
// record and a record whose file has vanished both surface ErrNotFound:
// availability is defined by the metadata store, and a file-level failure
// under a live record must not leak a different contract to callers.
func (s *Store) Read(name string, version int) ([]byte, error) {
	rec, err := s.meta.Get(name, version)
	if err != nil {
		return nil, err
	}

	data, err := s.blobs.Read(rec.Name, rec.Version)
	if err != nil {
		log.Error().
			Err(err).
			Str("zone", name).
			Int("version", version).
			Msg("Artifact file unreadable for existing record")
		return nil, fmt.Errorf("artifact %s v%d: %w", name, version, ErrNotFound)
	}
	return data, nil
}

// Get returns the metadata record of an exact version.
func (s *Store) Get(name string, version int) (*Record, error) {
	return s.meta.Get(name, version)
}

// List returns records ordered by name ascending then version descending.
// With name set, only that zone's records; with latestOnly, exactly one
// record per name (the highest version).
func (s *Store) List(name string, latestOnly bool) ([]Record, error) {
	return s.meta.List(name, latestOnly)
}

// Delete removes the metadata record, then the artifact file. A failed
// file removal after the record is gone is logged and swallowed: the
// record deletion is authoritative and the leftover file is an orphan in
// the harmless direction. Interior deletions leave version gaps. Deleting
// the highest version lowers the persisted maximum, so the next create
// hands out that number again.
func (s *Store) Delete(name string, version int) error {
	existed, err := s.meta.Delete(name, version)
	if err != nil {
		return err
	}
	if !existed {
		return ErrNotFound
	}

	if err := s.blobs.Remove(name, version); err != nil {
		log.Error().
			Err(err).
			Str("zone", name).
			Int("version", version).
			Msg("Failed to remove artifact file, orphan left on disk")
	}

	log.Debug().Str("zone", name).Int("version", version).Msg("Zone version deleted")
	return nil
}

// validName rejects names that would escape the per-zone directory.
func validName(name string) error {
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("name %q contains path separators", name)
	}
	return nil
}
