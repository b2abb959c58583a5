package editor

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/skyfence/geozone/internal/geo"
	"github.com/skyfence/geozone/internal/store"

	"github.com/rs/zerolog/log"
)

// CorruptArtifactError reports a previously accepted artifact that no
// longer validates. Distinct from a live-editing format error: this
// signals storage-layer corruption, not user input.
type CorruptArtifactError struct {
	Name    string
	Version int
	Err     error
}

func (e *CorruptArtifactError) Error() string {
	return fmt.Sprintf("stored artifact %s v%d is corrupt: %v", e.Name, e.Version, e.Err)
}

func (e *CorruptArtifactError) Unwrap() error { return e.Err }

// Controller orchestrates editing sessions end to end: load an artifact,
// hand it to a session, and persist a committed result as a brand-new
// version. Sessions are independent; the store is the only shared state.
type Controller struct {
	store *store.Store

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewController creates a Controller over the given store.
func NewController(s *store.Store) *Controller {
	return &Controller{store: s, sessions: make(map[string]*Session)}
}

// Open loads (name, version), validates it, and materializes a session
// onto canvas. store.ErrNotFound passes through; a stored artifact that
// fails validation surfaces as *CorruptArtifactError.
func (c *Controller) Open(name string, version int, canvas Canvas) (*Session, error) {
	data, err := c.store.Read(name, version)
	if err != nil {
		return nil, err
	}

	coll, err := geo.Validate(data)
	if err != nil {
		log.Error().
			Err(err).
			Str("zone", name).
			Int("version", version).
			Msg("Stored artifact failed validation")
		return nil, &CorruptArtifactError{Name: name, Version: version, Err: err}
	}

	rec, err := c.store.Get(name, version)
	if err != nil {
		return nil, err
	}

	session := newSession(newSessionID(), *rec, coll, canvas)

	c.mu.Lock()
	c.sessions[session.id] = session
	c.mu.Unlock()

	log.Debug().
		Str("session", session.id).
		Str("zone", name).
		Int("version", version).
		Msg("Edit session opened")
	return session, nil
}

// Get returns an open session by ID, or nil.
func (c *Controller) Get(id string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[id]
}

// Commit serializes the session's working collection and stores it as
// the next version of the source zone, keeping the source description.
// The snapshot is taken up front, so a racing discard cannot corrupt the
// write; the source version is never overwritten. Fails with ErrNoChanges
// on a clean session. On success the session is closed.
func (c *Controller) Commit(s *Session) (*store.Record, error) {
	data, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	rec, err := c.store.Create(s.source.Name, s.source.Description, data)
	if err != nil {
		return nil, err
	}

	c.remove(s)
	log.Info().
		Str("session", s.id).
		Str("zone", rec.Name).
		Int("version", rec.Version).
		Msg("Session committed as new version")
	return rec, nil
}

// Discard closes the session unconditionally, persisting nothing. Safe
// at any point, including while a commit is in flight: the commit holds
// its own snapshot and its result is simply ignored.
func (c *Controller) Discard(s *Session) {
	c.remove(s)
	log.Debug().Str("session", s.id).Msg("Session discarded")
}

func (c *Controller) remove(s *Session) {
	c.mu.Lock()
	delete(c.sessions, s.id)
	c.mu.Unlock()
	s.close()
}

func newSessionID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return "ses-" + hex.EncodeToString(buf)
}
