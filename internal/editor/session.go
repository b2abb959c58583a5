package editor

import (
	"errors"
	"sync"

	"github.com/skyfence/geozone/internal/geo"
	"github.com/skyfence/geozone/internal/store"
)

// Sentinel session errors.
var (
	ErrNoChanges     = errors.New("session has no changes to commit")
	ErrSessionClosed = errors.New("session is closed")
)

const noSelection = -1

// Session is one open editing interaction over a single zone version.
// All mutation entry points take the session mutex and apply one at a
// time in arrival order; a concurrent read through Working never sees a
// partially applied edit. Session state lives only in memory and is
// discarded on close.
type Session struct {
	mu sync.Mutex

	id     string
	source store.Record
	canvas Canvas

	working *geo.Collection
	loaded  *geo.Collection // snapshot from load, the dirty baseline

	// layer index: order[i] is the handle bound to feature position i,
	// positions maps back. Together they form the bijection onto
	// 0..len(features)-1.
	order      []LayerHandle
	positions  map[LayerHandle]int
	nextHandle LayerHandle

	selection int
	dirty     bool
	closed    bool
}

func newSession(id string, source store.Record, c *geo.Collection, canvas Canvas) *Session {
	s := &Session{
		id:        id,
		source:    source,
		canvas:    canvas,
		working:   c,
		loaded:    c.Clone(),
		selection: noSelection,
	}
	s.materializeLocked()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Source returns the record the session was opened from.
func (s *Session) Source() store.Record { return s.source }

// Working returns a deep copy of the current working collection.
func (s *Session) Working() *geo.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.working.Clone()
}

// Dirty reports whether the working collection has diverged from the
// loaded one. Once set it stays set for the session's lifetime.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Selection returns the selected feature position, or -1.
func (s *Session) Selection() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}

// Handles returns the layer handles in feature position order.
func (s *Session) Handles() []LayerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LayerHandle(nil), s.order...)
}

// materializeLocked rebuilds the entire layer index and canvas from the
// working collection: one layer per feature, bound by position. Non-
// FeatureCollection documents materialize to zero layers until a create
// promotes them.
func (s *Session) materializeLocked() {
	s.canvas.Clear()
	s.order = s.order[:0]
	if s.positions == nil {
		s.positions = make(map[LayerHandle]int)
	} else {
		clear(s.positions)
	}

	if s.working.Type != geo.TypeFeatureCollection {
		return
	}
	for i := range s.working.Features {
		handle := s.allocHandle()
		s.order = append(s.order, handle)
		s.positions[handle] = i
		s.canvas.AddLayer(handle, &s.working.Features[i], i == s.selection)
	}
}

func (s *Session) allocHandle() LayerHandle {
	s.nextHandle++
	return s.nextHandle
}

// markDirtyLocked flips dirty once the working collection structurally
// differs from the loaded snapshot. It never clears.
func (s *Session) markDirtyLocked() {
	if !s.dirty && !s.working.Equal(s.loaded) {
		s.dirty = true
	}
}

// ShapeCreated appends a feature built from geometry with empty
// properties and binds a fresh layer handle to the new last position. A
// document whose top-level kind is not FeatureCollection is first
// promoted to a one-feature FeatureCollection (its original content
// becomes feature zero and gets a layer of its own).
func (s *Session) ShapeCreated(geometry *geo.Geometry) (LayerHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrSessionClosed
	}

	promoted := s.working.Type != geo.TypeFeatureCollection
	if promoted {
		s.working.Promote()
	}

	s.working.Features = append(s.working.Features, geo.Feature{
		Type:       geo.TypeFeature,
		Properties: geo.NewProperties(),
		Geometry:   geometry.Clone(),
	})

	var handle LayerHandle
	if promoted {
		// rebind everything so the promoted feature is covered too
		s.materializeLocked()
		handle = s.order[len(s.order)-1]
	} else {
		pos := len(s.working.Features) - 1
		handle = s.allocHandle()
		s.order = append(s.order, handle)
		s.positions[handle] = pos
		s.canvas.AddLayer(handle, &s.working.Features[pos], pos == s.selection)
	}

	s.markDirtyLocked()
	return handle, nil
}

// ShapeReshaped replaces the geometry of the feature bound to handle.
// Properties are untouched: reshaping never drops attributes. An unknown
// handle is a no-op.
func (s *Session) ShapeReshaped(handle LayerHandle, geometry *geo.Geometry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	pos, ok := s.positions[handle]
	if !ok {
		return nil
	}

	s.working.Features[pos].Geometry = geometry.Clone()
	s.canvas.UpdateLayer(handle, geometry)
	s.markDirtyLocked()
	return nil
}

// ShapesDeleted removes the features bound to the given handles and
// renumbers the layer index from scratch: the surviving layers are
// re-bound to positions 0..k-1 in their current relative order, since
// feature positions are dense and every deletion shifts later positions
// down. A selection pointing at a removed feature is cleared; one
// pointing at a survivor follows it to its new position. Unknown handles
// are skipped.
func (s *Session) ShapesDeleted(handles []LayerHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	removed := make(map[int]bool, len(handles))
	for _, h := range handles {
		if pos, ok := s.positions[h]; ok {
			removed[pos] = true
		}
	}
	if len(removed) == 0 {
		return nil
	}

	survivors := make([]geo.Feature, 0, len(s.working.Features)-len(removed))
	newOrder := make([]LayerHandle, 0, cap(survivors))
	newSelection := noSelection

	for pos := range s.working.Features {
		handle := s.order[pos]
		if removed[pos] {
			s.canvas.RemoveLayer(handle)
			continue
		}
		if pos == s.selection {
			newSelection = len(survivors)
		}
		survivors = append(survivors, s.working.Features[pos])
		newOrder = append(newOrder, handle)
	}

	s.working.Features = survivors
	s.order = newOrder
	clear(s.positions)
	for i, h := range s.order {
		s.positions[h] = i
	}
	s.selection = newSelection

	s.markDirtyLocked()
	return nil
}

// TextEdit validates raw as a full replacement document. On success the
// working collection is swapped and the layer index fully rebuilt: a
// text edit carries no positional correspondence with the prior state.
// On failure the previous state is untouched and the *geo.FormatError is
// returned for the caller to surface as a session-local warning.
func (s *Session) TextEdit(raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	c, err := geo.Validate(raw)
	if err != nil {
		return err
	}

	s.working = c
	s.selection = noSelection
	s.materializeLocked()
	s.markDirtyLocked()
	return nil
}

// PropertyEdit sets (or, with remove, deletes) exactly one property of
// the feature at position. Geometry and the layer index are never
// touched. An out-of-range position is a defensive no-op, like an
// unknown layer handle.
func (s *Session) PropertyEdit(position int, key string, value any, remove bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	if position < 0 || position >= len(s.working.Features) {
		return nil
	}

	f := &s.working.Features[position]
	if remove {
		if f.Properties != nil {
			f.Properties.Delete(key)
		}
	} else {
		if f.Properties == nil {
			f.Properties = geo.NewProperties()
		}
		f.Properties.Set(key, value)
	}

	s.markDirtyLocked()
	return nil
}

// Select moves the selection to position (noSelection / -1 clears it)
// and restyles only the layers bound to the old and new positions.
func (s *Session) Select(position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	if position < 0 {
		position = noSelection
	} else if position >= len(s.order) {
		return nil
	}
	if position == s.selection {
		return nil
	}

	if s.selection != noSelection {
		s.canvas.RestyleLayer(s.order[s.selection], false)
	}
	s.selection = position
	if position != noSelection {
		s.canvas.RestyleLayer(s.order[position], true)
	}
	return nil
}

// ClearSelection drops the selection.
func (s *Session) ClearSelection() error {
	return s.Select(noSelection)
}

// snapshot captures the serialized working collection for a commit while
// holding the lock, so the commit proceeds against its own copy even if
// the session is discarded concurrently.
func (s *Session) snapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if !s.dirty {
		return nil, ErrNoChanges
	}
	return s.working.Serialize()
}

// close releases the session state. Idempotent and immediate: it never
// waits on in-flight store operations.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.canvas.Clear()
	s.working = nil
	s.loaded = nil
	s.order = nil
	s.positions = nil
}
