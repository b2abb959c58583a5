// Package editor keeps an ordered feature list and an editable visual
// layer set mutually consistent during one editing session, and turns a
// finished session into a new stored zone version.
package editor

import (
	"sort"
	"sync"

	"github.com/skyfence/geozone/internal/geo"
)

// LayerHandle identifies one rendered, user-manipulable shape. Handles
// are allocated per session and never reused within it.
type LayerHandle int

// Canvas is the editable visual layer set. Rendering itself happens
// elsewhere (a map widget, a recording double in tests); the session
// drives it so that its layers always mirror the working collection.
type Canvas interface {
	// AddLayer renders a new shape for the feature bound to handle.
	AddLayer(handle LayerHandle, feature *geo.Feature, selected bool)

	// UpdateLayer replaces the rendered geometry of an existing shape.
	UpdateLayer(handle LayerHandle, geometry *geo.Geometry)

	// RemoveLayer removes one shape.
	RemoveLayer(handle LayerHandle)

	// RestyleLayer switches a shape between selected and normal styling.
	RestyleLayer(handle LayerHandle, selected bool)

	// Clear removes all shapes.
	Clear()
}

// LayerState is a snapshot of one rendered layer on a RecordingCanvas.
type LayerState struct {
	Handle   LayerHandle `json:"handle"`
	Selected bool        `json:"selected"`
	Geometry *geo.Geometry
}

// RecordingCanvas is an in-memory Canvas that tracks layer state instead
// of drawing. The HTTP layer uses it so clients can re-render from
// session state; tests use it to observe the engine.
type RecordingCanvas struct {
	mu     sync.Mutex
	layers map[LayerHandle]*LayerState
}

// NewRecordingCanvas returns an empty recording canvas.
func NewRecordingCanvas() *RecordingCanvas {
	return &RecordingCanvas{layers: make(map[LayerHandle]*LayerState)}
}

func (c *RecordingCanvas) AddLayer(handle LayerHandle, feature *geo.Feature, selected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var g *geo.Geometry
	if feature != nil {
		g = feature.Geometry.Clone()
	}
	c.layers[handle] = &LayerState{Handle: handle, Selected: selected, Geometry: g}
}

func (c *RecordingCanvas) UpdateLayer(handle LayerHandle, geometry *geo.Geometry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.layers[handle]; ok {
		l.Geometry = geometry.Clone()
	}
}

func (c *RecordingCanvas) RemoveLayer(handle LayerHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.layers, handle)
}

func (c *RecordingCanvas) RestyleLayer(handle LayerHandle, selected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.layers[handle]; ok {
		l.Selected = selected
	}
}

func (c *RecordingCanvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.layers = make(map[LayerHandle]*LayerState)
}

// Layers returns the current layer states ordered by handle.
func (c *RecordingCanvas) Layers() []LayerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LayerState, 0, len(c.layers))
	for _, l := range c.layers {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}
