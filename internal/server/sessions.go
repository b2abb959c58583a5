package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/skyfence/geozone/internal/editor"
	"github.com/skyfence/geozone/internal/geo"
)

// sessionState is the wire view of an edit session. Layers are listed in
// feature order so the page can rebuild its map state from one response.
type sessionState struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Version   int             `json:"version"`
	Dirty     bool            `json:"dirty"`
	Selection int             `json:"selection"`
	Layers    []layerState    `json:"layers"`
	Document  *geo.Collection `json:"document"`
}

type layerState struct {
	Handle   editor.LayerHandle `json:"handle"`
	Position int                `json:"position"`
	Selected bool               `json:"selected"`
}

func sessionToWire(s *editor.Session) sessionState {
	src := s.Source()
	handles := s.Handles()
	selection := s.Selection()

	layers := make([]layerState, len(handles))
	for pos, h := range handles {
		layers[pos] = layerState{Handle: h, Position: pos, Selected: pos == selection}
	}

	return sessionState{
		ID:        s.ID(),
		Name:      src.Name,
		Version:   src.Version,
		Dirty:     s.Dirty(),
		Selection: selection,
		Layers:    layers,
		Document:  s.Working(),
	}
}

// HandleSessions opens a new edit session on an exact stored version.
func (s *ServerContext) HandleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Name    string `json:"name"`
		Version int    `json:"version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "malformed request body")
		return
	}

	ses, err := s.Editor.Open(req.Name, req.Version, editor.NewRecordingCanvas())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionToWire(ses))
}

// editRequest carries one edit operation, discriminated by op.
type editRequest struct {
	Op       string               `json:"op"`
	Handle   editor.LayerHandle   `json:"handle"`
	Handles  []editor.LayerHandle `json:"handles"`
	Geometry *geo.Geometry        `json:"geometry"`
	Document json.RawMessage      `json:"document"`
	Position int                  `json:"position"`
	Key      string               `json:"key"`
	Value    json.RawMessage      `json:"value"`
	Remove   bool                 `json:"remove"`
}

// HandleSessionItem serves one session: state on GET, edit/commit/discard
// on POST. Paths: /api/sessions/{id} and /api/sessions/{id}/{action}
func (s *ServerContext) HandleSessionItem(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 3 || len(parts) > 4 {
		http.NotFound(w, r)
		return
	}

	ses := s.Editor.Get(parts[2])
	if ses == nil {
		writeJSON(w, http.StatusNotFound, apiError{"not_found", "no such session"})
		return
	}

	if len(parts) == 3 {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, sessionToWire(ses))
		return
	}

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch parts[3] {
	case "edit":
		s.handleEdit(w, r, ses)
	case "commit":
		rec, err := s.Editor.Commit(ses)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	case "discard":
		s.Editor.Discard(ses)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (s *ServerContext) handleEdit(w http.ResponseWriter, r *http.Request, ses *editor.Session) {
	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "malformed request body")
		return
	}

	var err error
	switch req.Op {
	case "create":
		if req.Geometry == nil || !geo.GeometryType(req.Geometry.Type) {
			badRequest(w, "create requires a geometry")
			return
		}
		var handle editor.LayerHandle
		if handle, err = ses.ShapeCreated(req.Geometry); err == nil {
			state := sessionToWire(ses)
			writeJSON(w, http.StatusOK, struct {
				Created editor.LayerHandle `json:"created"`
				sessionState
			}{handle, state})
			return
		}

	case "reshape":
		if req.Geometry == nil || !geo.GeometryType(req.Geometry.Type) {
			badRequest(w, "reshape requires a geometry")
			return
		}
		err = ses.ShapeReshaped(req.Handle, req.Geometry)

	case "delete":
		err = ses.ShapesDeleted(req.Handles)

	case "text":
		err = ses.TextEdit(req.Document)

	case "property":
		var value any
		if len(req.Value) > 0 {
			value = req.Value
		}
		err = ses.PropertyEdit(req.Position, req.Key, value, req.Remove)

	case "select":
		if req.Position < 0 {
			err = ses.ClearSelection()
		} else {
			err = ses.Select(req.Position)
		}

	default:
		badRequest(w, "unknown op")
		return
	}

	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionToWire(ses))
}
