package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/skyfence/geozone/internal/editor"
	"github.com/skyfence/geozone/internal/geo"
	"github.com/skyfence/geozone/internal/store"
)

// apiError is the wire shape of every error response.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeJSON encodes v with the JSON content type.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Ignoring error as we cannot handle client disconnects
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses and a stable error
// code.
func writeError(w http.ResponseWriter, err error) {
	var (
		validationErr *store.ValidationError
		formatErr     *geo.FormatError
		corruptErr    *editor.CorruptArtifactError
	)

	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, apiError{"not_found", err.Error()})
	case errors.Is(err, store.ErrVersionConflict):
		writeJSON(w, http.StatusConflict, apiError{"version_conflict", err.Error()})
	case errors.Is(err, editor.ErrNoChanges):
		writeJSON(w, http.StatusConflict, apiError{"no_changes", err.Error()})
	case errors.Is(err, editor.ErrSessionClosed):
		writeJSON(w, http.StatusConflict, apiError{"session_closed", err.Error()})
	case errors.Is(err, store.ErrEmptyName):
		writeJSON(w, http.StatusBadRequest, apiError{"invalid_request", err.Error()})
	// format errors may arrive wrapped in a ValidationError, so they are
	// discriminated first
	case errors.As(err, &formatErr):
		writeJSON(w, http.StatusBadRequest, apiError{"invalid_document", err.Error()})
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, apiError{"invalid_request", err.Error()})
	case errors.As(err, &corruptErr):
		writeJSON(w, http.StatusInternalServerError, apiError{"corrupt_artifact", err.Error()})
	default:
		log.Error().Err(err).Msg("Unhandled error in request")
		writeJSON(w, http.StatusInternalServerError, apiError{"internal", "internal server error"})
	}
}

// badRequest reports a malformed request without a domain error behind it.
func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, apiError{"invalid_request", msg})
}
