// Package server handles HTTP requests and middleware.
package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/chai2010/webp"
	"github.com/rs/zerolog/log"
	"github.com/skyfence/geozone/internal/geo"
	"github.com/skyfence/geozone/internal/preview"
	"github.com/skyfence/geozone/internal/store"
)

// uploadLimit caps zone document uploads at 16 MiB.
const uploadLimit = 16 << 20

// HandleZones serves the zone collection: list on GET, upload on POST.
func (s *ServerContext) HandleZones(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		latest := r.URL.Query().Get("latest") == "true"
		records, err := s.Store.List(r.URL.Query().Get("name"), latest)
		if err != nil {
			writeError(w, err)
			return
		}
		if records == nil {
			records = []store.Record{}
		}
		writeJSON(w, http.StatusOK, records)

	case http.MethodPost:
		s.handleUpload(w, r)

	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleUpload accepts a multipart form with a GeoJSON file, a zone name
// and an optional description, and stores it as the next version.
func (s *ServerContext) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(uploadLimit); err != nil {
		badRequest(w, "malformed multipart form")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "missing file field")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, uploadLimit+1))
	if err != nil {
		badRequest(w, "unreadable file")
		return
	}
	if len(data) > uploadLimit {
		badRequest(w, "file too large")
		return
	}

	rec, err := s.Store.Create(r.FormValue("name"), r.FormValue("description"), data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// HandleZoneItem serves a single version: download, delete, or preview.
// Paths: /api/zones/{name}/{version} and .../{version}/preview.webp
func (s *ServerContext) HandleZoneItem(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 4 || len(parts) > 5 {
		http.NotFound(w, r)
		return
	}

	name := parts[2]
	version, err := strconv.Atoi(parts[3])
	if err != nil || version < 1 {
		badRequest(w, "version must be a positive integer")
		return
	}

	if len(parts) == 5 {
		if parts[4] != "preview.webp" || r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		s.handlePreview(w, name, version)
		return
	}

	switch r.Method {
	case http.MethodGet:
		data, err := s.Store.Read(name, version)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="%s-v%d.geojson"`, name, version))
		_, _ = w.Write(data)

	case http.MethodDelete:
		if err := s.Store.Delete(name, version); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "GET, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handlePreview renders the version's geometry as a WebP thumbnail.
func (s *ServerContext) handlePreview(w http.ResponseWriter, name string, version int) {
	data, err := s.Store.Read(name, version)
	if err != nil {
		writeError(w, err)
		return
	}

	c, err := geo.Validate(data)
	if err != nil {
		writeError(w, err)
		return
	}

	img, err := preview.Render(c, s.Config.PreviewSize)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/webp")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if err := webp.Encode(w, img, &webp.Options{Quality: 80}); err != nil {
		// headers already sent, nothing left to do but log
		log.Error().
			Err(err).
			Str("zone", name).
			Int("version", version).
			Msg("Preview encoding failed mid-response")
	}
}

// HandleIndex serves the main HTML application.
func (s *ServerContext) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && strings.Contains(r.URL.Path, ".") {
		http.NotFound(w, r)
		return
	}

	etag := fmt.Sprintf(`"%x"`, len(s.IndexHTML))

	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, no-cache")
	_, _ = w.Write(s.IndexHTML)
}
