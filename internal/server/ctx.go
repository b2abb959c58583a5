package server

import (
	"github.com/rs/zerolog/log"
	"github.com/skyfence/geozone/assets"
	"github.com/skyfence/geozone/internal/config"
	"github.com/skyfence/geozone/internal/editor"
	"github.com/skyfence/geozone/internal/store"
)

// ServerContext holds dependencies for request handlers.
type ServerContext struct {
	Config    *config.Config
	Store     *store.Store
	Editor    *editor.Controller
	IndexHTML []byte
}

// NewServerContext initializes the context over an opened store.
func NewServerContext(cfg *config.Config, st *store.Store) *ServerContext {
	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("database", cfg.DatabasePath).
		Int("preview_size", cfg.PreviewSize).
		Msg("Initializing server context")

	return &ServerContext{
		Config:    cfg,
		Store:     st,
		Editor:    editor.NewController(st),
		IndexHTML: assets.Index,
	}
}
