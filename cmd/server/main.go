package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/skyfence/geozone/internal/config"
	"github.com/skyfence/geozone/internal/logger"
	"github.com/skyfence/geozone/internal/server"
	"github.com/skyfence/geozone/internal/store"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string `short:"c" long:"config"   env:"CONFIG_FILE"    description:"Path to configuration file" default:"config.yaml"`
	Addr       string `short:"a" long:"addr"     env:"LISTEN_ADDRESS" description:"Address to listen on"       default:"0.0.0.0"`
	Port       int    `short:"p" long:"port"     env:"LISTEN_PORT"    description:"Port to listen on"          default:"8080"`
	DataDir    string `short:"d" long:"data-dir" env:"DATA_DIR"       description:"Zone artifact directory"`
	Database   string `short:"b" long:"database" env:"DATABASE_PATH"  description:"Metadata database path"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	// Setup Logging
	opts.Logger.Setup()

	// Load Config
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if opts.Database != "" {
		cfg.DatabasePath = opts.Database
	}

	// Open Store
	meta, err := store.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("Failed to open metadata database")
	}
	blobs, err := store.NewDirBlobs(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DataDir).Msg("Failed to prepare data directory")
	}
	st := store.New(meta, blobs)
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("Store close failed")
		}
	}()

	srvCtx := server.NewServerContext(cfg, st)

	// Routes
	mux := http.NewServeMux()
	mux.HandleFunc("/api/zones", srvCtx.HandleZones)
	mux.HandleFunc("/api/zones/", srvCtx.HandleZoneItem)
	mux.HandleFunc("/api/sessions", srvCtx.HandleSessions)
	mux.HandleFunc("/api/sessions/", srvCtx.HandleSessionItem)
	mux.HandleFunc("/", srvCtx.HandleIndex)

	handler := server.RequestLogger(mux)

	listenAddr := fmt.Sprintf("%s:%d", opts.Addr, opts.Port)
	log.Info().
		Str("addr", listenAddr).
		Str("data_dir", cfg.DataDir).
		Msg("Web server started")

	if err := http.ListenAndServe(listenAddr, handler); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
