// Package logger wires command line logging options into zerolog.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is embedded into each command's Options struct as a flags group.
type Logger struct {
	Level  string `long:"log-level"  env:"LOG_LEVEL"  description:"Logging level" default:"info" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error"`
	Format string `long:"log-format" env:"LOG_FORMAT" description:"Logging format" default:"text" choice:"text" choice:"json"`
}

// Setup configures the global zerolog logger from the parsed options.
func (l *Logger) Setup() {
	level, err := zerolog.ParseLevel(strings.ToLower(l.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if l.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	})
}
