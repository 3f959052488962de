// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/seb-lau/tubeamp/internal/config"
)

// Init wires the global logger from config. The terminal belongs to the
// UI, so output goes to the configured file; with no file configured the
// logs are discarded. Returns a closer for the log file.
func Init(cfg config.LogConfig) (func(), error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.TimeOnly

	if cfg.File == "" {
		zlog.Logger = zerolog.New(io.Discard)
		return func() {}, nil
	}

	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	zlog.Logger = zerolog.New(f).With().Timestamp().Logger()
	return func() { f.Close() }, nil
}
