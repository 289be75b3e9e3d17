package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mailinvoice/internal/config"
)

// New builds the process logger from LOG_LEVEL, LOG_FORMAT and DEBUG_LOGGING.
func New(cfg config.Config) zerolog.Logger {
	var out io.Writer = os.Stderr
	if strings.EqualFold(cfg.LogFormat, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if cfg.DebugLogging {
		level = zerolog.DebugLevel
	}

	return zerolog.New(out).Level(level).With().Timestamp().Str("app", "mailinvoice").Logger()
}
