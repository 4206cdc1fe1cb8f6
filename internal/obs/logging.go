package obs

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the process logger on stdout.
func NewLogger(service, format, level string) zerolog.Logger {
	return NewLoggerTo(os.Stdout, service, format, level)
}

// NewLoggerTo builds a logger writing to w. Every line carries the service
// name so API and worker output can share one sink. The "console" and "text"
// formats are meant for local runs; anything else emits JSON.
func NewLoggerTo(w io.Writer, service, format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	out := w
	if f := strings.ToLower(strings.TrimSpace(format)); f == "console" || f == "text" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	lc := zerolog.New(out).With().Timestamp()
	if service = strings.TrimSpace(service); service != "" {
		lc = lc.Str("service", service)
	}
	return lc.Logger()
}
