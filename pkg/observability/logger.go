// Package observability provides structured logging, metrics, health checks
// and request correlation for the billing services.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
)

const serviceName = "reformer"

// LogOptions configures NewLogger. The zero value logs text at info level to
// stderr.
type LogOptions struct {
	// Level is one of debug, info, warn or error (any case). Unknown values
	// fall back to info.
	Level   string
	JSON    bool
	Source  bool
	Version string
	Output  io.Writer
}

// ProductionLogOptions logs JSON with source locations to stdout.
func ProductionLogOptions(level, version string) LogOptions {
	return LogOptions{Level: level, JSON: true, Source: true, Version: version, Output: os.Stdout}
}

// NewLogger returns a slog logger tagged with the service name and version.
// Records logged with a context also carry its request, correlation and user
// IDs.
func NewLogger(opts LogOptions) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	ho := &slog.HandlerOptions{Level: ParseLevel(opts.Level), AddSource: opts.Source}

	var h slog.Handler = slog.NewTextHandler(out, ho)
	if opts.JSON {
		h = slog.NewJSONHandler(out, ho)
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	h = h.WithAttrs([]slog.Attr{slog.String("service", serviceName), slog.String("version", version)})
	return slog.New(contextHandler{h})
}

// LoggerFromEnv is used before configuration has loaded. It reads APP_ENV,
// LOG_LEVEL and REFORMER_VERSION directly.
func LoggerFromEnv() *slog.Logger {
	level, version := os.Getenv("LOG_LEVEL"), os.Getenv("REFORMER_VERSION")
	if os.Getenv("APP_ENV") == "production" {
		return NewLogger(ProductionLogOptions(level, version))
	}
	return NewLogger(LogOptions{Level: level, Version: version})
}

// ParseLevel maps a level name onto slog. Anything unrecognised is info.
func ParseLevel(name string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

type contextHandler struct{ slog.Handler }

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(contextAttrs(ctx)...)
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}
