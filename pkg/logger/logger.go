package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// DefaultService is the service attribute stamped on every record.
const DefaultService = "maru-api"

type Options struct {
	// Env selects the default level: debug for local and dev, info elsewhere.
	Env     string
	// Level overrides the env default. One of debug, info, warn, error.
	Level   string
	Service string
	// Output defaults to os.Stdout.
	Output  io.Writer
}

// New returns a JSON slog logger configured from opts.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	service := opts.Service
	if service == "" {
		service = DefaultService
	}

	h := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: Level(opts.Env, opts.Level)})
	return slog.New(h).With("service", service)
}

// Level resolves the minimum level for env, honouring an explicit override.
// Unknown overrides fall back to the env default.
func Level(env, override string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(override)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if env == "local" || env == "dev" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

type ctxKey struct{}

// With stores l in ctx.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From returns the logger stored in ctx, or slog.Default().
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}
