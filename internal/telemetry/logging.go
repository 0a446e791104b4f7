package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lmittmann/tint"

	"github.com/kickai/kickai/internal/shared"
)

// NewLogger always appends structured JSON to <homeDir>/logs/system.jsonl
// (for later audit/search), and additionally tees a human-readable,
// colorized stream to stdout via tint unless quiet is set — the split
// mirrors how an operator actually consumes these logs: grep/jq over the
// file, eyeball the terminal during development.
func NewLogger(homeDir, level string, quiet bool) (*slog.Logger, io.Closer, error) {
	logDir := filepath.Join(homeDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, err
	}

	logFilePath := filepath.Join(logDir, "system.jsonl")
	file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}

	lvl := parseLevel(level)
	replace := func(_ []string, a slog.Attr) slog.Attr {
		if a.Key == slog.TimeKey {
			a.Key = "timestamp"
		}
		if shouldRedactKey(a.Key) {
			return slog.String(a.Key, "[REDACTED]")
		}
		if a.Value.Kind() == slog.KindString {
			if redacted, ok := redactStringValue(a.Value.String()); ok {
				return slog.String(a.Key, redacted)
			}
		}
		return a
	}

	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: lvl, ReplaceAttr: replace})
	var handler slog.Handler = fileHandler
	if !quiet {
		consoleHandler := tint.NewHandler(os.Stdout, &tint.Options{
			Level:       lvl,
			TimeFormat:  "15:04:05",
			ReplaceAttr: replace,
		})
		handler = &fanoutHandler{handlers: []slog.Handler{fileHandler, consoleHandler}}
	}

	logger := slog.New(handler).With("component", "runtime", "trace_id", "-")
	return logger, file, nil
}

// fanoutHandler dispatches every record to each wrapped handler in turn,
// so the JSON file sink and the colorized console sink can run off the
// same slog.Logger without forcing them into a single shared format.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (f *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (f *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (f *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}

func shouldRedactKey(key string) bool {
	lower := strings.ToLower(strings.TrimSpace(key))
	if lower == "" {
		return false
	}
	sensitiveTokens := []string{"token", "secret", "password", "authorization", "api_key", "apikey", "bearer"}
	for _, token := range sensitiveTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

func redactStringValue(v string) (string, bool) {
	lower := strings.ToLower(v)
	// Full redaction for strings containing bearer tokens or auth headers.
	if strings.Contains(lower, "bearer ") {
		return "[REDACTED]", true
	}
	if strings.Contains(lower, "api_key") || strings.Contains(lower, "authorization:") {
		return "[REDACTED]", true
	}
	// Apply shared pattern-based redaction for other secrets (GC-SPEC-SEC-005).
	redacted := shared.Redact(v)
	if redacted != v {
		return redacted, true
	}
	return v, false
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
