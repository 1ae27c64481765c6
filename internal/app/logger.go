package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. Production emits JSON without source
// locations; everywhere else gets text with file:line for debugging.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: !cfg.IsProduction()}
	if cfg != nil && cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
