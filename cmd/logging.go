package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	slogmulti "github.com/samber/slog-multi"

	"github.com/nextlevelbuilder/argus/internal/config"
)

// setupLogging installs the default logger: text on stderr, plus JSON lines
// appended to cfg.File when set. The returned LevelVar is live; the returned
// closer releases the log file.
func setupLogging(cfg config.LogConfig, debug bool) (*slog.LevelVar, io.Closer, error) {
	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Level))
	if debug {
		level.Set(slog.LevelDebug)
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		path := config.ExpandHome(cfg.File)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
		closer = f
	}

	slog.SetDefault(slog.New(slogmulti.Fanout(handlers...)))
	return level, closer, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
