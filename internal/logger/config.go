package logger

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

type Backend string

const (
	BackendStd Backend = "std" // text, dev
	BackendZap Backend = "zap" // JSON через slog-zap, stage/prod
)

type Config struct {
	Service    string
	Version    string
	InstanceID string

	Level   slog.Level
	Env     Env
	Backend Backend // default: zap для stage/prod, std для dev
	Debug   bool

	// Zap sampling
	SampleInitial    int
	SampleThereafter int

	AddSource bool

	// Output, os.Stdout when nil.
	Output io.Writer
}

// ParseLevel accepts debug|info|warn|error, case-insensitive. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

func (c Config) level() slog.Level {
	if c.Debug && c.Level == 0 {
		return slog.LevelDebug
	}
	return c.Level
}
