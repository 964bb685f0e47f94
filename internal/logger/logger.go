// Package logger configures the process-wide slog logger.
package logger

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	mu  sync.RWMutex
	def *slog.Logger
)

// Init настраивает slog в зависимости от среды и делает его логгером по умолчанию.
func Init(cfg Config) *slog.Logger {
	if cfg.Env == "" {
		cfg.Env = DetectEnv()
	}
	if cfg.Service == "" {
		cfg.Service = "karaoke"
	}
	cfg.InstanceID = ensureInstanceID(cfg.InstanceID)
	if cfg.Backend == "" {
		if cfg.Env == EnvDev {
			cfg.Backend = BackendStd
		} else {
			cfg.Backend = BackendZap
		}
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	var h slog.Handler
	switch cfg.Backend {
	case BackendZap:
		h = newZapHandler(cfg, out)
	default:
		h = newStdHandler(cfg, out)
	}
	h = traceHandler{h.WithAttrs(commonAttrs(cfg))}

	base := slog.New(h)
	slog.SetDefault(base)

	mu.Lock()
	def = base
	mu.Unlock()
	return base
}

func L() *slog.Logger {
	mu.RLock()
	l := def
	mu.RUnlock()
	if l != nil {
		return l
	}
	return Init(Config{})
}

func ensureInstanceID(v string) string {
	if v != "" {
		return v
	}
	hn, _ := os.Hostname()
	return hn + "-" + uuid.New().String()[:8]
}

func commonAttrs(cfg Config) []slog.Attr {
	return []slog.Attr{
		slog.String("service", cfg.Service),
		slog.String("env", string(cfg.Env)),
		slog.String("version", cfg.Version),
		slog.String("instance_id", cfg.InstanceID),
		slog.Time("started_at", time.Now()),
	}
}
