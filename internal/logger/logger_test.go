package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestDetectEnv(t *testing.T) {
	t.Setenv("APP_ENV", "")
	if got := DetectEnv(); got != EnvDev {
		t.Fatalf("default should be dev, got %q", got)
	}
	t.Setenv("APP_ENV", "staging")
	if got := DetectEnv(); got != EnvStage {
		t.Fatalf("expected stage, got %q", got)
	}
	t.Setenv("APP_ENV", "Production")
	if got := DetectEnv(); got != EnvProd {
		t.Fatalf("expected prod, got %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"DEBUG": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestInitStdTextOutput(t *testing.T) {
	var buf bytes.Buffer
	log := Init(Config{
		Service: "karaoke",
		Version: "v0.0.1",
		Env:     EnvDev,
		Backend: BackendStd,
		Level:   slog.LevelDebug,
		Output:  &buf,
	})
	log.Debug("room created", "room_id", "r1")

	out := buf.String()
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Fatalf("expected text output, got JSON: %s", out)
	}
	for _, want := range []string{"room created", "service=karaoke", "env=dev", "room_id=r1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("%q missing: %s", want, out)
		}
	}
}

func TestInitZapJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := Init(Config{
		Service:          "karaoke",
		Version:          "1.2.3",
		Env:              EnvProd,
		Backend:          BackendZap,
		Level:            slog.LevelInfo,
		SampleInitial:    100000,
		SampleThereafter: 100000,
		Output:           &buf,
	})
	log.Debug("hidden")
	log.Info("advanced", slog.String("room_id", "r1"))

	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("expected one JSON line, got %s, err=%v", buf.String(), err)
	}
	if m["msg"] != "advanced" || m["level"] != "INFO" {
		t.Fatalf("msg/level mismatch: %v", m)
	}
	if m["service"] != "karaoke" || m["env"] != "prod" || m["version"] != "1.2.3" {
		t.Fatalf("common attrs missing: %v", m)
	}
	if m["room_id"] != "r1" {
		t.Fatalf("custom field missing: %v", m)
	}
}

func TestTraceIDsAddedFromContext(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	var buf bytes.Buffer
	log := Init(Config{
		Env:              EnvProd,
		Backend:          BackendZap,
		SampleInitial:    100000,
		SampleThereafter: 100000,
		Output:           &buf,
	})

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	log.InfoContext(ctx, "with trace")
	span.End()

	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("expected JSON, got: %s, err=%v", buf.String(), err)
	}
	if m["trace_id"] != span.SpanContext().TraceID().String() || m["span_id"] == nil {
		t.Fatalf("trace_id/span_id missing in log: %v", m)
	}
}
