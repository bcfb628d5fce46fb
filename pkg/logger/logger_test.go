package logger

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func captureStdOut(fn func()) string {
	orig := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	defer func() {
		os.Stdout = orig
	}()

	fn()

	_ = w.Close()
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	_ = r.Close()
	return buf.String()
}

func TestInit_DevStd_TextOutput(t *testing.T) {
	cfg := Config{
		Service: "realtime-service",
		Version: "v0.0.1",
		Env:     EnvDev,
		Backend: BackendStd,
		Level:   slog.LevelDebug,
	}

	out := captureStdOut(func() {
		Init(cfg)
		slog.Info("fanout started")
	})

	if strings.Contains(out, "{") && strings.Contains(out, "}") {
		t.Fatalf("expected text output in dev/std, got JSON: %s", out)
	}
	if !strings.Contains(out, "fanout started") {
		t.Fatalf("message missing: %s", out)
	}
	if !strings.Contains(out, "service=realtime-service") {
		t.Fatalf("service attr missing: %s", out)
	}
	if !strings.Contains(out, "env=dev") {
		t.Fatalf("env attr missing: %s", out)
	}
}

func TestInit_ProdDefaultsToZap(t *testing.T) {
	cfg := Config{
		Service: "realtime-service",
		Env:     EnvProd,
	}

	out := captureStdOut(func() {
		Init(cfg)
		slog.Info("fanout started")
	})

	if !strings.Contains(out, "{") {
		t.Fatalf("expected JSON output in prod, got: %s", out)
	}
	if !strings.Contains(out, "fanout started") {
		t.Fatalf("message missing: %s", out)
	}
}

func TestDetectEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	if got := DetectEnv(); got != EnvProd {
		t.Fatalf("expected prod, got %s", got)
	}

	t.Setenv("APP_ENV", "staging")
	if got := DetectEnv(); got != EnvStage {
		t.Fatalf("expected stage, got %s", got)
	}

	t.Setenv("APP_ENV", "")
	if got := DetectEnv(); got != EnvDev {
		t.Fatalf("expected dev, got %s", got)
	}
}
