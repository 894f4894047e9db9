package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestInit_DevStd_TextOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{
		Service: "demo",
		Version: "v0.0.1",
		Env:     EnvDev,
		Backend: BackendStd,
		Level:   slog.LevelDebug,
		Output:  &buf,
	})

	slog.Info("Hello world")

	out := buf.String()
	assert.False(t, strings.HasPrefix(strings.TrimSpace(out), "{"), "expected text output, got %s", out)
	assert.Contains(t, out, "Hello world")
	assert.Contains(t, out, "service=demo")
	assert.Contains(t, out, "env=dev")
}

func TestInit_ProdZap_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{
		Service: "relay",
		Version: "v1.2.3",
		Env:     EnvProd,
		Output:  &buf,
	})

	slog.Warn("disk almost full", "pct", 91)

	line := strings.TrimSpace(buf.String())
	require.NotEmpty(t, line)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &rec), "zap backend must emit JSON: %s", line)
	assert.Equal(t, "disk almost full", rec["msg"])
	assert.Equal(t, "relay", rec["service"])
	assert.Equal(t, "WARN", rec["level"])
}

func TestInit_DebugFlagLowersLevel(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Env: EnvDev, Backend: BackendStd, Debug: true, Output: &buf})

	slog.Debug("visible")
	assert.Contains(t, buf.String(), "visible")

	buf.Reset()
	Init(Config{Env: EnvDev, Backend: BackendStd, Output: &buf})
	slog.Debug("hidden")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestParseEnv(t *testing.T) {
	cases := map[string]Env{
		"production": EnvProd,
		" PROD ":     EnvProd,
		"staging":    EnvStage,
		"":           EnvDev,
		"whatever":   EnvDev,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseEnv(in), "input %q", in)
	}
}

func TestFromContext_TraceAndCustomAttrs(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Env: EnvDev, Backend: BackendStd, Output: &buf})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	ctx = WithAttrs(ctx, slog.String("req_id", "r-1"))

	FromContext(ctx).Info("traced")

	out := buf.String()
	assert.Contains(t, out, "trace_id=4bf92f3577b34da6a3ce929d0e0e4736")
	assert.Contains(t, out, "span_id=00f067aa0ba902b7")
	assert.Contains(t, out, "req_id=r-1")
}

func TestAttrsFromCtx_NoSpan(t *testing.T) {
	assert.Nil(t, AttrsFromCtx(context.Background()))
}
