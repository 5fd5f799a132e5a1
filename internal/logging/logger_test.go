package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"binance-signal-engine/config"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"nonsense", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%s) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWithWriter_JSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "WARN", JSONFormat: true})

	logger.Info().Msg("hidden")
	componentLogger := Component(logger, "autopilot")
	componentLogger.Warn().Str("symbol", "BTCUSDT").Msg("visible")

	out := strings.TrimSpace(buf.String())
	if strings.Contains(out, "hidden") {
		t.Error("Expected info message to be filtered at WARN level")
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(out), &entry); err != nil {
		t.Fatalf("Expected one JSON line, got %q: %v", out, err)
	}
	if entry["component"] != "autopilot" {
		t.Errorf("Expected component autopilot, got %v", entry["component"])
	}
	if entry["symbol"] != "BTCUSDT" {
		t.Errorf("Expected symbol BTCUSDT, got %v", entry["symbol"])
	}
}

func TestTraceContext(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&buf, config.LoggingConfig{Level: "DEBUG", JSONFormat: true})

	ctx, _ := WithTraceContext(context.Background(), base)
	ctxLogger := FromContext(ctx, zerolog.Nop())
	ctxLogger.Info().Msg("cycle")

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("Expected JSON entry: %v", err)
	}
	if id, _ := entry["trace_id"].(string); len(id) != 36 {
		t.Errorf("Expected uuid trace id, got %v", entry["trace_id"])
	}
}

func TestFromContext_Fallback(t *testing.T) {
	var buf bytes.Buffer
	fallback := NewWithWriter(&buf, config.LoggingConfig{Level: "INFO", JSONFormat: true})

	ctxLogger := FromContext(context.Background(), fallback)
	ctxLogger.Info().Msg("fallback")
	if !strings.Contains(buf.String(), "fallback") {
		t.Error("Expected fallback logger to be used")
	}
}
