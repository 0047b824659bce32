package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newJSONLogger(buf *bytes.Buffer, level string) *Logger {
	return NewWithWriter(buf, &Config{Level: level, Format: "json"}, "test-svc")
}

func decodeLine(t *testing.T, line string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("invalid json log line %q: %v", line, err)
	}
	return m
}

func TestNewDefault(t *testing.T) {
	l := NewDefault("test-svc")
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	if l.service != "test-svc" {
		t.Errorf("expected service 'test-svc', got %q", l.service)
	}
}

func TestNewInvalidLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(&buf, "invalid-level")
	l.Info("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Error("expected info level fallback to write the message")
	}
}

func TestNewFromEnv(t *testing.T) {
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("LOG_FORMAT", "json")
	defer os.Unsetenv("LOG_LEVEL")
	defer os.Unsetenv("LOG_FORMAT")

	l := NewFromEnv("env-svc")
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	if l.GetLogger().GetLevel() != zerolog.DebugLevel {
		t.Errorf("expected debug level, got %s", l.GetLogger().GetLevel())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(&buf, "warn")
	l.Debug("dropped")
	l.Info("dropped too")
	l.Warn("kept")
	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("expected debug/info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("expected warn message, got %q", out)
	}
	if l.Enabled(zerolog.InfoLevel) {
		t.Error("info should not be enabled at warn level")
	}
	if !l.Enabled(zerolog.ErrorLevel) {
		t.Error("error should be enabled at warn level")
	}
}

func TestWithComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(&buf, "debug").
		WithComponent("scheduler").
		WithFields(Fields(FieldWorker, 2))
	l.Info("worker started", Fields(FieldQueueDepth, 5))

	m := decodeLine(t, strings.TrimSpace(buf.String()))
	if m[FieldComponent] != "scheduler" {
		t.Errorf("expected component=scheduler, got %v", m[FieldComponent])
	}
	if m[FieldWorker] != float64(2) {
		t.Errorf("expected worker=2, got %v", m[FieldWorker])
	}
	if m[FieldQueueDepth] != float64(5) {
		t.Errorf("expected queue_depth=5, got %v", m[FieldQueueDepth])
	}
	if m["service"] != "test-svc" {
		t.Errorf("expected service=test-svc, got %v", m["service"])
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	newJSONLogger(&buf, "debug").WithError(errors.New("boom")).Error("failed")
	m := decodeLine(t, strings.TrimSpace(buf.String()))
	if m["error"] != "boom" {
		t.Errorf("expected error=boom, got %v", m["error"])
	}
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	newJSONLogger(&buf, "debug").Log(zerolog.DebugLevel, "signal", SignalFields("sub-1", SignalNext))
	m := decodeLine(t, strings.TrimSpace(buf.String()))
	if m["level"] != "debug" {
		t.Errorf("expected level debug, got %v", m["level"])
	}
	if m[FieldSubscriptionID] != "sub-1" || m[FieldSignal] != SignalNext {
		t.Errorf("unexpected fields %v", m)
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	if l.Enabled(zerolog.ErrorLevel) {
		t.Error("nop logger should never be enabled")
	}
	l.Error("nothing happens")
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, &Config{Level: "info", Format: "console", NoColor: true}, "svc")
	l.Info("hello", Fields("k", "v"))
	out := buf.String()
	if !strings.Contains(out, "[INF]") {
		t.Errorf("expected [INF] tag, got %q", out)
	}
	if !strings.Contains(out, "k:") {
		t.Errorf("expected field name formatting, got %q", out)
	}
}

func TestGlobalLogger(t *testing.T) {
	prev := GetGlobalLogger()
	defer SetGlobalLogger(prev)

	var buf bytes.Buffer
	SetGlobalLogger(newJSONLogger(&buf, "debug"))
	Info("global message")
	WithComponent("pipeline").Debug("component message")
	out := buf.String()
	if !strings.Contains(out, "global message") || !strings.Contains(out, "component message") {
		t.Errorf("expected both messages, got %q", out)
	}
}

func TestInit(t *testing.T) {
	prev := GetGlobalLogger()
	defer SetGlobalLogger(prev)

	Init(Config{ServiceName: "engine", Level: "error", Format: "json", Output: "discard"})
	if GetGlobalLogger().service != "engine" {
		t.Errorf("expected service engine, got %q", GetGlobalLogger().service)
	}
}

func TestConfigApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	if cfg.Level != "info" || cfg.Format != "console" || cfg.Output != "stdout" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if !cfg.Timestamp {
		t.Error("expected timestamp enabled")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Level: "debug", Format: "json"}, false},
		{"disabled level", Config{Level: "disabled", Format: "console"}, false},
		{"bad level", Config{Level: "verbose", Format: "json"}, true},
		{"bad format", Config{Level: "info", Format: "xml"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestFields(t *testing.T) {
	f := Fields("a", 1, "b", "two", 3, "ignored", "dangling")
	if len(f) != 2 || f["a"] != 1 || f["b"] != "two" {
		t.Errorf("unexpected fields %v", f)
	}
}

func TestMergeWithError(t *testing.T) {
	f := MergeWithError(nil, errors.New("x"))
	if f[FieldError] != "x" {
		t.Errorf("expected error field, got %v", f)
	}
}
