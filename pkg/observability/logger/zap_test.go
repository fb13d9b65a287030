package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func newBufferedLogger(t *testing.T, level LogLevel) (*ZapLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	log, err := NewZapLogger(Config{Level: level, Format: JSONFormat, Output: &buf})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	return log, &buf
}

func decodeEntries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestNewZapLogger_RejectsUnknownLevel(t *testing.T) {
	if _, err := NewZapLogger(Config{Level: "verbose"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNewZapLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewZapLogger(Config{Level: InfoLevel, Format: TextFormat, Output: &buf})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	log.Info("queue initialized", "pending", 3)
	_ = log.Sync()

	out := buf.String()
	if !strings.Contains(out, "queue initialized") || !strings.Contains(out, "pending") {
		t.Fatalf("unexpected console output %q", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Fatalf("expected console encoding, got JSON %q", out)
	}
}

func TestZapLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name  string
		level LogLevel
		want  []string
	}{
		{name: "debug", level: DebugLevel, want: []string{"debug", "info", "warn", "error"}},
		{name: "info", level: InfoLevel, want: []string{"info", "warn", "error"}},
		{name: "warn", level: WarnLevel, want: []string{"warn", "error"}},
		{name: "error", level: ErrorLevel, want: []string{"error"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, buf := newBufferedLogger(t, tt.level)
			log.Debug("d")
			log.Info("i")
			log.Warn("w")
			log.Error("e")
			_ = log.Sync()

			entries := decodeEntries(t, buf)
			if len(entries) != len(tt.want) {
				t.Fatalf("expected %d entries, got %d", len(tt.want), len(entries))
			}
			for i, entry := range entries {
				if entry["level"] != tt.want[i] {
					t.Fatalf("entry %d: expected level %s, got %v", i, tt.want[i], entry["level"])
				}
			}
		})
	}
}

func TestZapLogger_StructuredFields(t *testing.T) {
	log, buf := newBufferedLogger(t, InfoLevel)
	log.Info("request processed", "endpoint", "/transactions", "retries", 2, "dead_lettered", false)
	_ = log.Sync()

	entries := decodeEntries(t, buf)
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	entry := entries[0]
	for _, key := range []string{"timestamp", "level", "message"} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("missing required field %q", key)
		}
	}
	if entry["endpoint"] != "/transactions" || entry["retries"] != float64(2) || entry["dead_lettered"] != false {
		t.Fatalf("unexpected fields %v", entry)
	}
}

func TestZapLogger_WithDoesNotLeakIntoParent(t *testing.T) {
	log, buf := newBufferedLogger(t, InfoLevel)
	child := log.With("component", "drain")
	child.Info("child")
	log.Info("parent")
	_ = log.Sync()

	entries := decodeEntries(t, buf)
	if entries[0]["component"] != "drain" {
		t.Fatalf("expected child field, got %v", entries[0])
	}
	if _, ok := entries[1]["component"]; ok {
		t.Fatalf("parent logger must not carry child fields: %v", entries[1])
	}
}

func TestZapLogger_WithContext(t *testing.T) {
	log, buf := newBufferedLogger(t, InfoLevel)

	ctx := ContextWithDrainID(context.Background(), "drain-1")
	ctx = ContextWithRequestID(ctx, "req-1")
	log.WithContext(ctx).Info("delivering")
	log.WithContext(context.Background()).Info("no ids")
	log.WithContext(nil).Info("nil context") //nolint:staticcheck
	_ = log.Sync()

	entries := decodeEntries(t, buf)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0]["drain_id"] != "drain-1" || entries[0]["request_id"] != "req-1" {
		t.Fatalf("expected ids from context, got %v", entries[0])
	}
	if _, ok := entries[1]["request_id"]; ok {
		t.Fatalf("unexpected request_id in %v", entries[1])
	}
}

func TestNewNopLogger(t *testing.T) {
	log := NewNopLogger()
	log.With("k", "v").WithContext(context.Background()).Error("discarded")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{input: "debug", want: DebugLevel},
		{input: "INFO", want: InfoLevel},
		{input: "warn", want: WarnLevel},
		{input: "warning", want: WarnLevel},
		{input: " error ", want: ErrorLevel},
		{input: "invalid", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLogLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLogLevel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("ParseLogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseLogFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    LogFormat
		wantErr bool
	}{
		{input: "json", want: JSONFormat},
		{input: "text", want: TextFormat},
		{input: "console", want: TextFormat},
		{input: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLogFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLogFormat() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("ParseLogFormat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewZapLogger_AttachesConfiguredFields(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewZapLogger(Config{
		Level:  "WARNING",
		Output: &buf,
		Fields: []any{"service", "offlinequeue", "version", "v1.4.0"},
	})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	log.Info("suppressed below warn")
	log.With("endpoint", "/todos").Warn("delivery failed")
	_ = log.Sync()

	entries := decodeEntries(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected only the warning, got %d entries", len(entries))
	}
	entry := entries[0]
	if entry["service"] != "offlinequeue" || entry["version"] != "v1.4.0" || entry["endpoint"] != "/todos" {
		t.Fatalf("missing fields in %v", entry)
	}
}

func TestNewZapLogger_RejectsUnknownFormat(t *testing.T) {
	if _, err := NewZapLogger(Config{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
