package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestLoggerDecoratesEntries(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelInfo, "backoffice", func(context.Context) string { return "trace-1" })

	ctx := WithRequestID(context.Background(), "req-1")
	log.Info(ctx, "order placed", "order_id", "42")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v (%s)", err, buf.String())
	}
	for key, want := range map[string]string{
		"msg":        "order placed",
		"service":    "backoffice",
		"trace_id":   "trace-1",
		"request_id": "req-1",
		"order_id":   "42",
	} {
		if got := entry[key]; got != want {
			t.Errorf("%s: expected %q, got %v", key, want, got)
		}
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelWarn, "backoffice", nil)

	log.Info(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %s", buf.String())
	}
	log.Error(context.Background(), "shown")
	if buf.Len() == 0 {
		t.Fatal("expected error entry")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"WARN":    LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
