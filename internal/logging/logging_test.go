package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Fatal("expected default logger")
	}
}

func TestWithSurfaceEnrichesLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(&buf, "info"))
	ctx = WithSurface(ctx, "profile")

	if SurfaceFromContext(ctx) != "profile" {
		t.Fatalf("unexpected surface %q", SurfaceFromContext(ctx))
	}

	FromContext(ctx).Info("rendered")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["surface"] != "profile" {
		t.Fatalf("expected surface attribute, got %v", entry)
	}
}

func TestStartSpanAddsIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(&buf, "debug"))

	ctx, span := StartSpan(ctx, "catalog.search")
	FromContext(ctx).Info("inside span")
	span.End(errors.New("boom"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines got %d: %s", len(lines), buf.String())
	}
	for _, line := range lines {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode log line: %v", err)
		}
		if entry["trace_id"] == "" || entry["span_id"] == "" || entry["span_name"] != "catalog.search" {
			t.Fatalf("missing span attributes: %v", entry)
		}
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != slog.LevelDebug {
		t.Fatal("expected debug level")
	}
	if ParseLevel("nonsense") != slog.LevelInfo {
		t.Fatal("expected info fallback")
	}
}
