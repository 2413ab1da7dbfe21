package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/ledgercast/ledgercast/internal/analytics"
	"github.com/ledgercast/ledgercast/internal/config"
)

var _ analytics.Sink = (*Logger)(nil)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogger_ErrorFieldRenderedAsString(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, zerolog.DebugLevel)

	logger.Warn("fit failed", "error", errors.New("singular matrix"), "model", "VAR(1)")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line, got %d", len(lines))
	}
	if lines[0]["error"] != "singular matrix" {
		t.Errorf("Expected error string, got %v", lines[0]["error"])
	}
	if lines[0]["model"] != "VAR(1)" {
		t.Errorf("Expected model field, got %v", lines[0]["model"])
	}
	if lines[0]["level"] != "warn" {
		t.Errorf("Expected level warn, got %v", lines[0]["level"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, zerolog.InfoLevel)

	logger.Debug("hidden")
	logger.Info("shown")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0]["message"] != "shown" {
		t.Errorf("Expected only the info line, got %v", lines)
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	parent := NewWithWriter(&buf, zerolog.DebugLevel)
	child := parent.With("component", "tournament")

	child.Info("ranked")
	parent.Info("plain")

	lines := decodeLines(t, &buf)
	if lines[0]["component"] != "tournament" {
		t.Errorf("Expected child field, got %v", lines[0])
	}
	if _, ok := lines[1]["component"]; ok {
		t.Errorf("Expected parent without child field, got %v", lines[1])
	}
}

func TestLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, zerolog.DebugLevel)

	ctx := WithLogger(context.Background(), logger)
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithPredictionID(ctx, "pred-1")

	Ctx(ctx).Info("stored")

	lines := decodeLines(t, &buf)
	if lines[0]["request_id"] != "req-1" || lines[0]["prediction_id"] != "pred-1" {
		t.Errorf("Expected context ids, got %v", lines[0])
	}
	if RequestIDFromContext(ctx) != "req-1" {
		t.Errorf("Expected request id req-1, got %s", RequestIDFromContext(ctx))
	}
	if FromContext(context.Background()) != Global() {
		t.Error("Expected global logger without context logger")
	}
}

func TestNewFromConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	logger, err := NewFromConfig(config.LoggingConfig{Level: "warn", Format: "json", OutputPath: path})
	if err != nil {
		t.Fatalf("NewFromConfig() error = %v", err)
	}
	logger.Warn("written")
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, zerolog.DebugLevel)

	app := fiber.New()
	app.Use(RequestLogger(logger, "/health"))
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/missing", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNotFound) })

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("Expected generated X-Request-ID on skipped path")
	}
	if buf.Len() != 0 {
		t.Errorf("Expected /health to be skipped, got %s", buf.String())
	}

	req := httptest.NewRequest("GET", "/missing", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.Header.Get("X-Request-ID") != "fixed-id" {
		t.Errorf("Expected echoed request id, got %s", resp.Header.Get("X-Request-ID"))
	}

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("Expected 1 log line, got %d", len(lines))
	}
	if lines[0]["level"] != "warn" || lines[0]["request_id"] != "fixed-id" {
		t.Errorf("Expected client error warning with request id, got %v", lines[0])
	}
}

func TestLogger_OddAndNonStringKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, zerolog.DebugLevel)

	logger.Info("months", 3, "ok", "dangling")

	lines := decodeLines(t, &buf)
	if lines[0]["3"] != "ok" {
		t.Errorf("Expected formatted key, got %v", lines[0])
	}
	if _, ok := lines[0]["dangling"]; ok {
		t.Errorf("Expected dangling key dropped, got %v", lines[0])
	}
	if logger.With("solo") != logger {
		t.Error("Expected With without a pair to return the same logger")
	}
}
