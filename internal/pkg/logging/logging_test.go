package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/samirrijal/pinmap/internal/pkg/logging"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := logging.ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_JSONWithService(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, "info", "json", "pinmap-api")
	logger.Debug("hidden")
	logger.Info("pins fetched", "points", 3)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["service"] != "pinmap-api" || rec["msg"] != "pins fetched" {
		t.Errorf("record = %v", rec)
	}
}
