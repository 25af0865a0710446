package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func capture(t *testing.T, detailed bool) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	if err := InitWithConfig(LogConfig{Level: "INFO", Format: "json", DetailedLogging: detailed, Output: &buf}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = InitWithConfig(LogConfig{}) })
	return &buf
}

func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("Invalid JSON record %q: %v", line, err)
		}
		out = append(out, rec)
	}
	return out
}

func TestOperationTimerEnd(t *testing.T) {
	buf := capture(t, true)

	op := StartOperation(context.Background(), "ta.Compute", "symbol", "INFY")
	op.End("bars", 40)

	recs := records(t, buf)
	if len(recs) != 2 {
		t.Fatalf("Expected start and completion records, got %d: %s", len(recs), buf.String())
	}
	done := recs[1]
	if done["msg"] != "Operation completed" || done["level"] != "DEBUG" {
		t.Errorf("Unexpected completion record %v", done)
	}
	if done["operation"] != "ta.Compute" || done["symbol"] != "INFY" || done["bars"] != float64(40) {
		t.Errorf("Expected operation fields to be carried, got %v", done)
	}
	if _, ok := done["duration_ms"]; !ok {
		t.Errorf("Expected duration_ms, got %v", done)
	}
}

func TestOperationTimerQuietWithoutDetailedLogging(t *testing.T) {
	buf := capture(t, false)

	StartOperation(context.Background(), "report.WriteCSV").End()
	if buf.Len() != 0 {
		t.Errorf("Expected no output at info level, got %s", buf.String())
	}
}

func TestOperationTimerEndWithError(t *testing.T) {
	buf := capture(t, false)

	StartOperation(context.Background(), "report.WriteCSV", "dir", "reports").EndWithError(errors.New("disk full"))

	recs := records(t, buf)
	if len(recs) != 1 {
		t.Fatalf("Expected a single error record, got %s", buf.String())
	}
	rec := recs[0]
	if rec["level"] != "ERROR" || rec["msg"] != "Operation failed" || rec["error"] != "disk full" {
		t.Errorf("Unexpected error record %v", rec)
	}
	if rec["operation"] != "report.WriteCSV" || rec["dir"] != "reports" {
		t.Errorf("Expected operation fields on failure, got %v", rec)
	}
}
