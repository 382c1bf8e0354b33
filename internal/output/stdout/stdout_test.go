package stdout

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/crimson-sun/persona/internal/model"
	"github.com/crimson-sun/persona/internal/output"
)

func testResult() model.UserPredictions {
	return model.UserPredictions{
		UserID:      "u1",
		PostCount:   2,
		Predictions: []string{"INFP", "INFP"},
	}
}

// captureStdout redirects os.Stdout to capture output.
func captureStdout(fn func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	return buf.String()
}

func TestOutputCompactJSON(t *testing.T) {
	result := captureStdout(func() {
		out := New(output.Standard, false)
		out.Write(context.Background(), testResult())
	})

	// Should be single line (NDJSON).
	lines := strings.Split(strings.TrimSpace(result), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if m["user_id"] != "u1" {
		t.Fatalf("expected user_id=u1, got %v", m["user_id"])
	}
	if m["dominant"] != "INFP" {
		t.Fatalf("expected dominant=INFP, got %v", m["dominant"])
	}
}

func TestOutputPrettyJSON(t *testing.T) {
	result := captureStdout(func() {
		out := New(output.Standard, true)
		out.Write(context.Background(), testResult())
	})

	if !strings.Contains(result, "  ") {
		t.Fatal("expected indented output for pretty mode")
	}
	lines := strings.Split(strings.TrimSpace(result), "\n")
	if len(lines) < 3 {
		t.Fatalf("expected multi-line pretty output, got %d lines", len(lines))
	}
}

func TestOutputMinimalOmitsFields(t *testing.T) {
	result := captureStdout(func() {
		out := New(output.Minimal, false)
		out.Write(context.Background(), testResult())
	})

	var m map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(result)), &m); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := m["predictions"]; ok {
		t.Fatal("predictions should be omitted at Minimal")
	}
	if m["post_count"] != float64(2) {
		t.Fatalf("post_count should be preserved, got %v", m["post_count"])
	}
}
