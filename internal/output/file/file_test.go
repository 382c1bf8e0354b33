package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"github.com/crimson-sun/persona/internal/model"
	"github.com/crimson-sun/persona/internal/output"
)

func testResult(user string, labels ...string) model.UserPredictions {
	return model.UserPredictions{
		UserID:      user,
		PostCount:   len(labels),
		Predictions: labels,
	}
}

func TestWriteProducesValidNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	out, err := New(path, output.Standard)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := out.Write(context.Background(), testResult("u1", "ISTJ", "ESTJ", "ISTJ")); err != nil {
			t.Fatalf("Write error: %v", err)
		}
	}
	out.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want 5", len(lines))
	}
	for i, line := range lines {
		var rec output.Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Errorf("line %d: invalid JSON: %v", i, err)
		}
		if rec.Dominant != "ISTJ" || len(rec.Predictions) != 3 {
			t.Errorf("line %d: unexpected record %+v", i, rec)
		}
	}
}

func TestRotationTriggersAtMaxSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.jsonl")

	// Each line is ~80 bytes, so rotation happens after the first line.
	out, err := New(path, output.Standard, WithMaxSize(100))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := out.Write(context.Background(), testResult("u1", "INTJ", "INTJ")); err != nil {
			t.Fatalf("Write error: %v", err)
		}
	}
	out.Close()

	if _, err := os.Stat(path + ".1"); os.IsNotExist(err) {
		t.Error("expected rotated file .1 to exist")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("current file stat error: %v", err)
	}
	if info.Size() == 0 {
		t.Error("current file is empty after rotation")
	}
}

func TestAppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	for i := 0; i < 2; i++ {
		out, err := New(path, output.Minimal)
		if err != nil {
			t.Fatalf("New error: %v", err)
		}
		out.Write(context.Background(), testResult("u1", "ENTP"))
		out.Close()
	}

	data, _ := os.ReadFile(path)
	if lines := strings.Split(strings.TrimSpace(string(data)), "\n"); len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
}

func TestCloseFlushesData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	out, err := New(path, output.Standard)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	out.Write(context.Background(), testResult("u2", "ESFP"))
	out.Close()

	data, _ := os.ReadFile(path)
	if len(data) == 0 {
		t.Error("file is empty, Close did not flush buffered data")
	}
}

func TestVerbosityMinimalStripsFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	out, err := New(path, output.Minimal)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	out.Write(context.Background(), testResult("u3", "INFJ"))
	out.Close()

	data, _ := os.ReadFile(path)
	var rec map[string]any
	json.Unmarshal([]byte(strings.TrimSpace(string(data))), &rec)

	if _, ok := rec["predictions"]; ok {
		t.Error("Minimal verbosity should strip 'predictions' field")
	}
	if rec["dominant"] != "INFJ" {
		t.Errorf("dominant = %v, want INFJ", rec["dominant"])
	}
}

func TestConcurrentWritesSafe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	out, err := New(path, output.Standard)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out.Write(context.Background(), testResult("u4", "ISFP"))
		}()
	}
	wg.Wait()
	out.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 50 {
		t.Errorf("got %d lines, want 50", len(lines))
	}
}

func TestRollOverKeepsGenerations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")

	// Every record is larger than half the limit, so each write after the
	// first starts a new file.
	out, err := New(path, output.Standard, WithMaxSize(100), WithKeep(2))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	users := []string{"a", "b", "c", "d", "e"}
	for _, u := range users {
		if err := out.Write(context.Background(), testResult(u, "INTJ", "INTJ")); err != nil {
			t.Fatalf("Write error: %v", err)
		}
	}
	if err := out.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	want := map[string]string{path: "e", path + ".1": "d", path + ".2": "c"}
	for p, user := range want {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("read %s: %v", filepath.Base(p), err)
		}
		var rec output.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			t.Fatalf("%s: %v", filepath.Base(p), err)
		}
		if rec.UserID != user {
			t.Errorf("%s holds user %q, want %q", filepath.Base(p), rec.UserID, user)
		}
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Error("generation .3 should have been dropped")
	}
}

func TestOversizedRecordDoesNotRollEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	out, err := New(path, output.Standard, WithMaxSize(10))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if err := out.Write(context.Background(), testResult("big", "ENFP", "ENFP", "ENFP")); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	out.Close()

	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Error("an empty file should not be rolled over")
	}
}

func TestWriteAfterClose(t *testing.T) {
	out, err := New(filepath.Join(t.TempDir(), "out.jsonl"), output.Standard)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
	if err := out.Write(context.Background(), testResult("late", "INTP")); !errors.Is(err, errClosed) {
		t.Fatalf("Write after Close = %v, want errClosed", err)
	}
}

func TestWriteSkipsCancelledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	out, err := New(path, output.Standard)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := out.Write(ctx, testResult("u5", "ESTP")); !errors.Is(err, context.Canceled) {
		t.Fatalf("Write = %v, want context.Canceled", err)
	}
	out.Close()

	data, _ := os.ReadFile(path)
	if len(data) != 0 {
		t.Errorf("cancelled write reached the file: %q", data)
	}
}
