package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func readEvents(t *testing.T, path string) []Event {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("bad line in %s: %v", path, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestLoggerRoutesByLevelAndCategory(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, "run-1")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	logger.Info(CategoryNetwork, "candidate_observed", "saw submission call", map[string]any{"url": "/submit/"})
	logger.Error(CategoryCommit, "write_failed", "PUT contents returned 409", nil)
	logger.Info(CategoryPush, "push_succeeded", "pushed two-sum", map[string]any{"slug": "two-sum"})

	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	run := readEvents(t, filepath.Join(dir, "runs", "run-1.jsonl"))
	if len(run) != 3 {
		t.Fatalf("expected 3 run events, got %d", len(run))
	}
	if run[0].RunID != "run-1" {
		t.Errorf("run id not stamped: %+v", run[0])
	}

	errs := readEvents(t, filepath.Join(dir, "errors.jsonl"))
	if len(errs) != 1 || errs[0].EventType != "write_failed" {
		t.Errorf("expected only the commit failure in errors.jsonl, got %+v", errs)
	}

	pushes := readEvents(t, filepath.Join(dir, "pushes.jsonl"))
	if len(pushes) != 1 || pushes[0].EventType != "push_succeeded" {
		t.Errorf("expected only the push outcome in pushes.jsonl, got %+v", pushes)
	}
}

func TestLoggerMinLevel(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, "run-2")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer logger.Close()

	logger.Debug(CategoryExtract, "selector_miss", "no difficulty badge", nil)

	run := readEvents(t, filepath.Join(dir, "runs", "run-2.jsonl"))
	if len(run) != 0 {
		t.Errorf("debug events should be filtered at the default level, got %d", len(run))
	}

	logger.SetMinLevel(LevelDebug)
	logger.Debug(CategoryExtract, "selector_miss", "no difficulty badge", nil)

	run = readEvents(t, filepath.Join(dir, "runs", "run-2.jsonl"))
	if len(run) != 1 {
		t.Errorf("expected debug event after lowering level, got %d", len(run))
	}
}
