package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fjlanasa/aspace-sync/api/v1/events"
	"github.com/google/go-cmp/cmp"
)

func TestLedgerWritesRunOnFinish(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ledger")
	l := New(dir)
	ts := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)

	pageEvents := []events.Event{
		&events.PageCompleted{RunId: "r1", Kind: "purge", Page: 3, Records: 5, Counts: map[string]int{"node": 2}, Misses: 3, Watermark: "3", Timestamp: ts},
		&events.PageFailed{RunId: "r1", Kind: "purge", Page: 4, PipelineId: "resource", Error: "boom", Timestamp: ts},
		&events.PageCompleted{RunId: "other", Kind: "update", Page: 1, Timestamp: ts},
	}
	for _, e := range pageEvents {
		path, err := l.Record(e)
		if err != nil || path != "" {
			t.Fatalf("Record(%T) = %q, %v", e, path, err)
		}
	}

	path, err := l.Record(&events.RunFinished{RunId: "r1", Kind: "purge", Status: "failed"})
	if err != nil {
		t.Fatalf("Record(RunFinished): %v", err)
	}
	if want := filepath.Join(dir, "purge-r1.parquet"); path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}

	rows, err := ReadRun(path)
	if err != nil {
		t.Fatalf("ReadRun: %v", err)
	}
	want := []Row{
		{RunID: "r1", Kind: "purge", Page: 3, Status: "completed", Records: 5, Counts: `{"node":2}`, Misses: 3, Watermark: "3", TimestampMs: ts.UnixMilli()},
		{RunID: "r1", Kind: "purge", Page: 4, Status: "failed", PipelineID: "resource", Error: "boom", TimestampMs: ts.UnixMilli()},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestLedgerSkipsRunsWithoutPages(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)
	path, err := l.Record(&events.RunFinished{RunId: "empty", Kind: "update", Status: "empty"})
	if err != nil || path != "" {
		t.Fatalf("Record = %q, %v", path, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no ledger files, found %d", len(entries))
	}
}
