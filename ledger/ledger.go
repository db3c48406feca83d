// Package ledger keeps a per-run Parquet record of every page a run
// processed.
package ledger

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fjlanasa/aspace-sync/api/v1/events"
	"github.com/parquet-go/parquet-go"
)

type Row struct {
	RunID          string `parquet:"run_id"`
	Kind           string `parquet:"kind"`
	Page           int64  `parquet:"page"`
	Status         string `parquet:"status"`
	Records        int64  `parquet:"records"`
	Counts         string `parquet:"counts"`
	Misses         int64  `parquet:"misses"`
	AlreadyDeleted int64  `parquet:"already_deleted"`
	FailedRecords  int64  `parquet:"failed_records"`
	PipelineID     string `parquet:"pipeline_id"`
	Outcome        string `parquet:"outcome"`
	Error          string `parquet:"error"`
	Watermark      string `parquet:"watermark"`
	TimestampMs    int64  `parquet:"timestamp_ms"`
}

// Ledger buffers rows per run and writes them out when the run finishes.
type Ledger struct {
	dir  string
	mu   sync.Mutex
	runs map[string][]Row
}

func New(dir string) *Ledger {
	return &Ledger{dir: dir, runs: make(map[string][]Row)}
}

// Path is the file a finished run is written to.
func (l *Ledger) Path(kind, runID string) string {
	return filepath.Join(l.dir, fmt.Sprintf("%s-%s.parquet", kind, runID))
}

// Record adds a page event to its run. A RunFinished event flushes the run
// to disk; the written path is returned, otherwise "".
func (l *Ledger) Record(event events.Event) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch e := event.(type) {
	case *events.PageCompleted:
		counts, err := json.Marshal(e.Counts)
		if err != nil {
			return "", err
		}
		l.runs[e.RunId] = append(l.runs[e.RunId], Row{
			RunID:          e.RunId,
			Kind:           e.Kind,
			Page:           int64(e.Page),
			Status:         "completed",
			Records:        int64(e.Records),
			Counts:         string(counts),
			Misses:         int64(e.Misses),
			AlreadyDeleted: int64(e.AlreadyDeleted),
			FailedRecords:  int64(e.FailedRecords),
			Watermark:      e.Watermark,
			TimestampMs:    e.Timestamp.UnixMilli(),
		})
	case *events.PageFailed:
		l.runs[e.RunId] = append(l.runs[e.RunId], Row{
			RunID:       e.RunId,
			Kind:        e.Kind,
			Page:        int64(e.Page),
			Status:      "failed",
			PipelineID:  e.PipelineId,
			Outcome:     e.Outcome,
			Error:       e.Error,
			TimestampMs: e.Timestamp.UnixMilli(),
		})
	case *events.RunFinished:
		rows := l.runs[e.RunId]
		delete(l.runs, e.RunId)
		if len(rows) == 0 {
			return "", nil
		}
		if err := os.MkdirAll(l.dir, 0o755); err != nil {
			return "", fmt.Errorf("create ledger dir: %w", err)
		}
		path := l.Path(e.Kind, e.RunId)
		if err := parquet.WriteFile(path, rows); err != nil {
			return "", fmt.Errorf("write ledger %s: %w", path, err)
		}
		slog.Info("wrote run ledger", "path", path, "pages", len(rows))
		return path, nil
	}
	return "", nil
}

// ReadRun loads a ledger file written by Record.
func ReadRun(path string) ([]Row, error) {
	return parquet.ReadFile[Row](path)
}
