package sinks

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/fjlanasa/aspace-sync/api/v1/events"
	"github.com/fjlanasa/aspace-sync/ledger"
	"github.com/fjlanasa/aspace-sync/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/reugn/go-streams/extension"
	"github.com/reugn/go-streams/flow"
)

func waitDone(t *testing.T, sinks ...*EventSink) {
	t.Helper()
	for _, s := range sinks {
		select {
		case <-s.Done():
		case <-time.After(time.Second):
			t.Fatalf("%s sink did not finish", s.name)
		}
	}
}

func TestEventSinksFanOut(t *testing.T) {
	ctx := context.Background()
	m := metrics.New()
	l := ledger.New(filepath.Join(t.TempDir(), "ledger"))
	metricsSink := NewMetricsSink(ctx, m)
	ledgerSink := NewLedgerSink(ctx, l)

	outlet := make(chan any)
	flows := flow.FanOut(extension.NewChanSource(outlet).Via(flow.NewPassThrough()), 2)
	flows[0].To(metricsSink)
	flows[1].To(ledgerSink)

	outlet <- &events.PageCompleted{RunId: "r1", Kind: "purge", Page: 1, Counts: map[string]int{"node": 2}, Watermark: "1"}
	outlet <- "not an event"
	outlet <- &events.RunFinished{RunId: "r1", Kind: "purge", Status: "completed", Watermark: "1"}
	close(outlet)
	waitDone(t, metricsSink, ledgerSink)

	rows, err := ledger.ReadRun(l.Path("purge", "r1"))
	if err != nil {
		t.Fatalf("ReadRun: %v", err)
	}
	if len(rows) != 1 || rows[0].Page != 1 {
		t.Errorf("unexpected ledger rows %+v", rows)
	}
	got, err := testutil.GatherAndCount(m.Registry(), "aspace_sync_deletions_total")
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Errorf("deletion series = %d, want 1", got)
	}
}

func TestEventLogSinkDrains(t *testing.T) {
	sink := NewEventLogSink(context.Background(), slog.LevelDebug)
	sink.In() <- &events.RunStarted{RunId: "r1", Kind: "update"}
	close(sink.in)
	waitDone(t, sink)
}
