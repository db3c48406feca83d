package sinks

import (
	"context"
	"log/slog"

	"github.com/fjlanasa/aspace-sync/api/v1/events"
	"github.com/fjlanasa/aspace-sync/ledger"
)

// NewLedgerSink appends page events to the run ledger. Write failures are
// logged and do not affect the run.
func NewLedgerSink(ctx context.Context, l *ledger.Ledger) *EventSink {
	return newEventSink(ctx, "ledger", func(ctx context.Context, event events.Event) {
		if _, err := l.Record(event); err != nil {
			slog.ErrorContext(ctx, "ledger sink: could not record event", "run_id", event.GetRunId(), "error", err)
		}
	})
}

// NewEventLogSink logs every event at lvl.
func NewEventLogSink(ctx context.Context, lvl slog.Level) *EventSink {
	logger := slog.Default()
	return newEventSink(ctx, "log", func(ctx context.Context, event events.Event) {
		args := []any{}
		for k, v := range events.GetEventMap(event) {
			args = append(args, k, v)
		}
		logger.Log(ctx, lvl, "Event: "+events.EventType(event), args...)
	})
}
