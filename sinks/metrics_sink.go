package sinks

import (
	"context"

	"github.com/fjlanasa/aspace-sync/api/v1/events"
	"github.com/fjlanasa/aspace-sync/metrics"
)

func NewMetricsSink(ctx context.Context, m *metrics.Metrics) *EventSink {
	return newEventSink(ctx, "metrics", func(_ context.Context, event events.Event) {
		m.Observe(event)
	})
}
