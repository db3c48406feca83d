package sinks

import (
	"context"

	"github.com/fjlanasa/aspace-sync/api/v1/events"
	"github.com/fjlanasa/aspace-sync/event_server"
)

// NewHttpSink broadcasts every event to the event server's subscribers.
func NewHttpSink(ctx context.Context, server *event_server.EventServer) *EventSink {
	return newEventSink(ctx, "http", func(_ context.Context, event events.Event) {
		server.Broadcast(event)
	})
}
