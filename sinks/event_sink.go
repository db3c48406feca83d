package sinks

import (
	"context"
	"log/slog"

	"github.com/fjlanasa/aspace-sync/api/v1/events"
)

// EventSink is a streams.Sink for progress events. It drains its inlet
// until the upstream closes it, then closes Done.
type EventSink struct {
	name   string
	in     chan any
	done   chan struct{}
	handle func(context.Context, events.Event)
}

func newEventSink(ctx context.Context, name string, handle func(context.Context, events.Event)) *EventSink {
	sink := &EventSink{
		name:   name,
		in:     make(chan any),
		done:   make(chan struct{}),
		handle: handle,
	}
	go sink.doSink(ctx)
	return sink
}

func (s *EventSink) doSink(ctx context.Context) {
	defer close(s.done)
	for msg := range s.in {
		event, ok := msg.(events.Event)
		if !ok {
			slog.Warn("event sink: invalid event type", "sink", s.name, "event", msg)
			continue
		}
		s.handle(ctx, event)
	}
}

func (s *EventSink) In() chan<- any {
	return s.in
}

func (s *EventSink) Done() <-chan struct{} {
	return s.done
}
