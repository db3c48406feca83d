package events

import (
	"testing"
	"time"
)

func TestGetEventMap(t *testing.T) {
	event := &PageCompleted{
		RunId:     "run-1",
		Kind:      "purge",
		Page:      3,
		Counts:    map[string]int{"collection": 2},
		Timestamp: time.Unix(1700000000, 0),
	}
	m := GetEventMap(event)
	if m["event_type"] != "PageCompleted" {
		t.Errorf("expected event_type PageCompleted, got %v", m["event_type"])
	}
	if m["page"] != 3 || m["kind"] != "purge" || m["run_id"] != "run-1" {
		t.Errorf("unexpected attributes %v", m)
	}
	if m["timestamp"] != int64(1700000000) {
		t.Errorf("expected unix timestamp, got %v", m["timestamp"])
	}
}

func TestEventType(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{&RunStarted{}, "RunStarted"},
		{&PageCompleted{}, "PageCompleted"},
		{&PageFailed{}, "PageFailed"},
		{&RunFinished{}, "RunFinished"},
	}
	for _, tt := range tests {
		if got := EventType(tt.event); got != tt.want {
			t.Errorf("EventType() = %q, want %q", got, tt.want)
		}
	}
}
