package events

import (
	"fmt"
	"strings"
	"time"
)

// Base interface for all events
type Event interface {
	GetRunId() string
	GetAttributes() map[string]any
}

type RunStarted struct {
	RunId     string
	Kind      string
	ItemType  string
	FirstPage int
	LastPage  int
	Available int
	Watermark string
	Timestamp time.Time
}

type PageCompleted struct {
	RunId          string
	Kind           string
	Page           int
	Records        int
	Counts         map[string]int
	Misses         int
	AlreadyDeleted int
	FailedRecords  int
	Watermark      string
	Timestamp      time.Time
}

type PageFailed struct {
	RunId      string
	Kind       string
	Page       int
	PipelineId string
	Outcome    string
	Error      string
	Timestamp  time.Time
}

type RunFinished struct {
	RunId          string
	Kind           string
	Status         string
	PagesProcessed int
	Records        int
	LastPage       int
	Watermark      string
	Duration       time.Duration
	Timestamp      time.Time
}

func (e *RunStarted) GetRunId() string    { return e.RunId }
func (e *PageCompleted) GetRunId() string { return e.RunId }
func (e *PageFailed) GetRunId() string    { return e.RunId }
func (e *RunFinished) GetRunId() string   { return e.RunId }

func (e *RunStarted) GetAttributes() map[string]any {
	return map[string]any{
		"run_id":     e.RunId,
		"kind":       e.Kind,
		"item_type":  e.ItemType,
		"first_page": e.FirstPage,
		"last_page":  e.LastPage,
		"available":  e.Available,
		"watermark":  e.Watermark,
		"timestamp":  e.Timestamp.Unix(),
	}
}

func (e *PageCompleted) GetAttributes() map[string]any {
	return map[string]any{
		"run_id":          e.RunId,
		"kind":            e.Kind,
		"page":            e.Page,
		"records":         e.Records,
		"counts":          e.Counts,
		"misses":          e.Misses,
		"already_deleted": e.AlreadyDeleted,
		"failed_records":  e.FailedRecords,
		"watermark":       e.Watermark,
		"timestamp":       e.Timestamp.Unix(),
	}
}

func (e *PageFailed) GetAttributes() map[string]any {
	return map[string]any{
		"run_id":      e.RunId,
		"kind":        e.Kind,
		"page":        e.Page,
		"pipeline_id": e.PipelineId,
		"outcome":     e.Outcome,
		"error":       e.Error,
		"timestamp":   e.Timestamp.Unix(),
	}
}

func (e *RunFinished) GetAttributes() map[string]any {
	return map[string]any{
		"run_id":          e.RunId,
		"kind":            e.Kind,
		"status":          e.Status,
		"pages_processed": e.PagesProcessed,
		"records":         e.Records,
		"last_page":       e.LastPage,
		"watermark":       e.Watermark,
		"duration_ms":     e.Duration.Milliseconds(),
		"timestamp":       e.Timestamp.Unix(),
	}
}

// EventType returns the short type name, e.g. "PageCompleted".
func EventType(event Event) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", event), "*events.")
}

// GetEventMap flattens an event into its attributes plus its type name.
func GetEventMap(event Event) map[string]any {
	m := event.GetAttributes()
	m["event_type"] = EventType(event)
	return m
}
