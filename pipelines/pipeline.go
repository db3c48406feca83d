package pipelines

import (
	"encoding/json"
	"time"

	"github.com/fjlanasa/aspace-sync/config"
	"github.com/fjlanasa/aspace-sync/processors"
	"github.com/fjlanasa/aspace-sync/sinks"
)

type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeDisabled
	OutcomeFailed
	OutcomeIncomplete
	OutcomeSkipped
	OutcomeStopped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeDisabled:
		return "disabled"
	case OutcomeFailed:
		return "failed"
	case OutcomeIncomplete:
		return "incomplete"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeStopped:
		return "stopped"
	}
	return "unknown"
}

// Record is one raw remote record handed to a pipeline.
type Record struct {
	SourceID     string
	Payload      json.RawMessage
	ModifiedTime time.Time
}

// Destination identifies a materialized entity and the source it came from.
type Destination struct {
	ID       string
	Type     string
	Pipeline string
	SourceID string
}

type Pipeline struct {
	ID              config.ID
	destinationType string
	enabled         bool
	requires        []config.ID
	processor       processors.Processor
	sink            sinks.Sink
}

func NewPipeline(cfg config.PipelineConfig, sink sinks.Sink) (*Pipeline, error) {
	processor, err := processors.NewProcessor(cfg.Processor)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		ID:              cfg.ID,
		destinationType: cfg.DestinationType,
		enabled:         cfg.Enabled,
		requires:        cfg.Requires,
		processor:       processor,
		sink:            sink,
	}, nil
}

func (p *Pipeline) DestinationType() string {
	return p.destinationType
}

func (p *Pipeline) Enabled() bool {
	return p.enabled
}
