package config

import (
	"fmt"

	"github.com/fjlanasa/aspace-sync/routes"
)

type ProcessorType string

const (
	ProcessorTypeResource       ProcessorType = "resource"
	ProcessorTypeArchivalObject ProcessorType = "archival_object"
	ProcessorTypeAgent          ProcessorType = "agent"
	ProcessorTypeSubject        ProcessorType = "subject"
	ProcessorTypeTopContainer   ProcessorType = "top_container"
	ProcessorTypeGeneric        ProcessorType = "generic"
)

// Pipeline

type PipelineConfigYaml struct {
	Processor       ProcessorType `yaml:"processor"`
	DestinationType string        `yaml:"destination_type"`
	Sink            ID            `yaml:"sink"`
	Enabled         *bool         `yaml:"enabled"`
	Requires        []ID          `yaml:"requires"`
}

type PipelineConfig struct {
	ID              ID
	Processor       ProcessorType
	DestinationType string
	Sink            SinkConfig
	Enabled         bool
	Requires        []ID
}

func (p PipelineConfigYaml) materialize(id ID, sinks map[ID]SinkConfig, all map[ID]PipelineConfigYaml) (PipelineConfig, error) {
	sink, ok := sinks[p.Sink]
	if !ok {
		return PipelineConfig{}, fmt.Errorf("pipeline %q: unknown sink %q", id, p.Sink)
	}
	if sink.ID == "" {
		sink.ID = p.Sink
	}
	if sink.Type == "" {
		sink.Type = SinkTypeMemory
	}
	for _, req := range p.Requires {
		if _, ok := all[req]; !ok {
			return PipelineConfig{}, fmt.Errorf("%w: pipeline %q requires unknown pipeline %q", routes.ErrConfigInvalid, id, req)
		}
	}
	processor := p.Processor
	if processor == "" {
		processor = ProcessorTypeGeneric
	}
	destinationType := p.DestinationType
	if destinationType == "" {
		destinationType = string(id)
	}
	enabled := true
	if p.Enabled != nil {
		enabled = *p.Enabled
	}
	return PipelineConfig{
		ID:              id,
		Processor:       processor,
		DestinationType: destinationType,
		Sink:            sink,
		Enabled:         enabled,
		Requires:        p.Requires,
	}, nil
}
