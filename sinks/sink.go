package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjlanasa/aspace-sync/config"
)

type Link struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Entity is the local materialization of one remote record.
type Entity struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Bundle       string          `json:"bundle"`
	SourceURI    string          `json:"source_uri"`
	Title        string          `json:"title"`
	Identifier   string          `json:"identifier,omitempty"`
	Published    bool            `json:"published"`
	Body         string          `json:"body,omitempty"`
	Parent       string          `json:"parent,omitempty"`
	Resource     string          `json:"resource,omitempty"`
	Refs         []string        `json:"refs,omitempty"`
	Links        []Link          `json:"links,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	ModifiedTime time.Time       `json:"modified_time"`
}

// Sink stores materialized entities keyed by (type, id).
type Sink interface {
	Put(ctx context.Context, entity Entity) error
	Get(ctx context.Context, entityType, id string) (Entity, bool, error)
	// Delete reports false when the entity was already absent.
	Delete(ctx context.Context, entityType, id string) (bool, error)
	Close() error
}

func NewSink(ctx context.Context, cfg config.SinkConfig) (Sink, error) {
	var sink Sink
	switch cfg.Type {
	case config.SinkTypeMemory, "":
		sink = NewMemorySink()
	case config.SinkTypePostgres:
		s, err := NewPostgresSink(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		sink = s
	case config.SinkTypeS3:
		s, err := NewS3Sink(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		sink = s
	default:
		return nil, fmt.Errorf("invalid sink type: %s", cfg.Type)
	}
	if cfg.LogLevel != "" {
		sink = NewLogSink(sink, cfg.ID, cfg.LogLevel)
	}
	return sink, nil
}
