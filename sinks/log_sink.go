package sinks

import (
	"context"
	"log/slog"

	"github.com/fjlanasa/aspace-sync/config"
)

// LogSink logs every write and delete before handing it to the wrapped sink.
type LogSink struct {
	Sink
	logger *slog.Logger
	level  slog.Level
}

func NewLogSink(sink Sink, id config.ID, lvl config.LogSinkLevel) *LogSink {
	level := slog.LevelInfo
	if lvl != "" {
		switch lvl {
		case config.LogSinkLevelDebug:
			level = slog.LevelDebug
		case config.LogSinkLevelInfo:
			level = slog.LevelInfo
		case config.LogSinkLevelWarn:
			level = slog.LevelWarn
		case config.LogSinkLevelError:
			level = slog.LevelError
		}
	}
	return &LogSink{
		Sink:   sink,
		logger: slog.Default().With("sink", string(id)),
		level:  level,
	}
}

func (s *LogSink) Put(ctx context.Context, entity Entity) error {
	err := s.Sink.Put(ctx, entity)
	args := []any{"type", entity.Type, "id", entity.ID, "source_uri", entity.SourceURI}
	if entity.Title != "" {
		args = append(args, "title", entity.Title)
	}
	if err != nil {
		s.logger.Log(ctx, slog.LevelError, "Entity: put failed", append(args, "error", err)...)
		return err
	}
	s.logger.Log(ctx, s.level, "Entity: put", args...)
	return nil
}

func (s *LogSink) Delete(ctx context.Context, entityType, id string) (bool, error) {
	deleted, err := s.Sink.Delete(ctx, entityType, id)
	if err != nil {
		s.logger.Log(ctx, slog.LevelError, "Entity: delete failed", "type", entityType, "id", id, "error", err)
		return false, err
	}
	s.logger.Log(ctx, s.level, "Entity: delete", "type", entityType, "id", id, "deleted", deleted)
	return deleted, nil
}
