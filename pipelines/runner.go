package pipelines

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fjlanasa/aspace-sync/config"
	"github.com/fjlanasa/aspace-sync/processors"
	"github.com/fjlanasa/aspace-sync/statestore"
	"github.com/google/uuid"
)

var (
	ErrUnknownPipeline = errors.New("unknown pipeline")
	// ErrRecordFailed marks a record whose payload could not be transformed.
	// The record is left behind and the rest of the batch still runs.
	ErrRecordFailed = errors.New("record failed")
)

// RecordsFailedError accompanies a Completed outcome when some records of
// the batch could not be transformed.
type RecordsFailedError struct {
	PipelineID string
	SourceIDs  []string
	Errs       []error
}

func (e *RecordsFailedError) Error() string {
	return fmt.Sprintf("pipeline %q: %d records failed: %v", e.PipelineID, len(e.SourceIDs), errors.Join(e.Errs...))
}

func (e *RecordsFailedError) Unwrap() error {
	return ErrRecordFailed
}

const idMapPrefix = "idmap."

// Runner executes pipelines and tracks which destination each source record
// was materialized into.
type Runner struct {
	pipelines map[config.ID]*Pipeline
	store     statestore.StateStore
}

func NewRunner(pipelines []*Pipeline, store statestore.StateStore) *Runner {
	byID := make(map[config.ID]*Pipeline, len(pipelines))
	for _, p := range pipelines {
		byID[p.ID] = p
	}
	return &Runner{pipelines: byID, store: store}
}

func (r *Runner) Pipeline(id string) (*Pipeline, bool) {
	p, ok := r.pipelines[config.ID(id)]
	return p, ok
}

func idMapKey(pipelineID, sourceID string) string {
	return idMapPrefix + pipelineID + "." + sourceID
}

// RunUpdate materializes records in order. A non-nil error accompanies the
// Failed outcome and any lookup failure. Records that fail to transform are
// reported through a *RecordsFailedError next to the Completed outcome.
func (r *Runner) RunUpdate(ctx context.Context, pipelineID string, records []Record) (Outcome, error) {
	p, ok := r.Pipeline(pipelineID)
	if !ok {
		return OutcomeFailed, fmt.Errorf("%w: %s", ErrUnknownPipeline, pipelineID)
	}
	if !p.enabled {
		return OutcomeDisabled, nil
	}
	for _, req := range p.requires {
		if dep, ok := r.pipelines[req]; !ok || !dep.enabled {
			slog.Warn("pipeline requirement not enabled", "pipeline", pipelineID, "requires", req)
			return OutcomeSkipped, nil
		}
	}
	var failed *RecordsFailedError
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return contextOutcome(err), err
		}
		if err := r.materialize(ctx, p, rec); err != nil {
			if errors.Is(err, processors.ErrSkipRecord) {
				slog.Warn("record skipped", "pipeline", pipelineID, "source_id", rec.SourceID, "error", err)
				continue
			}
			if errors.Is(err, ErrRecordFailed) {
				slog.Error("record failed", "pipeline", pipelineID, "source_id", rec.SourceID, "error", err)
				if failed == nil {
					failed = &RecordsFailedError{PipelineID: pipelineID}
				}
				failed.SourceIDs = append(failed.SourceIDs, rec.SourceID)
				failed.Errs = append(failed.Errs, err)
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return contextOutcome(ctxErr), err
			}
			return OutcomeFailed, err
		}
	}
	if failed != nil {
		return OutcomeCompleted, failed
	}
	return OutcomeCompleted, nil
}

func contextOutcome(err error) Outcome {
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeIncomplete
	}
	return OutcomeStopped
}

func (r *Runner) materialize(ctx context.Context, p *Pipeline, rec Record) error {
	entity, err := p.processor.Process(rec.Payload)
	if errors.Is(err, processors.ErrSkipRecord) {
		return fmt.Errorf("process %s: %w", rec.SourceID, err)
	}
	if err != nil {
		return fmt.Errorf("process %s: %w: %w", rec.SourceID, ErrRecordFailed, err)
	}
	id, err := r.destinationID(ctx, string(p.ID), rec.SourceID)
	if err != nil {
		return err
	}
	entity.ID = id
	entity.Type = p.destinationType
	entity.ModifiedTime = rec.ModifiedTime
	entity.Payload = rec.Payload
	if err := p.sink.Put(ctx, entity); err != nil {
		return fmt.Errorf("store %s: %w", rec.SourceID, err)
	}
	return nil
}

// destinationID returns the mapped id for a source record, claiming a new
// one when none exists.
func (r *Runner) destinationID(ctx context.Context, pipelineID, sourceID string) (string, error) {
	key := idMapKey(pipelineID, sourceID)
	for {
		id, ok, err := r.store.Get(ctx, key)
		if err != nil {
			return "", fmt.Errorf("lookup destination for %s: %w", sourceID, err)
		}
		if ok {
			return id, nil
		}
		id = uuid.NewString()
		swapped, err := r.store.CompareAndSwap(ctx, key, "", id, 0)
		if err != nil {
			return "", fmt.Errorf("claim destination for %s: %w", sourceID, err)
		}
		if swapped {
			return id, nil
		}
	}
}

// ResolveDestinations maps source ids to previously materialized
// destinations. Source ids that were never materialized are absent.
func (r *Runner) ResolveDestinations(ctx context.Context, pipelineID string, sourceIDs []string) (map[string]Destination, error) {
	p, ok := r.Pipeline(pipelineID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPipeline, pipelineID)
	}
	resolved := make(map[string]Destination, len(sourceIDs))
	for _, sourceID := range sourceIDs {
		id, ok, err := r.store.Get(ctx, idMapKey(pipelineID, sourceID))
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", sourceID, err)
		}
		if !ok {
			continue
		}
		resolved[sourceID] = Destination{
			ID:       id,
			Type:     p.destinationType,
			Pipeline: pipelineID,
			SourceID: sourceID,
		}
	}
	return resolved, nil
}

// DeleteDestination removes a materialized entity and its id mapping. It
// reports false when the entity was already absent.
func (r *Runner) DeleteDestination(ctx context.Context, dest Destination) (bool, error) {
	p, ok := r.Pipeline(dest.Pipeline)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownPipeline, dest.Pipeline)
	}
	deleted, err := p.sink.Delete(ctx, dest.Type, dest.ID)
	if err != nil {
		return false, err
	}
	if _, err := r.store.CompareAndDelete(ctx, idMapKey(dest.Pipeline, dest.SourceID), dest.ID); err != nil {
		return deleted, fmt.Errorf("remove mapping for %s: %w", dest.SourceID, err)
	}
	return deleted, nil
}
