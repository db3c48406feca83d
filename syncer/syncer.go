// Package syncer keeps a local store in step with the remote update and
// delete feeds. Each run is planned as a sequence of page operations that a
// Host executes while a single aggregator applies results and advances the
// watermarks.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/fjlanasa/aspace-sync/api/v1/events"
	"github.com/fjlanasa/aspace-sync/config"
	"github.com/fjlanasa/aspace-sync/pipelines"
	"github.com/fjlanasa/aspace-sync/routes"
	"github.com/fjlanasa/aspace-sync/sources"
	"github.com/fjlanasa/aspace-sync/statestore"
	"github.com/fjlanasa/aspace-sync/watermark"
	"github.com/google/uuid"
)

type UpdateFeed interface {
	Search(ctx context.Context, params url.Values) (*sources.UpdatePage, error)
}

type DeleteFeed interface {
	DeleteFeed(ctx context.Context, params url.Values) (*sources.DeletePage, error)
}

type Feed interface {
	UpdateFeed
	DeleteFeed
}

type Runner interface {
	RunUpdate(ctx context.Context, pipelineID string, records []pipelines.Record) (pipelines.Outcome, error)
	ResolveDestinations(ctx context.Context, pipelineID string, sourceIDs []string) (map[string]pipelines.Destination, error)
	DeleteDestination(ctx context.Context, dest pipelines.Destination) (bool, error)
}

type Syncer struct {
	feed             Feed
	router           *routes.Router
	runner           Runner
	store            statestore.StateStore
	host             *Host
	outlet           chan<- any
	comparisonOffset time.Duration
	updatePageSize   int
	lockTTL          time.Duration
	updateMark       *watermark.Update
	purgeMark        *watermark.Purge
}

type Option func(*Syncer)

func WithWorkers(n int) Option {
	return func(s *Syncer) {
		s.host = NewHost(n)
	}
}

// WithOutlet sends progress events to ch. The receiver must keep draining it.
func WithOutlet(ch chan<- any) Option {
	return func(s *Syncer) {
		s.outlet = ch
	}
}

func WithComparisonOffset(d time.Duration) Option {
	return func(s *Syncer) {
		s.comparisonOffset = d
	}
}

func WithUpdatePageSize(n int) Option {
	return func(s *Syncer) {
		s.updatePageSize = n
	}
}

func WithLockTTL(d time.Duration) Option {
	return func(s *Syncer) {
		s.lockTTL = d
	}
}

func New(feed Feed, router *routes.Router, runner Runner, store statestore.StateStore, opts ...Option) *Syncer {
	s := &Syncer{
		feed:             feed,
		router:           router,
		runner:           runner,
		store:            store,
		host:             NewHost(1),
		comparisonOffset: config.DefaultComparisonOffset,
		lockTTL:          config.DefaultLockTTL,
		updateMark:       watermark.NewUpdate(store),
		purgeMark:        watermark.NewPurge(store),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type planner interface {
	Plan(ctx context.Context) (*Plan, error)
	ExecutePage(ctx context.Context, op PageOp) PageResult
	confirm(ctx context.Context, res PageResult) error
	finalize(ctx context.Context, rc *RunContext) error
	currentWatermark(ctx context.Context) string
	itemTypeFilter() string
}

// Update runs the "updated since" feed. Unfiltered runs are exclusive.
func (s *Syncer) Update(ctx context.Context, opts UpdateOptions) (*Summary, error) {
	p, err := s.NewUpdatePlanner(ctx, opts)
	if err != nil {
		return nil, err
	}
	lockKey := UpdateLockKey
	if opts.ItemType != "" {
		lockKey = ""
	}
	return s.run(ctx, KindUpdate, p, lockKey)
}

// Purge runs the delete feed. Purge runs are exclusive.
func (s *Syncer) Purge(ctx context.Context, opts PurgeOptions) (*Summary, error) {
	p, err := s.NewPurgePlanner(ctx, opts)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, KindPurge, p, PurgeLockKey)
}

func (s *Syncer) run(ctx context.Context, kind Kind, p planner, lockKey string) (*Summary, error) {
	if lockKey != "" {
		lock, lockCtx, err := acquireLock(ctx, s.store, lockKey, s.lockTTL)
		if err != nil {
			return nil, err
		}
		defer lock.release(context.WithoutCancel(ctx))
		ctx = lockCtx
	}

	started := time.Now()
	runID := uuid.NewString()
	logger := slog.With("run_id", runID, "kind", kind)

	plan, err := p.Plan(ctx)
	if err != nil {
		logger.Error("failed to plan run", "error", err)
		return nil, err
	}
	s.emit(&events.RunStarted{
		RunId:     runID,
		Kind:      string(kind),
		ItemType:  p.itemTypeFilter(),
		FirstPage: plan.FirstPage,
		LastPage:  plan.LastPage,
		Available: plan.Available,
		Watermark: p.currentWatermark(ctx),
		Timestamp: started,
	})

	rc := NewRunContext(kind, plan.FirstPage)
	if !plan.Empty() {
		s.host.Run(ctx, plan.Ops, p.ExecutePage, func(res PageResult) error {
			if res.Err != nil {
				rc.Fail(res)
				logger.Error("page failed", "page", res.Page, "pipeline", res.PipelineID, "error", res.Err)
				s.emitFailure(runID, kind, res)
				return res.Err
			}
			for _, confirmed := range rc.Complete(res) {
				if err := p.confirm(ctx, confirmed); err != nil {
					confirmed.Err = err
					rc.Fail(confirmed)
					logger.Error("failed to advance watermark", "page", confirmed.Page, "error", err)
					s.emitFailure(runID, kind, confirmed)
					return err
				}
			}
			logger.Info("page completed", "page", res.Page, "records", res.Records)
			s.emit(&events.PageCompleted{
				RunId:          runID,
				Kind:           string(kind),
				Page:           res.Page,
				Records:        res.Records,
				Counts:         res.Counts,
				Misses:         res.Misses,
				AlreadyDeleted: res.AlreadyDeleted,
				FailedRecords:  res.FailedRecords,
				Watermark:      p.currentWatermark(ctx),
				Timestamp:      time.Now(),
			})
			return nil
		})
		if rc.Failure == nil && rc.ConfirmedPage < plan.LastPage {
			err := context.Cause(ctx)
			if err == nil {
				err = errNotRun
			}
			next := rc.ConfirmedPage + 1
			rc.Fail(PageResult{Page: next, Params: plan.Ops[next-plan.FirstPage].Params, Err: err})
		}
	}
	if cause := context.Cause(ctx); errors.Is(cause, ErrLockLost) && rc.Failure != nil && !errors.Is(rc.Failure.Err, ErrLockLost) {
		rc.Failure.Err = fmt.Errorf("%w: %w", cause, rc.Failure.Err)
	}
	if rc.Failure == nil {
		if err := p.finalize(ctx, rc); err != nil {
			rc.Failure = &Failure{Page: rc.ConfirmedPage, Err: err}
		}
	}

	summary := &Summary{
		RunID:          runID,
		Kind:           kind,
		ItemType:       p.itemTypeFilter(),
		FirstPage:      plan.FirstPage,
		LastPage:       plan.LastPage,
		Available:      plan.Available,
		PagesProcessed: rc.PagesProcessed,
		Records:        rc.Records,
		Counts:         rc.snapshotCounts(),
		Misses:         rc.Misses,
		AlreadyDeleted: rc.AlreadyDeleted,
		FailedRecords:  rc.FailedRecords,
		ConfirmedPage:  rc.ConfirmedPage,
		Watermark:      p.currentWatermark(context.WithoutCancel(ctx)),
		Failure:        rc.Failure,
		Duration:       time.Since(started),
	}
	s.emit(&events.RunFinished{
		RunId:          runID,
		Kind:           string(kind),
		Status:         summary.Status(),
		PagesProcessed: summary.PagesProcessed,
		Records:        summary.Records,
		LastPage:       summary.ConfirmedPage,
		Watermark:      summary.Watermark,
		Duration:       summary.Duration,
		Timestamp:      time.Now(),
	})
	logger.Info("run finished", "status", summary.Status(), "pages", summary.PagesProcessed, "records", summary.Records, "watermark", summary.Watermark)
	return summary, rc.Err()
}

func (s *Syncer) emitFailure(runID string, kind Kind, res PageResult) {
	event := &events.PageFailed{
		RunId:      runID,
		Kind:       string(kind),
		Page:       res.Page,
		PipelineId: res.PipelineID,
		Timestamp:  time.Now(),
	}
	if res.Err != nil {
		event.Error = res.Err.Error()
	}
	var failed *PipelineFailedError
	if errors.As(res.Err, &failed) {
		event.Outcome = failed.Outcome.String()
	}
	s.emit(event)
}

func (s *Syncer) emit(event events.Event) {
	if s.outlet == nil {
		return
	}
	s.outlet <- event
}

type Status struct {
	UpdateWatermark time.Time
	UpdateStored    bool
	PurgePage       int
	PurgeStored     bool
	UpdateLocked    bool
	PurgeLocked     bool
}

// Status reports both watermarks and whether a run currently holds a lock.
func (s *Syncer) Status(ctx context.Context) (Status, error) {
	var st Status
	var err error
	if st.UpdateWatermark, st.UpdateStored, err = s.updateMark.Load(ctx); err != nil {
		return st, err
	}
	if st.PurgePage, st.PurgeStored, err = s.purgeMark.Load(ctx); err != nil {
		return st, err
	}
	if st.UpdateLocked, err = isLocked(ctx, s.store, UpdateLockKey); err != nil {
		return st, err
	}
	if st.PurgeLocked, err = isLocked(ctx, s.store, PurgeLockKey); err != nil {
		return st, err
	}
	return st, nil
}
