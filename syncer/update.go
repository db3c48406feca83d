package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/fjlanasa/aspace-sync/pipelines"
	"github.com/fjlanasa/aspace-sync/routes"
	"github.com/fjlanasa/aspace-sync/watermark"
)

// SupportedTypes are the record types an update run may be limited to.
var SupportedTypes = []string{
	"resource",
	"archival_object",
	"agent_person",
	"agent_corporate_entity",
	"agent_family",
	"subject",
	"top_container",
	"repository",
	"classifications",
	"classification_term",
}

type UpdateOptions struct {
	// ItemType limits the run to one record type. Filtered runs never move
	// the update watermark.
	ItemType string
	// MaxPages caps the number of pages processed; 0 means no cap.
	MaxPages int
	// UpdateTime overrides the stored watermark as the starting point.
	UpdateTime string
}

// UpdatePlanner plans and executes one run over the "updated since" feed.
type UpdatePlanner struct {
	feed     UpdateFeed
	router   *routes.Router
	runner   Runner
	mark     *watermark.Update
	offset   time.Duration
	pageSize int
	itemType string
	maxPages int
	start    time.Time
}

func (s *Syncer) NewUpdatePlanner(ctx context.Context, opts UpdateOptions) (*UpdatePlanner, error) {
	if opts.ItemType != "" && !slices.Contains(SupportedTypes, opts.ItemType) {
		return nil, fmt.Errorf("%w: %q, leave blank to update all or use one of: %s",
			ErrUnsupportedItemType, opts.ItemType, strings.Join(SupportedTypes, ", "))
	}
	p := &UpdatePlanner{
		feed:     s.feed,
		router:   s.router,
		runner:   s.runner,
		mark:     s.updateMark,
		offset:   s.comparisonOffset,
		pageSize: s.updatePageSize,
		itemType: opts.ItemType,
		maxPages: opts.MaxPages,
	}
	if opts.UpdateTime != "" {
		start, err := watermark.ParseTimestamp(opts.UpdateTime)
		if err != nil {
			return nil, err
		}
		p.start = start
		return p, nil
	}
	start, _, err := p.mark.Load(ctx)
	if err != nil {
		return nil, err
	}
	p.start = start
	return p, nil
}

func (p *UpdatePlanner) Start() time.Time {
	return p.start
}

// Threshold is the start time shifted back by the comparison offset, since
// the remote compares modification times inclusively at day granularity.
func (p *UpdatePlanner) Threshold() time.Time {
	return p.start.Add(-p.offset)
}

func (p *UpdatePlanner) BuildQuery(page int) url.Values {
	return updateParams(p.Threshold(), page, p.itemType, p.pageSize)
}

func (p *UpdatePlanner) Plan(ctx context.Context) (*Plan, error) {
	params := p.BuildQuery(1)
	slog.Info("looking for updates", "since", watermark.FormatTimestamp(p.start), "threshold", watermark.FormatTimestamp(p.Threshold()), "item_type", p.itemType)
	probe, err := p.feed.Search(ctx, params)
	if err != nil {
		return nil, err
	}
	if probe.LastPage == 0 {
		slog.Info("nothing to update")
		return &Plan{Kind: KindUpdate, FirstPage: 1}, nil
	}
	last := effectiveLastPage(1, p.maxPages, probe.LastPage)
	slog.Info("planning update pages", "pages", last, "available", probe.LastPage)
	return planPages(KindUpdate, params, 1, last, probe.LastPage), nil
}

// ExecutePage fetches one page, routes its records and runs each pipeline
// batch in order of the pipeline's first appearance on the page.
func (p *UpdatePlanner) ExecutePage(ctx context.Context, op PageOp) PageResult {
	res := PageResult{Page: op.Page, Params: op.Params, Counts: make(map[string]int)}
	page, err := p.feed.Search(ctx, op.Params)
	if err != nil {
		res.Err = err
		return res
	}
	batches := make(map[string][]pipelines.Record)
	var order []string
	for _, rec := range page.Results {
		pipelineID, ok := p.router.Route(rec.URI)
		if !ok {
			continue
		}
		if _, seen := batches[pipelineID]; !seen {
			order = append(order, pipelineID)
		}
		batches[pipelineID] = append(batches[pipelineID], pipelines.Record{
			SourceID:     rec.URI,
			Payload:      []byte(rec.JSON),
			ModifiedTime: rec.ModifiedTime,
		})
		if !rec.ModifiedTime.IsZero() {
			res.Candidate = rec.ModifiedTime
		}
	}
	for _, pipelineID := range order {
		batch := batches[pipelineID]
		slog.Debug("running pipeline", "pipeline", pipelineID, "page", op.Page, "records", len(batch))
		outcome, err := p.runner.RunUpdate(ctx, pipelineID, batch)
		if outcome != pipelines.OutcomeCompleted {
			res.PipelineID = pipelineID
			res.Err = &PipelineFailedError{PipelineID: pipelineID, Page: op.Page, Outcome: outcome, Err: err}
			return res
		}
		var failed *pipelines.RecordsFailedError
		if errors.As(err, &failed) {
			slog.Warn("records failed to process", "pipeline", pipelineID, "page", op.Page, "source_ids", failed.SourceIDs)
			res.FailedRecords += len(failed.SourceIDs)
		}
		res.Counts[pipelineID] += len(batch)
		res.Records += len(batch)
	}
	return res
}

func (p *UpdatePlanner) confirm(ctx context.Context, res PageResult) error {
	if p.itemType != "" || res.Candidate.IsZero() {
		return nil
	}
	_, err := p.mark.Advance(ctx, res.Candidate)
	return err
}

// finalize moves the watermark one second past the last seen modification
// time so the boundary record is not picked up again.
func (p *UpdatePlanner) finalize(ctx context.Context, rc *RunContext) error {
	if p.itemType != "" || rc.LastSeen.IsZero() {
		return nil
	}
	_, err := p.mark.Advance(ctx, rc.LastSeen.Add(time.Second))
	return err
}

func (p *UpdatePlanner) currentWatermark(ctx context.Context) string {
	t, _, err := p.mark.Load(ctx)
	if err != nil {
		return ""
	}
	return watermark.FormatTimestamp(t)
}

func (p *UpdatePlanner) itemTypeFilter() string {
	return p.itemType
}
