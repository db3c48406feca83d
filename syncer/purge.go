package syncer

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/fjlanasa/aspace-sync/pipelines"
	"github.com/fjlanasa/aspace-sync/routes"
	"github.com/fjlanasa/aspace-sync/watermark"
)

type PurgeOptions struct {
	// FirstPage overrides the resume page when greater than zero.
	FirstPage int
	// MaxPages caps the number of pages processed; 0 means no cap.
	MaxPages int
}

// PurgePlanner plans and executes one run over the delete feed.
type PurgePlanner struct {
	feed      DeleteFeed
	router    *routes.Router
	runner    Runner
	mark      *watermark.Purge
	firstPage int
	maxPages  int
}

func (s *Syncer) NewPurgePlanner(ctx context.Context, opts PurgeOptions) (*PurgePlanner, error) {
	p := &PurgePlanner{
		feed:     s.feed,
		router:   s.router,
		runner:   s.runner,
		mark:     s.purgeMark,
		maxPages: opts.MaxPages,
	}
	if opts.FirstPage > 0 {
		p.firstPage = opts.FirstPage
		return p, nil
	}
	stored, found, err := p.mark.Load(ctx)
	if err != nil {
		return nil, err
	}
	p.firstPage = 1
	if found && stored > 0 {
		p.firstPage = stored + 1
	}
	return p, nil
}

func (p *PurgePlanner) FirstPage() int {
	return p.firstPage
}

func (p *PurgePlanner) Plan(ctx context.Context) (*Plan, error) {
	probe, err := p.feed.DeleteFeed(ctx, purgeParams(1))
	if err != nil {
		return nil, err
	}
	last := effectiveLastPage(p.firstPage, p.maxPages, probe.LastPage)
	slog.Info("planning delete-feed pages", "first", p.firstPage, "last", last, "available", probe.LastPage)
	return planPages(KindPurge, purgeParams(p.firstPage), p.firstPage, last, probe.LastPage), nil
}

// ExecutePage removes the local entities of every tombstone on the page.
// Tombstones that were never synchronized or are already gone are counted
// but are not errors.
func (p *PurgePlanner) ExecutePage(ctx context.Context, op PageOp) PageResult {
	res := PageResult{Page: op.Page, Params: op.Params, Counts: make(map[string]int)}
	page, err := p.feed.DeleteFeed(ctx, op.Params)
	if err != nil {
		res.Err = err
		return res
	}
	groups := make(map[string][]string)
	var order []string
	for _, uri := range page.Results {
		pipelineID, ok := p.router.Route(uri)
		if !ok {
			continue
		}
		if _, seen := groups[pipelineID]; !seen {
			order = append(order, pipelineID)
		}
		groups[pipelineID] = append(groups[pipelineID], uri)
		res.Records++
	}
	for _, pipelineID := range order {
		uris := groups[pipelineID]
		resolved, err := p.runner.ResolveDestinations(ctx, pipelineID, uris)
		if errors.Is(err, pipelines.ErrUnknownPipeline) {
			slog.Warn("could not find pipeline", "pipeline", pipelineID, "page", op.Page)
			continue
		}
		if err != nil {
			res.PipelineID = pipelineID
			res.Err = err
			return res
		}
		for _, uri := range uris {
			dest, ok := resolved[uri]
			if !ok {
				res.Misses++
				continue
			}
			deleted, err := p.runner.DeleteDestination(ctx, dest)
			if err != nil {
				res.PipelineID = pipelineID
				res.Err = err
				return res
			}
			if !deleted {
				res.AlreadyDeleted++
				continue
			}
			slog.Debug("purged entity", "type", dest.Type, "id", dest.ID, "source_id", uri)
			res.Counts[dest.Type]++
		}
	}
	return res
}

func (p *PurgePlanner) confirm(ctx context.Context, res PageResult) error {
	_, err := p.mark.Advance(ctx, res.Page)
	return err
}

func (p *PurgePlanner) finalize(context.Context, *RunContext) error {
	return nil
}

func (p *PurgePlanner) currentWatermark(ctx context.Context) string {
	page, _, err := p.mark.Load(ctx)
	if err != nil {
		return ""
	}
	return strconv.Itoa(page)
}

func (p *PurgePlanner) itemTypeFilter() string {
	return ""
}
