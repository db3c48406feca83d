package syncer

import (
	"net/url"
	"time"
)

type Kind string

const (
	KindUpdate Kind = "update"
	KindPurge  Kind = "purge"
)

// PageOp is one planned page fetch.
type PageOp struct {
	Page   int
	Params url.Values
}

type Plan struct {
	Kind      Kind
	FirstPage int
	LastPage  int
	Available int
	Ops       []PageOp
}

func (p *Plan) Empty() bool {
	return len(p.Ops) == 0
}

// planPages emits one operation per page from first through last.
func planPages(kind Kind, params url.Values, first, last, available int) *Plan {
	plan := &Plan{Kind: kind, FirstPage: first, LastPage: last, Available: available}
	for page := first; page <= last; page++ {
		plan.Ops = append(plan.Ops, PageOp{Page: page, Params: withPage(params, page)})
	}
	return plan
}

// effectiveLastPage caps available pages at first-1+maxPages when a cap is set.
func effectiveLastPage(first, maxPages, available int) int {
	if maxPages > 0 && first-1+maxPages < available {
		return first - 1 + maxPages
	}
	return available
}

// PageResult is what executing one PageOp produced.
type PageResult struct {
	Page   int
	Params url.Values
	// Records counts routed records (update) or routed tombstones (purge).
	Records int
	// Counts is keyed by pipeline id (update) or destination type (purge).
	Counts         map[string]int
	Misses         int
	AlreadyDeleted int
	// FailedRecords counts routed records whose payload could not be
	// transformed. They do not stop the run.
	FailedRecords int
	// Candidate is the modification time of the page's last routed record.
	Candidate  time.Time
	PipelineID string
	Err        error
}
