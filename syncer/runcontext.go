package syncer

import (
	"errors"
	"maps"
	"net/url"
	"time"
)

// Failure describes the page that stopped a run.
type Failure struct {
	Page       int
	PipelineID string
	Params     url.Values
	Err        error
}

// RunContext accumulates page results for one run. It is owned by the
// aggregator and must not be shared between goroutines.
type RunContext struct {
	Kind           Kind
	Counts         map[string]int
	Records        int
	PagesProcessed int
	Misses         int
	AlreadyDeleted int
	FailedRecords  int
	// ConfirmedPage is the highest page such that it and every planned page
	// before it completed.
	ConfirmedPage int
	// LastSeen is the latest candidate among confirmed pages.
	LastSeen time.Time
	Failure  *Failure

	next    int
	pending map[int]PageResult
}

func NewRunContext(kind Kind, firstPage int) *RunContext {
	return &RunContext{
		Kind:          kind,
		Counts:        make(map[string]int),
		ConfirmedPage: firstPage - 1,
		next:          firstPage,
		pending:       make(map[int]PageResult),
	}
}

// Complete records a successful page and returns the pages, in order, that
// are now confirmed. Pages after a failure are counted but never confirmed.
func (rc *RunContext) Complete(res PageResult) []PageResult {
	rc.PagesProcessed++
	rc.Records += res.Records
	rc.Misses += res.Misses
	rc.AlreadyDeleted += res.AlreadyDeleted
	rc.FailedRecords += res.FailedRecords
	for k, v := range res.Counts {
		rc.Counts[k] += v
	}
	if rc.Failure != nil && res.Page > rc.Failure.Page {
		return nil
	}
	rc.pending[res.Page] = res
	var confirmed []PageResult
	for {
		r, ok := rc.pending[rc.next]
		if !ok {
			break
		}
		delete(rc.pending, rc.next)
		confirmed = append(confirmed, r)
		rc.ConfirmedPage = rc.next
		if r.Candidate.After(rc.LastSeen) {
			rc.LastSeen = r.Candidate
		}
		rc.next++
	}
	return confirmed
}

// Fail records the earliest failing page. Later failures are ignored.
func (rc *RunContext) Fail(res PageResult) {
	if rc.Failure != nil && rc.Failure.Page <= res.Page {
		return
	}
	rc.Failure = &Failure{
		Page:       res.Page,
		PipelineID: res.PipelineID,
		Params:     res.Params,
		Err:        res.Err,
	}
	for page := range rc.pending {
		if page > res.Page {
			delete(rc.pending, page)
		}
	}
	if rc.ConfirmedPage >= res.Page {
		rc.ConfirmedPage = res.Page - 1
		rc.next = res.Page
	}
}

func (rc *RunContext) Err() error {
	if rc.Failure == nil {
		return nil
	}
	return rc.Failure.Err
}

func (rc *RunContext) snapshotCounts() map[string]int {
	return maps.Clone(rc.Counts)
}

var errNotRun = errors.New("page was not run")
