package syncer

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/fjlanasa/aspace-sync/api/v1/events"
	"github.com/fjlanasa/aspace-sync/config"
	"github.com/fjlanasa/aspace-sync/pipelines"
	"github.com/fjlanasa/aspace-sync/routes"
	"github.com/fjlanasa/aspace-sync/sources"
	"github.com/fjlanasa/aspace-sync/statestore"
)

type fakeFeed struct {
	mu          sync.Mutex
	lastPage    int
	updates     map[int][]sources.UpdateRecord
	deleteLast  int
	deletes     map[int][]string
	errs        map[int]error
	searches    []url.Values
	deleteCalls []url.Values
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		updates: make(map[int][]sources.UpdateRecord),
		deletes: make(map[int][]string),
		errs:    make(map[int]error),
	}
}

func (f *fakeFeed) Search(_ context.Context, params url.Values) (*sources.UpdatePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, params)
	page, _ := strconv.Atoi(params.Get("page"))
	if err := f.errs[page]; err != nil {
		return nil, err
	}
	return &sources.UpdatePage{FirstPage: 1, LastPage: f.lastPage, ThisPage: page, Results: f.updates[page]}, nil
}

func (f *fakeFeed) DeleteFeed(_ context.Context, params url.Values) (*sources.DeletePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls = append(f.deleteCalls, params)
	page, _ := strconv.Atoi(params.Get("page"))
	if err := f.errs[page]; err != nil {
		return nil, err
	}
	return &sources.DeletePage{FirstPage: 1, LastPage: f.deleteLast, ThisPage: page, Results: f.deletes[page]}, nil
}

func pagesOf(calls []url.Values) []int {
	pages := []int{}
	for _, params := range calls {
		page, _ := strconv.Atoi(params.Get("page"))
		pages = append(pages, page)
	}
	return pages
}

func (f *fakeFeed) searchedPages() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return pagesOf(f.searches)
}

func (f *fakeFeed) deletedPages() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return pagesOf(f.deleteCalls)
}

type runCall struct {
	pipelineID string
	sourceIDs  []string
}

type fakeRunner struct {
	mu           sync.Mutex
	calls        []runCall
	failOn       func(pipelineID string, records []pipelines.Record) (pipelines.Outcome, error)
	delay        func(records []pipelines.Record) time.Duration
	destinations map[string]pipelines.Destination
	absent       map[string]bool
	unknown      map[string]bool
	deleted      []pipelines.Destination
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		destinations: make(map[string]pipelines.Destination),
		absent:       make(map[string]bool),
		unknown:      make(map[string]bool),
	}
}

func (r *fakeRunner) RunUpdate(_ context.Context, pipelineID string, records []pipelines.Record) (pipelines.Outcome, error) {
	if r.delay != nil {
		time.Sleep(r.delay(records))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := []string{}
	for _, rec := range records {
		ids = append(ids, rec.SourceID)
	}
	r.calls = append(r.calls, runCall{pipelineID: pipelineID, sourceIDs: ids})
	if r.failOn != nil {
		return r.failOn(pipelineID, records)
	}
	return pipelines.OutcomeCompleted, nil
}

func (r *fakeRunner) ResolveDestinations(_ context.Context, pipelineID string, sourceIDs []string) (map[string]pipelines.Destination, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unknown[pipelineID] {
		return nil, fmt.Errorf("%w: %s", pipelines.ErrUnknownPipeline, pipelineID)
	}
	resolved := make(map[string]pipelines.Destination)
	for _, id := range sourceIDs {
		if dest, ok := r.destinations[id]; ok {
			resolved[id] = dest
		}
	}
	return resolved, nil
}

func (r *fakeRunner) DeleteDestination(_ context.Context, dest pipelines.Destination) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.absent[dest.SourceID] {
		return false, nil
	}
	r.absent[dest.SourceID] = true
	r.deleted = append(r.deleted, dest)
	return true, nil
}

func testRouter(t *testing.T) *routes.Router {
	t.Helper()
	router, err := routes.New([]routes.Definition{
		{Pattern: `^/repositories/\d+/resources/\d+$`, PipelineID: "resources"},
		{Pattern: `^/repositories/\d+/archival_objects/\d+$`, PipelineID: "archival_objects"},
	})
	if err != nil {
		t.Fatalf("routes.New: %v", err)
	}
	return router
}

func testStore(t *testing.T) statestore.StateStore {
	t.Helper()
	store := statestore.NewInMemoryStateStore(config.InMemoryStateStoreConfig{})
	t.Cleanup(func() { store.Close() })
	return store
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return ts.UTC()
}

func updateRecord(uri string, mtime time.Time) sources.UpdateRecord {
	return sources.UpdateRecord{
		URI:          uri,
		JSON:         fmt.Sprintf(`{"uri":%q}`, uri),
		UserMtime:    mtime.Format(time.RFC3339),
		ModifiedTime: mtime,
	}
}

func collectEvents(ch chan any) []events.Event {
	var out []events.Event
	for {
		select {
		case msg := <-ch:
			if e, ok := msg.(events.Event); ok {
				out = append(out, e)
			}
		default:
			return out
		}
	}
}
