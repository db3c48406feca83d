package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fjlanasa/aspace-sync/pipelines"
	"github.com/fjlanasa/aspace-sync/watermark"
	"github.com/google/go-cmp/cmp"
)

func TestPurgeWorkedExample(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	feed := newFakeFeed()
	feed.deleteLast = 10
	s := New(feed, testRouter(t), newFakeRunner(), store)

	p, err := s.NewPurgePlanner(ctx, PurgeOptions{FirstPage: 3, MaxPages: 2})
	if err != nil {
		t.Fatal(err)
	}
	plan, err := p.Plan(ctx)
	if err != nil {
		t.Fatal(err)
	}
	pages := []int{}
	for _, op := range plan.Ops {
		pages = append(pages, op.Page)
		if op.Params.Get("page_size") != "50" {
			t.Errorf("page %d: page_size = %q, want 50", op.Page, op.Params.Get("page_size"))
		}
	}
	if diff := cmp.Diff([]int{3, 4}, pages); diff != "" {
		t.Errorf("planned pages mismatch (-want +got):\n%s", diff)
	}

	summary, err := s.Purge(ctx, PurgeOptions{FirstPage: 3, MaxPages: 2})
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if diff := cmp.Diff([]int{1, 1, 3, 4}, feed.deletedPages()); diff != "" {
		t.Errorf("fetched pages mismatch (-want +got):\n%s", diff)
	}
	if summary.Watermark != "4" || summary.ConfirmedPage != 4 {
		t.Errorf("unexpected summary %+v", summary)
	}
}

func TestPurgeFirstPage(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	s := New(newFakeFeed(), testRouter(t), newFakeRunner(), store)

	p, err := s.NewPurgePlanner(ctx, PurgeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if p.FirstPage() != 1 {
		t.Errorf("first page = %d, want 1", p.FirstPage())
	}

	if err := store.Set(ctx, watermark.PurgeKey, "7", 0); err != nil {
		t.Fatal(err)
	}
	p, _ = s.NewPurgePlanner(ctx, PurgeOptions{})
	if p.FirstPage() != 8 {
		t.Errorf("first page = %d, want 8", p.FirstPage())
	}
	p, _ = s.NewPurgePlanner(ctx, PurgeOptions{FirstPage: 2})
	if p.FirstPage() != 2 {
		t.Errorf("first page = %d, want 2", p.FirstPage())
	}
}

func TestPurgeIdempotence(t *testing.T) {
	ctx := context.Background()
	feed := newFakeFeed()
	feed.deleteLast = 1
	feed.deletes[1] = []string{
		"/repositories/2/resources/1",
		"/repositories/2/resources/2",
		"/repositories/2/resources/3",
		"/repositories/2/digital_objects/1",
		"/repositories/2/archival_objects/1",
	}
	runner := newFakeRunner()
	runner.destinations["/repositories/2/resources/1"] = pipelines.Destination{ID: "a", Type: "collection", Pipeline: "resources", SourceID: "/repositories/2/resources/1"}
	runner.destinations["/repositories/2/resources/3"] = pipelines.Destination{ID: "c", Type: "collection", Pipeline: "resources", SourceID: "/repositories/2/resources/3"}
	runner.absent["/repositories/2/resources/3"] = true
	runner.unknown["archival_objects"] = true
	s := New(feed, testRouter(t), runner, testStore(t))

	summary, err := s.Purge(ctx, PurgeOptions{})
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if diff := cmp.Diff(map[string]int{"collection": 1}, summary.Counts); diff != "" {
		t.Errorf("deletion counts mismatch (-want +got):\n%s", diff)
	}
	if summary.Misses != 1 || summary.AlreadyDeleted != 1 || summary.Records != 4 {
		t.Errorf("unexpected summary %+v", summary)
	}

	// Running the same page again removes nothing new.
	summary, err = s.Purge(ctx, PurgeOptions{FirstPage: 1})
	if err != nil {
		t.Fatalf("second Purge: %v", err)
	}
	if len(summary.Counts) != 0 || summary.AlreadyDeleted != 2 {
		t.Errorf("unexpected second summary %+v", summary)
	}
}

func TestPurgeWatermarkNeverDecreases(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	if err := store.Set(ctx, watermark.PurgeKey, "7", 0); err != nil {
		t.Fatal(err)
	}
	feed := newFakeFeed()
	feed.deleteLast = 10
	s := New(feed, testRouter(t), newFakeRunner(), store)

	summary, err := s.Purge(ctx, PurgeOptions{FirstPage: 2, MaxPages: 3})
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if summary.Watermark != "7" {
		t.Errorf("purge watermark = %s, want 7", summary.Watermark)
	}
	summary, err = s.Purge(ctx, PurgeOptions{})
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if summary.FirstPage != 8 || summary.Watermark != "10" {
		t.Errorf("unexpected resumed summary %+v", summary)
	}
}

func TestPurgeNothingToDo(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	if err := store.Set(ctx, watermark.PurgeKey, "4", 0); err != nil {
		t.Fatal(err)
	}
	feed := newFakeFeed()
	feed.deleteLast = 4
	s := New(feed, testRouter(t), newFakeRunner(), store)

	summary, err := s.Purge(ctx, PurgeOptions{})
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if summary.Status() != "empty" || len(feed.deletedPages()) != 1 {
		t.Errorf("expected probe only, got %+v pages %v", summary, feed.deletedPages())
	}
}

func TestPurgeFailureStopsRun(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	feed := newFakeFeed()
	feed.deleteLast = 4
	fetchErr := errors.New("503")
	feed.errs[3] = fetchErr
	s := New(feed, testRouter(t), newFakeRunner(), store)

	summary, err := s.Purge(ctx, PurgeOptions{})
	if !errors.Is(err, fetchErr) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if summary.Watermark != "2" || summary.Failure.Page != 3 {
		t.Errorf("unexpected summary %+v", summary)
	}
	if diff := cmp.Diff([]int{1, 1, 2, 3}, feed.deletedPages()); diff != "" {
		t.Errorf("fetched pages mismatch (-want +got):\n%s", diff)
	}
}

func TestPurgeRunLock(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	if err := store.Set(ctx, PurgeLockKey, "other-run", time.Hour); err != nil {
		t.Fatal(err)
	}
	s := New(newFakeFeed(), testRouter(t), newFakeRunner(), store)
	if _, err := s.Purge(ctx, PurgeOptions{}); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("expected ErrRunInProgress, got %v", err)
	}
	st, err := s.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !st.PurgeLocked || st.UpdateLocked {
		t.Errorf("unexpected status %+v", st)
	}
}
