package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fjlanasa/aspace-sync/pipelines"
	"github.com/fjlanasa/aspace-sync/watermark"
	"go.uber.org/goleak"
)

func slowRunner(d time.Duration) *fakeRunner {
	runner := newFakeRunner()
	runner.delay = func([]pipelines.Record) time.Duration { return d }
	return runner
}

func TestRunLockRenewedWhileRunInFlight(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	opt := goleak.IgnoreCurrent()
	defer goleak.VerifyNone(t, opt)

	s := New(threePageFeed(t), testRouter(t), slowRunner(100*time.Millisecond), store, WithLockTTL(150*time.Millisecond))
	firstErr := make(chan error, 1)
	go func() {
		_, err := s.Update(ctx, UpdateOptions{})
		firstErr <- err
	}()

	time.Sleep(200 * time.Millisecond)
	other := New(threePageFeed(t), testRouter(t), newFakeRunner(), store, WithLockTTL(150*time.Millisecond))
	if _, err := other.Update(ctx, UpdateOptions{}); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("second unfiltered run: expected ErrRunInProgress, got %v", err)
	}

	if err := <-firstErr; err != nil {
		t.Fatalf("first run: %v", err)
	}
	if locked, _ := isLocked(ctx, store, UpdateLockKey); locked {
		t.Error("expected lock to be released")
	}
}

func TestRunLockLostStopsRun(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	opt := goleak.IgnoreCurrent()
	defer goleak.VerifyNone(t, opt)

	s := New(threePageFeed(t), testRouter(t), slowRunner(50*time.Millisecond), store, WithLockTTL(60*time.Millisecond))
	go func() {
		time.Sleep(30 * time.Millisecond)
		store.Delete(ctx, UpdateLockKey)
	}()

	summary, err := s.Update(ctx, UpdateOptions{})
	if !errors.Is(err, ErrLockLost) {
		t.Fatalf("expected ErrLockLost, got %v", err)
	}
	if summary == nil || summary.Status() != "failed" {
		t.Fatalf("expected failed summary, got %+v", summary)
	}
	stored, _, _ := watermark.NewUpdate(store).Load(ctx)
	if finalized := mustTime(t, "2024-03-03T12:00:01Z"); !stored.Before(finalized) {
		t.Errorf("watermark %v should not be finalized after losing the lock", stored)
	}
}
