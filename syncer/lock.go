package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjlanasa/aspace-sync/statestore"
	"github.com/google/uuid"
)

const (
	UpdateLockKey = "archivesspace.lock.update"
	PurgeLockKey  = "archivesspace.lock.purge"
)

var ErrLockLost = errors.New("run lock lost")

// runLock is a lease on a state store key. It expires after ttl so a crashed
// run does not block later ones forever; a live run renews it every ttl/3.
type runLock struct {
	store  statestore.StateStore
	key    string
	token  string
	ttl    time.Duration
	cancel context.CancelCauseFunc
	stop   chan struct{}
	done   chan struct{}
}

// acquireLock takes the lease and starts renewing it. The returned context
// is canceled with ErrLockLost once the lease can no longer be renewed.
func acquireLock(ctx context.Context, store statestore.StateStore, key string, ttl time.Duration) (*runLock, context.Context, error) {
	token := uuid.NewString()
	ok, err := store.CompareAndSwap(ctx, key, "", token, ttl)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s is held", ErrRunInProgress, key)
	}
	lockCtx, cancel := context.WithCancelCause(ctx)
	l := &runLock{
		store:  store,
		key:    key,
		token:  token,
		ttl:    ttl,
		cancel: cancel,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if ttl > 0 {
		go l.renew(lockCtx)
	} else {
		close(l.done)
	}
	return l, lockCtx, nil
}

func (l *runLock) renew(ctx context.Context) {
	defer close(l.done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			renewed, err := l.store.CompareAndSwap(ctx, l.key, l.token, l.token, l.ttl)
			if err != nil {
				// The lease is still valid until it expires; try again next tick.
				slog.Warn("failed to renew run lock", "key", l.key, "error", err)
				continue
			}
			if !renewed {
				slog.Error("run lock lost, stopping run", "key", l.key)
				l.cancel(fmt.Errorf("%w: %s", ErrLockLost, l.key))
				return
			}
		}
	}
}

func (l *runLock) release(ctx context.Context) {
	close(l.stop)
	<-l.done
	l.cancel(nil)
	released, err := l.store.CompareAndDelete(ctx, l.key, l.token)
	if err != nil {
		slog.Error("failed to release run lock", "key", l.key, "error", err)
		return
	}
	if !released {
		slog.Warn("run lock expired before release", "key", l.key)
	}
}

func isLocked(ctx context.Context, store statestore.StateStore, key string) (bool, error) {
	_, found, err := store.Get(ctx, key)
	return found, err
}
