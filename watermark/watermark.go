// Package watermark keeps the resumability cursors of the update and delete
// feeds. Both cursors only ever move forward.
package watermark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/fjlanasa/aspace-sync/statestore"
)

const (
	UpdateKey = "archivesspace.latest_user_mtime"
	PurgeKey  = "archivesspace.delete_feed_page"

	maxSwapAttempts = 10
)

var (
	ErrUnrecognizedTimestamp = errors.New("unrecognized timestamp")
	ErrContention            = errors.New("watermark changed concurrently too many times")

	// DefaultStart is used when no update watermark has been stored yet.
	DefaultStart = time.Unix(0, 0).UTC()
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrUnrecognizedTimestamp)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q, please provide an ISO 8601 timestamp such as 2020-01-01T00:00:00Z", ErrUnrecognizedTimestamp, value)
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// advance swaps candidate into key while isGreater reports the stored value
// is behind it. It retries when another writer wins the swap.
func advance(ctx context.Context, store statestore.StateStore, key, candidate string, isGreater func(stored string) bool) (bool, error) {
	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		stored, found, err := store.Get(ctx, key)
		if err != nil {
			return false, fmt.Errorf("read %s: %w", key, err)
		}
		old := ""
		if found {
			if !isGreater(stored) {
				return false, nil
			}
			old = stored
		}
		swapped, err := store.CompareAndSwap(ctx, key, old, candidate, 0)
		if err != nil {
			return false, fmt.Errorf("write %s: %w", key, err)
		}
		if swapped {
			return true, nil
		}
	}
	return false, fmt.Errorf("%w: %s", ErrContention, key)
}

// Update is the modification-time cursor of the "updated since" feed.
type Update struct {
	store statestore.StateStore
}

func NewUpdate(store statestore.StateStore) *Update {
	return &Update{store: store}
}

// Load returns the stored watermark. A missing or unparsable value yields
// DefaultStart and found=false.
func (w *Update) Load(ctx context.Context) (time.Time, bool, error) {
	stored, found, err := w.store.Get(ctx, UpdateKey)
	if err != nil {
		return DefaultStart, false, fmt.Errorf("read %s: %w", UpdateKey, err)
	}
	if !found {
		return DefaultStart, false, nil
	}
	t, err := ParseTimestamp(stored)
	if err != nil {
		slog.Warn("ignoring stored update watermark", "value", stored, "error", err)
		return DefaultStart, false, nil
	}
	return t, true, nil
}

// Advance stores t only if it is later than the stored watermark.
func (w *Update) Advance(ctx context.Context, t time.Time) (bool, error) {
	return advance(ctx, w.store, UpdateKey, FormatTimestamp(t), func(stored string) bool {
		current, err := ParseTimestamp(stored)
		if err != nil {
			return true
		}
		return t.After(current)
	})
}

// Purge is the page cursor of the delete feed.
type Purge struct {
	store statestore.StateStore
}

func NewPurge(store statestore.StateStore) *Purge {
	return &Purge{store: store}
}

func (w *Purge) Load(ctx context.Context) (int, bool, error) {
	stored, found, err := w.store.Get(ctx, PurgeKey)
	if err != nil {
		return 0, false, fmt.Errorf("read %s: %w", PurgeKey, err)
	}
	if !found {
		return 0, false, nil
	}
	page, err := strconv.Atoi(stored)
	if err != nil || page < 0 {
		slog.Warn("ignoring stored purge watermark", "value", stored)
		return 0, false, nil
	}
	return page, true, nil
}

// Advance stores page only if it exceeds the stored page number.
func (w *Purge) Advance(ctx context.Context, page int) (bool, error) {
	return advance(ctx, w.store, PurgeKey, strconv.Itoa(page), func(stored string) bool {
		current, err := strconv.Atoi(stored)
		if err != nil {
			return true
		}
		return page > current
	})
}
