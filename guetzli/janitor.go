package guetzli

import (
	"context"
	"log/slog"
	"time"
)

// janitorOffset places each sweep 11 seconds past an interval boundary on
// the wall clock (hh:00:11 and hh:30:11 for a 30-minute interval) rather
// than on the boundary itself.
const janitorOffset = 11 * time.Second

// Janitor periodically enumerates the Store and deletes entries whose
// stored-time exceeds a fixed age. Grounded on the teacher's background
// periodic-task pattern (a goroutine looping on a time.Ticker, stopped via
// context cancellation at shutdown) used for the scheduled sweep in
// cmd/chrc's process lifetime wiring.
type Janitor struct {
	store    *Store
	interval time.Duration
	maxAge   time.Duration
}

// NewJanitor returns a Janitor that sweeps every interval and purges
// entries older than maxAge.
func NewJanitor(store *Store, interval, maxAge time.Duration) *Janitor {
	return &Janitor{store: store, interval: interval, maxAge: maxAge}
}

// Run blocks, sweeping janitorOffset past every interval boundary, until
// ctx is canceled.
func (j *Janitor) Run(ctx context.Context) {
	untilNext := func() time.Duration {
		now := time.Now()
		next := now.Truncate(j.interval).Add(janitorOffset)
		if !next.After(now) {
			next = next.Add(j.interval)
		}
		return next.Sub(now)
	}
	timer := time.NewTimer(untilNext())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			j.Sweep()
			timer.Reset(untilNext())
		}
	}
}

// Sweep performs one pass over all entries, deleting those whose
// stored.datetime is older than maxAge. Per-entry failures (missing
// metadata, locked files) are logged and skipped; the sweep never aborts
// early.
func (j *Janitor) Sweep() {
	ids, err := j.store.ListContentIDs()
	if err != nil {
		slog.Error("guetzli janitor: sweep could not list entries", "error", err)
		return
	}

	now := time.Now()
	deleted := 0
	for _, id := range ids {
		meta, err := j.store.ReadMeta(id)
		if err != nil {
			slog.Warn("guetzli janitor: could not read entry during sweep", "content_id", id, "error", err)
			continue
		}
		if now.Sub(meta.StoredAt) <= j.maxAge {
			continue
		}
		if err := j.store.Delete(id); err != nil {
			slog.Warn("guetzli janitor: could not delete aged entry", "content_id", id, "error", err)
			continue
		}
		deleted++
	}
	slog.Info("guetzli janitor: sweep complete", "examined", len(ids), "deleted", deleted)
}
