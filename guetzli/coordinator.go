package guetzli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// JobCoordinator admits uploads, drives each content id through the
// stored -> waiting -> transforming -> {transformed|failed} state machine,
// and gates concurrent transforms to a fixed parallelism. The
// channel-as-counting-semaphore plus a persistent worker rather than a
// per-call fan-out/join is grounded on the teacher's bounded-parallel
// subprocess pattern (a semaphore of buffered-channel permits guarding
// concurrent child-process invocations), generalized from a one-shot batch
// join to a long-lived, per-job acquire/release cycle.
type JobCoordinator struct {
	store       *Store
	probe       *Probe
	transformer *Transformer
	maxUpload   int64

	slots chan struct{}
}

// NewJobCoordinator builds a coordinator with a transform-slot semaphore of
// the given capacity (2 per the process-wide concurrency limit).
func NewJobCoordinator(store *Store, probe *Probe, transformer *Transformer, parallelism int, maxUploadBytes int64) *JobCoordinator {
	return &JobCoordinator{
		store:       store,
		probe:       probe,
		transformer: transformer,
		maxUpload:   maxUploadBytes,
		slots:       make(chan struct{}, parallelism),
	}
}

// Submit validates the upload, admits it into the Store, probes its
// quality (JPEG only; PNG records a fixed 100), writes the initial stored
// metadata, and asynchronously kicks off the job before returning the new
// content id.
func (c *JobCoordinator) Submit(ctx context.Context, body io.Reader, declaredSize int64, mimeType string, sourceName string) (string, error) {
	if declaredSize > c.maxUpload {
		return "", ErrTooLarge
	}
	sourceType, ok := SourceTypeFromMIME(mimeType)
	if !ok {
		return "", ErrUnsupportedMedia
	}

	contentID, err := c.store.Admit(body, sourceType)
	if err != nil {
		return "", err
	}

	quality := 100
	if sourceType == SourceJPG {
		quality, err = c.probe.Measure(ctx, c.store.SourcePath(contentID, sourceType))
		if err != nil {
			slog.Error("guetzli coordinator: initial probe failed", "content_id", contentID, "error", err)
			quality = 100
		}
	}

	info, statErr := fileSize(c.store.SourcePath(contentID, sourceType))
	if statErr != nil {
		return "", fmt.Errorf("guetzli: stat source for %s: %w", contentID, statErr)
	}

	meta := &Metadata{
		ContentID:     contentID,
		Status:        StatusStored,
		StoredAt:      time.Now(),
		SourceName:    sourceName,
		SourceType:    sourceType,
		SourceQuality: quality,
		SourceSize:    info,
	}
	if err := c.store.WriteMeta(meta); err != nil {
		return "", err
	}

	go c.runJob(contentID, sourceType)

	return contentID, nil
}

// runJob drives contentID's job to a terminal state. Idempotent: if the
// entry is not in StatusStored when invoked, it returns without action.
func (c *JobCoordinator) runJob(contentID string, sourceType SourceType) {
	meta, err := c.store.ReadMeta(contentID)
	if err != nil {
		slog.Error("guetzli coordinator: runJob could not read meta", "content_id", contentID, "error", err)
		return
	}
	if meta.Status != StatusStored {
		return
	}

	meta.Status = StatusWaiting
	if err := c.store.WriteMeta(meta); err != nil {
		slog.Error("guetzli coordinator: runJob could not write waiting", "content_id", contentID, "error", err)
		return
	}

	c.slots <- struct{}{}
	defer func() { <-c.slots }()

	meta.Status = StatusTransforming
	if err := c.store.WriteMeta(meta); err != nil {
		slog.Error("guetzli coordinator: runJob could not write transforming", "content_id", contentID, "error", err)
		return
	}

	ctx := context.Background()
	sourcePath := c.store.SourcePath(contentID, sourceType)
	targetPath := c.store.TargetPath(contentID)
	logPath := c.store.ProcessorLogPath(contentID)

	if err := c.transformer.Transform(ctx, sourcePath, targetPath, logPath); err != nil {
		slog.Error("guetzli coordinator: transform failed", "content_id", contentID, "error", err)
		c.fail(meta)
		return
	}

	targetQuality, err := c.probe.Measure(ctx, targetPath)
	if err != nil {
		slog.Error("guetzli coordinator: target probe failed", "content_id", contentID, "error", err)
		c.fail(meta)
		return
	}

	targetSize, err := fileSize(targetPath)
	if err != nil {
		slog.Error("guetzli coordinator: stat target failed", "content_id", contentID, "error", err)
		c.fail(meta)
		return
	}

	meta.Status = StatusTransformed
	meta.TargetQuality = &targetQuality
	meta.TargetSize = &targetSize
	if err := c.store.WriteMeta(meta); err != nil {
		slog.Error("guetzli coordinator: runJob could not write transformed", "content_id", contentID, "error", err)
	}
}

// fail writes the terminal failed status, best-effort: a secondary failure
// while writing the failure state is logged and swallowed.
func (c *JobCoordinator) fail(meta *Metadata) {
	meta.Status = StatusFailed
	if err := c.store.WriteMeta(meta); err != nil {
		slog.Error("guetzli coordinator: could not persist failed status", "content_id", meta.ContentID, "error", err)
	}
}

// GetMeta delegates to the Store.
func (c *JobCoordinator) GetMeta(contentID string) (*Metadata, error) {
	return c.store.ReadMeta(contentID)
}

// GetSource delegates to the Store.
func (c *JobCoordinator) GetSource(contentID string, t SourceType) (io.ReadCloser, error) {
	return c.store.ReadSource(contentID, t)
}

// GetTarget delegates to the Store, surfacing ErrNotFound when the entry
// has not yet reached StatusTransformed.
func (c *JobCoordinator) GetTarget(contentID string) (io.ReadCloser, error) {
	meta, err := c.store.ReadMeta(contentID)
	if err != nil {
		return nil, err
	}
	if meta.Status != StatusTransformed {
		return nil, ErrNotFound
	}
	return c.store.ReadTarget(contentID)
}

// ListContentIDs delegates to the Store.
func (c *JobCoordinator) ListContentIDs() ([]string, error) {
	return c.store.ListContentIDs()
}

// StatusCounts returns the number of entries currently in each status, for
// the /healthz operability snapshot. Entries whose meta cannot be read are
// skipped rather than failing the whole count.
func (c *JobCoordinator) StatusCounts() (map[Status]int, error) {
	ids, err := c.store.ListContentIDs()
	if err != nil {
		return nil, err
	}
	counts := make(map[Status]int, 5)
	for _, id := range ids {
		meta, err := c.store.ReadMeta(id)
		if err != nil {
			slog.Warn("guetzli coordinator: status count could not read entry", "content_id", id, "error", err)
			continue
		}
		counts[meta.Status]++
	}
	return counts, nil
}

// RecoverStale runs once at process startup. Entries left in a non-terminal
// state by a prior process's abrupt exit would otherwise sit forever,
// unreachable by any job: stored entries are re-enqueued, waiting or
// transforming entries (whose owning goroutine is gone) are marked failed.
// Grounded on the teacher's Ingester.RecoverStalePieces startup sweep,
// adapted from a piece/chunk recovery pass to this entry state machine.
func (c *JobCoordinator) RecoverStale() {
	ids, err := c.store.ListContentIDs()
	if err != nil {
		slog.Error("guetzli coordinator: recovery sweep could not list entries", "error", err)
		return
	}

	for _, id := range ids {
		meta, err := c.store.ReadMeta(id)
		if err != nil {
			slog.Warn("guetzli coordinator: recovery sweep could not read entry", "content_id", id, "error", err)
			continue
		}

		switch meta.Status {
		case StatusStored:
			slog.Info("guetzli coordinator: re-enqueuing stale stored entry", "content_id", id)
			go c.runJob(id, meta.SourceType)
		case StatusWaiting, StatusTransforming:
			slog.Info("guetzli coordinator: marking stale in-flight entry failed", "content_id", id, "status", meta.Status)
			c.fail(meta)
		}
	}
}
