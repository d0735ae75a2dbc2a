package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"feedsync/config"
	"feedsync/events"
	"feedsync/feed"
	"feedsync/identity"
	"feedsync/models"
	"feedsync/storage"
	"feedsync/workers"
)

var ErrImportRunning = errors.New("import already running for feed")

type FeedFetcher interface {
	Fetch(ctx context.Context, url string) (*feed.Document, error)
}

// Result is returned to whoever triggered the import.
type Result struct {
	Success  bool      `json:"success"`
	JobID    uuid.UUID `json:"job_id"`
	Imported int       `json:"imported"`
	Updated  int       `json:"updated"`
	Failed   int       `json:"failed"`
	Stats    *Stats    `json:"stats"`
}

// Importer runs the whole pipeline for one feed: fetch, normalize,
// validate, reconcile, cleanup and job bookkeeping.
type Importer struct {
	fetcher    FeedFetcher
	reconciler *Reconciler
	reaper     *Reaper
	jobs       *JobRecorder
	events     events.Publisher
	logger     *slog.Logger

	mu      sync.Mutex
	running map[string]bool
}

func NewImporter(repo storage.Repository, fetcher FeedFetcher, images *workers.ImagePipeline, publisher events.Publisher, logger *slog.Logger) *Importer {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Importer{
		fetcher:    fetcher,
		reconciler: NewReconciler(repo, images, publisher, logger),
		reaper:     NewReaper(repo, images, publisher, logger),
		jobs:       NewJobRecorder(repo, logger),
		events:     publisher,
		logger:     logger.With("component", "importer"),
		running:    make(map[string]bool),
	}
}

// RunURL imports an ad-hoc feed URL with default settings. The URL is
// used as the feed's source id.
func (im *Importer) RunURL(ctx context.Context, url string) (*Result, error) {
	return im.Run(ctx, config.DefaultFeed(url, url))
}

// Run imports fc once. Fatal errors (fetch, parse, database) are returned
// and the job is marked failed; per-record problems only show up in the
// stats.
func (im *Importer) Run(ctx context.Context, fc *config.FeedConfig) (*Result, error) {
	if !im.acquire(fc.ID) {
		return nil, fmt.Errorf("%w: %s", ErrImportRunning, fc.ID)
	}
	defer im.release(fc.ID)

	job, err := im.jobs.Start(ctx, fc)
	if err != nil {
		return nil, err
	}

	logger := im.logger.With("job_id", job.ID, "feed", fc.ID)
	logger.Info("import started", "url", fc.URL)

	stats := &Stats{}
	runErr := im.run(ctx, logger, fc, stats)

	im.jobs.Finish(ctx, job, stats, runErr)
	im.publishFinished(ctx, logger, fc, job.ID, job.Status, stats)

	result := &Result{
		Success:  runErr == nil,
		JobID:    job.ID,
		Imported: stats.Created,
		Updated:  stats.Updated,
		Failed:   stats.Failed,
		Stats:    stats,
	}
	if runErr != nil {
		logger.Error("import failed", "error", runErr, "duration_ms", job.DurationMS)
		return result, runErr
	}

	logger.Info("import finished",
		"properties", stats.PropertyCount,
		"created", stats.Created,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"deleted", stats.Deleted,
		"duration_ms", job.DurationMS,
	)
	return result, nil
}

func (im *Importer) run(ctx context.Context, logger *slog.Logger, fc *config.FeedConfig, stats *Stats) error {
	doc, err := im.fetcher.Fetch(ctx, fc.URL)
	if err != nil {
		return err
	}

	records := make([]feed.Normalized, 0, len(doc.Entries))
	for _, entry := range doc.Entries {
		records = append(records, feed.Normalize(entry))
	}
	stats.PropertyCount = len(records)

	stats.Duplicates = DetectDuplicates(records)
	for _, d := range stats.Duplicates {
		logger.Warn("duplicate reference in feed", "reference", d.ReferenceNumber, "count", d.Count, "same_permit", d.SamePermit())
	}

	seen := make(map[string]struct{}, len(records))
	written := make(map[string]bool, len(records))
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}

		ref := rec.Reference()
		prefixed := identity.PrefixedReference(fc.ReferencePrefix, ref)
		if ref != "" {
			seen[prefixed] = struct{}{}
		}

		if errs := feed.Validate(rec.Record); len(errs) > 0 {
			label := ref
			if label == "" {
				label = fmt.Sprintf("entry #%d", i+1)
			}
			stats.AddFailure(label, errs...)
			logger.Warn("invalid property", "reference", label, "errors", errs)
			continue
		}

		out, err := im.reconciler.Reconcile(ctx, fc, rec, written[prefixed])
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			stats.AddFailure(ref, err.Error())
			logger.Error("reconcile failed", "reference", ref, "error", err)
			continue
		}
		if out.Decision != DecisionSkip {
			written[prefixed] = true
		}
		stats.Aggregate(out)
		logger.Debug("property reconciled", "reference", out.Reference, "decision", out.Decision.String())
	}

	reaped, err := im.reaper.Reap(ctx, fc, seen)
	if err != nil {
		stats.CleanupErrors = append(stats.CleanupErrors, err.Error())
		logger.Error("cleanup failed", "error", err)
	}
	stats.AddReap(reaped)

	return nil
}

func (im *Importer) publishFinished(ctx context.Context, logger *slog.Logger, fc *config.FeedConfig, jobID uuid.UUID, status models.JobStatus, stats *Stats) {
	evt := events.ImportEvent{
		JobID:      jobID,
		FeedID:     fc.ID,
		Status:     string(status),
		Imported:   stats.Created,
		Updated:    stats.Updated,
		Failed:     stats.Failed,
		Deleted:    stats.Deleted,
		OccurredAt: time.Now().UTC(),
	}
	if err := im.events.Publish(context.WithoutCancel(ctx), events.ImportFinished, evt); err != nil {
		logger.Warn("publish event failed", "key", events.ImportFinished, "error", err)
	}
}

func (im *Importer) acquire(feedID string) bool {
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.running[feedID] {
		return false
	}
	im.running[feedID] = true
	return true
}

func (im *Importer) release(feedID string) {
	im.mu.Lock()
	defer im.mu.Unlock()
	delete(im.running, feedID)
}

// Running reports whether an import of feedID is in progress.
func (im *Importer) Running(feedID string) bool {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.running[feedID]
}
