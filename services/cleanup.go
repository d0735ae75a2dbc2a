package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"feedsync/config"
	"feedsync/events"
	"feedsync/identity"
	"feedsync/models"
	"feedsync/storage"
	"feedsync/workers"
)

// ReapResult summarises a cleanup pass. SkipReason is set when the safety
// check refused to delete anything.
type ReapResult struct {
	Deleted    int
	Redirects  int
	SkipReason string
	Errors     []string
}

// Reaper deletes the properties of a feed that are no longer in it and
// leaves a redirect behind for each one.
type Reaper struct {
	repo   storage.Repository
	images *workers.ImagePipeline
	events events.Publisher
	logger *slog.Logger
}

func NewReaper(repo storage.Repository, images *workers.ImagePipeline, publisher events.Publisher, logger *slog.Logger) *Reaper {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Reaper{
		repo:   repo,
		images: images,
		events: publisher,
		logger: logger.With("component", "cleanup"),
	}
}

// Reap removes every stored property of fc whose reference is not in seen.
// Nothing is removed when the pull was empty or when fewer than
// fc.MinRetainRatio of the stored properties are still present.
func (r *Reaper) Reap(ctx context.Context, fc *config.FeedConfig, seen map[string]struct{}) (ReapResult, error) {
	var res ReapResult

	stored, err := r.repo.ListPropertyRefs(ctx, fc.ID)
	if err != nil {
		return res, fmt.Errorf("list properties: %w", err)
	}

	var stale []models.PropertyRef
	for _, p := range stored {
		if _, ok := seen[p.ReferenceNumber]; !ok {
			stale = append(stale, p)
		}
	}
	if len(stale) == 0 {
		return res, nil
	}

	if len(seen) == 0 {
		res.SkipReason = "feed contained no properties"
		r.logger.Warn("cleanup skipped", "feed", fc.ID, "reason", res.SkipReason, "stored", len(stored))
		return res, nil
	}

	retained := len(stored) - len(stale)
	if float64(retained)/float64(len(stored)) < fc.MinRetainRatio {
		res.SkipReason = fmt.Sprintf("only %d of %d stored properties present in feed", retained, len(stored))
		r.logger.Warn("cleanup skipped", "feed", fc.ID, "reason", res.SkipReason, "min_retain_ratio", fc.MinRetainRatio)
		return res, nil
	}

	toPath := fc.FallbackRedirect
	if toPath == "" {
		toPath = config.DefaultFallbackRedirect
	}

	for _, p := range stale {
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, err.Error())
			break
		}

		images, err := r.remove(ctx, p, toPath)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", p.ReferenceNumber, err))
			r.logger.Error("delete property failed", "reference", p.ReferenceNumber, "error", err)
			continue
		}
		res.Deleted++
		res.Redirects++

		if r.images != nil {
			r.images.DeleteObjects(ctx, images)
		}

		evt := events.PropertyEvent{
			PropertyID:      p.ID,
			ReferenceNumber: p.ReferenceNumber,
			Source:          fc.ID,
			Slug:            p.Slug,
			OccurredAt:      time.Now().UTC(),
		}
		if err := r.events.Publish(ctx, events.PropertyDeleted, evt); err != nil {
			r.logger.Warn("publish event failed", "key", events.PropertyDeleted, "reference", p.ReferenceNumber, "error", err)
		}
	}

	r.logger.Info("cleanup finished", "feed", fc.ID, "deleted", res.Deleted, "errors", len(res.Errors))
	return res, nil
}

func (r *Reaper) remove(ctx context.Context, p models.PropertyRef, toPath string) ([]models.PropertyImage, error) {
	var images []models.PropertyImage
	err := r.repo.InTx(ctx, func(tx storage.Repository) error {
		imgs, err := tx.DeletePropertyImages(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("delete images: %w", err)
		}
		images = imgs

		if err := tx.DeletePropertyAmenities(ctx, p.ID); err != nil {
			return fmt.Errorf("delete amenities: %w", err)
		}
		if err := tx.DeleteProperty(ctx, p.ID); err != nil {
			return fmt.Errorf("delete property: %w", err)
		}

		redirect := &models.Redirect{
			FromPath:   identity.PublicPath(p.Slug),
			ToPath:     toPath,
			StatusCode: http.StatusMovedPermanently,
		}
		if err := tx.UpsertRedirect(ctx, redirect); err != nil {
			return fmt.Errorf("upsert redirect: %w", err)
		}
		return nil
	})
	return images, err
}
