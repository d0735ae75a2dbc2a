package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
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

const summaryLength = 160

// unknownLastUpdate is stored for records inserted without a usable
// timestamp, so the first dated version of the record replaces them.
var unknownLastUpdate = time.Unix(0, 0).UTC()

// Outcome is what reconciling one feed record did.
type Outcome struct {
	Decision        Decision
	PropertyID      uuid.UUID
	Reference       string
	Slug            string
	IsLuxe          bool
	AmenitiesLinked int
	ImagesUploaded  int
	ImagesFailed    int
}

// Reconciler writes one validated feed record to the database. The
// property, its lookups and its amenity links are written in a single
// transaction; images and events follow the commit and never fail the
// record.
type Reconciler struct {
	repo      storage.Repository
	amenities *AmenityLinker
	images    *workers.ImagePipeline
	events    events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewReconciler(repo storage.Repository, images *workers.ImagePipeline, publisher events.Publisher, logger *slog.Logger) *Reconciler {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Reconciler{
		repo:      repo,
		amenities: NewAmenityLinker(),
		images:    images,
		events:    publisher,
		logger:    logger.With("component", "reconcile"),
		now:       time.Now,
	}
}

// Reconcile writes rec. repeated marks a reference already written earlier
// in the same pull; such a record overwrites that write regardless of its
// timestamp, so the last occurrence in the feed wins.
func (r *Reconciler) Reconcile(ctx context.Context, fc *config.FeedConfig, rec feed.Normalized, repeated bool) (Outcome, error) {
	ref := identity.PrefixedReference(fc.ReferencePrefix, rec.Reference())
	out := Outcome{Reference: ref}

	incoming, tsErr := feed.ParseLastUpdate(rec.Get(feed.FieldLastUpdate), fc.Location())
	now := r.now().UTC()

	var (
		property      *models.Property
		refreshImages bool
	)
	err := r.repo.InTx(ctx, func(tx storage.Repository) error {
		existing, err := tx.GetPropertyByReference(ctx, ref)
		if err != nil {
			return fmt.Errorf("get property: %w", err)
		}

		switch {
		case existing == nil:
			out.Decision = DecisionInsert
		case repeated:
			out.Decision = DecisionUpdate
		case tsErr != nil:
			// Without a timestamp the record cannot prove it is newer.
			out.Decision = DecisionSkip
		default:
			out.Decision = Decide(incoming, existing)
		}
		if out.Decision == DecisionSkip {
			out.PropertyID = existing.ID
			out.Slug = existing.Slug
			out.IsLuxe = existing.IsLuxe
			return nil
		}

		p := existing
		if p == nil {
			p = &models.Property{
				ID:              uuid.New(),
				Source:          fc.ID,
				ReferenceNumber: ref,
				Status:          models.PropertyStatusPublished,
				CreatedAt:       now,
			}
		}
		if err := r.apply(ctx, tx, fc, rec, p); err != nil {
			return err
		}
		switch {
		case tsErr == nil:
			p.LastUpdated = incoming.UTC()
		case existing == nil:
			p.LastUpdated = unknownLastUpdate
		}
		p.UpdatedAt = now

		if existing == nil {
			p.Slug = identity.Slug(p.Title, ref)
			if err := tx.InsertProperty(ctx, p); err != nil {
				return err
			}
			// A listing that comes back reuses its old slug.
			if err := tx.DeleteRedirect(ctx, identity.PublicPath(p.Slug)); err != nil {
				return fmt.Errorf("delete redirect: %w", err)
			}
			refreshImages = true
		} else {
			if err := tx.UpdateProperty(ctx, p); err != nil {
				return err
			}
			current, err := tx.ListPropertyImages(ctx, p.ID)
			if err != nil {
				return fmt.Errorf("list images: %w", err)
			}
			refreshImages = photosChanged(current, rec.Photos)
		}

		linked, err := r.amenities.Link(ctx, tx, p.ID, p.AmenitiesRaw)
		if err != nil {
			return err
		}
		out.AmenitiesLinked = linked

		property = p
		return nil
	})
	if err != nil {
		return out, err
	}
	if out.Decision == DecisionSkip {
		return out, nil
	}

	out.PropertyID = property.ID
	out.Slug = property.Slug
	out.IsLuxe = property.IsLuxe

	if property.IsLuxe && refreshImages {
		r.attachImages(ctx, property, rec.Photos, &out)
	}

	key := events.PropertyUpdated
	if out.Decision == DecisionInsert {
		key = events.PropertyCreated
	}
	r.publish(ctx, key, property)

	return out, nil
}

// apply copies the record's mutable fields onto p and resolves its lookups
// inside tx. Slug and status are left to the caller.
func (r *Reconciler) apply(ctx context.Context, tx storage.Repository, fc *config.FeedConfig, rec feed.Normalized, p *models.Property) error {
	p.Title = rec.Get(feed.FieldTitle)
	p.Description = rec.Get(feed.FieldDescription)
	p.Summary = feed.Excerpt(feed.PlainText(p.Description), summaryLength)
	p.Price, _ = feed.ParsePrice(rec.Get(feed.FieldPrice))
	p.Bedrooms = atoi(rec.Get(feed.FieldBedroom))
	p.Bathrooms = atoi(rec.Get(feed.FieldBathroom))
	p.Size = parseFloat(rec.Get(feed.FieldSize))
	p.PlotSize = parseFloat(rec.Get(feed.FieldPlotSize))
	p.SubCommunity = rec.Get(feed.FieldSubCommunity)
	p.PermitNumber = rec.Get(feed.FieldPermitNumber)
	p.AmenitiesRaw = rec.Get(feed.FieldAmenities)
	p.IsLuxe = feed.IsLuxury(rec.Get(feed.FieldPrice), fc.LuxuryThreshold)

	var err error
	if p.CommunityID, err = resolveLookup(ctx, tx, models.LookupCommunity, rec.Get(feed.FieldCommunity)); err != nil {
		return err
	}
	if p.CityID, err = resolveLookup(ctx, tx, models.LookupCity, rec.Get(feed.FieldCity)); err != nil {
		return err
	}
	if p.OfferingTypeID, err = resolveLookup(ctx, tx, models.LookupOfferingType, rec.Get(feed.FieldOfferingType)); err != nil {
		return err
	}
	if p.PropertyTypeID, err = resolveLookup(ctx, tx, models.LookupPropertyType, rec.Get(feed.FieldPropertyType)); err != nil {
		return err
	}

	p.AgentID = nil
	if !rec.Agent.IsZero() {
		id, err := tx.FindOrCreateAgent(ctx, &models.Agent{
			Name:  rec.Agent.Name,
			Email: rec.Agent.Email,
			Phone: rec.Agent.Phone,
		})
		if err != nil {
			return fmt.Errorf("resolve agent: %w", err)
		}
		p.AgentID = &id
	}

	return nil
}

func resolveLookup(ctx context.Context, tx storage.Repository, kind models.LookupKind, name string) (*uuid.UUID, error) {
	if name == "" {
		return nil, nil
	}
	id, err := tx.FindOrCreateLookup(ctx, kind, name)
	if err != nil {
		return nil, fmt.Errorf("resolve %s %q: %w", kind, name, err)
	}
	return &id, nil
}

// attachImages uploads the photos and swaps the stored image rows. When
// every upload fails the previous images are kept.
func (r *Reconciler) attachImages(ctx context.Context, p *models.Property, photos []string, out *Outcome) {
	if r.images == nil {
		return
	}

	res := r.images.Process(ctx, p.ID, photos)
	out.ImagesFailed = res.Failed
	if len(res.Images) == 0 && len(photos) > 0 {
		return
	}

	var replaced []models.PropertyImage
	err := r.repo.InTx(ctx, func(tx storage.Repository) error {
		old, err := tx.DeletePropertyImages(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("delete images: %w", err)
		}
		replaced = old
		for i := range res.Images {
			if err := tx.InsertPropertyImage(ctx, &res.Images[i]); err != nil {
				return fmt.Errorf("insert image: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Warn("saving images failed", "reference", p.ReferenceNumber, "error", err)
		out.ImagesFailed += len(res.Images)
		r.images.DeleteObjects(ctx, res.Images)
		return
	}

	out.ImagesUploaded = len(res.Images)
	r.images.DeleteObjects(ctx, staleImages(replaced, res.Images))
}

func (r *Reconciler) publish(ctx context.Context, key string, p *models.Property) {
	evt := events.PropertyEvent{
		PropertyID:      p.ID,
		ReferenceNumber: p.ReferenceNumber,
		Source:          p.Source,
		Slug:            p.Slug,
		IsLuxe:          p.IsLuxe,
		OccurredAt:      r.now().UTC(),
	}
	if err := r.events.Publish(ctx, key, evt); err != nil {
		r.logger.Warn("publish event failed", "key", key, "reference", p.ReferenceNumber, "error", err)
	}
}

func photosChanged(current []models.PropertyImage, photos []string) bool {
	if len(current) != len(photos) {
		return true
	}
	for i, img := range current {
		if img.SourceURL != photos[i] {
			return true
		}
	}
	return false
}

// staleImages returns the replaced images whose objects are not reused by
// the new set. Identical content maps to the same key.
func staleImages(replaced, current []models.PropertyImage) []models.PropertyImage {
	keep := make(map[string]bool, len(current))
	for _, img := range current {
		keep[img.StorageKey] = true
	}
	var stale []models.PropertyImage
	for _, img := range replaced {
		if !keep[img.StorageKey] {
			stale = append(stale, img)
		}
	}
	return stale
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func parseFloat(s string) *float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
