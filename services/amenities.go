package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"feedsync/storage"
)

// AmenityLinker attaches a property to the known amenities named in the
// feed's comma separated list. Unknown names are ignored; the amenity
// table is curated by the site, not by the feed.
type AmenityLinker struct{}

func NewAmenityLinker() *AmenityLinker {
	return &AmenityLinker{}
}

// SplitAmenities splits a raw amenity list, dropping empty entries.
func SplitAmenities(raw string) []string {
	var names []string
	for _, part := range strings.Split(raw, ",") {
		if name := strings.Join(strings.Fields(part), " "); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Link replaces the property's amenity links with the matches found in raw
// and returns how many were linked.
func (l *AmenityLinker) Link(ctx context.Context, repo storage.Repository, propertyID uuid.UUID, raw string) (int, error) {
	if err := repo.DeletePropertyAmenities(ctx, propertyID); err != nil {
		return 0, fmt.Errorf("clear amenities: %w", err)
	}

	names := SplitAmenities(raw)
	if len(names) == 0 {
		return 0, nil
	}

	known, err := repo.ListAmenities(ctx)
	if err != nil {
		return 0, fmt.Errorf("list amenities: %w", err)
	}

	fold := cases.Fold()
	index := make(map[string]uuid.UUID, len(known))
	for _, a := range known {
		index[fold.String(strings.TrimSpace(a.Name))] = a.ID
	}

	linked := make(map[uuid.UUID]bool)
	for _, name := range names {
		id, ok := index[fold.String(name)]
		if !ok || linked[id] {
			continue
		}
		if err := repo.InsertPropertyAmenity(ctx, propertyID, id); err != nil {
			return len(linked), fmt.Errorf("link amenity %q: %w", name, err)
		}
		linked[id] = true
	}

	return len(linked), nil
}
