package models

import (
	"time"

	"github.com/google/uuid"
)

type PropertyStatus string

const (
	PropertyStatusDraft       PropertyStatus = "draft"
	PropertyStatusPublished   PropertyStatus = "published"
	PropertyStatusUnpublished PropertyStatus = "unpublished"
)

// Property is a listing imported from a feed. ReferenceNumber is the
// business key and is unique across all sources.
type Property struct {
	ID              uuid.UUID      `json:"id" db:"id"`
	Source          string         `json:"source" db:"source"`
	ReferenceNumber string         `json:"reference_number" db:"reference_number"`
	Title           string         `json:"title" db:"title"`
	Slug            string         `json:"slug" db:"slug"`
	Description     string         `json:"description" db:"description"`
	Summary         string         `json:"summary" db:"summary"`
	Price           int64          `json:"price" db:"price"`
	Bedrooms        int            `json:"bedrooms" db:"bedrooms"`
	Bathrooms       int            `json:"bathrooms" db:"bathrooms"`
	Size            *float64       `json:"size,omitempty" db:"size"`
	PlotSize        *float64       `json:"plot_size,omitempty" db:"plot_size"`
	AgentID         *uuid.UUID     `json:"agent_id,omitempty" db:"agent_id"`
	CommunityID     *uuid.UUID     `json:"community_id,omitempty" db:"community_id"`
	SubCommunity    string         `json:"sub_community" db:"sub_community"`
	CityID          *uuid.UUID     `json:"city_id,omitempty" db:"city_id"`
	OfferingTypeID  *uuid.UUID     `json:"offering_type_id,omitempty" db:"offering_type_id"`
	PropertyTypeID  *uuid.UUID     `json:"property_type_id,omitempty" db:"property_type_id"`
	PermitNumber    string         `json:"permit_number" db:"permit_number"`
	AmenitiesRaw    string         `json:"amenities_raw" db:"amenities_raw"`
	LastUpdated     time.Time      `json:"last_updated" db:"last_updated"`
	IsLuxe          bool           `json:"is_luxe" db:"is_luxe"`
	Status          PropertyStatus `json:"status" db:"status"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

// PropertyRef is the slice of a property the cleanup pass needs.
type PropertyRef struct {
	ID              uuid.UUID `json:"id" db:"id"`
	ReferenceNumber string    `json:"reference_number" db:"reference_number"`
	Slug            string    `json:"slug" db:"slug"`
}

type PropertyImage struct {
	ID         uuid.UUID `json:"id" db:"id"`
	PropertyID uuid.UUID `json:"property_id" db:"property_id"`
	URL        string    `json:"url" db:"url"`
	StorageKey string    `json:"storage_key" db:"storage_key"`
	SourceURL  string    `json:"source_url" db:"source_url"`
	Order      int       `json:"order" db:"sort_order"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type Amenity struct {
	ID   uuid.UUID `json:"id" db:"id"`
	Name string    `json:"name" db:"name"`
}
