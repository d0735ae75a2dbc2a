package models

import (
	"time"

	"github.com/google/uuid"
)

// LookupKind names one of the find-or-create reference tables.
type LookupKind string

const (
	LookupCommunity    LookupKind = "community"
	LookupCity         LookupKind = "city"
	LookupOfferingType LookupKind = "offering_type"
	LookupPropertyType LookupKind = "property_type"
	LookupAmenity      LookupKind = "amenity"
)

// Table returns the backing table for a lookup kind, or "" if unknown.
func (k LookupKind) Table() string {
	switch k {
	case LookupCommunity:
		return "communities"
	case LookupCity:
		return "cities"
	case LookupOfferingType:
		return "offering_types"
	case LookupPropertyType:
		return "property_types"
	case LookupAmenity:
		return "amenities"
	}
	return ""
}

type Agent struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Phone     string    `json:"phone" db:"phone"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Redirect maps the public path of a removed listing to a fallback page.
type Redirect struct {
	ID         uuid.UUID `json:"id" db:"id"`
	FromPath   string    `json:"from_path" db:"from_path"`
	ToPath     string    `json:"to_path" db:"to_path"`
	StatusCode int       `json:"status_code" db:"status_code"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
