package services

import (
	"encoding/json"

	"feedsync/models"
)

// Stats tracks aggregate statistics for an import run. Each stage
// contributes through Aggregate, AddFailure or AddReap.
type Stats struct {
	PropertyCount    int                     `json:"property_count"`
	Created          int                     `json:"created"`
	Updated          int                     `json:"updated"`
	Skipped          int                     `json:"skipped"`
	Failed           int                     `json:"failed"`
	Deleted          int                     `json:"deleted"`
	Redirects        int                     `json:"redirects"`
	ImagesUploaded   int                     `json:"images_uploaded"`
	ImagesFailed     int                     `json:"images_failed"`
	AmenitiesLinked  int                     `json:"amenities_linked"`
	Duplicates       []Duplicate             `json:"duplicates,omitempty"`
	CleanupSkipped   string                  `json:"cleanup_skipped,omitempty"`
	CleanupErrors    []string                `json:"cleanup_errors,omitempty"`
	FailedProperties []models.FailedProperty `json:"failed_properties,omitempty"`
}

// Aggregate adds a reconcile outcome to the stats
func (s *Stats) Aggregate(o Outcome) {
	switch o.Decision {
	case DecisionInsert:
		s.Created++
	case DecisionUpdate:
		s.Updated++
	case DecisionSkip:
		s.Skipped++
	}
	s.AmenitiesLinked += o.AmenitiesLinked
	s.ImagesUploaded += o.ImagesUploaded
	s.ImagesFailed += o.ImagesFailed
}

// AddFailure records a record that was not imported.
func (s *Stats) AddFailure(reference string, errs ...string) {
	s.Failed++
	s.FailedProperties = append(s.FailedProperties, models.FailedProperty{
		ReferenceNumber: reference,
		Errors:          errs,
	})
}

func (s *Stats) AddReap(r ReapResult) {
	s.Deleted += r.Deleted
	s.Redirects += r.Redirects
	s.CleanupSkipped = r.SkipReason
	s.CleanupErrors = append(s.CleanupErrors, r.Errors...)
}

// ToJSON returns JSON-serializable metadata
func (s *Stats) ToJSON() json.RawMessage {
	data, _ := json.Marshal(s)
	return data
}
