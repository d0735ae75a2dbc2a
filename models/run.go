package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ImportJob is the audit record of one import run.
type ImportJob struct {
	ID               uuid.UUID        `json:"id" db:"id"`
	FeedID           string           `json:"feed_id" db:"feed_id"`
	FeedURL          string           `json:"feed_url" db:"feed_url"`
	Status           JobStatus        `json:"status" db:"status"`
	PropertyCount    int              `json:"property_count" db:"property_count"`
	ImportedCount    int              `json:"imported_count" db:"imported_count"`
	UpdatedCount     int              `json:"updated_count" db:"updated_count"`
	SkippedCount     int              `json:"skipped_count" db:"skipped_count"`
	FailedCount      int              `json:"failed_count" db:"failed_count"`
	DeletedCount     int              `json:"deleted_count" db:"deleted_count"`
	ImagesUploaded   int              `json:"images_uploaded" db:"images_uploaded"`
	ImagesFailed     int              `json:"images_failed" db:"images_failed"`
	FailedProperties []FailedProperty `json:"failed_properties" db:"failed_properties"`
	Stats            json.RawMessage  `json:"stats,omitempty" db:"stats"`
	ErrorMessage     string           `json:"error_message,omitempty" db:"error_message"`
	StartedAt        *time.Time       `json:"started_at,omitempty" db:"started_at"`
	FinishedAt       *time.Time       `json:"finished_at,omitempty" db:"finished_at"`
	DurationMS       int64            `json:"duration_ms" db:"duration_ms"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
}

type FailedProperty struct {
	ReferenceNumber string   `json:"reference_number"`
	Errors          []string `json:"errors"`
}
