package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	PropertyCreated = "property.created"
	PropertyUpdated = "property.updated"
	PropertyDeleted = "property.deleted"
	ImportFinished  = "import.finished"
)

// Publisher announces listing changes to downstream consumers (search
// indexers, cache purgers). Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
	Close() error
}

type PropertyEvent struct {
	PropertyID      uuid.UUID `json:"property_id"`
	ReferenceNumber string    `json:"reference_number"`
	Source          string    `json:"source"`
	Slug            string    `json:"slug"`
	IsLuxe          bool      `json:"is_luxe"`
	OccurredAt      time.Time `json:"occurred_at"`
}

type ImportEvent struct {
	JobID      uuid.UUID `json:"job_id"`
	FeedID     string    `json:"feed_id"`
	Status     string    `json:"status"`
	Imported   int       `json:"imported"`
	Updated    int       `json:"updated"`
	Failed     int       `json:"failed"`
	Deleted    int       `json:"deleted"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, string, any) error { return nil }
func (Noop) Close() error { return nil }
