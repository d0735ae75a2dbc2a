package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"feedsync/config"
	"feedsync/models"
)

// Repository is the persistence surface of the importer. Implementations
// run InTx callbacks inside one database transaction; the callback's
// repository is bound to that transaction and nested InTx calls join it.
type Repository interface {
	InTx(ctx context.Context, fn func(tx Repository) error) error

	GetPropertyByReference(ctx context.Context, reference string) (*models.Property, error)
	InsertProperty(ctx context.Context, p *models.Property) error
	UpdateProperty(ctx context.Context, p *models.Property) error
	DeleteProperty(ctx context.Context, id uuid.UUID) error
	ListPropertyRefs(ctx context.Context, source string) ([]models.PropertyRef, error)
	CountProperties(ctx context.Context, source string) (int, error)

	FindOrCreateAgent(ctx context.Context, a *models.Agent) (uuid.UUID, error)
	FindOrCreateLookup(ctx context.Context, kind models.LookupKind, name string) (uuid.UUID, error)

	ListPropertyImages(ctx context.Context, propertyID uuid.UUID) ([]models.PropertyImage, error)
	InsertPropertyImage(ctx context.Context, img *models.PropertyImage) error
	DeletePropertyImages(ctx context.Context, propertyID uuid.UUID) ([]models.PropertyImage, error)

	ListAmenities(ctx context.Context) ([]models.Amenity, error)
	ListPropertyAmenities(ctx context.Context, propertyID uuid.UUID) ([]models.Amenity, error)
	InsertPropertyAmenity(ctx context.Context, propertyID, amenityID uuid.UUID) error
	DeletePropertyAmenities(ctx context.Context, propertyID uuid.UUID) error

	UpsertRedirect(ctx context.Context, r *models.Redirect) error
	GetRedirect(ctx context.Context, fromPath string) (*models.Redirect, error)
	DeleteRedirect(ctx context.Context, fromPath string) error

	CreateImportJob(ctx context.Context, j *models.ImportJob) error
	UpdateImportJob(ctx context.Context, j *models.ImportJob) error
	GetImportJob(ctx context.Context, id uuid.UUID) (*models.ImportJob, error)
	ListImportJobs(ctx context.Context, limit int) ([]models.ImportJob, error)
}

// Store is a Repository that owns its connection.
type Store interface {
	Repository
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the configured database driver.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres", "":
		if cfg.URL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for postgres")
		}
		return NewPostgresStore(ctx, cfg.URL)
	case "sqlite", "sqlite3":
		return NewSQLiteStore(cfg.Path)
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

func lookupTable(kind models.LookupKind) (string, error) {
	table := kind.Table()
	if table == "" {
		return "", fmt.Errorf("unknown lookup kind %q", kind)
	}
	return table, nil
}

func marshalFailed(failed []models.FailedProperty) ([]byte, error) {
	if failed == nil {
		failed = []models.FailedProperty{}
	}
	data, err := json.Marshal(failed)
	if err != nil {
		return nil, fmt.Errorf("marshal failed properties: %w", err)
	}
	return data, nil
}

func unmarshalFailed(data []byte, j *models.ImportJob) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &j.FailedProperties); err != nil {
		return fmt.Errorf("decode failed properties: %w", err)
	}
	return nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
