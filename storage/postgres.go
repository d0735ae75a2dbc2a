package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"feedsync/models"
)

//go:embed schema/postgres.sql
var postgresSchema string

// pgxQuerier is satisfied by both the pool and a transaction.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	pool *pgxpool.Pool
	db   pgxQuerier
	inTx bool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool, db: pool}, nil
}

func (s *PostgresStore) Close() error {
	if !s.inTx {
		s.pool.Close()
	}
	return nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Repository) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&PostgresStore{pool: s.pool, db: tx, inTx: true}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// =============================================================================
// Properties
// =============================================================================

const propertyColumns = `
	id, source, reference_number, title, slug, description, summary, price,
	bedrooms, bathrooms, size, plot_size, agent_id, community_id, sub_community,
	city_id, offering_type_id, property_type_id, permit_number, amenities_raw,
	last_updated, is_luxe, status, created_at, updated_at`

func (s *PostgresStore) GetPropertyByReference(ctx context.Context, reference string) (*models.Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties WHERE reference_number = $1`

	var p models.Property
	err := s.db.QueryRow(ctx, query, reference).Scan(
		&p.ID, &p.Source, &p.ReferenceNumber, &p.Title, &p.Slug, &p.Description, &p.Summary, &p.Price,
		&p.Bedrooms, &p.Bathrooms, &p.Size, &p.PlotSize, &p.AgentID, &p.CommunityID, &p.SubCommunity,
		&p.CityID, &p.OfferingTypeID, &p.PropertyTypeID, &p.PermitNumber, &p.AmenitiesRaw,
		&p.LastUpdated, &p.IsLuxe, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) InsertProperty(ctx context.Context, p *models.Property) error {
	query := `
		INSERT INTO properties (` + propertyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25)`

	_, err := s.db.Exec(ctx, query,
		p.ID, p.Source, p.ReferenceNumber, p.Title, p.Slug, p.Description, p.Summary, p.Price,
		p.Bedrooms, p.Bathrooms, p.Size, p.PlotSize, p.AgentID, p.CommunityID, p.SubCommunity,
		p.CityID, p.OfferingTypeID, p.PropertyTypeID, p.PermitNumber, p.AmenitiesRaw,
		p.LastUpdated, p.IsLuxe, p.Status, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert property %s: %w", p.ReferenceNumber, err)
	}
	return nil
}

func (s *PostgresStore) UpdateProperty(ctx context.Context, p *models.Property) error {
	query := `
		UPDATE properties SET
			title = $2, slug = $3, description = $4, summary = $5, price = $6,
			bedrooms = $7, bathrooms = $8, size = $9, plot_size = $10, agent_id = $11,
			community_id = $12, sub_community = $13, city_id = $14, offering_type_id = $15,
			property_type_id = $16, permit_number = $17, amenities_raw = $18,
			last_updated = $19, is_luxe = $20, status = $21, updated_at = $22
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, query,
		p.ID, p.Title, p.Slug, p.Description, p.Summary, p.Price,
		p.Bedrooms, p.Bathrooms, p.Size, p.PlotSize, p.AgentID,
		p.CommunityID, p.SubCommunity, p.CityID, p.OfferingTypeID,
		p.PropertyTypeID, p.PermitNumber, p.AmenitiesRaw,
		p.LastUpdated, p.IsLuxe, p.Status, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update property %s: %w", p.ReferenceNumber, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update property %s: not found", p.ReferenceNumber)
	}
	return nil
}

func (s *PostgresStore) DeleteProperty(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM properties WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) ListPropertyRefs(ctx context.Context, source string) ([]models.PropertyRef, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, reference_number, slug FROM properties
		WHERE source = $1 ORDER BY reference_number`, source)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []models.PropertyRef
	for rows.Next() {
		var r models.PropertyRef
		if err := rows.Scan(&r.ID, &r.ReferenceNumber, &r.Slug); err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

func (s *PostgresStore) CountProperties(ctx context.Context, source string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM properties WHERE source = $1`, source).Scan(&n)
	return n, err
}

// =============================================================================
// Lookups
// =============================================================================

func (s *PostgresStore) FindOrCreateAgent(ctx context.Context, a *models.Agent) (uuid.UUID, error) {
	var (
		id  uuid.UUID
		err error
	)
	if a.Email != "" {
		err = s.db.QueryRow(ctx, `SELECT id FROM agents WHERE lower(email) = lower($1::text) LIMIT 1`, a.Email).Scan(&id)
	} else {
		err = s.db.QueryRow(ctx, `SELECT id FROM agents WHERE email = '' AND lower(name) = lower($1::text) LIMIT 1`, a.Name).Scan(&id)
	}

	switch {
	case err == nil:
		_, err = s.db.Exec(ctx, `
			UPDATE agents SET
				name = COALESCE(NULLIF($2::text, ''), name),
				phone = COALESCE(NULLIF($3::text, ''), phone)
			WHERE id = $1`, id, a.Name, a.Phone)
		if err != nil {
			return uuid.Nil, fmt.Errorf("update agent: %w", err)
		}
		return id, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return uuid.Nil, fmt.Errorf("find agent: %w", err)
	}

	id = uuid.New()
	_, err = s.db.Exec(ctx, `
		INSERT INTO agents (id, name, email, phone, created_at)
		VALUES ($1, $2, $3, $4, NOW())`, id, a.Name, a.Email, a.Phone)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert agent: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) FindOrCreateLookup(ctx context.Context, kind models.LookupKind, name string) (uuid.UUID, error) {
	table, err := lookupTable(kind)
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err = s.db.QueryRow(ctx, `
		INSERT INTO `+table+` (id, name, created_at) VALUES ($1, $2, NOW())
		ON CONFLICT ((lower(name))) DO NOTHING
		RETURNING id`, uuid.New(), name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("insert %s: %w", kind, err)
	}

	err = s.db.QueryRow(ctx, `SELECT id FROM `+table+` WHERE lower(name) = lower($1::text)`, name).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("find %s: %w", kind, err)
	}
	return id, nil
}

// =============================================================================
// Images
// =============================================================================

func (s *PostgresStore) ListPropertyImages(ctx context.Context, propertyID uuid.UUID) ([]models.PropertyImage, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, property_id, url, storage_key, source_url, sort_order, created_at
		FROM property_images WHERE property_id = $1 ORDER BY sort_order`, propertyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []models.PropertyImage
	for rows.Next() {
		var img models.PropertyImage
		if err := rows.Scan(&img.ID, &img.PropertyID, &img.URL, &img.StorageKey, &img.SourceURL, &img.Order, &img.CreatedAt); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (s *PostgresStore) InsertPropertyImage(ctx context.Context, img *models.PropertyImage) error {
	if img.ID == uuid.Nil {
		img.ID = uuid.New()
	}
	if img.CreatedAt.IsZero() {
		img.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO property_images (id, property_id, url, storage_key, source_url, sort_order, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		img.ID, img.PropertyID, img.URL, img.StorageKey, img.SourceURL, img.Order, img.CreatedAt)
	return err
}

func (s *PostgresStore) DeletePropertyImages(ctx context.Context, propertyID uuid.UUID) ([]models.PropertyImage, error) {
	images, err := s.ListPropertyImages(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM property_images WHERE property_id = $1`, propertyID); err != nil {
		return nil, err
	}
	return images, nil
}

// =============================================================================
// Amenities
// =============================================================================

func (s *PostgresStore) ListAmenities(ctx context.Context) ([]models.Amenity, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name FROM amenities ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAmenities(rows)
}

func (s *PostgresStore) ListPropertyAmenities(ctx context.Context, propertyID uuid.UUID) ([]models.Amenity, error) {
	rows, err := s.db.Query(ctx, `
		SELECT a.id, a.name FROM amenities a
		JOIN property_amenities pa ON pa.amenity_id = a.id
		WHERE pa.property_id = $1 ORDER BY a.name`, propertyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAmenities(rows)
}

func scanAmenities(rows pgx.Rows) ([]models.Amenity, error) {
	var amenities []models.Amenity
	for rows.Next() {
		var a models.Amenity
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, err
		}
		amenities = append(amenities, a)
	}
	return amenities, rows.Err()
}

func (s *PostgresStore) InsertPropertyAmenity(ctx context.Context, propertyID, amenityID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO property_amenities (property_id, amenity_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, propertyID, amenityID)
	return err
}

func (s *PostgresStore) DeletePropertyAmenities(ctx context.Context, propertyID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM property_amenities WHERE property_id = $1`, propertyID)
	return err
}

// =============================================================================
// Redirects
// =============================================================================

func (s *PostgresStore) UpsertRedirect(ctx context.Context, r *models.Redirect) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return s.db.QueryRow(ctx, `
		INSERT INTO redirects (id, from_path, to_path, status_code, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (from_path) DO UPDATE SET
			to_path = EXCLUDED.to_path,
			status_code = EXCLUDED.status_code
		RETURNING id, created_at`,
		r.ID, r.FromPath, r.ToPath, r.StatusCode,
	).Scan(&r.ID, &r.CreatedAt)
}

func (s *PostgresStore) GetRedirect(ctx context.Context, fromPath string) (*models.Redirect, error) {
	var r models.Redirect
	err := s.db.QueryRow(ctx, `
		SELECT id, from_path, to_path, status_code, created_at
		FROM redirects WHERE from_path = $1`, fromPath,
	).Scan(&r.ID, &r.FromPath, &r.ToPath, &r.StatusCode, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) DeleteRedirect(ctx context.Context, fromPath string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM redirects WHERE from_path = $1`, fromPath)
	return err
}

// =============================================================================
// Import Jobs
// =============================================================================

const importJobColumns = `
	id, feed_id, feed_url, status, property_count, imported_count, updated_count,
	skipped_count, failed_count, deleted_count, images_uploaded, images_failed,
	failed_properties, stats, error_message, started_at, finished_at, duration_ms, created_at`

func (s *PostgresStore) CreateImportJob(ctx context.Context, j *models.ImportJob) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	failed, err := marshalFailed(j.FailedProperties)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO import_jobs (`+importJobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		j.ID, j.FeedID, j.FeedURL, j.Status, j.PropertyCount, j.ImportedCount, j.UpdatedCount,
		j.SkippedCount, j.FailedCount, j.DeletedCount, j.ImagesUploaded, j.ImagesFailed,
		failed, nullableJSON(j.Stats), j.ErrorMessage, j.StartedAt, j.FinishedAt, j.DurationMS, j.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert import job: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateImportJob(ctx context.Context, j *models.ImportJob) error {
	failed, err := marshalFailed(j.FailedProperties)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `
		UPDATE import_jobs SET
			status = $2, property_count = $3, imported_count = $4, updated_count = $5,
			skipped_count = $6, failed_count = $7, deleted_count = $8, images_uploaded = $9,
			images_failed = $10, failed_properties = $11, stats = $12, error_message = $13,
			started_at = $14, finished_at = $15, duration_ms = $16
		WHERE id = $1`,
		j.ID, j.Status, j.PropertyCount, j.ImportedCount, j.UpdatedCount,
		j.SkippedCount, j.FailedCount, j.DeletedCount, j.ImagesUploaded,
		j.ImagesFailed, failed, nullableJSON(j.Stats), j.ErrorMessage,
		j.StartedAt, j.FinishedAt, j.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("update import job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetImportJob(ctx context.Context, id uuid.UUID) (*models.ImportJob, error) {
	row := s.db.QueryRow(ctx, `SELECT `+importJobColumns+` FROM import_jobs WHERE id = $1`, id)
	j, err := scanPgImportJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

func (s *PostgresStore) ListImportJobs(ctx context.Context, limit int) ([]models.ImportJob, error) {
	rows, err := s.db.Query(ctx, `SELECT `+importJobColumns+` FROM import_jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.ImportJob
	for rows.Next() {
		j, err := scanPgImportJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func scanPgImportJob(row pgx.Row) (*models.ImportJob, error) {
	var (
		j      models.ImportJob
		failed []byte
		stats  []byte
	)
	err := row.Scan(
		&j.ID, &j.FeedID, &j.FeedURL, &j.Status, &j.PropertyCount, &j.ImportedCount, &j.UpdatedCount,
		&j.SkippedCount, &j.FailedCount, &j.DeletedCount, &j.ImagesUploaded, &j.ImagesFailed,
		&failed, &stats, &j.ErrorMessage, &j.StartedAt, &j.FinishedAt, &j.DurationMS, &j.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalFailed(failed, &j); err != nil {
		return nil, err
	}
	if len(stats) > 0 {
		j.Stats = json.RawMessage(stats)
	}
	return &j, nil
}
