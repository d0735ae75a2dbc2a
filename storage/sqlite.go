package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"feedsync/models"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type SQLiteStore struct {
	db   *sql.DB
	q    sqlQuerier
	inTx bool
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db, q: db}
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s.inTx {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx Repository) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&SQLiteStore{db: s.db, q: tx, inTx: true}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Properties

func (s *SQLiteStore) GetPropertyByReference(ctx context.Context, reference string) (*models.Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties WHERE reference_number = ?`

	var p models.Property
	err := s.q.QueryRowContext(ctx, query, reference).Scan(
		&p.ID, &p.Source, &p.ReferenceNumber, &p.Title, &p.Slug, &p.Description, &p.Summary, &p.Price,
		&p.Bedrooms, &p.Bathrooms, &p.Size, &p.PlotSize, &p.AgentID, &p.CommunityID, &p.SubCommunity,
		&p.CityID, &p.OfferingTypeID, &p.PropertyTypeID, &p.PermitNumber, &p.AmenitiesRaw,
		&p.LastUpdated, &p.IsLuxe, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) InsertProperty(ctx context.Context, p *models.Property) error {
	query := `INSERT INTO properties (` + propertyColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.q.ExecContext(ctx, query,
		p.ID, p.Source, p.ReferenceNumber, p.Title, p.Slug, p.Description, p.Summary, p.Price,
		p.Bedrooms, p.Bathrooms, p.Size, p.PlotSize, p.AgentID, p.CommunityID, p.SubCommunity,
		p.CityID, p.OfferingTypeID, p.PropertyTypeID, p.PermitNumber, p.AmenitiesRaw,
		p.LastUpdated.UTC(), p.IsLuxe, string(p.Status), p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert property %s: %w", p.ReferenceNumber, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateProperty(ctx context.Context, p *models.Property) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE properties SET
			title = ?, slug = ?, description = ?, summary = ?, price = ?,
			bedrooms = ?, bathrooms = ?, size = ?, plot_size = ?, agent_id = ?,
			community_id = ?, sub_community = ?, city_id = ?, offering_type_id = ?,
			property_type_id = ?, permit_number = ?, amenities_raw = ?,
			last_updated = ?, is_luxe = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		p.Title, p.Slug, p.Description, p.Summary, p.Price,
		p.Bedrooms, p.Bathrooms, p.Size, p.PlotSize, p.AgentID,
		p.CommunityID, p.SubCommunity, p.CityID, p.OfferingTypeID,
		p.PropertyTypeID, p.PermitNumber, p.AmenitiesRaw,
		p.LastUpdated.UTC(), p.IsLuxe, string(p.Status), p.UpdatedAt.UTC(),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("update property %s: %w", p.ReferenceNumber, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update property %s: not found", p.ReferenceNumber)
	}
	return nil
}

func (s *SQLiteStore) DeleteProperty(ctx context.Context, id uuid.UUID) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM properties WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) ListPropertyRefs(ctx context.Context, source string) ([]models.PropertyRef, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, reference_number, slug FROM properties
		WHERE source = ? ORDER BY reference_number`, source)
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

func (s *SQLiteStore) CountProperties(ctx context.Context, source string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM properties WHERE source = ?`, source).Scan(&n)
	return n, err
}

// Lookups

func (s *SQLiteStore) FindOrCreateAgent(ctx context.Context, a *models.Agent) (uuid.UUID, error) {
	var (
		id  uuid.UUID
		err error
	)
	if a.Email != "" {
		err = s.q.QueryRowContext(ctx, `SELECT id FROM agents WHERE lower(email) = lower(?) LIMIT 1`, a.Email).Scan(&id)
	} else {
		err = s.q.QueryRowContext(ctx, `SELECT id FROM agents WHERE email = '' AND lower(name) = lower(?) LIMIT 1`, a.Name).Scan(&id)
	}

	switch {
	case err == nil:
		_, err = s.q.ExecContext(ctx, `
			UPDATE agents SET
				name = COALESCE(NULLIF(?, ''), name),
				phone = COALESCE(NULLIF(?, ''), phone)
			WHERE id = ?`, a.Name, a.Phone, id)
		if err != nil {
			return uuid.Nil, fmt.Errorf("update agent: %w", err)
		}
		return id, nil
	case !errors.Is(err, sql.ErrNoRows):
		return uuid.Nil, fmt.Errorf("find agent: %w", err)
	}

	id = uuid.New()
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO agents (id, name, email, phone, created_at)
		VALUES (?, ?, ?, ?, ?)`, id, a.Name, a.Email, a.Phone, time.Now().UTC())
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert agent: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) FindOrCreateLookup(ctx context.Context, kind models.LookupKind, name string) (uuid.UUID, error) {
	table, err := lookupTable(kind)
	if err != nil {
		return uuid.Nil, err
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO `+table+` (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING`, uuid.New(), name, time.Now().UTC())
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert %s: %w", kind, err)
	}

	var id uuid.UUID
	err = s.q.QueryRowContext(ctx, `SELECT id FROM `+table+` WHERE lower(name) = lower(?)`, name).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("find %s: %w", kind, err)
	}
	return id, nil
}

// Images

func (s *SQLiteStore) ListPropertyImages(ctx context.Context, propertyID uuid.UUID) ([]models.PropertyImage, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, property_id, url, storage_key, source_url, sort_order, created_at
		FROM property_images WHERE property_id = ? ORDER BY sort_order`, propertyID)
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

func (s *SQLiteStore) InsertPropertyImage(ctx context.Context, img *models.PropertyImage) error {
	if img.ID == uuid.Nil {
		img.ID = uuid.New()
	}
	if img.CreatedAt.IsZero() {
		img.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO property_images (id, property_id, url, storage_key, source_url, sort_order, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		img.ID, img.PropertyID, img.URL, img.StorageKey, img.SourceURL, img.Order, img.CreatedAt)
	return err
}

func (s *SQLiteStore) DeletePropertyImages(ctx context.Context, propertyID uuid.UUID) ([]models.PropertyImage, error) {
	images, err := s.ListPropertyImages(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM property_images WHERE property_id = ?`, propertyID); err != nil {
		return nil, err
	}
	return images, nil
}

// Amenities

func (s *SQLiteStore) ListAmenities(ctx context.Context) ([]models.Amenity, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, name FROM amenities ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLAmenities(rows)
}

func (s *SQLiteStore) ListPropertyAmenities(ctx context.Context, propertyID uuid.UUID) ([]models.Amenity, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT a.id, a.name FROM amenities a
		JOIN property_amenities pa ON pa.amenity_id = a.id
		WHERE pa.property_id = ? ORDER BY a.name`, propertyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLAmenities(rows)
}

func scanSQLAmenities(rows *sql.Rows) ([]models.Amenity, error) {
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

func (s *SQLiteStore) InsertPropertyAmenity(ctx context.Context, propertyID, amenityID uuid.UUID) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT OR IGNORE INTO property_amenities (property_id, amenity_id) VALUES (?, ?)`,
		propertyID, amenityID)
	return err
}

func (s *SQLiteStore) DeletePropertyAmenities(ctx context.Context, propertyID uuid.UUID) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM property_amenities WHERE property_id = ?`, propertyID)
	return err
}

// Redirects

func (s *SQLiteStore) UpsertRedirect(ctx context.Context, r *models.Redirect) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO redirects (id, from_path, to_path, status_code, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (from_path) DO UPDATE SET
			to_path = excluded.to_path,
			status_code = excluded.status_code`,
		r.ID, r.FromPath, r.ToPath, r.StatusCode, time.Now().UTC())
	if err != nil {
		return err
	}
	return s.q.QueryRowContext(ctx, `SELECT id, created_at FROM redirects WHERE from_path = ?`, r.FromPath).
		Scan(&r.ID, &r.CreatedAt)
}

func (s *SQLiteStore) GetRedirect(ctx context.Context, fromPath string) (*models.Redirect, error) {
	var r models.Redirect
	err := s.q.QueryRowContext(ctx, `
		SELECT id, from_path, to_path, status_code, created_at
		FROM redirects WHERE from_path = ?`, fromPath,
	).Scan(&r.ID, &r.FromPath, &r.ToPath, &r.StatusCode, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteStore) DeleteRedirect(ctx context.Context, fromPath string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM redirects WHERE from_path = ?`, fromPath)
	return err
}

// Import jobs

func (s *SQLiteStore) CreateImportJob(ctx context.Context, j *models.ImportJob) error {
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

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO import_jobs (`+importJobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.FeedID, j.FeedURL, string(j.Status), j.PropertyCount, j.ImportedCount, j.UpdatedCount,
		j.SkippedCount, j.FailedCount, j.DeletedCount, j.ImagesUploaded, j.ImagesFailed,
		string(failed), nullableText(j.Stats), j.ErrorMessage, j.StartedAt, j.FinishedAt, j.DurationMS, j.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert import job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateImportJob(ctx context.Context, j *models.ImportJob) error {
	failed, err := marshalFailed(j.FailedProperties)
	if err != nil {
		return err
	}

	_, err = s.q.ExecContext(ctx, `
		UPDATE import_jobs SET
			status = ?, property_count = ?, imported_count = ?, updated_count = ?,
			skipped_count = ?, failed_count = ?, deleted_count = ?, images_uploaded = ?,
			images_failed = ?, failed_properties = ?, stats = ?, error_message = ?,
			started_at = ?, finished_at = ?, duration_ms = ?
		WHERE id = ?`,
		string(j.Status), j.PropertyCount, j.ImportedCount, j.UpdatedCount,
		j.SkippedCount, j.FailedCount, j.DeletedCount, j.ImagesUploaded,
		j.ImagesFailed, string(failed), nullableText(j.Stats), j.ErrorMessage,
		j.StartedAt, j.FinishedAt, j.DurationMS,
		j.ID,
	)
	if err != nil {
		return fmt.Errorf("update import job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetImportJob(ctx context.Context, id uuid.UUID) (*models.ImportJob, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+importJobColumns+` FROM import_jobs WHERE id = ?`, id)
	j, err := scanSQLImportJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

func (s *SQLiteStore) ListImportJobs(ctx context.Context, limit int) ([]models.ImportJob, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+importJobColumns+` FROM import_jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.ImportJob
	for rows.Next() {
		j, err := scanSQLImportJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLImportJob(row rowScanner) (*models.ImportJob, error) {
	var (
		j      models.ImportJob
		failed string
		stats  sql.NullString
	)
	err := row.Scan(
		&j.ID, &j.FeedID, &j.FeedURL, &j.Status, &j.PropertyCount, &j.ImportedCount, &j.UpdatedCount,
		&j.SkippedCount, &j.FailedCount, &j.DeletedCount, &j.ImagesUploaded, &j.ImagesFailed,
		&failed, &stats, &j.ErrorMessage, &j.StartedAt, &j.FinishedAt, &j.DurationMS, &j.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalFailed([]byte(failed), &j); err != nil {
		return nil, err
	}
	if s := strings.TrimSpace(stats.String); stats.Valid && s != "" {
		j.Stats = json.RawMessage(s)
	}
	return &j, nil
}

func nullableText(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
