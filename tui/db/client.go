package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "modernc.org/sqlite"
)

// Client reads the importer's tables. It talks to Postgres when a URL is
// given and to the daemon's SQLite file otherwise.
type Client struct {
	pg     *pgxpool.Pool
	sqlite *sql.DB
	ctx    context.Context
}

type Overview struct {
	Properties int
	Luxe       int
	Images     int
	Redirects  int
	Jobs       int
}

type FeedStats struct {
	FeedID        string
	LastStatus    string
	LastRunAt     *time.Time
	Properties    int
	Imported      int
	Updated       int
	Failed        int
	Deleted       int
	LastDuration  time.Duration
	LastErrorText string
}

type FailedProperty struct {
	ReferenceNumber string   `json:"reference_number"`
	Errors          []string `json:"errors"`
}

type ImportJob struct {
	ID             string
	FeedID         string
	FeedURL        string
	Status         string
	CreatedAt      time.Time
	FinishedAt     *time.Time
	PropertyCount  int
	Imported       int
	Updated        int
	Skipped        int
	Failed         int
	Deleted        int
	ImagesUploaded int
	ImagesFailed   int
	Duration       time.Duration
	ErrorMessage   string
	FailedProps    []FailedProperty
}

func New(postgresURL, sqlitePath string) (*Client, error) {
	ctx := context.Background()

	if postgresURL != "" {
		pgPool, err := pgxpool.New(ctx, postgresURL)
		if err != nil {
			return nil, err
		}
		return &Client{pg: pgPool, ctx: ctx}, nil
	}

	sqliteDB, err := sql.Open("sqlite", sqlitePath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	return &Client{sqlite: sqliteDB, ctx: ctx}, nil
}

func (c *Client) Close() error {
	if c.pg != nil {
		c.pg.Close()
		return nil
	}
	return c.sqlite.Close()
}

// Backend names the database in use, for the status bar.
func (c *Client) Backend() string {
	if c.pg != nil {
		return "postgres"
	}
	return "sqlite"
}

type rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// query runs a statement written with ? placeholders against whichever
// backend is open. The returned func releases the rows.
func (c *Client) query(q string, args ...any) (rows, func(), error) {
	if c.pg != nil {
		r, err := c.pg.Query(c.ctx, rebind(q), args...)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	}
	r, err := c.sqlite.QueryContext(c.ctx, q, args...)
	if err != nil {
		return nil, nil, err
	}
	return r, func() { r.Close() }, nil
}

func (c *Client) queryRow(q string, args []any, dest ...any) error {
	if c.pg != nil {
		return c.pg.QueryRow(c.ctx, rebind(q), args...).Scan(dest...)
	}
	return c.sqlite.QueryRowContext(c.ctx, q, args...).Scan(dest...)
}

func rebind(q string) string {
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (c *Client) GetOverview() (Overview, error) {
	var o Overview
	err := c.queryRow(`
		SELECT
			(SELECT COUNT(*) FROM properties),
			(SELECT COUNT(*) FROM properties WHERE is_luxe),
			(SELECT COUNT(*) FROM property_images),
			(SELECT COUNT(*) FROM redirects),
			(SELECT COUNT(*) FROM import_jobs)
	`, nil, &o.Properties, &o.Luxe, &o.Images, &o.Redirects, &o.Jobs)
	return o, err
}

func (c *Client) GetFeedStats() ([]FeedStats, error) {
	r, done, err := c.query(`
		SELECT
			j.feed_id,
			j.status,
			j.started_at,
			(SELECT COUNT(*) FROM properties p WHERE p.source = j.feed_id),
			j.imported_count,
			j.updated_count,
			j.failed_count,
			j.deleted_count,
			j.duration_ms,
			j.error_message
		FROM import_jobs j
		WHERE j.created_at = (SELECT MAX(created_at) FROM import_jobs WHERE feed_id = j.feed_id)
		ORDER BY j.feed_id
	`)
	if err != nil {
		return nil, err
	}
	defer done()

	var stats []FeedStats
	for r.Next() {
		var (
			s          FeedStats
			started    timeValue
			durationMS int64
		)
		err := r.Scan(&s.FeedID, &s.LastStatus, &started, &s.Properties,
			&s.Imported, &s.Updated, &s.Failed, &s.Deleted, &durationMS, &s.LastErrorText)
		if err != nil {
			return nil, err
		}
		s.LastRunAt = started.ptr()
		s.LastDuration = time.Duration(durationMS) * time.Millisecond
		stats = append(stats, s)
	}
	return stats, r.Err()
}

func (c *Client) GetRecentJobs(limit int) ([]ImportJob, error) {
	r, done, err := c.query(`
		SELECT
			CAST(id AS TEXT), feed_id, feed_url, status, created_at, finished_at,
			property_count, imported_count, updated_count, skipped_count,
			failed_count, deleted_count, images_uploaded, images_failed,
			duration_ms, error_message,
			COALESCE(CAST(failed_properties AS TEXT), '[]')
		FROM import_jobs
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer done()

	var jobs []ImportJob
	for r.Next() {
		var (
			j          ImportJob
			created    timeValue
			finished   timeValue
			durationMS int64
			failed     string
		)
		err := r.Scan(&j.ID, &j.FeedID, &j.FeedURL, &j.Status, &created, &finished,
			&j.PropertyCount, &j.Imported, &j.Updated, &j.Skipped,
			&j.Failed, &j.Deleted, &j.ImagesUploaded, &j.ImagesFailed,
			&durationMS, &j.ErrorMessage, &failed)
		if err != nil {
			return nil, err
		}
		j.CreatedAt = created.t
		j.FinishedAt = finished.ptr()
		j.Duration = time.Duration(durationMS) * time.Millisecond
		if err := json.Unmarshal([]byte(failed), &j.FailedProps); err != nil {
			return nil, fmt.Errorf("job %s: failed properties: %w", j.ID, err)
		}
		jobs = append(jobs, j)
	}
	return jobs, r.Err()
}

// timeValue scans timestamps from either backend. SQLite hands them back
// as text.
type timeValue struct {
	t     time.Time
	valid bool
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
}

func (v *timeValue) Scan(src any) error {
	switch s := src.(type) {
	case nil:
		v.valid = false
		return nil
	case time.Time:
		v.t, v.valid = s, true
		return nil
	case []byte:
		return v.parse(string(s))
	case string:
		return v.parse(s)
	}
	return fmt.Errorf("unsupported time value %T", src)
}

func (v *timeValue) parse(s string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			v.t, v.valid = t, true
			return nil
		}
	}
	return fmt.Errorf("unrecognised time %q", s)
}

func (v timeValue) ptr() *time.Time {
	if !v.valid {
		return nil
	}
	t := v.t
	return &t
}
