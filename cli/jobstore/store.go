// Package jobstore keeps a local SQLite ledger of jobs submitted from the CLI,
// so asynchronous jobs can be listed and resumed after the process exits.
package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/petal-labs/onething/core"
)

// Kind is the media type a job produces.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// ErrNotFound is returned when a job id is not in the ledger.
var ErrNotFound = errors.New("jobstore: job not found")

// Record is one ledger row.
type Record struct {
	ID        string      `json:"job_id"`
	Kind      Kind        `json:"kind"`
	Model     string      `json:"model,omitempty"`
	Prompt    string      `json:"prompt,omitempty"`
	Status    core.Status `json:"status"`
	Progress  float64     `json:"progress"`
	URLs      []string    `json:"urls,omitempty"`
	Error     string      `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Update carries the fields refreshed after a status fetch.
type Update struct {
	Status   core.Status
	Progress float64
	URLs     []string
	Error    string
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Kind   Kind
	Status core.Status
	Limit  int
}

// Store manages the ledger database.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open creates or opens the ledger at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode=WAL",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Save inserts rec, or replaces the mutable fields of an existing row with
// the same id. CreatedAt is set on first insert only.
func (s *Store) Save(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return errors.New("jobstore: record id is required")
	}
	urls, err := encodeURLs(rec.URLs)
	if err != nil {
		return err
	}
	now := s.now()
	created := rec.CreatedAt
	if created.IsZero() {
		created = now
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO jobs (id, kind, model, prompt, status, progress, urls, error, request_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    status = excluded.status,
    progress = excluded.progress,
    urls = excluded.urls,
    error = excluded.error,
    request_id = CASE WHEN excluded.request_id = '' THEN jobs.request_id ELSE excluded.request_id END,
    updated_at = excluded.updated_at`,
		rec.ID, string(rec.Kind), rec.Model, rec.Prompt, string(rec.Status), rec.Progress,
		urls, rec.Error, rec.RequestID, created.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", rec.ID, err)
	}
	return nil
}

// UpdateStatus refreshes a job's progress fields.
func (s *Store) UpdateStatus(ctx context.Context, id string, u Update) error {
	urls, err := encodeURLs(u.URLs)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, progress = ?, urls = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(u.Status), u.Progress, urls, u.Error, s.now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

const selectColumns = `SELECT id, kind, model, prompt, status, progress, urls, error, request_id, created_at, updated_at FROM jobs`

// Get returns the record for id.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// List returns records newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}

	query := selectColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		rec              Record
		kind, status     string
		urls             string
		created, updated int64
	)
	if err := scanner.Scan(
		&rec.ID, &kind, &rec.Model, &rec.Prompt, &status, &rec.Progress,
		&urls, &rec.Error, &rec.RequestID, &created, &updated,
	); err != nil {
		return nil, err
	}
	rec.Kind = Kind(kind)
	rec.Status = core.Status(status)
	rec.CreatedAt = time.UnixMilli(created)
	rec.UpdatedAt = time.UnixMilli(updated)
	if err := json.Unmarshal([]byte(urls), &rec.URLs); err != nil {
		return nil, fmt.Errorf("decode urls for job %s: %w", rec.ID, err)
	}
	return &rec, nil
}

func encodeURLs(urls []string) (string, error) {
	if len(urls) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(urls)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
