package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Record is an archived report.
type Record struct {
	ID            string    `json:"id" yaml:"id"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
	TargetSeconds float64   `json:"target_seconds" yaml:"target_seconds"`
	ActualSeconds float64   `json:"actual_seconds" yaml:"actual_seconds"`
	Disfluencies  int       `json:"disfluencies" yaml:"disfluencies"`
	Path          string    `json:"path,omitempty" yaml:"path,omitempty"`
	Text          string    `json:"text,omitempty" yaml:"text,omitempty"`
}

// SQLiteStore archives reports in SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// OpenSQLite opens (or creates) the archive at dbPath.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		target_seconds REAL NOT NULL,
		actual_seconds REAL NOT NULL,
		disfluencies INTEGER NOT NULL DEFAULT 0,
		path TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save archives r with its rendered text and the file it was saved to.
func (s *SQLiteStore) Save(ctx context.Context, r Report, path string) error {
	if r.ID == "" {
		return errors.New("report has no id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (id, created_at, target_seconds, actual_seconds, disfluencies, path, body)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.CreatedAt.UTC(), r.TargetSeconds, r.ActualSeconds, r.Disfluencies, path, r.Text())
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

// Get returns the archived report with the given id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec Record
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, target_seconds, actual_seconds, disfluencies, path, body
		FROM reports WHERE id = ?
	`, id).Scan(&rec.ID, &rec.CreatedAt, &rec.TargetSeconds, &rec.ActualSeconds, &rec.Disfluencies, &rec.Path, &rec.Text)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to query report: %w", err)
	}
	return rec, nil
}

// List returns archived reports newest first, without their text.
// limit <= 0 returns all.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, target_seconds, actual_seconds, disfluencies, path
		FROM reports ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.CreatedAt, &rec.TargetSeconds, &rec.ActualSeconds, &rec.Disfluencies, &rec.Path); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
