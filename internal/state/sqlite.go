package state

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite manifest store instance.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// Open opens a connection to the SQLite database.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path)
	} else {
		dsn = ":memory:?_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open manifest database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping manifest database: %w", err)
	}

	s.db = db
	s.path = path
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// InitSchema creates the manifest tables if they do not exist.
func (s *SQLiteStore) InitSchema() error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize manifest schema: %w", err)
	}
	return nil
}

// RecordDownload upserts a completed download.
func (s *SQLiteStore) RecordDownload(d *Download) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	s.logger.Debug("recording download",
		slog.String("corpus", d.Corpus), slog.String("file", d.File))

	_, err := s.db.Exec(`
		INSERT INTO downloads (corpus, file, path, bytes, sha256, completed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(corpus, file) DO UPDATE SET
			path = excluded.path,
			bytes = excluded.bytes,
			sha256 = excluded.sha256,
			completed_at = excluded.completed_at`,
		d.Corpus, d.File, d.Path, d.Bytes, d.SHA256, d.CompletedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record download: %w", err)
	}
	return nil
}

// ListDownloads returns all recorded downloads ordered by corpus and
// file name.
func (s *SQLiteStore) ListDownloads() ([]*Download, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(`
		SELECT corpus, file, path, bytes, sha256, completed_at
		FROM downloads
		ORDER BY corpus, file`)
	if err != nil {
		return nil, fmt.Errorf("failed to list downloads: %w", err)
	}
	defer rows.Close()

	var out []*Download
	for rows.Next() {
		var d Download
		if err := rows.Scan(&d.Corpus, &d.File, &d.Path, &d.Bytes, &d.SHA256, &d.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan download: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// CreateRun inserts a new run in the running state.
func (s *SQLiteStore) CreateRun(kind RunKind, corpus string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &Run{
		ID:        uuid.New().String(),
		Kind:      kind,
		Corpus:    corpus,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	s.logger.Debug("creating run",
		slog.String("id", run.ID), slog.String("kind", string(kind)), slog.String("corpus", corpus))

	_, err := s.db.Exec(`
		INSERT INTO runs (id, kind, corpus, status, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		run.ID, string(run.Kind), run.Corpus, string(run.Status), run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// CompleteRun marks a run finished with the given status.
func (s *SQLiteStore) CompleteRun(id string, status RunStatus, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	res, err := s.db.Exec(`
		UPDATE runs SET status = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		string(status), errMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. limit <= 0
// means no limit.
func (s *SQLiteStore) ListRuns(limit int) ([]*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = -1 // SQLite treats negative LIMIT as unlimited
	}

	rows, err := s.db.Query(`
		SELECT id, kind, corpus, status, error, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		var r Run
		var kind, status string
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &kind, &r.Corpus, &status, &r.Error, &r.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Kind = RunKind(kind)
		r.Status = RunStatus(status)
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
