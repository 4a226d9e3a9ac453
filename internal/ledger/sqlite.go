package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"captionflow/internal/models"
)

// SQLiteStore is the single-host ledger. Timestamps are stored as unix
// milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "captionflow.db"
	}
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite ledger: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS workflows (
			id            TEXT PRIMARY KEY,
			pipeline      TEXT NOT NULL,
			status        TEXT NOT NULL,
			stage         TEXT NOT NULL DEFAULT '',
			error         TEXT NOT NULL DEFAULT '',
			video_url     TEXT NOT NULL DEFAULT '',
			audio_url     TEXT NOT NULL DEFAULT '',
			subtitles_url TEXT NOT NULL DEFAULT '',
			output_path   TEXT NOT NULL DEFAULT '',
			created_at    INTEGER NOT NULL,
			updated_at    INTEGER NOT NULL
		)
	`)
	return err
}

func nowMillis() int64 { return time.Now().UTC().UnixMilli() }

func (s *SQLiteStore) Create(ctx context.Context, w *models.Workflow) error {
	if w.Status == "" {
		w.Status = models.StatusQueued
	}
	now := nowMillis()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflows (id, pipeline, status, stage, created_at, updated_at)
		VALUES (?,?,?,?,?,?)
	`, w.ID, w.Pipeline, string(w.Status), w.Stage, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrWorkflowExists
		}
		return err
	}
	w.CreatedAt = time.UnixMilli(now).UTC()
	w.UpdatedAt = w.CreatedAt
	return nil
}

func (s *SQLiteStore) update(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrWorkflowNotFound
	}
	return nil
}

func (s *SQLiteStore) MarkRunning(ctx context.Context, id, stage string) error {
	return s.update(ctx, `
		UPDATE workflows SET status=?, stage=?, updated_at=?
		WHERE id=? AND status <> ?
	`, string(models.StatusRunning), stage, nowMillis(), id, string(models.StatusCompleted))
}

func (s *SQLiteStore) MarkFailed(ctx context.Context, id, stage, cause string) error {
	return s.update(ctx, `
		UPDATE workflows SET status=?, stage=?, error=?, updated_at=?
		WHERE id=?
	`, string(models.StatusFailed), stage, cause, nowMillis(), id)
}

func (s *SQLiteStore) Complete(ctx context.Context, id string, out models.Outputs) error {
	return s.update(ctx, `
		UPDATE workflows
		SET status=?, error='', video_url=?, audio_url=?, subtitles_url=?, output_path=?, updated_at=?
		WHERE id=?
	`, string(models.StatusCompleted), out.VideoURL, out.AudioURL, out.SubtitlesURL, out.OutputPath, nowMillis(), id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row rowScanner) (models.Workflow, error) {
	var (
		w                models.Workflow
		status           string
		created, updated int64
	)
	err := row.Scan(&w.ID, &w.Pipeline, &status, &w.Stage, &w.Error,
		&w.VideoURL, &w.AudioURL, &w.SubtitlesURL, &w.OutputPath, &created, &updated)
	if err != nil {
		return w, err
	}
	w.Status = models.WorkflowStatus(status)
	w.CreatedAt = time.UnixMilli(created).UTC()
	w.UpdatedAt = time.UnixMilli(updated).UTC()
	return w, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Workflow, error) {
	w, err := scanSQLite(s.db.QueryRowContext(ctx, selectWorkflow+` WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]models.Workflow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, selectWorkflow+` ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Workflow
	for rows.Next() {
		w, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() {
	_ = s.db.Close()
}
