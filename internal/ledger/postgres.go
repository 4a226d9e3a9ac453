package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"captionflow/internal/models"
)

// SQLSTATE codes the store reacts to.
const (
	pgUniqueViolation = "23505"
	pgUndefinedTable  = "42P01"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

type PostgresStore struct {
	db *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: pool}, nil
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (r *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
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
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

func (r *PostgresStore) Create(ctx context.Context, w *models.Workflow) error {
	if w.Status == "" {
		w.Status = models.StatusQueued
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO workflows (id, pipeline, status, stage)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at, updated_at
	`, w.ID, w.Pipeline, w.Status, w.Stage).Scan(&w.CreatedAt, &w.UpdatedAt)

	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return ErrWorkflowExists
		}
		return err
	}
	return nil
}

func (r *PostgresStore) update(ctx context.Context, sql string, args ...any) error {
	cmd, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrWorkflowNotFound
	}
	return nil
}

func (r *PostgresStore) MarkRunning(ctx context.Context, id, stage string) error {
	return r.update(ctx, `
		UPDATE workflows
		SET status=$2, stage=$3, updated_at=now()
		WHERE id=$1 AND status <> $4
	`, id, models.StatusRunning, stage, models.StatusCompleted)
}

func (r *PostgresStore) MarkFailed(ctx context.Context, id, stage, cause string) error {
	return r.update(ctx, `
		UPDATE workflows
		SET status=$2, stage=$3, error=$4, updated_at=now()
		WHERE id=$1
	`, id, models.StatusFailed, stage, cause)
}

func (r *PostgresStore) Complete(ctx context.Context, id string, out models.Outputs) error {
	return r.update(ctx, `
		UPDATE workflows
		SET status=$2, error='', video_url=$3, audio_url=$4, subtitles_url=$5, output_path=$6, updated_at=now()
		WHERE id=$1
	`, id, models.StatusCompleted, out.VideoURL, out.AudioURL, out.SubtitlesURL, out.OutputPath)
}

const selectWorkflow = `
	SELECT id, pipeline, status, stage, error, video_url, audio_url, subtitles_url, output_path, created_at, updated_at
	FROM workflows`

func scanWorkflow(row pgx.Row, w *models.Workflow) error {
	return row.Scan(
		&w.ID,
		&w.Pipeline,
		&w.Status,
		&w.Stage,
		&w.Error,
		&w.VideoURL,
		&w.AudioURL,
		&w.SubtitlesURL,
		&w.OutputPath,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
}

func (r *PostgresStore) Get(ctx context.Context, id string) (*models.Workflow, error) {
	var w models.Workflow
	err := scanWorkflow(r.db.QueryRow(ctx, selectWorkflow+` WHERE id=$1`, id), &w)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *PostgresStore) List(ctx context.Context, limit int) ([]models.Workflow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, selectWorkflow+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		if pgCode(err) == pgUndefinedTable {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()

	var out []models.Workflow
	for rows.Next() {
		var w models.Workflow
		if err := scanWorkflow(rows, &w); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *PostgresStore) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *PostgresStore) Close() {
	r.db.Close()
}
