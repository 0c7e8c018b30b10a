package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"mediaDownloader/api/database"
	"mediaDownloader/api/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	username TEXT UNIQUE NOT NULL,
	password TEXT NOT NULL,
	is_admin BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS downloads (
	id TEXT PRIMARY KEY,
	seq BIGSERIAL,
	user_id BIGINT NOT NULL,
	url TEXT NOT NULL,
	target_path TEXT NOT NULL,
	status TEXT NOT NULL,
	progress DOUBLE PRECISION NOT NULL DEFAULT 0,
	aspect_ratio TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

ALTER TABLE downloads ADD COLUMN IF NOT EXISTS aspect_ratio TEXT;
ALTER TABLE downloads ADD COLUMN IF NOT EXISTS seq BIGSERIAL;

CREATE INDEX IF NOT EXISTS idx_downloads_user_created ON downloads (user_id, created_at DESC);
`

const postgresJobColumns = `d.id, d.user_id, COALESCE(u.username, ''), d.url, d.target_path, d.status, d.progress, d.aspect_ratio, d.created_at, d.updated_at`

const pgUniqueViolation = "23505"

type PostgresRepo struct {
	db *database.DB
}

func NewPostgresRepo(db *database.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Migrate(ctx context.Context) error {
	if _, err := r.db.Pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (r *PostgresRepo) Close() error {
	r.db.Close()
	return nil
}

func (r *PostgresRepo) CreateJob(ctx context.Context, job *models.Job) error {
	return r.CreateJobs(ctx, []*models.Job{job})
}

func (r *PostgresRepo) CreateJobs(ctx context.Context, jobs []*models.Job) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO downloads (id, user_id, url, target_path, status, progress, aspect_ratio)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	for _, job := range jobs {
		err := tx.QueryRow(ctx, query,
			job.ID,
			job.UserID,
			job.URL,
			job.TargetPath,
			job.Status,
			job.Progress,
			job.AspectRatio,
		).Scan(&job.CreatedAt, &job.UpdatedAt)
		if err != nil {
			if isPgUnique(err) {
				return fmt.Errorf("%w: %s", ErrDuplicateID, job.ID)
			}
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepo) UpdateJobStatus(ctx context.Context, id string, status models.JobStatus, progress float64) error {
	query := `
		UPDATE downloads
		SET status = $1, progress = $2, updated_at = NOW()
		WHERE id = $3 AND status NOT IN ($4, $5, $6)
	`
	args := append([]any{status, progress, id}, terminalArgs()...)
	tag, err := r.db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	return r.checkApplied(ctx, tag, id)
}

func (r *PostgresRepo) SetAspectRatio(ctx context.Context, id string, ratio string) error {
	query := `
		UPDATE downloads
		SET aspect_ratio = $1, updated_at = NOW()
		WHERE id = $2 AND status NOT IN ($3, $4, $5)
	`
	args := append([]any{ratio, id}, terminalArgs()...)
	tag, err := r.db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	return r.checkApplied(ctx, tag, id)
}

// checkApplied turns a guarded update that touched no row into ErrJobFinished
// when the job exists. An absent job is not an error.
func (r *PostgresRepo) checkApplied(ctx context.Context, tag pgconn.CommandTag, id string) error {
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err := r.db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM downloads WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	return ErrJobFinished
}

func (r *PostgresRepo) GetJob(ctx context.Context, id string, owner *int64) (*models.Job, error) {
	query := `SELECT ` + postgresJobColumns + ` FROM downloads d LEFT JOIN users u ON d.user_id = u.id WHERE d.id = $1`
	args := []any{id}
	if owner != nil {
		query += ` AND d.user_id = $2`
		args = append(args, *owner)
	}

	job, err := scanJob(r.db.Pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

func (r *PostgresRepo) ListJobs(ctx context.Context, owner *int64) ([]*models.Job, error) {
	query := `SELECT ` + postgresJobColumns + ` FROM downloads d LEFT JOIN users u ON d.user_id = u.id`
	var args []any
	if owner != nil {
		query += ` WHERE d.user_id = $1`
		args = append(args, *owner)
	}
	query += ` ORDER BY d.created_at DESC, d.seq DESC`

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]*models.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *PostgresRepo) CancelJob(ctx context.Context, id string, owner *int64) (*models.Job, error) {
	query := `
		UPDATE downloads SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status NOT IN ($3, $4, $5)
	`
	args := append([]any{models.StatusCancelled, id}, terminalArgs()...)
	if owner != nil {
		query += ` AND user_id = $6`
		args = append(args, *owner)
	}

	result, err := r.db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	job, err := r.GetJob(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected() == 0 {
		return job, ErrJobFinished
	}
	return job, nil
}

func (r *PostgresRepo) FailInterrupted(ctx context.Context) ([]string, error) {
	query := `
		UPDATE downloads SET status = $1, progress = 0, updated_at = NOW()
		WHERE status NOT IN ($2, $3, $4)
		RETURNING id
	`
	args := append([]any{models.StatusFailed}, terminalArgs()...)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *PostgresRepo) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (username, password, is_admin)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := r.db.Pool.QueryRow(ctx, query, user.Username, user.PasswordHash, user.IsAdmin).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if isPgUnique(err) {
			return ErrUsernameTaken
		}
		return err
	}
	return nil
}

func (r *PostgresRepo) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getUser(ctx, `WHERE id = $1`, id)
}

func (r *PostgresRepo) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getUser(ctx, `WHERE username = $1`, username)
}

func (r *PostgresRepo) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT id, username, password, is_admin, created_at FROM users `+where, arg)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *PostgresRepo) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT id, username, password, is_admin, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *PostgresRepo) DeleteUser(ctx context.Context, id int64) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *PostgresRepo) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func isPgUnique(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
