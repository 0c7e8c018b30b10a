package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"mediaDownloader/api/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT UNIQUE NOT NULL,
	password TEXT NOT NULL,
	is_admin BOOLEAN NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS downloads (
	id TEXT PRIMARY KEY,
	user_id INTEGER NOT NULL,
	url TEXT NOT NULL,
	target_path TEXT NOT NULL,
	status TEXT NOT NULL,
	progress REAL NOT NULL DEFAULT 0,
	aspect_ratio TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_downloads_user_created ON downloads (user_id, created_at DESC);
`

const sqliteJobColumns = `d.id, d.user_id, COALESCE(u.username, ''), d.url, d.target_path, d.status, d.progress, d.aspect_ratio, d.created_at, d.updated_at`

type SQLiteRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepo(db *sql.DB) *SQLiteRepo {
	return &SQLiteRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *SQLiteRepo) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	// Databases created before aspect ratios were tracked lack the column.
	has, err := r.hasColumn(ctx, "downloads", "aspect_ratio")
	if err != nil {
		return err
	}
	if !has {
		if _, err := r.db.ExecContext(ctx, `ALTER TABLE downloads ADD COLUMN aspect_ratio TEXT`); err != nil {
			return fmt.Errorf("add aspect_ratio column: %w", err)
		}
	}
	return nil
}

func (r *SQLiteRepo) hasColumn(ctx context.Context, table, column string) (bool, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepo) CreateJob(ctx context.Context, job *models.Job) error {
	return r.CreateJobs(ctx, []*models.Job{job})
}

func (r *SQLiteRepo) CreateJobs(ctx context.Context, jobs []*models.Job) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO downloads (id, user_id, url, target_path, status, progress, aspect_ratio, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, job := range jobs {
		now := r.now()
		if job.CreatedAt.IsZero() {
			job.CreatedAt = now
		}
		job.UpdatedAt = now

		_, err := stmt.ExecContext(ctx,
			job.ID,
			job.UserID,
			job.URL,
			job.TargetPath,
			job.Status,
			job.Progress,
			job.AspectRatio,
			job.CreatedAt,
			job.UpdatedAt,
		)
		if err != nil {
			if isSQLiteUnique(err) {
				return fmt.Errorf("%w: %s", ErrDuplicateID, job.ID)
			}
			return err
		}
	}

	return tx.Commit()
}

func (r *SQLiteRepo) UpdateJobStatus(ctx context.Context, id string, status models.JobStatus, progress float64) error {
	args := append([]any{status, progress, r.now(), id}, terminalArgs()...)
	res, err := r.db.ExecContext(ctx, `
		UPDATE downloads SET status = ?, progress = ?, updated_at = ?
		WHERE id = ? AND status NOT IN (?, ?, ?)`, args...)
	if err != nil {
		return err
	}
	return r.checkApplied(ctx, res, id)
}

func (r *SQLiteRepo) SetAspectRatio(ctx context.Context, id string, ratio string) error {
	args := append([]any{ratio, r.now(), id}, terminalArgs()...)
	res, err := r.db.ExecContext(ctx, `
		UPDATE downloads SET aspect_ratio = ?, updated_at = ?
		WHERE id = ? AND status NOT IN (?, ?, ?)`, args...)
	if err != nil {
		return err
	}
	return r.checkApplied(ctx, res, id)
}

// checkApplied turns a guarded update that touched no row into ErrJobFinished
// when the job exists. An absent job is not an error.
func (r *SQLiteRepo) checkApplied(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM downloads WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	return ErrJobFinished
}

func (r *SQLiteRepo) GetJob(ctx context.Context, id string, owner *int64) (*models.Job, error) {
	query := `SELECT ` + sqliteJobColumns + ` FROM downloads d LEFT JOIN users u ON d.user_id = u.id WHERE d.id = ?`
	args := []any{id}
	if owner != nil {
		query += ` AND d.user_id = ?`
		args = append(args, *owner)
	}

	job, err := scanJob(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

func (r *SQLiteRepo) ListJobs(ctx context.Context, owner *int64) ([]*models.Job, error) {
	query := `SELECT ` + sqliteJobColumns + ` FROM downloads d LEFT JOIN users u ON d.user_id = u.id`
	var args []any
	if owner != nil {
		query += ` WHERE d.user_id = ?`
		args = append(args, *owner)
	}
	query += ` ORDER BY d.created_at DESC, d.rowid DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
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

func (r *SQLiteRepo) CancelJob(ctx context.Context, id string, owner *int64) (*models.Job, error) {
	query := `UPDATE downloads SET status = ?, updated_at = ? WHERE id = ? AND status NOT IN (?, ?, ?)`
	args := append([]any{models.StatusCancelled, r.now(), id}, terminalArgs()...)
	if owner != nil {
		query += ` AND user_id = ?`
		args = append(args, *owner)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	job, err := r.GetJob(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return job, ErrJobFinished
	}
	return job, nil
}

func (r *SQLiteRepo) FailInterrupted(ctx context.Context) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM downloads WHERE status NOT IN (?, ?, ?)`, terminalArgs()...)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return nil, nil
	}

	args := append([]any{models.StatusFailed, 0, r.now()}, terminalArgs()...)
	if _, err := tx.ExecContext(ctx, `
		UPDATE downloads SET status = ?, progress = ?, updated_at = ?
		WHERE status NOT IN (?, ?, ?)`, args...); err != nil {
		return nil, err
	}

	return ids, tx.Commit()
}

func (r *SQLiteRepo) CreateUser(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = r.now()
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, password, is_admin, created_at) VALUES (?, ?, ?, ?)`,
		user.Username, user.PasswordHash, user.IsAdmin, user.CreatedAt)
	if err != nil {
		if isSQLiteUnique(err) {
			return ErrUsernameTaken
		}
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	user.ID = id
	return nil
}

func (r *SQLiteRepo) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getUser(ctx, `WHERE id = ?`, id)
}

func (r *SQLiteRepo) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getUser(ctx, `WHERE username = ?`, username)
}

func (r *SQLiteRepo) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, username, password, is_admin, created_at FROM users `+where, arg)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *SQLiteRepo) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, username, password, is_admin, created_at FROM users ORDER BY id`)
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

func (r *SQLiteRepo) DeleteUser(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *SQLiteRepo) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func isSQLiteUnique(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrConstraint &&
		(se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			strings.Contains(se.Error(), "UNIQUE"))
}
