package repository

import (
	"context"
	"errors"

	"mediaDownloader/api/models"
)

var (
	ErrJobNotFound   = errors.New("download not found")
	ErrDuplicateID   = errors.New("download id already exists")
	ErrJobFinished   = errors.New("download already finished or cancelled")
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already exists")
)

// JobRepository persists download jobs. Records are never deleted.
type JobRepository interface {
	CreateJob(ctx context.Context, job *models.Job) error
	// CreateJobs inserts all jobs or none of them.
	CreateJobs(ctx context.Context, jobs []*models.Job) error
	// UpdateJobStatus is a no-op when the job is absent. It returns
	// ErrJobFinished and writes nothing when the job is already terminal.
	UpdateJobStatus(ctx context.Context, id string, status models.JobStatus, progress float64) error
	// SetAspectRatio follows the same rules as UpdateJobStatus.
	SetAspectRatio(ctx context.Context, id string, ratio string) error
	// GetJob returns ErrJobNotFound when the job is absent or, with a non-nil
	// owner, belongs to somebody else.
	GetJob(ctx context.Context, id string, owner *int64) (*models.Job, error)
	// ListJobs returns jobs newest first, optionally restricted to one owner.
	// Jobs created at the same instant come latest-inserted first.
	ListJobs(ctx context.Context, owner *int64) ([]*models.Job, error)
	// CancelJob marks a non-terminal job cancelled. It returns ErrJobNotFound or
	// ErrJobFinished when that is not possible.
	CancelJob(ctx context.Context, id string, owner *int64) (*models.Job, error)
	// FailInterrupted marks jobs left non-terminal by a previous process as failed.
	FailInterrupted(ctx context.Context) ([]string, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	DeleteUser(ctx context.Context, id int64) error
	CountUsers(ctx context.Context) (int, error)
}

type Repository interface {
	JobRepository
	UserRepository
	Migrate(ctx context.Context) error
	Close() error
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var job models.Job
	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Username,
		&job.URL,
		&job.TargetPath,
		&job.Status,
		&job.Progress,
		&job.AspectRatio,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.IsAdmin,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func terminalArgs() []any {
	args := make([]any, 0, len(models.TerminalStatuses))
	for _, s := range models.TerminalStatuses {
		args = append(args, string(s))
	}
	return args
}
