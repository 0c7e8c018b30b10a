package service

import "errors"

var (
	ErrNotFound   = errors.New("download not found")
	ErrConflict   = errors.New("download already finished or cancelled")
	ErrForbidden  = errors.New("admin privileges required")
	ErrSelfDelete = errors.New("cannot delete yourself")
)
