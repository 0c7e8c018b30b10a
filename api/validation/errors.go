package validation

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyBatch      = errors.New("at least one url is required")
	ErrLengthMismatch  = errors.New("urls and targetPaths must have the same length")
	ErrBatchTooLarge   = errors.New("too many downloads in one request")
	ErrInvalidURL      = errors.New("url must be an absolute http or https url")
	ErrEmptyTargetPath = errors.New("target path is required")
	ErrPathEscapesRoot = errors.New("target path must stay inside the media directory")
	ErrMissingField    = errors.New("field is required")
)

// Error is a client input error. Field names the offending request field,
// with an index for list entries, e.g. "urls[2]".
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fieldError(field string, err error) *Error {
	return &Error{Field: field, Err: err}
}
