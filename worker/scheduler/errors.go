package scheduler

import (
	"errors"
	"fmt"
)

var (
	// ErrJobCancelled is the cancellation cause for a job cancelled by its owner.
	// Units stopping with this cause write no further status.
	ErrJobCancelled = errors.New("job cancelled")
	// ErrShutdown is the cancellation cause for units abandoned at shutdown.
	// Those jobs are marked failed.
	ErrShutdown = errors.New("scheduler shutting down")

	ErrClosed        = errors.New("scheduler is not accepting jobs")
	ErrAlreadyActive = errors.New("job already has an active unit")
	ErrBadTransition = errors.New("invalid status transition")
)

type Phase string

const (
	PhaseQueue    Phase = "queue"
	PhasePrepare  Phase = "prepare"
	PhaseFetch    Phase = "fetch"
	PhaseProbe    Phase = "probe"
	PhaseRelocate Phase = "relocate"
	PhaseUnit     Phase = "unit"
)

// PhaseError is the failure of one pipeline phase.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

func phaseOf(err error) Phase {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Phase
	}
	return PhaseUnit
}
