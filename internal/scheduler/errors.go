package scheduler

import "errors"

var (
	ErrNotFound          = errors.New("worker not found")
	ErrAlreadyTerminated = errors.New("worker already terminated")
	ErrNotSuspended      = errors.New("worker not found or not in a suspended state")
	ErrTableFull         = errors.New("maximum number of processes reached")
	ErrInvalidQuantum    = errors.New("quantum must be greater than zero")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrClosed            = errors.New("scheduler is shut down")
)
