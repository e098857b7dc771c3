package core

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound     = errors.New("jobs: job not found")
	ErrDuplicateJob    = errors.New("jobs: duplicate job id")
	ErrInvalidJobName  = errors.New("jobs: invalid job name")
	ErrJobNameTooLong  = errors.New("jobs: job name too long")
	ErrMutatorPanic    = errors.New("jobs: job mutator panicked")
	ErrArchiveDisabled = errors.New("jobs: archive not configured")
)

// PanicError records a recovered panic from user supplied code.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
