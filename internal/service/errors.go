package service

import (
	"errors"
	"fmt"

	"github.com/shinyyama/referral-tree-backend/internal/repository"
)

type ErrorKind string

const (
	KindValidation           ErrorKind = "validation"
	KindConstraintViolation  ErrorKind = "constraint_violation"
	KindPersistence          ErrorKind = "persistence"
	KindStructuralCorruption ErrorKind = "structural_corruption"
)

var (
	ErrInvalidName      = errors.New("name must be 1-120 characters")
	ErrUserNotFound     = errors.New("user not found")
	ErrReferrerNotFound = errors.New("referrer not found")
	ErrReferrerRequired = errors.New("referrer is required once the tree has a root")
	ErrNoFreePosition   = errors.New("referrer has no free position")
	ErrParticipantLimit = errors.New("participant limit reached")
	// ErrPositionTaken means another registration won the slot; retrying may succeed.
	ErrPositionTaken = errors.New("tree position already taken")
)

// Error carries the failure kind and the operation that produced it.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of err, or "" when err is nil or not a service error.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsRetryable reports whether repeating the call may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPositionTaken)
}

// IsNotFound reports whether err names a missing user or referrer.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrReferrerNotFound)
}

// classify maps repository failures onto service errors. Errors that are
// already classified pass through untouched.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return newError(KindConstraintViolation, op, fmt.Errorf("%w: %w", ErrPositionTaken, err))
	case errors.Is(err, repository.ErrStructuralCorruption):
		return newError(KindStructuralCorruption, op, err)
	default:
		return newError(KindPersistence, op, err)
	}
}
