// Package apperr holds the error kinds shared by the tree, the store and the outer surfaces.
package apperr

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure reported by the tree wraps exactly one of these.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrPersistence      = errors.New("persistence failure")
)

// Refinements of ErrInvalidOperation.
var (
	ErrSelfMove              = refine(ErrInvalidOperation, "cannot move an item onto itself")
	ErrCyclicMove            = refine(ErrInvalidOperation, "cannot move a folder into its own descendant")
	ErrNoAncestorToPromoteTo = refine(ErrInvalidOperation, "no ancestor to promote to")
	ErrNoPendingCut          = refine(ErrInvalidOperation, "nothing has been cut")
	ErrBusy                  = refine(ErrInvalidOperation, "another change is still in flight")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func refine(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// NotFound returns an ErrNotFound error naming what is missing.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Invalid returns an ErrInvalidOperation error with a message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOperation, fmt.Sprintf(format, args...))
}

// Persistence classifies a store error. Errors that already carry a kind pass through.
func Persistence(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidOperation) || errors.Is(err, ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}
