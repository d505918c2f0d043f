package errors

import (
	stderrors "errors"
	"fmt"
)

// The four failure kinds every chat operation reports through.
var (
	ErrNotFound         = fmt.Errorf("not found")
	ErrUnauthorized     = fmt.Errorf("unauthorized")
	ErrValidationFailed = fmt.Errorf("validation failed")
	ErrTransientStore   = fmt.Errorf("transient store error")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string {
	return e.msg
}

func (e *kindError) Unwrap() error {
	return e.kind
}

func newKind(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

type transientError struct {
	cause error
}

func (e *transientError) Error() string {
	return fmt.Sprintf("%s: %v", ErrTransientStore, e.cause)
}

func (e *transientError) Is(target error) bool {
	return target == ErrTransientStore
}

func (e *transientError) Unwrap() error {
	return e.cause
}

// Transient marks a backend failure as retryable by the caller. Errors that
// already carry a kind are returned unchanged.
func Transient(err error) error {
	if err == nil || Kind(err) != nil {
		return err
	}
	return &transientError{cause: err}
}

// Kind returns which of the four kinds err belongs to, or nil.
func Kind(err error) error {
	for _, k := range []error{ErrNotFound, ErrUnauthorized, ErrValidationFailed, ErrTransientStore} {
		if stderrors.Is(err, k) {
			return k
		}
	}
	return nil
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}
