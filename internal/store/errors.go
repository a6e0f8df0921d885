package store

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a store failure
type ErrorKind string

const (
	KindValidation    ErrorKind = "VALIDATION_ERROR"
	KindUserNotFound  ErrorKind = "USER_NOT_FOUND"
	KindUserExists    ErrorKind = "USER_ALREADY_EXISTS"
	KindIO            ErrorKind = "IO_ERROR"
	KindLockTimeout   ErrorKind = "LOCK_TIMEOUT"
	KindBackupFailed  ErrorKind = "BACKUP_FAILED"
	KindRestoreFailed ErrorKind = "RESTORE_FAILED"
)

// Sentinel errors, one per kind, for errors.Is checks
var (
	ErrValidation    = errors.New("store: validation failed")
	ErrUserNotFound  = errors.New("store: user not found")
	ErrUserExists    = errors.New("store: user already exists")
	ErrIO            = errors.New("store: i/o failure")
	ErrLockTimeout   = errors.New("store: lock acquisition timed out")
	ErrBackupFailed  = errors.New("store: backup failed")
	ErrRestoreFailed = errors.New("store: restore failed")
)

// StoreError carries the failing operation, the affected id when there is
// one, and the underlying cause.
type StoreError struct {
	Kind ErrorKind
	Op   string
	ID   string
	Err  error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	switch {
	case e.ID != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s %q: %v", e.Kind, e.Op, e.ID, e.Err)
	case e.ID != "":
		return fmt.Sprintf("%s: %s %q", e.Kind, e.Op, e.ID)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
}

// Unwrap implements the errors.Unwrap interface for error chaining.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is maps the error's kind onto the matching sentinel.
func (e *StoreError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && errors.Is(target, sentinel)
}

var kindSentinels = map[ErrorKind]error{
	KindValidation:    ErrValidation,
	KindUserNotFound:  ErrUserNotFound,
	KindUserExists:    ErrUserExists,
	KindIO:            ErrIO,
	KindLockTimeout:   ErrLockTimeout,
	KindBackupFailed:  ErrBackupFailed,
	KindRestoreFailed: ErrRestoreFailed,
}

func newError(kind ErrorKind, op, id string, err error) *StoreError {
	return &StoreError{Kind: kind, Op: op, ID: id, Err: err}
}

// KindOf extracts the ErrorKind from an error chain, or "" if the error
// did not originate in the store.
func KindOf(err error) ErrorKind {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
