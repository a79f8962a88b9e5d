package storage

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors of the storage taxonomy. Typed errors returned by managers
// match these under errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrStorageFailure  = errors.New("storage failure")
	// ErrUnsupported is returned when a dialect cannot provide a requested
	// capability, such as row-locking reads.
	ErrUnsupported = errors.New("unsupported operation")
)

// NotFoundError is returned where a record was required to exist, but does not.
type NotFoundError struct {
	What string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.What, e.Key)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// AlreadyExistsError is returned when an insert violates a unique constraint.
type AlreadyExistsError struct {
	Key   StorableKey
	Cause error
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("storable %s already exists: %v", e.Key, e.Cause)
}

// Is matches ErrAlreadyExists.
func (e *AlreadyExistsError) Is(target error) bool { return target == ErrAlreadyExists }

// Unwrap returns the database error.
func (e *AlreadyExistsError) Unwrap() error { return e.Cause }

// InvalidArgumentError is a client error detected before any I/O is issued.
type InvalidArgumentError struct {
	Argument string
	Message  string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Argument, e.Message)
}

// Is matches ErrInvalidArgument.
func (e *InvalidArgumentError) Is(target error) bool { return target == ErrInvalidArgument }

// StorageError wraps a backend failure which is not otherwise classified.
type StorageError struct {
	Message string
	Cause   error
}

func (e *StorageError) Error() string {
	if e.Message == "" {
		return e.Cause.Error()
	}
	return e.Message + ": " + e.Cause.Error()
}

// Is matches ErrStorageFailure.
func (e *StorageError) Is(target error) bool { return target == ErrStorageFailure }

// Unwrap returns the underlying cause.
func (e *StorageError) Unwrap() error { return e.Cause }

// NewNotFoundError returns a *NotFoundError.
func NewNotFoundError(what string, key interface{}) error {
	return &NotFoundError{What: what, Key: fmt.Sprint(key)}
}

// NewAlreadyExistsError returns an *AlreadyExistsError.
func NewAlreadyExistsError(key StorableKey, cause error) error {
	return &AlreadyExistsError{Key: key, Cause: cause}
}

// NewInvalidArgumentError returns an *InvalidArgumentError with a formatted message.
func NewInvalidArgumentError(argument, format string, args ...interface{}) error {
	return &InvalidArgumentError{Argument: argument, Message: fmt.Sprintf(format, args...)}
}

// NewStorageError wraps |cause| as a *StorageError with a formatted message.
// Errors which are already classified are returned with the message attached
// but keep their classification.
func NewStorageError(cause error, format string, args ...interface{}) error {
	if cause == nil {
		return nil
	}
	var msg = fmt.Sprintf(format, args...)

	if IsNotFound(cause) || IsAlreadyExists(cause) || IsInvalidArgument(cause) ||
		IsStorageFailure(cause) || errors.Is(cause, ErrUnsupported) {
		return errors.WithMessage(cause, msg)
	}
	return &StorageError{Message: msg, Cause: cause}
}

// IsNotFound returns whether the error is a NotFound condition.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsAlreadyExists returns whether the error is an AlreadyExists condition.
func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }

// IsInvalidArgument returns whether the error is an InvalidArgument condition.
func IsInvalidArgument(err error) bool { return errors.Is(err, ErrInvalidArgument) }

// IsStorageFailure returns whether the error is a generic StorageFailure.
func IsStorageFailure(err error) bool { return errors.Is(err, ErrStorageFailure) }
