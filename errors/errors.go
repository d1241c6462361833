// Package errors provides the error taxonomy used across splice: sentinel
// errors for each failure kind plus a classification (transient, invalid,
// fatal) that decides whether a failure is retried, rejected up front, or
// aborts a branch.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents configuration errors detected before anything runs
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that terminate a branch
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

var (
	// Lifecycle errors
	ErrAlreadyStarted = errors.New("already started")
	ErrNotRunning     = errors.New("not running")
	ErrStopped        = errors.New("stopped")

	// Configuration errors
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrUnknownScheme  = errors.New("unknown endpoint scheme")
	ErrMalformedSpec  = errors.New("malformed endpoint spec")
	ErrNoReaders      = errors.New("no readers configured")
	ErrDuplicateKind  = errors.New("kind already registered")
	ErrMissingRuntime = errors.New("runtime not provided")

	// Data path errors
	ErrSourceOpen   = errors.New("source open failed")
	ErrSinkOpen     = errors.New("sink open failed")
	ErrWriteFailed  = errors.New("write failed")
	ErrProcess      = errors.New("seam processing failed")
	ErrQueueClosed  = errors.New("queue closed")
	ErrNoConnection = errors.New("no connection available")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsTransient reports whether err may succeed if attempted again.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EINTR) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "temporary", "unavailable", "try again"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// IsFatal reports whether err terminates the branch it occurred on.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return errors.Is(err, ErrSourceOpen) ||
		errors.Is(err, ErrSinkOpen) ||
		errors.Is(err, ErrProcess) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission)
}

// IsInvalid reports whether err is a configuration error.
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrUnknownScheme) ||
		errors.Is(err, ErrMalformedSpec) ||
		errors.Is(err, ErrNoReaders) ||
		errors.Is(err, ErrDuplicateKind)
}

// IsConfiguration is an alias of IsInvalid named after the failure kind the
// operator sees.
func IsConfiguration(err error) bool {
	return IsInvalid(err)
}

// Classify returns the error class for an error. Unknown errors are treated
// as transient so a single retry gets a chance to recover them.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ErrorTransient
	case IsInvalid(err):
		return ErrorInvalid
	case IsFatal(err):
		return ErrorFatal
	default:
		return ErrorTransient
	}
}

func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	return wrapClass(ErrorTransient, err, component, method, action)
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	return wrapClass(ErrorFatal, err, component, method, action)
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	return wrapClass(ErrorInvalid, err, component, method, action)
}

func wrapClass(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, action)
	return newClassified(class, wrapped, component, method, wrapped.Error())
}

// Configf builds an invalid-class error around ErrInvalidConfig.
func Configf(component, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return newClassified(ErrorInvalid, fmt.Errorf("%w: %s", ErrInvalidConfig, msg),
		component, "Validate", fmt.Sprintf("%s: %s: %s", component, ErrInvalidConfig, msg))
}

// Escalate reclassifies err as fatal, keeping the chain intact. Used when a
// transient failure has already used up its recovery attempt.
func Escalate(err error, component, method string) error {
	if err == nil {
		return nil
	}
	return newClassified(ErrorFatal, err, component, method,
		fmt.Sprintf("%s.%s: unrecovered: %s", component, method, err.Error()))
}

// Is, As, New, Join and Unwrap re-export the standard helpers so callers
// only import one errors package.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func New(text string) error { return errors.New(text) }

func Join(errs ...error) error { return errors.Join(errs...) }

func Unwrap(err error) error { return errors.Unwrap(err) }
