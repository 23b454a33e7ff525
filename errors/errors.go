// Package errors classifies the failures turbologger components report.
//
// A failure is transient (the NATS link or bucket is unavailable for now and
// the call may be repeated), invalid (the caller or the configuration asked
// for something that can never succeed) or fatal (this process setup can not
// continue). Wrapped errors read "component.method: action failed: cause".
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorClass is the handling class of an error
type ErrorClass int

const (
	// ErrorTransient errors may succeed when retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid errors come from bad input or configuration
	ErrorInvalid
	// ErrorFatal errors stop the component
	ErrorFatal
)

func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	}
	return "unknown"
}

var (
	// ErrAlreadyStarted is returned by Start on a running component.
	ErrAlreadyStarted = errors.New("already started")
	// ErrNotStarted is returned by operations that need a running component.
	ErrNotStarted = errors.New("not started")
	// ErrStopped is returned by Start on a component that can not restart.
	ErrStopped = errors.New("stopped")

	// ErrNoConnection means there is no usable NATS connection.
	ErrNoConnection = errors.New("no connection available")
	// ErrConnectionTimeout means a NATS operation ran out of time.
	ErrConnectionTimeout = errors.New("connection timeout")

	// ErrInvalidConfig marks configuration rejected by validation.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// sentinelClasses classifies known unwrapped causes.
var sentinelClasses = []struct {
	err   error
	class ErrorClass
}{
	{ErrNoConnection, ErrorTransient},
	{ErrConnectionTimeout, ErrorTransient},
	{context.DeadlineExceeded, ErrorTransient},
	{context.Canceled, ErrorTransient},
	{ErrInvalidConfig, ErrorInvalid},
	{ErrAlreadyStarted, ErrorInvalid},
	{ErrNotStarted, ErrorInvalid},
	{ErrStopped, ErrorInvalid},
}

// transientHints are message fragments of client library errors that are
// not exported as values.
var transientHints = []string{"timeout", "connection", "temporary", "unavailable", "no responders"}

// ClassifiedError carries an error class and where the error happened
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Component string
	Operation string
}

func (ce *ClassifiedError) Error() string {
	return ce.Err.Error()
}

func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Classify returns the class of err. The outermost ClassifiedError wins,
// then known sentinels, then network timeouts and message hints. Anything
// else is transient.
func Classify(err error) ErrorClass {
	class, _ := classOf(err)
	return class
}

func classOf(err error) (ErrorClass, bool) {
	if err == nil {
		return ErrorTransient, false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}

	for _, s := range sentinelClasses {
		if errors.Is(err, s.err) {
			return s.class, true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTransient, true
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range transientHints {
		if strings.Contains(msg, hint) {
			return ErrorTransient, true
		}
	}
	return ErrorTransient, false
}

// IsTransient reports whether err is known to be transient
func IsTransient(err error) bool {
	class, known := classOf(err)
	return known && class == ErrorTransient
}

// IsInvalid reports whether err is known to be invalid
func IsInvalid(err error) bool {
	class, known := classOf(err)
	return known && class == ErrorInvalid
}

// IsFatal reports whether err is known to be fatal
func IsFatal(err error) bool {
	class, known := classOf(err)
	return known && class == ErrorFatal
}

// Wrap adds component context without classifying.
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

func wrapAs(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{
		Class:     class,
		Err:       Wrap(err, component, method, action),
		Component: component,
		Operation: method,
	}
}

// WrapTransient wraps err as transient
func WrapTransient(err error, component, method, action string) error {
	return wrapAs(ErrorTransient, err, component, method, action)
}

// WrapInvalid wraps err as invalid
func WrapInvalid(err error, component, method, action string) error {
	return wrapAs(ErrorInvalid, err, component, method, action)
}

// WrapFatal wraps err as fatal
func WrapFatal(err error, component, method, action string) error {
	return wrapAs(ErrorFatal, err, component, method, action)
}
