package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/c360/streamagent/pkg/retry"
)

// Class tells callers what to do with an error: retry it, report it to the
// client, or stop.
type Class int

const (
	// ClassTransient errors clear up on their own; reconnect or retry.
	ClassTransient Class = iota
	// ClassInvalid errors come from bad input or configuration.
	ClassInvalid
	// ClassFatal errors stop the part that hit them.
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassInvalid:
		return "invalid"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

var (
	// Adapter connection
	ErrConnectionLost  = errors.New("connection lost")
	ErrHeartbeatMissed = errors.New("adapter heartbeat missed")

	// Configuration
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")

	// Sinks
	ErrSinkUnavailable = errors.New("sink unavailable")
)

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return errors.As(err, target) }

// New returns an error with the given text.
func New(text string) error { return errors.New(text) }

// ClassifiedError carries a Class and the part and method that raised it.
type ClassifiedError struct {
	Class     Class
	Component string
	Method    string
	Err       error
}

func (ce *ClassifiedError) Error() string { return ce.Err.Error() }

func (ce *ClassifiedError) Unwrap() error { return ce.Err }

// Classify returns the class of err. Request errors are invalid. Network
// failures, EOF and the connection sentinels are transient. Missing or
// invalid configuration is fatal. Anything else is transient.
func Classify(err error) Class {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	var re *RequestError
	if errors.As(err, &re) {
		return ClassInvalid
	}
	if errors.Is(err, ErrInvalidConfig) || errors.Is(err, ErrMissingConfig) {
		return ClassFatal
	}
	return ClassTransient
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ClassTransient
	}
	var ne net.Error
	if errors.As(err, &ne) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return Classify(err) == ClassTransient
}

// IsInvalid reports whether err was caused by bad input.
func IsInvalid(err error) bool {
	return err != nil && Classify(err) == ClassInvalid
}

// IsFatal reports whether err should stop the part that returned it.
func IsFatal(err error) bool {
	return err != nil && Classify(err) == ClassFatal
}

// Wrap adds "component.method: action failed" context to err.
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

func wrapClass(class Class, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{
		Class:     class,
		Component: component,
		Method:    method,
		Err:       Wrap(err, component, method, action),
	}
}

// WrapTransient wraps err as transient.
func WrapTransient(err error, component, method, action string) error {
	return wrapClass(ClassTransient, err, component, method, action)
}

// WrapInvalid wraps err as invalid.
func WrapInvalid(err error, component, method, action string) error {
	return wrapClass(ClassInvalid, err, component, method, action)
}

// WrapFatal wraps err as fatal.
func WrapFatal(err error, component, method, action string) error {
	return wrapClass(ClassFatal, err, component, method, action)
}

// ReconnectPolicy is how an adapter connection backs off after a failure.
type ReconnectPolicy struct {
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultReconnectPolicy waits 500ms, doubling up to 10s.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
	}
}

// ShouldReconnect reports whether the connection should dial again after
// err. Invalid and fatal errors end the loop.
func (p ReconnectPolicy) ShouldReconnect(err error) bool {
	return err == nil || IsTransient(err)
}

// ToRetryConfig converts the policy to a retry config that never gives up
// on its own.
func (p ReconnectPolicy) ToRetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  0,
		InitialDelay: p.InitialDelay,
		MaxDelay:     p.MaxDelay,
		Multiplier:   p.BackoffFactor,
		AddJitter:    true,
	}
}
