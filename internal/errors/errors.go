// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrNotConnected   = errors.New("not connected to exchange")
	ErrConnectionLost = errors.New("exchange connection lost")
	ErrSymbolNotFound = errors.New("symbol not found")
	ErrDataNotFound   = errors.New("data not found")
	ErrNoSelection    = errors.New("no contracts selected")
	ErrNotComputable  = errors.New("simulation not computable for current data")
	ErrChannelClosed  = errors.New("channel has no active connection")
	ErrConfigInvalid  = errors.New("invalid configuration")
)

// TransportError represents a network failure talking to the exchange.
// Transport errors are logged and degrade to empty results; they never
// abort the ingestion pipeline.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("transport error [%s] %s: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("transport error [%s]: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a new TransportError.
func NewTransportError(op, url string, err error) *TransportError {
	return &TransportError{Op: op, URL: url, Err: err}
}

// DecodeError represents a malformed or unclassifiable inbound message.
// The message is dropped and logged; store state is untouched.
type DecodeError struct {
	MessageType string
	Reason      string
	Err         error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode error [%s]: %s: %v", e.MessageType, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode error [%s]: %s", e.MessageType, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// NewDecodeError creates a new DecodeError.
func NewDecodeError(messageType, reason string, err error) *DecodeError {
	return &DecodeError{MessageType: messageType, Reason: reason, Err: err}
}

// ValidationError represents an invalid command parameter or a
// cross-cutting invariant violation (for example a selected leg whose
// underlying or expiry does not match the simulation being aggregated).
// Validation errors propagate to the caller as hard failures.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// ComputationError represents a failure inside simulation or payoff math.
// It is caught per unit of work so one failing leg or page cannot abort
// the whole batch.
type ComputationError struct {
	Stage  string
	Symbol string
	Err    error
}

func (e *ComputationError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("computation error [%s] %s: %v", e.Stage, e.Symbol, e.Err)
	}
	return fmt.Sprintf("computation error [%s]: %v", e.Stage, e.Err)
}

func (e *ComputationError) Unwrap() error {
	return e.Err
}

// NewComputationError creates a new ComputationError.
func NewComputationError(stage, symbol string, err error) *ComputationError {
	return &ComputationError{Stage: stage, Symbol: symbol, Err: err}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
