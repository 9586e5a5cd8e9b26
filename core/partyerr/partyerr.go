// Package partyerr defines the error taxonomy shared by every component of
// the party event engine.
package partyerr

import "fmt"

// Kind classifies an error for retry policy, metrics, and alerting.
type Kind int

const (
	// KindTransientNetwork covers RPC timeouts and WS disconnects: retry
	// with backoff, rotate provider.
	KindTransientNetwork Kind = iota
	// KindSchemaInvalid covers malformed external or internal payloads:
	// move to dead-letter, do not retry.
	KindSchemaInvalid
	// KindArithmetic covers overflow, currency mismatch, insufficient
	// balance: fail the originating operation, no state mutation.
	KindArithmetic
	// KindConsensus covers missing or contradictory observations: defer
	// the event, retry next tick, escalate after N ticks.
	KindConsensus
	// KindSigning covers round timeout, byzantine deviation, verification
	// failure: abort the session, emit an alert.
	KindSigning
	// KindStorage covers unique-violation, database locked, connection
	// exhausted: retry with backoff; three consecutive failures escalate
	// to the driver.
	KindStorage
	// KindFatal covers missing configuration or a corrupt keystore: stop
	// the driver.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransientNetwork:
		return "TransientNetwork"
	case KindSchemaInvalid:
		return "SchemaInvalid"
	case KindArithmetic:
		return "Arithmetic"
	case KindConsensus:
		return "Consensus"
	case KindSigning:
		return "Signing"
	case KindStorage:
		return "Storage"
	case KindFatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// PartyError is the structured error type returned across component
// boundaries. It carries a classification Kind, a human-readable message,
// a detail map for structured logging, and the wrapped cause.
type PartyError struct {
	Kind    Kind
	Message string
	Detail  map[string]any
	Cause   error
}

func (e *PartyError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PartyError) Unwrap() error { return e.Cause }

// New constructs a PartyError with no detail map.
func New(kind Kind, message string) *PartyError {
	return &PartyError{Kind: kind, Message: message}
}

// Wrap constructs a PartyError of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *PartyError {
	return &PartyError{Kind: kind, Message: message, Cause: cause}
}

// WithDetail attaches a structured detail value and returns the receiver for
// chaining.
func (e *PartyError) WithDetail(key string, value any) *PartyError {
	if e.Detail == nil {
		e.Detail = make(map[string]any)
	}
	e.Detail[key] = value
	return e
}

// Is reports whether err is a PartyError of the given kind.
func Is(err error, kind Kind) bool {
	pe, ok := err.(*PartyError)
	if !ok {
		return false
	}
	return pe.Kind == kind
}

// Retryable reports whether the driver should retry the operation locally
// rather than escalate or abort.
func Retryable(kind Kind) bool {
	switch kind {
	case KindTransientNetwork, KindConsensus, KindStorage:
		return true
	default:
		return false
	}
}
