// Package simerr defines the error taxonomy shared by the markets and the
// simulation stepper.
package simerr

import (
	"errors"
	"fmt"
)

// Kind categorizes a simulation error.
type Kind string

const (
	// KindInvalidIntent marks a malformed or out-of-range agent decision.
	// Recovered locally: the agent is skipped for the stage.
	KindInvalidIntent Kind = "INVALID_INTENT"

	// KindInsufficientFunds marks an order or loan exceeding available
	// cash or credit. The request is clamped or rejected.
	KindInsufficientFunds Kind = "INSUFFICIENT_FUNDS"

	// KindMarketState marks a listing, order or intent that references a
	// nonexistent agent. Dropped and logged.
	KindMarketState Kind = "MARKET_STATE"

	// KindConfiguration marks invalid configuration. Fatal at startup.
	KindConfiguration Kind = "CONFIGURATION"

	// KindInvariantViolation marks a broken period invariant such as a
	// negative price index. Fatal for the period.
	KindInvariantViolation Kind = "INVARIANT_VIOLATION"
)

// Fatal reports whether errors of this kind abort the operation.
func (k Kind) Fatal() bool {
	return k == KindConfiguration || k == KindInvariantViolation
}

// Error is a categorized simulation error.
type Error struct {
	Kind    Kind
	Message string

	// Stage names the period stage that raised the error, if any.
	Stage string

	// AgentKind and AgentID identify the offending agent, if any.
	AgentKind string
	AgentID   uint64

	// Diagnostic carries the full state at the time of a fatal error.
	Diagnostic any

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.AgentKind != "" {
		msg = fmt.Sprintf("%s (%s=%d)", msg, e.AgentKind, e.AgentID)
	}
	if e.Stage != "" {
		msg = fmt.Sprintf("%s [stage=%s]", msg, e.Stage)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// New creates an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// InvalidIntent creates an InvalidIntent error for an agent.
func InvalidIntent(agentKind string, id uint64, format string, args ...any) *Error {
	e := New(KindInvalidIntent, format, args...)
	e.AgentKind = agentKind
	e.AgentID = id
	return e
}

// InsufficientFunds creates an InsufficientFunds error for an agent.
func InsufficientFunds(agentKind string, id uint64, format string, args ...any) *Error {
	e := New(KindInsufficientFunds, format, args...)
	e.AgentKind = agentKind
	e.AgentID = id
	return e
}

// MarketState creates a MarketState error for an unknown agent reference.
func MarketState(agentKind string, id uint64, format string, args ...any) *Error {
	e := New(KindMarketState, format, args...)
	e.AgentKind = agentKind
	e.AgentID = id
	return e
}

// Configuration creates a Configuration error.
func Configuration(format string, args ...any) *Error {
	return New(KindConfiguration, format, args...)
}

// InvariantViolation creates an InvariantViolation error.
func InvariantViolation(format string, args ...any) *Error {
	return New(KindInvariantViolation, format, args...)
}

// WithStage returns e annotated with a stage name.
func (e *Error) WithStage(stage string) *Error {
	e.Stage = stage
	return e
}

// KindOf returns the Kind of err, or "" if err is not a simulation error.
// Uses errors.As to handle wrapped errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// Is reports whether err is a simulation error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsFatal reports whether err should abort the step or startup.
func IsFatal(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind.Fatal()
	}
	return false
}
