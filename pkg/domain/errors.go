package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies trade failures so callers can decide whether rotating
// to another execution backend is worthwhile.
type ErrorKind string

const (
	// ErrKindBuild means the transaction could not be assembled from the
	// given instructions and config. This indicates a caller bug and is
	// fatal for the attempt; rotating backends would not help.
	ErrKindBuild ErrorKind = "build_error"
	// ErrKindSubmission means the backend rejected the transaction or the
	// network failed before it landed.
	ErrKindSubmission ErrorKind = "submission_error"
	// ErrKindConfirmationTimeout means no terminal status was observed
	// within the confirmation window.
	ErrKindConfirmationTimeout ErrorKind = "confirmation_timeout"
	// ErrKindOnChain means the transaction landed but failed execution.
	ErrKindOnChain ErrorKind = "on_chain_error"
	// ErrKindValidation means the target pool failed one or more safety
	// checks and the trade was not attempted.
	ErrKindValidation ErrorKind = "validation_failure"
	// ErrKindExhausted means every enabled backend failed after the
	// configured number of retries.
	ErrKindExhausted ErrorKind = "exhausted_strategies"
	// ErrKindUnsupportedLayout means raw account bytes did not match any
	// known schema version.
	ErrKindUnsupportedLayout ErrorKind = "unsupported_layout"
	// ErrKindConfiguration means required configuration is missing or
	// invalid. Only this kind may abort the process, and only at startup.
	ErrKindConfiguration ErrorKind = "configuration_error"
)

// TradeError wraps a failure with its taxonomy kind
type TradeError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface
func (e *TradeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause
func (e *TradeError) Unwrap() error {
	return e.Err
}

// NewTradeError creates a typed trade error wrapping an optional cause
func NewTradeError(kind ErrorKind, message string, err error) *TradeError {
	return &TradeError{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the taxonomy kind from an error chain. Untyped errors are
// reported as submission errors, the conservative rotation-eligible default.
func KindOf(err error) ErrorKind {
	var te *TradeError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ErrKindSubmission
}

// IsRotationEligible reports whether a failed attempt should move on to the
// next backend. Build errors are caller bugs; retrying them verbatim on a
// different backend would repeat the failure.
func IsRotationEligible(err error) bool {
	return KindOf(err) != ErrKindBuild
}

// ErrAccountNotFound is returned by chain reads when the address holds no
// account at the requested commitment level.
var ErrAccountNotFound = errors.New("account not found")

// ErrUnsupportedRead is returned when the chain node does not support the
// requested read. The burn check treats this as a pass rather than a
// validation failure.
var ErrUnsupportedRead = errors.New("read not supported by node")

// ErrNotFound is returned by cache lookups that miss in every tier.
var ErrNotFound = errors.New("not found")
