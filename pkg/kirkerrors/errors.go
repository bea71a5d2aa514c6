// Package kirkerrors implements the engine's error taxonomy as a closed
// set of wrapped error classes. Codec, mint, transport and internal
// failures are returned as one of these; some structural rejections (for
// example a duplicate event id in pkg/sequence) are plain errors. Callers
// type-switch or errors.Is against the sentinels below rather than
// matching on message text.
package kirkerrors

import (
	"errors"
	"fmt"
)

// Class names one of the taxonomy's members.
type Class string

const (
	ClassTransport  Class = "transport_failure"
	ClassMint       Class = "mint_failure"
	ClassCodec      Class = "codec_error"
	ClassCommitment Class = "commitment_error"
	ClassGameRule   Class = "game_rule_violation"
	ClassTimeout    Class = "timeout_violation"
	ClassReplay     Class = "replay_detected"
	ClassInternal   Class = "internal_error"
)

// Sentinel errors for errors.Is matching against a Class regardless of the
// wrapped cause or attached event id.
var (
	ErrTransport  = errors.New("transport failure")
	ErrMint       = errors.New("mint failure")
	ErrCodec      = errors.New("codec error")
	ErrCommitment = errors.New("commitment error")
	ErrGameRule   = errors.New("game rule violation")
	ErrTimeout    = errors.New("timeout violation")
	ErrReplay     = errors.New("replay detected")
	ErrInternal   = errors.New("internal error")
)

var classSentinel = map[Class]error{
	ClassTransport:  ErrTransport,
	ClassMint:       ErrMint,
	ClassCodec:      ErrCodec,
	ClassCommitment: ErrCommitment,
	ClassGameRule:   ErrGameRule,
	ClassTimeout:    ErrTimeout,
	ClassReplay:     ErrReplay,
	ClassInternal:   ErrInternal,
}

// Error is the engine's single sum-type error surface. EventID names
// the offending event when known; Retryable marks TransportFailure and
// MintFailure as eligible for bounded retry with backoff.
type Error struct {
	Class     Class
	EventID   string
	Retryable bool
	cause     error
}

func (e *Error) Error() string {
	if e.EventID != "" {
		return fmt.Sprintf("%s [event %s]: %v", e.Class, e.EventID, e.cause)
	}
	return fmt.Sprintf("%s: %v", e.Class, e.cause)
}

func (e *Error) Unwrap() []error {
	sentinel := classSentinel[e.Class]
	if sentinel == nil {
		return []error{e.cause}
	}
	return []error{sentinel, e.cause}
}

func wrap(class Class, retryable bool, eventID string, cause error) *Error {
	if cause == nil {
		cause = classSentinel[class]
	}
	return &Error{Class: class, EventID: eventID, Retryable: retryable, cause: cause}
}

// Transport wraps a publish/fetch/subscribe failure. Retryable with
// exponential backoff.
func Transport(cause error) *Error { return wrap(ClassTransport, true, "", cause) }

// Mint wraps a verify/mint/melt failure against the mint service.
// Retryable with exponential backoff.
func Mint(cause error) *Error { return wrap(ClassMint, true, "", cause) }

// Codec wraps a malformed-event-content failure. Treated as InvalidSequence
// fraud against eventID's author.
func Codec(eventID string, cause error) *Error { return wrap(ClassCodec, false, eventID, cause) }

// Commitment wraps a commitment reconstruction/verification mismatch.
// Fraud against eventID's author.
func Commitment(eventID string, cause error) *Error {
	return wrap(ClassCommitment, false, eventID, cause)
}

// GameRule wraps a validate_move rejection. Fraud against the mover.
func GameRule(eventID string, cause error) *Error {
	return wrap(ClassGameRule, false, eventID, cause)
}

// Timeout wraps a TimeoutViolation(phase). Forfeit against the delinquent
// party.
func Timeout(eventID string, cause error) *Error {
	return wrap(ClassTimeout, false, eventID, cause)
}

// Replay wraps a token-reuse detection. Fraud against the revealer.
func Replay(eventID string, cause error) *Error {
	return wrap(ClassReplay, false, eventID, cause)
}

// Internal wraps an engine precondition violation. Not forwarded as fraud;
// surfaces as a ValidationFailure reward payload with a stable reason.
func Internal(cause error) *Error { return wrap(ClassInternal, false, "", cause) }

// IsFraud reports whether class c is adjudicated as fraud against a named
// offender (as opposed to Transport/Mint, which are retried, or Internal,
// which is neither fraud nor forfeit).
func (c Class) IsFraud() bool {
	switch c {
	case ClassCodec, ClassCommitment, ClassGameRule, ClassReplay:
		return true
	default:
		return false
	}
}
