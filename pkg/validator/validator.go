// Package validator implements offline replay of a complete event list
// into a deterministic ValidationResult. It owns no state of its own —
// every run is a pure function of its inputs (events, game registry,
// mint checker, observation time).
package validator

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/EthnTuttle/kirk/pkg/event"
	"github.com/EthnTuttle/kirk/pkg/fraud"
	"github.com/EthnTuttle/kirk/pkg/game"
	"github.com/EthnTuttle/kirk/pkg/kirkerrors"
	"github.com/EthnTuttle/kirk/pkg/sequence"
)

// ErrorKind is one of the five tags a ValidationResult carries.
type ErrorKind string

const (
	ErrInvalidToken      ErrorKind = "InvalidToken"
	ErrInvalidCommitment ErrorKind = "InvalidCommitment"
	ErrInvalidSequence   ErrorKind = "InvalidSequence"
	ErrInvalidMove       ErrorKind = "InvalidMove"
	ErrTimeoutViolation  ErrorKind = "TimeoutViolation"
)

// ValidationError names the offending event, a kind tag, and a stable
// message.
type ValidationError struct {
	EventID event.ID
	Kind    ErrorKind
	Message string
}

// Result is the deterministic output of a validation run.
type Result struct {
	IsValid         bool
	Winner          *event.PublicKey
	Errors          []ValidationError
	ForfeitedPlayer *event.PublicKey
}

func classToKind(c fraud.Class) ErrorKind {
	switch c {
	case fraud.ClassInvalidToken, fraud.ClassReplay:
		return ErrInvalidToken
	case fraud.ClassCommitmentMismatch:
		return ErrInvalidCommitment
	case fraud.ClassIllegalMove:
		return ErrInvalidMove
	case fraud.ClassChainViolation:
		return ErrInvalidSequence
	case fraud.ClassTimeout:
		return ErrTimeoutViolation
	default:
		return ErrInvalidSequence
	}
}

// classifyErr derives a ValidationError's Kind tag from an error the
// sequence pipeline returned (as opposed to a forfeit verdict, which
// carries its own fraud.Class): a *kirkerrors.Error classifies by its own
// Class, anything else falls back to InvalidSequence, the catch-all for
// structural replay failures with no more specific taxonomy member.
func classifyErr(err error) ErrorKind {
	var ke *kirkerrors.Error
	if errors.As(err, &ke) {
		switch ke.Class {
		case kirkerrors.ClassMint, kirkerrors.ClassReplay:
			return ErrInvalidToken
		case kirkerrors.ClassCommitment:
			return ErrInvalidCommitment
		case kirkerrors.ClassGameRule:
			return ErrInvalidMove
		case kirkerrors.ClassTimeout:
			return ErrTimeoutViolation
		}
	}
	return ErrInvalidSequence
}

func sortEvents(events []event.Event) []event.Event {
	out := make([]event.Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out
}

// Validate sorts events by (created_at, id), replays them through the
// sequence state machine, and returns a deterministic Result. registry may
// be nil, in which case game-specific rule checks (ValidateMove,
// IsComplete, DetermineWinner) are skipped and the sequence can progress
// only on structural grounds — used by tooling that only cares about
// chain/commitment integrity, not game rules.
//
// mintChecker, when non-nil, is consulted for every revealed token so
// double-spent, unknown, or cross-sequence-replayed tokens forfeit the
// sequence instead of silently passing until reward time; passing nil
// skips that check, which is the only option available to tooling with no
// live mint connection. observedAt is the caller's "now" for the clock
// skew check (unix seconds); passing 0 skips it, preserving byte-identical
// results for the same event list replayed at different times.
func Validate(events []event.Event, registry *game.Registry, mintChecker sequence.MintChecker, observedAt int64) Result {
	if len(events) == 0 {
		return Result{IsValid: false, Errors: []ValidationError{{Kind: ErrInvalidSequence, Message: "empty event list"}}}
	}

	sorted := sortEvents(events)

	if sorted[0].Kind != event.KindChallenge {
		return Result{IsValid: false, Errors: []ValidationError{{
			EventID: sorted[0].ID, Kind: ErrInvalidSequence, Message: "first event in sorted order is not a Challenge",
		}}}
	}
	for _, e := range sorted[1:] {
		if e.Kind == event.KindChallenge {
			return Result{IsValid: false, Errors: []ValidationError{{
				EventID: e.ID, Kind: ErrInvalidSequence, Message: "a second Challenge event appears after position 0",
			}}}
		}
	}

	var g game.Game
	if registry != nil {
		if content, err := event.Parse(sorted[0]); err == nil {
			if cc, ok := content.(event.ChallengeContent); ok {
				g, _ = registry.Lookup(cc.GameType)
			}
		}
	}

	if !event.VerifySignature(sorted[0]) {
		return Result{IsValid: false, Errors: []ValidationError{{
			EventID: sorted[0].ID, Kind: ErrInvalidSequence, Message: "challenge signature does not verify",
		}}}
	}

	seq, err := sequence.New(sorted[0], g, sequence.WithMintChecker(mintChecker))
	if err != nil {
		return Result{IsValid: false, Errors: []ValidationError{{
			EventID: sorted[0].ID, Kind: classifyErr(err), Message: fmt.Sprintf("invalid challenge: %v", err),
		}}}
	}

	cfg := sequence.DefaultTimeoutConfig()
	result := Result{IsValid: true}
	for _, e := range sorted[1:] {
		if !event.VerifySignature(e) {
			result.Errors = append(result.Errors, ValidationError{
				EventID: e.ID, Kind: ErrInvalidSequence, Message: "signature does not verify",
			})
			continue
		}

		verdict, err := seq.Advance(e, observedAt, cfg)
		if err != nil {
			result.Errors = append(result.Errors, ValidationError{
				EventID: e.ID, Kind: classifyErr(err), Message: err.Error(),
			})
			continue
		}
		if verdict != nil {
			result.Errors = append(result.Errors, ValidationError{
				EventID: verdict.OffendingEvent, Kind: classToKind(verdict.Class), Message: verdict.Reason,
			})
			if !verdict.Draw && !seq.Dissolved {
				offender := verdict.Offender
				winner := verdict.Honest
				result.ForfeitedPlayer = &offender
				result.Winner = &winner
			}
			break
		}
	}

	if seq.State == sequence.StateComplete {
		result.Winner = seq.Winner
	}

	return result
}
