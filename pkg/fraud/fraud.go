// Package fraud implements classification of any sequence deviation to a
// forfeit verdict identifying the first offender. This package is
// deliberately dumb — it has no access to the event list itself, only
// the facts pkg/sequence and pkg/validator have already extracted from it
// (who revealed what, whose commitment mismatched, which move failed). It
// exists to centralize the "what does this class of fault resolve to"
// policy in one place.
package fraud

import "github.com/EthnTuttle/kirk/pkg/event"

// Class is one of the six fraud/forfeit classes the engine recognizes.
type Class string

const (
	ClassInvalidToken         Class = "invalid_token"
	ClassCommitmentMismatch   Class = "commitment_mismatch"
	ClassIllegalMove          Class = "illegal_move"
	ClassChainViolation       Class = "chain_violation"
	ClassReplay               Class = "replay"
	ClassTimeout              Class = "timeout"
)

// Verdict is the outcome of a fraud classification: Offender is the first
// offending party (empty for a draw), Honest is the counterparty who
// receives the reward basis, OffendingEvent names the event that
// triggered the classification.
type Verdict struct {
	Class          Class
	Offender       event.PublicKey
	Honest         event.PublicKey
	OffendingEvent event.ID
	Reason         string
	Draw           bool
}

// Peer returns the other player given a two-player set and one of them.
func Peer(players [2]event.PublicKey, of event.PublicKey) event.PublicKey {
	if players[0] == of {
		return players[1]
	}
	return players[0]
}

func classify(class Class, players [2]event.PublicKey, offender event.PublicKey, offendingEvent event.ID, reason string) Verdict {
	return Verdict{
		Class:          class,
		Offender:       offender,
		Honest:         Peer(players, offender),
		OffendingEvent: offendingEvent,
		Reason:         reason,
	}
}

// InvalidToken: the mint refuses a revealed token. Offender = revealer.
func InvalidToken(players [2]event.PublicKey, revealer event.PublicKey, offendingEvent event.ID, reason string) Verdict {
	return classify(ClassInvalidToken, players, revealer, offendingEvent, reason)
}

// CommitmentMismatch: at Final, the reconstructed commitment from the
// author's revealed tokens does not equal the recorded commitment hash.
// Offender = that author.
func CommitmentMismatch(players [2]event.PublicKey, author event.PublicKey, offendingEvent event.ID, reason string) Verdict {
	return classify(ClassCommitmentMismatch, players, author, offendingEvent, reason)
}

// IllegalMove: the game's ValidateMove rejected the move. Offender = mover.
func IllegalMove(players [2]event.PublicKey, mover event.PublicKey, offendingEvent event.ID, reason string) Verdict {
	return classify(ClassIllegalMove, players, mover, offendingEvent, reason)
}

// ChainViolation: previous_event_id missing, points past terminal state,
// or forks illegally. Offender = author.
func ChainViolation(players [2]event.PublicKey, author event.PublicKey, offendingEvent event.ID, reason string) Verdict {
	return classify(ClassChainViolation, players, author, offendingEvent, reason)
}

// Replay: a token hashed in this sequence was already revealed in another
// completed sequence known to the mint. Offender = revealer.
func Replay(players [2]event.PublicKey, revealer event.PublicKey, offendingEvent event.ID, reason string) Verdict {
	return classify(ClassReplay, players, revealer, offendingEvent, reason)
}

// Timeout: a deadline elapsed without the expected event. Offender = the
// party obliged to act. If both parties are simultaneously delinquent,
// call Drawn instead — a timeout draw has no offender and issues no
// reward.
func Timeout(players [2]event.PublicKey, delinquent event.PublicKey, reason string) Verdict {
	v := classify(ClassTimeout, players, delinquent, event.ID{}, reason)
	return v
}

// Drawn represents the rare simultaneous-timeout race: the sequence is
// declared drawn with no rewards and no named offender.
func Drawn(reason string) Verdict {
	return Verdict{Class: ClassTimeout, Reason: reason, Draw: true}
}
