// Package parity is a reference Game implementation exercising a
// multi-token, two-phase Commit/Reveal move sequence — it supplements
// coinflip (which only ever has one single-token commitment) so the
// MerkleR4 / Concat commitment methods and FinalContent.CommitmentMethod
// are exercised end to end.
//
// Each player commits to N>=2 tokens at Challenge/Accept time, publishes a
// Commit move (a no-op placeholder acknowledging the phase), then a
// Reveal move naming all N tokens. The winner is whichever player's
// revealed token set sums to an even total of C[0] bytes XORed together,
// tie-broken the same way as coinflip: the player whose XOR byte is
// numerically lower wins when both parities agree.
package parity

import (
	"encoding/json"
	"fmt"

	"github.com/EthnTuttle/kirk/pkg/event"
	"github.com/EthnTuttle/kirk/pkg/game"
)

const Name = "parity"

// MinTokens is the minimum number of tokens a player must commit to,
// ensuring the game always exercises a multi-token commitment method.
const MinTokens = 2

type Game struct{}

func New() *Game { return &Game{} }

func (Game) Name() string { return Name }

// DecodeCValue returns a single Piece: the parity (0 or 1) of c[0].
func (Game) DecodeCValue(c [32]byte) []game.Piece {
	return []game.Piece{int(c[0] & 1)}
}

func (Game) ValidateMove(events []event.Event, mv event.Event, author event.PublicKey) error {
	content, err := event.Parse(mv)
	if err != nil {
		return &game.InvalidMove{Reason: fmt.Sprintf("unparseable move: %v", err)}
	}
	mc, ok := content.(event.MoveContent)
	if !ok {
		return &game.InvalidMove{Reason: "expected move content"}
	}

	phase := phaseOf(events, author)
	switch mc.MoveType {
	case event.MoveKindCommit:
		if phase != phaseNone {
			return &game.InvalidMove{Reason: "author has already committed"}
		}
	case event.MoveKindReveal:
		if phase != phaseCommitted {
			return &game.InvalidMove{Reason: "reveal must follow a prior commit"}
		}
		if len(mc.RevealedTokens) < MinTokens {
			return &game.InvalidMove{Reason: fmt.Sprintf("reveal must name at least %d tokens", MinTokens)}
		}
	default:
		return &game.InvalidMove{Reason: "parity only accepts Commit then Reveal"}
	}
	return nil
}

type playerPhase int

const (
	phaseNone playerPhase = iota
	phaseCommitted
	phaseRevealed
)

func phaseOf(events []event.Event, author event.PublicKey) playerPhase {
	phase := phaseNone
	for _, e := range events {
		if e.Kind != event.KindMove || e.AuthorPubKey != author {
			continue
		}
		content, err := event.Parse(e)
		if err != nil {
			continue
		}
		mc, ok := content.(event.MoveContent)
		if !ok {
			continue
		}
		switch mc.MoveType {
		case event.MoveKindCommit:
			if phase == phaseNone {
				phase = phaseCommitted
			}
		case event.MoveKindReveal:
			phase = phaseRevealed
		}
	}
	return phase
}

func (Game) IsComplete(events []event.Event) bool {
	authors := distinctAuthors(events)
	for _, a := range authors {
		if phaseOf(events, a) != phaseRevealed {
			return false
		}
	}
	return len(authors) >= 2
}

func distinctAuthors(events []event.Event) []event.PublicKey {
	seen := map[event.PublicKey]bool{}
	var out []event.PublicKey
	for _, e := range events {
		if e.Kind != event.KindMove {
			continue
		}
		if !seen[e.AuthorPubKey] {
			seen[e.AuthorPubKey] = true
			out = append(out, e.AuthorPubKey)
		}
	}
	return out
}

func (g Game) DetermineWinner(events []event.Event) (*event.PublicKey, error) {
	type tally struct {
		author event.PublicKey
		xorByte byte
		parity  int
	}
	var tallies []tally
	for _, a := range distinctAuthors(events) {
		var xorByte byte
		var parity int
		found := false
		for _, e := range events {
			if e.Kind != event.KindMove || e.AuthorPubKey != a {
				continue
			}
			content, err := event.Parse(e)
			if err != nil {
				return nil, fmt.Errorf("parity: %w", err)
			}
			mc, ok := content.(event.MoveContent)
			if !ok || mc.MoveType != event.MoveKindReveal {
				continue
			}
			found = true
			for _, wt := range mc.RevealedTokens {
				tok := wt.ToToken()
				for _, p := range tok.Proofs {
					xorByte ^= p.C[0]
					parity ^= g.DecodeCValue(p.C)[0].(int)
				}
			}
		}
		if !found {
			continue
		}
		tallies = append(tallies, tally{author: a, xorByte: xorByte, parity: parity})
	}
	if len(tallies) != 2 {
		return nil, fmt.Errorf("parity: determine_winner requires exactly two revealers, got %d", len(tallies))
	}

	x, y := tallies[0], tallies[1]
	switch {
	case x.parity == 0 && y.parity == 1:
		return &x.author, nil
	case y.parity == 0 && x.parity == 1:
		return &y.author, nil
	case x.xorByte < y.xorByte:
		return &x.author, nil
	case y.xorByte < x.xorByte:
		return &y.author, nil
	default:
		return nil, nil
	}
}

func (Game) RequiredFinalEvents() int { return 2 }

func (Game) ValidateParameters(raw json.RawMessage) error { return nil }

func (Game) RewardPolicy(burn game.BurnSet) uint64 {
	return burn.TotalAmount()
}

var _ game.Game = Game{}
