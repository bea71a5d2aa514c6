// Package coinflip is a reference Game implementation: each player
// commits to a single token at Challenge/Accept time and reveals it in one
// Move. The low bit of the revealed token's C[0] decides Heads (even) or
// Tails (odd); Heads beats Tails, and a same-result tie is broken by the
// lower raw C[0] byte.
package coinflip

import (
	"encoding/json"
	"fmt"

	"github.com/EthnTuttle/kirk/pkg/event"
	"github.com/EthnTuttle/kirk/pkg/game"
)

const Name = "coinflip"

// Side is the decoded Piece for CoinFlip.
type Side int

const (
	Heads Side = iota
	Tails
)

func (s Side) String() string {
	if s == Heads {
		return "heads"
	}
	return "tails"
}

// Game implements game.Game for a single-token coin flip.
type Game struct{}

func New() *Game { return &Game{} }

func (Game) Name() string { return Name }

// DecodeCValue returns one Side: Heads if c[0] is even, Tails if odd.
func (Game) DecodeCValue(c [32]byte) []game.Piece {
	if c[0]%2 == 0 {
		return []game.Piece{Heads}
	}
	return []game.Piece{Tails}
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
	if mc.MoveType != event.MoveKindMove {
		return &game.InvalidMove{Reason: "coinflip only accepts direct Move, not Commit/Reveal"}
	}
	if len(mc.RevealedTokens) != 1 {
		return &game.InvalidMove{Reason: "coinflip move must reveal exactly one token"}
	}
	if len(mc.RevealedTokens[0].Proofs) == 0 {
		return &game.InvalidMove{Reason: "revealed token has no proofs"}
	}
	if movesByAuthor(events, author) > 0 {
		return &game.InvalidMove{Reason: "author has already moved"}
	}
	return nil
}

func movesByAuthor(events []event.Event, author event.PublicKey) int {
	count := 0
	for _, e := range events {
		if e.Kind != event.KindMove || e.AuthorPubKey != author {
			continue
		}
		count++
	}
	return count
}

func (Game) IsComplete(events []event.Event) bool {
	seen := map[event.PublicKey]bool{}
	for _, e := range events {
		if e.Kind != event.KindMove {
			continue
		}
		content, err := event.Parse(e)
		if err != nil {
			continue
		}
		mc, ok := content.(event.MoveContent)
		if !ok || len(mc.RevealedTokens) != 1 {
			continue
		}
		seen[e.AuthorPubKey] = true
	}
	return len(seen) >= 2
}

func (g Game) DetermineWinner(events []event.Event) (*event.PublicKey, error) {
	type reveal struct {
		author event.PublicKey
		side   Side
		raw    byte
	}
	var reveals []reveal
	for _, e := range events {
		if e.Kind != event.KindMove {
			continue
		}
		content, err := event.Parse(e)
		if err != nil {
			return nil, fmt.Errorf("coinflip: %w", err)
		}
		mc, ok := content.(event.MoveContent)
		if !ok || len(mc.RevealedTokens) != 1 {
			continue
		}
		tok := mc.RevealedTokens[0].ToToken()
		if len(tok.Proofs) == 0 {
			continue
		}
		c := tok.Proofs[0].C
		sides := g.DecodeCValue(c)
		reveals = append(reveals, reveal{author: e.AuthorPubKey, side: sides[0].(Side), raw: c[0]})
	}
	if len(reveals) != 2 {
		return nil, fmt.Errorf("coinflip: determine_winner requires exactly two reveals, got %d", len(reveals))
	}

	a, b := reveals[0], reveals[1]
	var winner event.PublicKey
	switch {
	case a.side == Heads && b.side == Tails:
		winner = a.author
	case b.side == Heads && a.side == Tails:
		winner = b.author
	case a.raw < b.raw:
		winner = a.author
	case b.raw < a.raw:
		winner = b.author
	default:
		return nil, nil // exact tie: draw
	}
	return &winner, nil
}

func (Game) RequiredFinalEvents() int { return 2 }

func (Game) ValidateParameters(raw json.RawMessage) error { return nil }

// RewardPolicy is the default: sum of burn-set proof amounts. Fee
// deduction is applied by pkg/reward from the mint's actual melt return,
// not here.
func (Game) RewardPolicy(burn game.BurnSet) uint64 {
	return burn.TotalAmount()
}

var _ game.Game = Game{}
