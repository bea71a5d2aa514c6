// Package game implements the abstract game capability surface, and a
// registry keyed by game_type string rather than a class hierarchy.
package game

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/EthnTuttle/kirk/pkg/event"
	"github.com/EthnTuttle/kirk/pkg/tokenhash"
)

// Piece is the decoded output of a game's public-randomness source. The
// engine imposes no constraint on it beyond determinism: equal inputs
// yield equal outputs.
type Piece interface{}

// InvalidMove is returned by ValidateMove when a move is illegal under
// the game's own rules.
type InvalidMove struct {
	Reason string
}

func (e *InvalidMove) Error() string { return "invalid move: " + e.Reason }

// BurnSet is every token revealed in Move events by either player,
// collected by the engine for the reward policy.
type BurnSet struct {
	Tokens []tokenhash.Token
}

// TotalAmount sums the amount of every proof in every token in the set.
func (b BurnSet) TotalAmount() uint64 {
	var total uint64
	for _, t := range b.Tokens {
		for _, p := range t.Proofs {
			total += p.Amount
		}
	}
	return total
}

// Game is the capability bundle a concrete game provides. The engine
// stores one handle per sequence, selected by Challenge.game_type. State
// is always derived from the event list — games must not consult
// wall-clock time or keep private state across calls.
type Game interface {
	// Name is the game_type string this implementation answers to.
	Name() string

	// DecodeCValue is pure and total: it must produce the same Piece for
	// the same 32-byte input on every call.
	DecodeCValue(c [32]byte) []Piece

	// ValidateMove checks one move against the sequence replayed so far
	// and either accepts (nil error) or rejects with *InvalidMove.
	ValidateMove(events []event.Event, mv event.Event, author event.PublicKey) error

	// IsComplete decides whether the post-Accept move chain has reached a
	// terminal game position.
	IsComplete(events []event.Event) bool

	// DetermineWinner is total on complete sequences; a nil winner
	// encodes a draw.
	DetermineWinner(events []event.Event) (winner *event.PublicKey, err error)

	// RequiredFinalEvents is 1 or 2: how many players must sign Final
	// before the sequence can complete.
	RequiredFinalEvents() int

	// ValidateParameters optionally validates Challenge.game_parameters.
	// A nil error (including when unimplemented) accepts any payload.
	ValidateParameters(raw json.RawMessage) error

	// RewardPolicy computes the payout amount from the burn set. Modeled
	// as a Game capability, not a separate object, since the registry
	// already dispatches by game type.
	RewardPolicy(burn BurnSet) uint64
}

// Registry maps game_type strings to Game implementations.
type Registry struct {
	mu    sync.RWMutex
	games map[string]Game
}

func NewRegistry() *Registry {
	return &Registry{games: make(map[string]Game)}
}

func (r *Registry) Register(g Game) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.games[g.Name()] = g
}

func (r *Registry) Lookup(gameType string) (Game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.games[gameType]
	return g, ok
}

func (r *Registry) MustLookup(gameType string) (Game, error) {
	g, ok := r.Lookup(gameType)
	if !ok {
		return nil, fmt.Errorf("game: unknown game_type %q", gameType)
	}
	return g, nil
}
