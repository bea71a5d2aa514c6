// Package mint defines the Mint consumer interface: the boundary between
// the engine and the ecash service that actually holds value. The engine
// never reimplements BDHKE blind signing or proof storage — it only calls
// through this interface for mint verify/melt/mint, the third of its
// external suspension points beside publish and subscribe/fetch (which go
// through pkg/transport).
package mint

import "github.com/EthnTuttle/kirk/pkg/tokenhash"

// Mint is the full surface the engine depends on.
type Mint interface {
	// MintGameTokens issues fresh bearer tokens totalling amount, with no
	// spending lock — used to seed a demo/test wallet, not part of the
	// reward path itself.
	MintGameTokens(amount uint64) ([]tokenhash.Token, error)

	// MintP2PKTokens issues fresh tokens totalling amount, locked to
	// lockPubKey (a compressed secp256k1 public key) — this is how reward
	// tokens are delivered to the winner.
	MintP2PKTokens(amount uint64, lockPubKey []byte) ([]tokenhash.Token, error)

	// Verify reports whether the mint considers t a validly-issued,
	// unspent token with a correct signature.
	Verify(t tokenhash.Token) (bool, error)

	// IsSpent reports whether t has already been melted or swapped.
	IsSpent(t tokenhash.Token) (bool, error)

	// Melt redeems tokens for their face value, marking them spent, and
	// returns the amount actually reclaimed after any mint fee — the fee
	// formula itself is left entirely to this call's return value.
	Melt(tokens []tokenhash.Token) (amountReclaimed uint64, err error)

	// Swap exchanges tokens for freshly-blinded tokens of equal total
	// value, breaking the linkability between the old and new bearer
	// instruments.
	Swap(tokens []tokenhash.Token) ([]tokenhash.Token, error)
}
