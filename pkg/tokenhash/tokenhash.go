// Package tokenhash implements the deterministic canonical hash of an
// ecash token. It is a pure function with no I/O and no dependency on
// anything outside the standard library — the algorithm is fixed bit-for-bit
// by the protocol and admits no substitute implementation.
package tokenhash

import (
	"crypto/sha256"
	"encoding/binary"
)

// Proof is one quadruple of an ecash token as delivered by the mint:
// amount, keyset id, the blinded-signature secret, and the unblinded
// signature C (the source of the token's public randomness).
type Proof struct {
	Amount uint64
	ID     string
	Secret []byte
	C      [32]byte
}

// Token is a bearer credential carrying an unordered set of proofs, in the
// order the mint delivered them. Proof order is part of the token's
// identity as received — callers must not reorder it before hashing.
type Token struct {
	Proofs []Proof
}

// Hash returns the 32-byte canonical hash of t: SHA-256 over the
// concatenation, for every proof in t.Proofs in order, of
// amount(8B BE) || secret || c(32B) || id(UTF-8 bytes).
func Hash(t Token) [32]byte {
	h := sha256.New()
	var amountBuf [8]byte
	for _, p := range t.Proofs {
		binary.BigEndian.PutUint64(amountBuf[:], p.Amount)
		h.Write(amountBuf[:])
		h.Write(p.Secret)
		h.Write(p.C[:])
		h.Write([]byte(p.ID))
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
