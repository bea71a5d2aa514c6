// Package commitment implements the single / concatenation / radix-4
// Merkle commitment builders and their verifier. The Merkle construction
// generalizes a binary Merkle tree to radix-4 grouping with zero-padded
// missing children.
package commitment

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"sort"

	"github.com/EthnTuttle/kirk/pkg/tokenhash"
)

// Method names the commitment construction used to derive Hash, published
// at finalization time.
type Method string

const (
	Single    Method = "single"
	Concat    Method = "concat"
	MerkleR4  Method = "merkle_r4"
)

// Commitment is the 32-byte published hash plus the tag needed to
// reproduce it.
type Commitment struct {
	Hash   [32]byte
	Method Method
}

// BuildSingle builds a Commitment over exactly one token: hash =
// SHA256(hash_token(token)).
func BuildSingle(t tokenhash.Token) Commitment {
	th := tokenhash.Hash(t)
	sum := sha256.Sum256(th[:])
	return Commitment{Hash: sum, Method: Single}
}

// BuildMulti builds a Commitment over one or more tokens using method,
// which must be Concat or MerkleR4. Tokens are first reduced to their
// canonical hashes and sorted ascending by unsigned byte-string
// comparison, so the result is invariant under permutations of tokens.
func BuildMulti(tokens []tokenhash.Token, method Method) (Commitment, error) {
	if len(tokens) == 0 {
		return Commitment{}, fmt.Errorf("commitment: BuildMulti requires at least one token")
	}
	if method != Concat && method != MerkleR4 {
		return Commitment{}, fmt.Errorf("commitment: BuildMulti method must be concat or merkle_r4, got %q", method)
	}

	hs := sortedHashes(tokens)

	var hash [32]byte
	switch method {
	case Concat:
		hash = concatHash(hs)
	case MerkleR4:
		hash = merkleR4Root(hs)
	}
	return Commitment{Hash: hash, Method: method}, nil
}

// Build dispatches to BuildSingle or BuildMulti based on method and token
// count, for callers that don't want to branch themselves.
func Build(tokens []tokenhash.Token, method Method) (Commitment, error) {
	if method == Single {
		if len(tokens) != 1 {
			return Commitment{}, fmt.Errorf("commitment: Single method requires exactly one token, got %d", len(tokens))
		}
		return BuildSingle(tokens[0]), nil
	}
	return BuildMulti(tokens, method)
}

// Verify reconstructs a commitment from tokens using c.Method and reports
// whether it matches c.Hash with a constant-time comparison.
func Verify(c Commitment, tokens []tokenhash.Token) bool {
	var rebuilt Commitment
	var err error
	if c.Method == Single {
		if len(tokens) != 1 {
			return false
		}
		rebuilt = BuildSingle(tokens[0])
	} else {
		rebuilt, err = BuildMulti(tokens, c.Method)
		if err != nil {
			return false
		}
	}
	return subtle.ConstantTimeCompare(rebuilt.Hash[:], c.Hash[:]) == 1
}

func sortedHashes(tokens []tokenhash.Token) [][32]byte {
	hs := make([][32]byte, len(tokens))
	for i, t := range tokens {
		hs[i] = tokenhash.Hash(t)
	}
	sort.Slice(hs, func(i, j int) bool {
		return bytes.Compare(hs[i][:], hs[j][:]) < 0
	})
	return hs
}

func concatHash(hs [][32]byte) [32]byte {
	h := sha256.New()
	for _, leaf := range hs {
		h.Write(leaf[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// merkleR4Root builds a radix-4 Merkle tree over hs as leaves. At each
// level, nodes are grouped in fours left-to-right; each parent is
// SHA256(child0||child1||child2||child3), with missing children replaced
// by 32 zero bytes. A single-leaf tree yields that leaf directly, with no
// additional hashing.
func merkleR4Root(hs [][32]byte) [32]byte {
	if len(hs) == 1 {
		return hs[0]
	}

	level := make([][32]byte, len(hs))
	copy(level, hs)

	var zero [32]byte
	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+3)/4)
		for i := 0; i < len(level); i += 4 {
			h := sha256.New()
			for j := 0; j < 4; j++ {
				if i+j < len(level) {
					h.Write(level[i+j][:])
				} else {
					h.Write(zero[:])
				}
			}
			var parent [32]byte
			copy(parent[:], h.Sum(nil))
			next = append(next, parent)
		}
		level = next
	}
	return level[0]
}
