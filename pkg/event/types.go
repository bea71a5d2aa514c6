// Package event implements the five-kind event schema: canonical
// encoding, signing, and chain-link extraction shared by every event a
// player or the engine publishes.
package event

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/EthnTuttle/kirk/pkg/commitment"
	"github.com/EthnTuttle/kirk/pkg/tokenhash"
)

// Kind is one of the five wire-level event kinds, fixed for
// interoperability across implementations.
type Kind int

const (
	KindChallenge       Kind = 9259
	KindChallengeAccept Kind = 9260
	KindMove            Kind = 9261
	KindFinal           Kind = 9262
	KindReward          Kind = 9263
)

func (k Kind) String() string {
	switch k {
	case KindChallenge:
		return "Challenge"
	case KindChallengeAccept:
		return "ChallengeAccept"
	case KindMove:
		return "Move"
	case KindFinal:
		return "Final"
	case KindReward:
		return "Reward"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ID is a 32-byte event identifier: the hash of the event's canonical
// serialization. It marshals as lowercase, unprefixed, 64-char hex.
type ID [32]byte

func (id ID) String() string { return hex.EncodeToString(id[:]) }

func (id ID) IsZero() bool { return id == ID{} }

func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *ID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return id.UnmarshalText([]byte(s))
}

func (id *ID) UnmarshalText(b []byte) error {
	if len(b) != 64 {
		return fmt.Errorf("event: id must be 64 hex chars, got %d", len(b))
	}
	raw, err := hex.DecodeString(string(b))
	if err != nil {
		return fmt.Errorf("event: malformed hex id: %w", err)
	}
	copy(id[:], raw)
	return nil
}

func IDFromHex(s string) (ID, error) {
	var id ID
	err := id.UnmarshalText([]byte(s))
	return id, err
}

// Hash32 is a generic 32-byte hex-encoded value used for commitment
// hashes and token hashes on the wire.
type Hash32 [32]byte

func (h Hash32) String() string { return hex.EncodeToString(h[:]) }

func (h Hash32) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

func (h *Hash32) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if len(s) != 64 {
		return fmt.Errorf("event: hash32 must be 64 hex chars, got %d", len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("event: malformed hex hash32: %w", err)
	}
	copy(h[:], raw)
	return nil
}

// PublicKey is an ed25519 public key, 32 bytes, hex-encoded on the wire.
type PublicKey [ed25519.PublicKeySize]byte

func (k PublicKey) String() string { return hex.EncodeToString(k[:]) }

func (k PublicKey) Ed25519() ed25519.PublicKey { return ed25519.PublicKey(k[:]) }

func (k PublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *PublicKey) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("event: malformed hex pubkey: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return fmt.Errorf("event: pubkey must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	copy(k[:], raw)
	return nil
}

func PubKeyFromEd25519(pk ed25519.PublicKey) PublicKey {
	var out PublicKey
	copy(out[:], pk)
	return out
}

// MoveKind distinguishes the three move shapes a 9261 event may carry.
type MoveKind string

const (
	MoveKindMove   MoveKind = "Move"
	MoveKindCommit MoveKind = "Commit"
	MoveKindReveal MoveKind = "Reveal"
)

func (m MoveKind) valid() bool {
	switch m {
	case MoveKindMove, MoveKindCommit, MoveKindReveal:
		return true
	default:
		return false
	}
}

// WireToken mirrors tokenhash.Token in its wire JSON shape (base64 secret,
// hex C, matching the proof quadruple tokenhash hashes over).
type WireToken struct {
	Proofs []WireProof `json:"proofs"`
}

type WireProof struct {
	Amount uint64 `json:"amount"`
	ID     string `json:"id"`
	Secret []byte `json:"secret"`
	C      Hash32 `json:"c"`
}

func (w WireToken) ToToken() tokenhash.Token {
	out := tokenhash.Token{Proofs: make([]tokenhash.Proof, len(w.Proofs))}
	for i, p := range w.Proofs {
		out.Proofs[i] = tokenhash.Proof{Amount: p.Amount, ID: p.ID, Secret: p.Secret, C: [32]byte(p.C)}
	}
	return out
}

func TokenToWire(t tokenhash.Token) WireToken {
	out := WireToken{Proofs: make([]WireProof, len(t.Proofs))}
	for i, p := range t.Proofs {
		out.Proofs[i] = WireProof{Amount: p.Amount, ID: p.ID, Secret: p.Secret, C: Hash32(p.C)}
	}
	return out
}

// ChallengeContent is the 9259 payload.
type ChallengeContent struct {
	GameType         string      `json:"game_type"`
	CommitmentHashes []Hash32    `json:"commitment_hashes"`
	GameParameters   json.RawMessage `json:"game_parameters,omitempty"`
	Expiry           *uint64     `json:"expiry,omitempty"`
}

// ChallengeAcceptContent is the 9260 payload.
type ChallengeAcceptContent struct {
	ChallengeID      ID       `json:"challenge_id"`
	CommitmentHashes []Hash32 `json:"commitment_hashes"`
}

// MoveContent is the 9261 payload.
type MoveContent struct {
	PreviousEventID ID              `json:"previous_event_id"`
	MoveType        MoveKind        `json:"move_type"`
	MoveData        json.RawMessage `json:"move_data,omitempty"`
	RevealedTokens  []WireToken     `json:"revealed_tokens,omitempty"`
}

// FinalContent is the 9262 payload.
type FinalContent struct {
	GameSequenceRoot ID                   `json:"game_sequence_root"`
	CommitmentMethod *commitment.Method   `json:"commitment_method,omitempty"`
	FinalState       json.RawMessage      `json:"final_state,omitempty"`
}

// RewardContent is the 9263 payload, success case.
type RewardContent struct {
	GameSequenceRoot   ID          `json:"game_sequence_root"`
	WinnerPubKey       PublicKey   `json:"winner_pubkey"`
	RewardTokens       []WireToken `json:"reward_tokens"`
	UnlockInstructions *string     `json:"unlock_instructions,omitempty"`
}

// ValidationFailureContent is the 9263 payload's alternative failure case:
// distinct from fraud, which still produces a winner.
type ValidationFailureContent struct {
	GameSequenceRoot ID     `json:"game_sequence_root"`
	Reason           string `json:"reason"`
	OffendingEventID *ID    `json:"offending_event_id,omitempty"`
}
