package event

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/EthnTuttle/kirk/pkg/kirkerrors"
)

// Event is a signed, timestamped, chained record.
type Event struct {
	ID           ID              `json:"id"`
	Kind         Kind            `json:"kind"`
	AuthorPubKey PublicKey       `json:"author_pubkey"`
	CreatedAt    int64           `json:"created_at"`
	Content      json.RawMessage `json:"content"`
	Signature    []byte          `json:"signature"`
}

// Content is implemented by the five kind-specific payload structs.
type Content interface {
	Kind() Kind
}

func (ChallengeContent) Kind() Kind       { return KindChallenge }
func (ChallengeAcceptContent) Kind() Kind { return KindChallengeAccept }
func (MoveContent) Kind() Kind            { return KindMove }
func (FinalContent) Kind() Kind           { return KindFinal }
func (RewardContent) Kind() Kind          { return KindReward }

// This Kind method lets ValidationFailureContent satisfy Content too,
// since both payload shapes share kind 9263.
func (ValidationFailureContent) Kind() Kind { return KindReward }

// envelope is the subset of Event fields that are hashed and signed —
// everything except id and signature themselves.
type envelope struct {
	AuthorPubKey PublicKey       `json:"author_pubkey"`
	Content      json.RawMessage `json:"content"`
	CreatedAt    int64           `json:"created_at"`
	Kind         Kind            `json:"kind"`
}

func canonicalEnvelope(authorPubKey PublicKey, kind Kind, createdAt int64, content json.RawMessage) ([]byte, error) {
	raw, err := json.Marshal(envelope{
		AuthorPubKey: authorPubKey,
		Content:      content,
		CreatedAt:    createdAt,
		Kind:         kind,
	})
	if err != nil {
		return nil, fmt.Errorf("event: marshal envelope: %w", err)
	}
	return Canonicalize(raw)
}

func computeID(authorPubKey PublicKey, kind Kind, createdAt int64, content json.RawMessage) (ID, []byte, error) {
	envBytes, err := canonicalEnvelope(authorPubKey, kind, createdAt, content)
	if err != nil {
		return ID{}, nil, err
	}
	sum := sha256.Sum256(envBytes)
	return ID(sum), envBytes, nil
}

// Build fills kind, stable-serializes content to canonical JSON, computes
// the id, and signs it with signingKey.
func Build(content Content, signingKey ed25519.PrivateKey, createdAt int64) (Event, error) {
	if len(signingKey) != ed25519.PrivateKeySize {
		return Event{}, fmt.Errorf("event: signing key must be %d bytes", ed25519.PrivateKeySize)
	}
	kind := content.Kind()

	rawContent, err := json.Marshal(content)
	if err != nil {
		return Event{}, fmt.Errorf("event: marshal content: %w", err)
	}
	canonicalContent, err := Canonicalize(rawContent)
	if err != nil {
		return Event{}, fmt.Errorf("event: canonicalize content: %w", err)
	}

	author := PubKeyFromEd25519(signingKey.Public().(ed25519.PublicKey))
	id, _, err := computeID(author, kind, createdAt, canonicalContent)
	if err != nil {
		return Event{}, err
	}

	sig := ed25519.Sign(signingKey, id[:])

	return Event{
		ID:           id,
		Kind:         kind,
		AuthorPubKey: author,
		CreatedAt:    createdAt,
		Content:      canonicalContent,
		Signature:    sig,
	}, nil
}

// VerifySignature recomputes e's id from its fields and checks both that
// the recomputed id matches e.ID and that e.Signature verifies over it.
func VerifySignature(e Event) bool {
	id, _, err := computeID(e.AuthorPubKey, e.Kind, e.CreatedAt, e.Content)
	if err != nil {
		return false
	}
	if id != e.ID {
		return false
	}
	return ed25519.Verify(e.AuthorPubKey.Ed25519(), id[:], e.Signature)
}

// Parse decodes e.Content into its kind-specific struct and performs the
// well-formedness checks that belong to the codec: unknown move_type,
// malformed hex commitments (enforced by Hash32/ID's UnmarshalJSON),
// wrong-kind content, and an expiry before created_at.
//
// The commitment-method-absent-for-multi-token-commitment check requires
// knowing the player's commitment cardinality from earlier events in the
// sequence, which Parse does not have access to in isolation; that check
// falls to pkg/sequence's Final handling, which has the whole sequence: an
// omitted method defaults to Single, which does not verify against more
// than one revealed token.
func Parse(e Event) (Content, error) {
	switch e.Kind {
	case KindChallenge:
		var c ChallengeContent
		if err := json.Unmarshal(e.Content, &c); err != nil {
			return nil, kirkerrors.Codec(e.ID.String(), fmt.Errorf("parse challenge: %w", err))
		}
		if c.Expiry != nil && int64(*c.Expiry) < e.CreatedAt {
			return nil, kirkerrors.Codec(e.ID.String(), fmt.Errorf("challenge expiry %d precedes created_at %d", *c.Expiry, e.CreatedAt))
		}
		return c, nil

	case KindChallengeAccept:
		var c ChallengeAcceptContent
		if err := json.Unmarshal(e.Content, &c); err != nil {
			return nil, kirkerrors.Codec(e.ID.String(), fmt.Errorf("parse challenge_accept: %w", err))
		}
		return c, nil

	case KindMove:
		var c MoveContent
		if err := json.Unmarshal(e.Content, &c); err != nil {
			return nil, kirkerrors.Codec(e.ID.String(), fmt.Errorf("parse move: %w", err))
		}
		if !c.MoveType.valid() {
			return nil, kirkerrors.Codec(e.ID.String(), fmt.Errorf("unknown move_type %q", c.MoveType))
		}
		return c, nil

	case KindFinal:
		var c FinalContent
		if err := json.Unmarshal(e.Content, &c); err != nil {
			return nil, kirkerrors.Codec(e.ID.String(), fmt.Errorf("parse final: %w", err))
		}
		return c, nil

	case KindReward:
		var probe struct {
			Reason *string `json:"reason"`
		}
		if err := json.Unmarshal(e.Content, &probe); err == nil && probe.Reason != nil {
			var f ValidationFailureContent
			if err := json.Unmarshal(e.Content, &f); err != nil {
				return nil, kirkerrors.Codec(e.ID.String(), fmt.Errorf("parse reward failure: %w", err))
			}
			return f, nil
		}
		var c RewardContent
		if err := json.Unmarshal(e.Content, &c); err != nil {
			return nil, kirkerrors.Codec(e.ID.String(), fmt.Errorf("parse reward: %w", err))
		}
		return c, nil

	default:
		return nil, kirkerrors.Codec(e.ID.String(), fmt.Errorf("unknown kind %d", e.Kind))
	}
}

// ParentOf returns the event's chain link: Challenge has none; every
// other kind names exactly one parent event id.
func ParentOf(e Event) (ID, bool, error) {
	content, err := Parse(e)
	if err != nil {
		return ID{}, false, err
	}
	switch c := content.(type) {
	case ChallengeContent:
		return ID{}, false, nil
	case ChallengeAcceptContent:
		return c.ChallengeID, true, nil
	case MoveContent:
		return c.PreviousEventID, true, nil
	case FinalContent:
		return c.GameSequenceRoot, true, nil
	case RewardContent:
		return c.GameSequenceRoot, true, nil
	case ValidationFailureContent:
		return c.GameSequenceRoot, true, nil
	default:
		return ID{}, false, fmt.Errorf("event: parent_of: unhandled content type %T", content)
	}
}
