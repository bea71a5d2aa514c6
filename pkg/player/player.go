// Package player implements a driver wrapping one side of a game
// sequence. It holds a signing key and a Transport and builds the signed
// 9259-9262 events a participant publishes over the course of a game,
// leaving the engine's own replay (pkg/sequence, pkg/validator) as the
// sole arbiter of whether those events are accepted.
package player

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"

	"github.com/EthnTuttle/kirk/pkg/commitment"
	"github.com/EthnTuttle/kirk/pkg/event"
	"github.com/EthnTuttle/kirk/pkg/tokenhash"
	"github.com/EthnTuttle/kirk/pkg/transport"
)

// Driver is one participant's view of the protocol: it knows only its own
// signing key and how to reach the transport, never the other player's
// state beyond what arrives as events.
type Driver struct {
	signing   ed25519.PrivateKey
	transport transport.Transport
	pubKey    event.PublicKey
}

func New(signingKey ed25519.PrivateKey, t transport.Transport) *Driver {
	return &Driver{
		signing:   signingKey,
		transport: t,
		pubKey:    event.PubKeyFromEd25519(signingKey.Public().(ed25519.PublicKey)),
	}
}

// PubKey returns the driver's event-signing public key.
func (d *Driver) PubKey() event.PublicKey { return d.pubKey }

func (d *Driver) publish(ctx context.Context, e event.Event) (event.Event, error) {
	if err := d.transport.Publish(ctx, e); err != nil {
		return event.Event{}, fmt.Errorf("player: publish: %w", err)
	}
	return e, nil
}

// CreateChallenge commits to tokens (Single for one token, method for two
// or more — method is ignored when len(tokens) == 1) and publishes a 9259
// Challenge opening a new sequence.
func (d *Driver) CreateChallenge(ctx context.Context, gameType string, tokens []tokenhash.Token, method commitment.Method, gameParameters json.RawMessage, expiry *uint64, createdAt int64) (event.Event, error) {
	hash, err := commitTokens(tokens, method)
	if err != nil {
		return event.Event{}, fmt.Errorf("player: create challenge: %w", err)
	}
	content := event.ChallengeContent{
		GameType:         gameType,
		CommitmentHashes: []event.Hash32{event.Hash32(hash.Hash)},
		GameParameters:   gameParameters,
		Expiry:           expiry,
	}
	e, err := event.Build(content, d.signing, createdAt)
	if err != nil {
		return event.Event{}, fmt.Errorf("player: build challenge: %w", err)
	}
	return d.publish(ctx, e)
}

// AcceptChallenge commits to tokens and publishes a 9260 ChallengeAccept
// naming the challenge it answers.
func (d *Driver) AcceptChallenge(ctx context.Context, challengeID event.ID, tokens []tokenhash.Token, method commitment.Method, createdAt int64) (event.Event, error) {
	hash, err := commitTokens(tokens, method)
	if err != nil {
		return event.Event{}, fmt.Errorf("player: accept challenge: %w", err)
	}
	content := event.ChallengeAcceptContent{
		ChallengeID:      challengeID,
		CommitmentHashes: []event.Hash32{event.Hash32(hash.Hash)},
	}
	e, err := event.Build(content, d.signing, createdAt)
	if err != nil {
		return event.Event{}, fmt.Errorf("player: build accept: %w", err)
	}
	return d.publish(ctx, e)
}

// Move publishes a 9261 Move chained to previousEventID, optionally
// revealing tokens and/or carrying game-specific move data.
func (d *Driver) Move(ctx context.Context, previousEventID event.ID, moveType event.MoveKind, moveData json.RawMessage, revealed []tokenhash.Token) (event.Event, error) {
	wire := make([]event.WireToken, len(revealed))
	for i, t := range revealed {
		wire[i] = event.TokenToWire(t)
	}
	content := event.MoveContent{
		PreviousEventID: previousEventID,
		MoveType:        moveType,
		MoveData:        moveData,
		RevealedTokens:  wire,
	}
	e, err := event.Build(content, d.signing, 0)
	if err != nil {
		return event.Event{}, fmt.Errorf("player: build move: %w", err)
	}
	return d.publish(ctx, e)
}

// Finalize publishes a 9262 Final naming the sequence root, the
// commitment method used for this player's reveal(s), and an optional
// final_state payload.
func (d *Driver) Finalize(ctx context.Context, sequenceRoot event.ID, method *commitment.Method, finalState json.RawMessage, createdAt int64) (event.Event, error) {
	content := event.FinalContent{
		GameSequenceRoot: sequenceRoot,
		CommitmentMethod: method,
		FinalState:       finalState,
	}
	e, err := event.Build(content, d.signing, createdAt)
	if err != nil {
		return event.Event{}, fmt.Errorf("player: build final: %w", err)
	}
	return d.publish(ctx, e)
}

// commitTokens builds a Single commitment for one token, or a Concat/
// MerkleR4 commitment via method for two or more.
func commitTokens(tokens []tokenhash.Token, method commitment.Method) (commitment.Commitment, error) {
	if len(tokens) == 0 {
		return commitment.Commitment{}, fmt.Errorf("at least one token is required")
	}
	if len(tokens) == 1 {
		return commitment.BuildSingle(tokens[0]), nil
	}
	return commitment.BuildMulti(tokens, method)
}
