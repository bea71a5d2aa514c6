// Package reward implements the reward distributor that turns a
// Complete or Forfeited GameSequence into a signed 9263 event.
package reward

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log"
	"sync"

	"github.com/EthnTuttle/kirk/pkg/event"
	"github.com/EthnTuttle/kirk/pkg/game"
	"github.com/EthnTuttle/kirk/pkg/idempotency"
	"github.com/EthnTuttle/kirk/pkg/kirkerrors"
	"github.com/EthnTuttle/kirk/pkg/mint"
	"github.com/EthnTuttle/kirk/pkg/sequence"
	"github.com/EthnTuttle/kirk/pkg/tokenhash"
	"github.com/EthnTuttle/kirk/pkg/transport"
)

// Option configures a Distributor.
type Option func(*Distributor)

func WithLogger(l *log.Logger) Option {
	return func(d *Distributor) { d.logger = l }
}

// Distributor burns the losing and winning players' revealed tokens,
// mints fresh P2PK-locked tokens to the winner, and publishes the result
// as a 9263 event, gated by an idempotency.Store keyed on
// game_sequence_root.
type Distributor struct {
	mint      mint.Mint
	transport transport.Transport
	idem      idempotency.Store
	signing   ed25519.PrivateKey

	logger *log.Logger

	mu sync.Mutex
}

func New(signingKey ed25519.PrivateKey, m mint.Mint, t transport.Transport, idem idempotency.Store, opts ...Option) *Distributor {
	d := &Distributor{
		mint:      m,
		transport: t,
		idem:      idem,
		signing:   signingKey,
		logger:    log.New(log.Writer(), "[kirk/reward] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// BurnSet extracts every token revealed in a Move event by either player
// of seq.
func BurnSet(seq *sequence.GameSequence) game.BurnSet {
	var tokens []tokenhash.Token
	for _, e := range seq.Events {
		if e.Kind != event.KindMove {
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
		for _, wt := range mc.RevealedTokens {
			tokens = append(tokens, wt.ToToken())
		}
	}
	return game.BurnSet{Tokens: tokens}
}

// Distribute runs the full settlement pipeline for a terminal sequence.
// It is safe to call more than once for the same root: after the first
// successful issuance, subsequent calls return (nil, idempotency.ErrAlreadyIssued)
// without contacting the mint again.
func Distribute(ctx context.Context, d *Distributor, seq *sequence.GameSequence, g game.Game) (*event.Event, error) {
	if seq.State != sequence.StateComplete && seq.State != sequence.StateForfeited {
		return nil, kirkerrors.Internal(fmt.Errorf("sequence %s is not terminal (%s)", seq.Root, seq.State))
	}
	if seq.Dissolved {
		return nil, kirkerrors.Internal(fmt.Errorf("sequence %s dissolved with no reward due", seq.Root))
	}
	if seq.Winner == nil {
		return nil, kirkerrors.Internal(fmt.Errorf("sequence %s has no winner to reward (draw)", seq.Root))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	issuable, err := d.idem.WouldIssueFor(seq.Root)
	if err != nil {
		return nil, kirkerrors.Internal(fmt.Errorf("idempotency check: %w", err))
	}
	if !issuable {
		return nil, idempotency.ErrAlreadyIssued
	}

	burn := BurnSet(seq)
	for _, tok := range burn.Tokens {
		ok, err := d.mint.Verify(tok)
		if err != nil {
			return nil, kirkerrors.Mint(fmt.Errorf("verify burn token: %w", err))
		}
		if !ok {
			return d.publishFailure(ctx, seq.Root, "burned token not spendable", nil)
		}
	}

	reclaimed, err := d.mint.Melt(burn.Tokens)
	if err != nil {
		return d.publishFailure(ctx, seq.Root, "burned token not spendable", nil)
	}

	var amount uint64
	if g != nil {
		amount = g.RewardPolicy(burn)
	} else {
		amount = burn.TotalAmount()
	}
	if amount > reclaimed {
		amount = reclaimed
	}

	lockPubKey, err := mint.DeriveP2PKLock([32]byte(*seq.Winner))
	if err != nil {
		return nil, kirkerrors.Internal(fmt.Errorf("derive winner lock: %w", err))
	}
	rewardTokens, err := d.mint.MintP2PKTokens(amount, lockPubKey)
	if err != nil {
		return nil, kirkerrors.Mint(fmt.Errorf("mint reward tokens: %w", err))
	}

	wireTokens := make([]event.WireToken, len(rewardTokens))
	for i, tok := range rewardTokens {
		wireTokens[i] = event.TokenToWire(tok)
	}

	content := event.RewardContent{
		GameSequenceRoot: seq.Root,
		WinnerPubKey:     *seq.Winner,
		RewardTokens:     wireTokens,
	}
	rewardEvent, err := event.Build(content, d.signing, seq.LastActivity)
	if err != nil {
		return nil, kirkerrors.Internal(fmt.Errorf("build reward event: %w", err))
	}
	if err := d.mark(seq.Root); err != nil {
		return nil, err
	}
	if err := d.transport.Publish(ctx, rewardEvent); err != nil {
		return nil, kirkerrors.Transport(fmt.Errorf("publish: %w", err))
	}
	d.logger.Printf("issued reward for sequence %s: %d to %s", seq.Root, amount, seq.Winner)
	return &rewardEvent, nil
}

func (d *Distributor) mark(root event.ID) error {
	if err := d.idem.Mark(root); err != nil {
		return kirkerrors.Internal(fmt.Errorf("mark issued: %w", err))
	}
	return nil
}

func (d *Distributor) publishFailure(ctx context.Context, root event.ID, reason string, offending *event.ID) (*event.Event, error) {
	content := event.ValidationFailureContent{GameSequenceRoot: root, Reason: reason, OffendingEventID: offending}
	e, err := event.Build(content, d.signing, 0)
	if err != nil {
		return nil, kirkerrors.Internal(fmt.Errorf("build failure event: %w", err))
	}
	if err := d.transport.Publish(ctx, e); err != nil {
		return nil, kirkerrors.Transport(fmt.Errorf("publish failure: %w", err))
	}
	return &e, kirkerrors.Internal(fmt.Errorf("%s", reason))
}
