package reward

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/EthnTuttle/kirk/pkg/commitment"
	"github.com/EthnTuttle/kirk/pkg/event"
	"github.com/EthnTuttle/kirk/pkg/game/coinflip"
	"github.com/EthnTuttle/kirk/pkg/idempotency"
	"github.com/EthnTuttle/kirk/pkg/mint"
	"github.com/EthnTuttle/kirk/pkg/sequence"
	"github.com/EthnTuttle/kirk/pkg/tokenhash"
	"github.com/EthnTuttle/kirk/pkg/transport"
)

func newKey(t *testing.T, seed byte) (event.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	raw := make([]byte, ed25519.SeedSize)
	for i := range raw {
		raw[i] = seed
	}
	priv := ed25519.NewKeyFromSeed(raw)
	return event.PubKeyFromEd25519(priv.Public().(ed25519.PublicKey)), priv
}

func completedSequence(t *testing.T, m mint.Mint) *sequence.GameSequence {
	t.Helper()
	challengerPub, challengerPriv := newKey(t, 0x60)
	acceptorPub, acceptorPriv := newKey(t, 0x70)
	_ = acceptorPub

	challengerToken := tokenhash.Token{Proofs: []tokenhash.Proof{{Amount: 100, ID: "ks1", Secret: []byte("challenger-secret"), C: [32]byte{0x02}}}} // heads
	acceptorToken := tokenhash.Token{Proofs: []tokenhash.Proof{{Amount: 100, ID: "ks1", Secret: []byte("acceptor-secret"), C: [32]byte{0x03}}}}    // tails
	m.IssueKnown(challengerToken)
	m.IssueKnown(acceptorToken)
	challengerTok := []tokenhash.Token{challengerToken}
	acceptorTok := []tokenhash.Token{acceptorToken}

	hash1 := commitment.BuildSingle(challengerTok[0]).Hash
	hash2 := commitment.BuildSingle(acceptorTok[0]).Hash

	challenge, err := event.Build(event.ChallengeContent{
		GameType:         coinflip.Name,
		CommitmentHashes: []event.Hash32{event.Hash32(hash1)},
	}, challengerPriv, 1000)
	if err != nil {
		t.Fatalf("build challenge: %v", err)
	}
	g := coinflip.New()
	s, err := sequence.New(challenge, g, sequence.WithMintChecker(m))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	accept, err := event.Build(event.ChallengeAcceptContent{
		ChallengeID:      challenge.ID,
		CommitmentHashes: []event.Hash32{event.Hash32(hash2)},
	}, acceptorPriv, 1010)
	if err != nil {
		t.Fatalf("build accept: %v", err)
	}
	if _, err := s.Advance(accept, 0, sequence.DefaultTimeoutConfig()); err != nil {
		t.Fatalf("advance accept: %v", err)
	}

	move1, err := event.Build(event.MoveContent{
		PreviousEventID: challenge.ID,
		MoveType:        event.MoveKindMove,
		RevealedTokens:  []event.WireToken{event.TokenToWire(challengerTok[0])},
	}, challengerPriv, 1020)
	if err != nil {
		t.Fatalf("build move1: %v", err)
	}
	if _, err := s.Advance(move1, 0, sequence.DefaultTimeoutConfig()); err != nil {
		t.Fatalf("advance move1: %v", err)
	}

	move2, err := event.Build(event.MoveContent{
		PreviousEventID: move1.ID,
		MoveType:        event.MoveKindMove,
		RevealedTokens:  []event.WireToken{event.TokenToWire(acceptorTok[0])},
	}, acceptorPriv, 1030)
	if err != nil {
		t.Fatalf("build move2: %v", err)
	}
	if _, err := s.Advance(move2, 0, sequence.DefaultTimeoutConfig()); err != nil {
		t.Fatalf("advance move2: %v", err)
	}

	final1, err := event.Build(event.FinalContent{GameSequenceRoot: challenge.ID}, challengerPriv, 1040)
	if err != nil {
		t.Fatalf("build final1: %v", err)
	}
	if _, err := s.Advance(final1, 0, sequence.DefaultTimeoutConfig()); err != nil {
		t.Fatalf("advance final1: %v", err)
	}
	final2, err := event.Build(event.FinalContent{GameSequenceRoot: challenge.ID}, acceptorPriv, 1050)
	if err != nil {
		t.Fatalf("build final2: %v", err)
	}
	if _, err := s.Advance(final2, 0, sequence.DefaultTimeoutConfig()); err != nil {
		t.Fatalf("advance final2: %v", err)
	}
	if s.State != sequence.StateComplete {
		t.Fatalf("setup failed to reach Complete, state = %s", s.State)
	}
	if s.Winner == nil || *s.Winner != challengerPub {
		t.Fatalf("setup did not produce challenger as winner")
	}
	return s
}

func TestDistributeIssuesRewardOnce(t *testing.T) {
	m := mint.NewStubMint()
	bus, err := transport.NewMemoryBus()
	if err != nil {
		t.Fatalf("new memory bus: %v", err)
	}
	defer bus.Close()

	mintPub, mintPriv, _ := ed25519Key(t)
	_ = mintPub
	idem := idempotency.NewMemoryStore()
	d := New(mintPriv, m, bus, idem)

	seq := completedSequence(t, m)
	rewardEvent, err := Distribute(context.Background(), d, seq, coinflip.New())
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	content, err := event.Parse(*rewardEvent)
	if err != nil {
		t.Fatalf("parse reward event: %v", err)
	}
	rc, ok := content.(event.RewardContent)
	if !ok {
		t.Fatalf("expected RewardContent, got %T", content)
	}
	if rc.GameSequenceRoot != seq.Root {
		t.Fatalf("reward root mismatch")
	}
	if len(rc.RewardTokens) == 0 {
		t.Fatalf("expected at least one reward token")
	}

	_, err = Distribute(context.Background(), d, seq, coinflip.New())
	if err != idempotency.ErrAlreadyIssued {
		t.Fatalf("second distribute: err = %v, want ErrAlreadyIssued", err)
	}
}

func TestBurnSetSumsBothPlayersTokens(t *testing.T) {
	m := mint.NewStubMint()
	seq := completedSequence(t, m)
	burn := BurnSet(seq)
	if len(burn.Tokens) != 2 {
		t.Fatalf("expected 2 burned tokens, got %d", len(burn.Tokens))
	}
	if burn.TotalAmount() != 200 {
		t.Fatalf("total = %d, want 200", burn.TotalAmount())
	}
}

func ed25519Key(t *testing.T) (event.PublicKey, ed25519.PrivateKey, error) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	return event.PubKeyFromEd25519(pub), priv, err
}
