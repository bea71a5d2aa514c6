package sequence

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/EthnTuttle/kirk/pkg/commitment"
	"github.com/EthnTuttle/kirk/pkg/event"
	"github.com/EthnTuttle/kirk/pkg/fraud"
	"github.com/EthnTuttle/kirk/pkg/game/coinflip"
	"github.com/EthnTuttle/kirk/pkg/mint"
	"github.com/EthnTuttle/kirk/pkg/tokenhash"
)

func now() int64 { return time.Now().Unix() }

type actor struct {
	pub  event.PublicKey
	priv ed25519.PrivateKey
}

func newActor(t *testing.T, seed byte) actor {
	t.Helper()
	raw := make([]byte, ed25519.SeedSize)
	for i := range raw {
		raw[i] = seed
	}
	priv := ed25519.NewKeyFromSeed(raw)
	return actor{pub: event.PubKeyFromEd25519(priv.Public().(ed25519.PublicKey)), priv: priv}
}

func heads(a actor) tokenhash.Token {
	return tokenhash.Token{Proofs: []tokenhash.Proof{{Amount: 100, ID: "ks1", Secret: []byte("s-" + a.pub.String()), C: [32]byte{0x02}}}}
}

func tails(a actor) tokenhash.Token {
	return tokenhash.Token{Proofs: []tokenhash.Proof{{Amount: 100, ID: "ks1", Secret: []byte("s-" + a.pub.String()), C: [32]byte{0x03}}}}
}

func buildChallenge(t *testing.T, challenger actor, hash [32]byte, createdAt int64) event.Event {
	t.Helper()
	e, err := event.Build(event.ChallengeContent{
		GameType:         coinflip.Name,
		CommitmentHashes: []event.Hash32{event.Hash32(hash)},
	}, challenger.priv, createdAt)
	if err != nil {
		t.Fatalf("build challenge: %v", err)
	}
	return e
}

func buildAccept(t *testing.T, acceptor actor, challengeID event.ID, hash [32]byte, createdAt int64) event.Event {
	t.Helper()
	e, err := event.Build(event.ChallengeAcceptContent{
		ChallengeID:      challengeID,
		CommitmentHashes: []event.Hash32{event.Hash32(hash)},
	}, acceptor.priv, createdAt)
	if err != nil {
		t.Fatalf("build accept: %v", err)
	}
	return e
}

func buildMove(t *testing.T, mover actor, parent event.ID, tok tokenhash.Token, createdAt int64) event.Event {
	t.Helper()
	e, err := event.Build(event.MoveContent{
		PreviousEventID: parent,
		MoveType:        event.MoveKindMove,
		RevealedTokens:  []event.WireToken{event.TokenToWire(tok)},
	}, mover.priv, createdAt)
	if err != nil {
		t.Fatalf("build move: %v", err)
	}
	return e
}

func buildFinal(t *testing.T, author actor, root event.ID, createdAt int64) event.Event {
	t.Helper()
	e, err := event.Build(event.FinalContent{GameSequenceRoot: root}, author.priv, createdAt)
	if err != nil {
		t.Fatalf("build final: %v", err)
	}
	return e
}

func TestHappyPathCompletes(t *testing.T) {
	challenger := newActor(t, 0x10)
	acceptor := newActor(t, 0x20)
	g := coinflip.New()

	challengerTok := heads(challenger) // even C[0] => Heads
	acceptorTok := tails(acceptor)     // odd C[0] => Tails

	challengeHash := commitment.BuildSingle(challengerTok).Hash
	acceptHash := commitment.BuildSingle(acceptorTok).Hash

	challenge := buildChallenge(t, challenger, challengeHash, 1000)
	s, err := New(challenge, g)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.State != StateWaitingForAccept {
		t.Fatalf("state = %s, want WaitingForAccept", s.State)
	}

	accept := buildAccept(t, acceptor, challenge.ID, acceptHash, 1010)
	if v, err := s.Advance(accept, now(), DefaultTimeoutConfig()); err != nil || v != nil {
		t.Fatalf("accept advance: verdict=%v err=%v", v, err)
	}
	if s.State != StateInProgress {
		t.Fatalf("state = %s, want InProgress", s.State)
	}

	move1 := buildMove(t, challenger, challenge.ID, challengerTok, 1020)
	if v, err := s.Advance(move1, now(), DefaultTimeoutConfig()); err != nil || v != nil {
		t.Fatalf("move1 advance: verdict=%v err=%v", v, err)
	}
	move2 := buildMove(t, acceptor, move1.ID, acceptorTok, 1030)
	if v, err := s.Advance(move2, now(), DefaultTimeoutConfig()); err != nil || v != nil {
		t.Fatalf("move2 advance: verdict=%v err=%v", v, err)
	}

	final1 := buildFinal(t, challenger, challenge.ID, 1040)
	if v, err := s.Advance(final1, now(), DefaultTimeoutConfig()); err != nil || v != nil {
		t.Fatalf("final1 advance: verdict=%v err=%v", v, err)
	}
	if s.State != StateWaitingForFinal {
		t.Fatalf("state = %s, want WaitingForFinal", s.State)
	}

	final2 := buildFinal(t, acceptor, challenge.ID, 1050)
	if v, err := s.Advance(final2, now(), DefaultTimeoutConfig()); err != nil || v != nil {
		t.Fatalf("final2 advance: verdict=%v err=%v", v, err)
	}
	if s.State != StateComplete {
		t.Fatalf("state = %s, want Complete", s.State)
	}
	if s.Winner == nil || *s.Winner != challenger.pub {
		t.Fatalf("winner = %v, want challenger (heads beats tails)", s.Winner)
	}
}

func TestAcceptFromChallengerRejected(t *testing.T) {
	challenger := newActor(t, 0x11)
	tok := heads(challenger)
	hash := commitment.BuildSingle(tok).Hash
	challenge := buildChallenge(t, challenger, hash, 1000)
	s, err := New(challenge, coinflip.New())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	selfAccept := buildAccept(t, challenger, challenge.ID, hash, 1010)
	v, err := s.Advance(selfAccept, now(), DefaultTimeoutConfig())
	if err == nil {
		t.Fatalf("expected rejection, got nil error")
	}
	if v != nil {
		t.Fatalf("self-accept must not produce a forfeit verdict, got %+v", v)
	}
	if s.State != StateWaitingForAccept {
		t.Fatalf("state changed after rejected accept: %s", s.State)
	}
}

func TestCommitmentMismatchForfeitsAtFinal(t *testing.T) {
	challenger := newActor(t, 0x12)
	acceptor := newActor(t, 0x22)
	g := coinflip.New()

	realTok := heads(challenger)
	wrongHash := commitment.BuildSingle(tails(challenger)).Hash // declares a commitment for a different token

	acceptorTok := tails(acceptor)
	acceptHash := commitment.BuildSingle(acceptorTok).Hash

	challenge := buildChallenge(t, challenger, wrongHash, 1000)
	s, err := New(challenge, g)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	accept := buildAccept(t, acceptor, challenge.ID, acceptHash, 1010)
	if _, err := s.Advance(accept, now(), DefaultTimeoutConfig()); err != nil {
		t.Fatalf("accept: %v", err)
	}

	move1 := buildMove(t, challenger, challenge.ID, realTok, 1020)
	if v, err := s.Advance(move1, now(), DefaultTimeoutConfig()); err != nil || v != nil {
		t.Fatalf("move1: verdict=%v err=%v", v, err)
	}
	move2 := buildMove(t, acceptor, move1.ID, acceptorTok, 1030)
	if v, err := s.Advance(move2, now(), DefaultTimeoutConfig()); err != nil || v != nil {
		t.Fatalf("move2: verdict=%v err=%v", v, err)
	}

	final1 := buildFinal(t, challenger, challenge.ID, 1040)
	v, err := s.Advance(final1, now(), DefaultTimeoutConfig())
	if err != nil {
		t.Fatalf("final1 unexpected error: %v", err)
	}
	if v == nil {
		t.Fatalf("expected a commitment mismatch verdict")
	}
	if v.Class != "commitment_mismatch" {
		t.Fatalf("class = %s, want commitment_mismatch", v.Class)
	}
	if v.Offender != challenger.pub {
		t.Fatalf("offender = %x, want challenger %x", v.Offender, challenger.pub)
	}
	if s.State != StateForfeited {
		t.Fatalf("state = %s, want Forfeited", s.State)
	}
}

func TestIllegalSecondMoveForfeits(t *testing.T) {
	challenger := newActor(t, 0x13)
	acceptor := newActor(t, 0x23)
	g := coinflip.New()

	tok := heads(challenger)
	hash := commitment.BuildSingle(tok).Hash
	acceptorTok := tails(acceptor)
	acceptHash := commitment.BuildSingle(acceptorTok).Hash

	challenge := buildChallenge(t, challenger, hash, 1000)
	s, err := New(challenge, g)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	accept := buildAccept(t, acceptor, challenge.ID, acceptHash, 1010)
	if _, err := s.Advance(accept, now(), DefaultTimeoutConfig()); err != nil {
		t.Fatalf("accept: %v", err)
	}

	move1 := buildMove(t, challenger, challenge.ID, tok, 1020)
	if _, err := s.Advance(move1, now(), DefaultTimeoutConfig()); err != nil {
		t.Fatalf("move1: %v", err)
	}
	move1again := buildMove(t, challenger, move1.ID, tok, 1025)
	v, err := s.Advance(move1again, now(), DefaultTimeoutConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v == nil || v.Class != "illegal_move" {
		t.Fatalf("expected illegal_move verdict, got %+v err=%v", v, err)
	}
	if v.Offender != challenger.pub {
		t.Fatalf("offender should be the repeat mover")
	}
	if s.State != StateForfeited {
		t.Fatalf("state = %s, want Forfeited", s.State)
	}
}

func TestWaitingForAcceptExpiryDissolves(t *testing.T) {
	challenger := newActor(t, 0x14)
	tok := heads(challenger)
	hash := commitment.BuildSingle(tok).Hash
	expiry := uint64(1100)
	e, err := event.Build(event.ChallengeContent{
		GameType:         coinflip.Name,
		CommitmentHashes: []event.Hash32{event.Hash32(hash)},
		Expiry:           &expiry,
	}, challenger.priv, 1000)
	if err != nil {
		t.Fatalf("build challenge: %v", err)
	}
	s, err := New(e, coinflip.New())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if v := s.Tick(1050, DefaultTimeoutConfig()); v != nil {
		t.Fatalf("premature tick produced a verdict: %+v", v)
	}
	v := s.Tick(1200, DefaultTimeoutConfig())
	if v == nil {
		t.Fatalf("expected a timeout verdict after expiry")
	}
	if !s.Dissolved {
		t.Fatalf("expected sequence to be marked dissolved")
	}
	if s.State != StateForfeited {
		t.Fatalf("state = %s, want Forfeited", s.State)
	}
	if s.Winner != nil || s.Offender != nil {
		t.Fatalf("dissolved expiry must not name a winner or offender")
	}
}

func TestMoveInactivityTimeout(t *testing.T) {
	challenger := newActor(t, 0x15)
	acceptor := newActor(t, 0x25)
	g := coinflip.New()

	tok := heads(challenger)
	hash := commitment.BuildSingle(tok).Hash
	acceptorTok := tails(acceptor)
	acceptHash := commitment.BuildSingle(acceptorTok).Hash

	challenge := buildChallenge(t, challenger, hash, 1000)
	s, err := New(challenge, g)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	accept := buildAccept(t, acceptor, challenge.ID, acceptHash, 1010)
	if _, err := s.Advance(accept, now(), DefaultTimeoutConfig()); err != nil {
		t.Fatalf("accept: %v", err)
	}

	move1 := buildMove(t, challenger, challenge.ID, tok, 1020)
	if _, err := s.Advance(move1, now(), DefaultTimeoutConfig()); err != nil {
		t.Fatalf("move1: %v", err)
	}

	cfg := DefaultTimeoutConfig()
	v := s.Tick(1020+cfg.MoveInactivity+1, cfg)
	if v == nil {
		t.Fatalf("expected a timeout verdict")
	}
	if v.Draw {
		t.Fatalf("one party already acted; this must not be a draw")
	}
	if v.Offender != acceptor.pub {
		t.Fatalf("offender = %x, want the silent acceptor %x", v.Offender, acceptor.pub)
	}
	if s.State != StateForfeited {
		t.Fatalf("state = %s, want Forfeited", s.State)
	}
}

func TestRevealedTokenAlreadySpentForfeitsAsReplay(t *testing.T) {
	challenger := newActor(t, 0x16)
	acceptor := newActor(t, 0x26)
	g := coinflip.New()

	m := mint.NewStubMint()
	tok := heads(challenger)
	m.IssueKnown(tok)
	// A prior, unrelated sequence already melted this exact token.
	if _, err := m.Melt([]tokenhash.Token{tok}); err != nil {
		t.Fatalf("melt: %v", err)
	}

	hash := commitment.BuildSingle(tok).Hash
	acceptorTok := tails(acceptor)
	acceptHash := commitment.BuildSingle(acceptorTok).Hash

	challenge := buildChallenge(t, challenger, hash, 1000)
	s, err := New(challenge, g, WithMintChecker(m))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	accept := buildAccept(t, acceptor, challenge.ID, acceptHash, 1010)
	if _, err := s.Advance(accept, now(), DefaultTimeoutConfig()); err != nil {
		t.Fatalf("accept: %v", err)
	}

	move1 := buildMove(t, challenger, challenge.ID, tok, 1020)
	v, err := s.Advance(move1, now(), DefaultTimeoutConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v == nil || v.Class != fraud.ClassReplay {
		t.Fatalf("expected a replay verdict, got %+v err=%v", v, err)
	}
	if v.Offender != challenger.pub {
		t.Fatalf("offender should be the revealer %x, got %x", challenger.pub, v.Offender)
	}
	if s.State != StateForfeited {
		t.Fatalf("state = %s, want Forfeited", s.State)
	}
}

func TestRevealedTokenUnknownToMintForfeitsAsInvalidToken(t *testing.T) {
	challenger := newActor(t, 0x17)
	acceptor := newActor(t, 0x27)
	g := coinflip.New()

	m := mint.NewStubMint()
	tok := heads(challenger) // never registered with m.IssueKnown, so the mint has never heard of it
	acceptorTok := tails(acceptor)

	hash := commitment.BuildSingle(tok).Hash
	acceptHash := commitment.BuildSingle(acceptorTok).Hash

	challenge := buildChallenge(t, challenger, hash, 1000)
	s, err := New(challenge, g, WithMintChecker(m))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	accept := buildAccept(t, acceptor, challenge.ID, acceptHash, 1010)
	if _, err := s.Advance(accept, now(), DefaultTimeoutConfig()); err != nil {
		t.Fatalf("accept: %v", err)
	}

	move1 := buildMove(t, challenger, challenge.ID, tok, 1020)
	v, err := s.Advance(move1, now(), DefaultTimeoutConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v == nil || v.Class != fraud.ClassInvalidToken {
		t.Fatalf("expected an invalid_token verdict, got %+v err=%v", v, err)
	}
	if s.State != StateForfeited {
		t.Fatalf("state = %s, want Forfeited", s.State)
	}
}

func TestFutureDatedEventForfeitsBeyondClockSkew(t *testing.T) {
	challenger := newActor(t, 0x18)
	acceptor := newActor(t, 0x28)
	g := coinflip.New()

	tok := heads(challenger)
	hash := commitment.BuildSingle(tok).Hash

	challenge := buildChallenge(t, challenger, hash, 1000)
	s, err := New(challenge, g)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cfg := DefaultTimeoutConfig()
	farFuture := 1000 + cfg.ClockSkewTolerance + 3600
	accept := buildAccept(t, acceptor, challenge.ID, commitment.BuildSingle(tails(acceptor)).Hash, farFuture)
	v, err := s.Advance(accept, 1000, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v == nil || v.Class != fraud.ClassChainViolation {
		t.Fatalf("expected a chain_violation verdict for the future-dated event, got %+v err=%v", v, err)
	}
	if s.State != StateForfeited {
		t.Fatalf("state = %s, want Forfeited", s.State)
	}
}

func TestClockSkewCheckSkippedWhenNowIsZero(t *testing.T) {
	challenger := newActor(t, 0x19)
	acceptor := newActor(t, 0x29)
	g := coinflip.New()

	tok := heads(challenger)
	hash := commitment.BuildSingle(tok).Hash

	challenge := buildChallenge(t, challenger, hash, 1000)
	s, err := New(challenge, g)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cfg := DefaultTimeoutConfig()
	farFuture := 1000 + cfg.ClockSkewTolerance + 3600
	accept := buildAccept(t, acceptor, challenge.ID, commitment.BuildSingle(tails(acceptor)).Hash, farFuture)
	// now == 0 is the offline-replay signal to skip the skew check entirely.
	v, err := s.Advance(accept, 0, cfg)
	if err != nil || v != nil {
		t.Fatalf("expected the future-dated event to be accepted structurally when now=0, got verdict=%+v err=%v", v, err)
	}
}
