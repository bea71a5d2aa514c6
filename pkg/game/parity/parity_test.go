package parity

import (
	"crypto/ed25519"
	"testing"

	"github.com/EthnTuttle/kirk/pkg/event"
)

func newActor(t *testing.T, seed byte) (event.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	raw := make([]byte, ed25519.SeedSize)
	for i := range raw {
		raw[i] = seed
	}
	priv := ed25519.NewKeyFromSeed(raw)
	return event.PubKeyFromEd25519(priv.Public().(ed25519.PublicKey)), priv
}

func commitEvent(t *testing.T, priv ed25519.PrivateKey, createdAt int64) event.Event {
	t.Helper()
	e, err := event.Build(event.MoveContent{MoveType: event.MoveKindCommit}, priv, createdAt)
	if err != nil {
		t.Fatalf("build commit: %v", err)
	}
	return e
}

func revealEvent(t *testing.T, priv ed25519.PrivateKey, bytes []byte, createdAt int64) event.Event {
	t.Helper()
	wire := make([]event.WireToken, len(bytes))
	for i, b := range bytes {
		var c [32]byte
		c[0] = b
		wire[i] = event.WireToken{Proofs: []event.WireProof{{Amount: 100, ID: "ks1", Secret: []byte("s"), C: event.Hash32(c)}}}
	}
	e, err := event.Build(event.MoveContent{MoveType: event.MoveKindReveal, RevealedTokens: wire}, priv, createdAt)
	if err != nil {
		t.Fatalf("build reveal: %v", err)
	}
	return e
}

func TestValidateMoveEnforcesCommitBeforeReveal(t *testing.T) {
	g := New()
	author, priv := newActor(t, 0x10)
	reveal := revealEvent(t, priv, []byte{0x02, 0x04}, 1000)
	if err := g.ValidateMove(nil, reveal, author); err == nil {
		t.Fatalf("expected reveal without prior commit to be rejected")
	}

	commit := commitEvent(t, priv, 1000)
	if err := g.ValidateMove(nil, commit, author); err != nil {
		t.Fatalf("commit should be valid: %v", err)
	}
	if err := g.ValidateMove([]event.Event{commit}, reveal, author); err != nil {
		t.Fatalf("reveal after commit should be valid: %v", err)
	}
}

func TestValidateMoveRejectsRevealBelowMinTokens(t *testing.T) {
	g := New()
	author, priv := newActor(t, 0x10)
	commit := commitEvent(t, priv, 1000)
	reveal := revealEvent(t, priv, []byte{0x02}, 1010)
	if err := g.ValidateMove([]event.Event{commit}, reveal, author); err == nil {
		t.Fatalf("expected single-token reveal to be rejected")
	}
}

func TestIsCompleteRequiresBothPlayersToReveal(t *testing.T) {
	g := New()
	a1, p1 := newActor(t, 0x10)
	_, p2 := newActor(t, 0x20)
	_ = a1

	c1 := commitEvent(t, p1, 1000)
	r1 := revealEvent(t, p1, []byte{0x02, 0x04}, 1010)
	if g.IsComplete([]event.Event{c1, r1}) {
		t.Fatalf("one player revealing should not be complete")
	}

	c2 := commitEvent(t, p2, 1020)
	r2 := revealEvent(t, p2, []byte{0x03, 0x05}, 1030)
	if !g.IsComplete([]event.Event{c1, r1, c2, r2}) {
		t.Fatalf("both players revealing should be complete")
	}
}

func TestDetermineWinnerByParity(t *testing.T) {
	g := New()
	a1, p1 := newActor(t, 0x10)
	_, p2 := newActor(t, 0x20)

	// p1 reveals two even bytes: xor is even, parity 0.
	r1 := revealEvent(t, p1, []byte{0x02, 0x04}, 1000)
	// p2 reveals one odd byte: parity 1.
	r2 := revealEvent(t, p2, []byte{0x03}, 1010)

	winner, err := g.DetermineWinner([]event.Event{r1, r2})
	if err != nil {
		t.Fatalf("DetermineWinner: %v", err)
	}
	if winner == nil || *winner != a1 {
		t.Fatalf("expected parity-0 player to win")
	}
}
