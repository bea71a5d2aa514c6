package game_test

import (
	"testing"

	"github.com/EthnTuttle/kirk/pkg/game"
	"github.com/EthnTuttle/kirk/pkg/game/coinflip"
)

func TestRegistryLookupAndMustLookup(t *testing.T) {
	r := game.NewRegistry()
	if _, ok := r.Lookup("nonexistent"); ok {
		t.Fatalf("lookup on empty registry should miss")
	}
	if _, err := r.MustLookup("nonexistent"); err == nil {
		t.Fatalf("MustLookup should error for unregistered game_type")
	}

	r.Register(coinflip.New())
	g, ok := r.Lookup(coinflip.Name)
	if !ok {
		t.Fatalf("expected coinflip to be registered")
	}
	if g.Name() != coinflip.Name {
		t.Fatalf("looked-up game name = %q, want %q", g.Name(), coinflip.Name)
	}
}

func TestBurnSetTotalAmount(t *testing.T) {
	var b game.BurnSet
	if b.TotalAmount() != 0 {
		t.Fatalf("empty burn set total = %d, want 0", b.TotalAmount())
	}
}
