package mint

import (
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/EthnTuttle/kirk/pkg/tokenhash"
)

// FeeBps is the StubMint's flat melt fee, in basis points of the melted
// amount — a stand-in for whatever real fee schedule a production mint
// applies; pkg/reward treats the mint's returned amount as authoritative
// either way.
const FeeBps = 50 // 0.5%

const keysetID = "kirk-stub-v1"

// StubMint is a reference/mock Mint: an in-memory ledger of issued and
// spent token hashes, sufficient to drive pkg/reward end to end without a
// real Cashu-compatible service. Lock validation for P2PK tokens uses
// go-ethereum's secp256k1 point decompression to reject malformed lock
// keys the same way a real mint would reject an unparseable P2PK
// condition.
type StubMint struct {
	mu     sync.Mutex
	issued map[[32]byte]bool // token hash -> minted
	spent  map[[32]byte]bool // token hash -> melted/swapped away
	serial uint64
}

func NewStubMint() *StubMint {
	return &StubMint{issued: make(map[[32]byte]bool), spent: make(map[[32]byte]bool)}
}

func (m *StubMint) nextSecret() ([]byte, error) {
	m.mu.Lock()
	m.serial++
	serial := m.serial
	m.mu.Unlock()

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("mint: generate secret: %w", err)
	}
	return append(buf, byte(serial), byte(serial>>8)), nil
}

// mintOne issues a single-proof token of amount, with C derived from the
// secret via Keccak256 so C's public randomness is bound to the secret the
// same way a real blind-signature scheme binds the unblinded signature to
// the blinding factor.
func (m *StubMint) mintOne(amount uint64) (tokenhash.Token, error) {
	secret, err := m.nextSecret()
	if err != nil {
		return tokenhash.Token{}, err
	}
	var c [32]byte
	copy(c[:], crypto.Keccak256(secret, []byte(keysetID)))

	tok := tokenhash.Token{Proofs: []tokenhash.Proof{{Amount: amount, ID: keysetID, Secret: secret, C: c}}}
	h := tokenhash.Hash(tok)

	m.mu.Lock()
	m.issued[h] = true
	m.mu.Unlock()

	return tok, nil
}

func (m *StubMint) MintGameTokens(amount uint64) ([]tokenhash.Token, error) {
	tok, err := m.mintOne(amount)
	if err != nil {
		return nil, err
	}
	return []tokenhash.Token{tok}, nil
}

// IssueKnown registers a fully-formed token as issued without generating a
// fresh secret — it exists for test fixtures that need a token whose C
// value is pinned to a specific byte (e.g. to force a coinflip outcome),
// which a real mint would never do since it alone controls blind signing.
func (m *StubMint) IssueKnown(tok tokenhash.Token) {
	h := tokenhash.Hash(tok)
	m.mu.Lock()
	m.issued[h] = true
	m.mu.Unlock()
}

func (m *StubMint) MintP2PKTokens(amount uint64, lockPubKey []byte) ([]tokenhash.Token, error) {
	if _, err := crypto.DecompressPubkey(lockPubKey); err != nil {
		return nil, fmt.Errorf("mint: invalid P2PK lock pubkey: %w", err)
	}
	tok, err := m.mintOne(amount)
	if err != nil {
		return nil, err
	}
	// The stub records the lock by folding it into nothing further: a real
	// mint would store (token id -> lock script); here Verify/IsSpent only
	// track issuance and spend state, since the engine never itself
	// attempts to unlock a P2PK token.
	return []tokenhash.Token{tok}, nil
}

func (m *StubMint) Verify(t tokenhash.Token) (bool, error) {
	h := tokenhash.Hash(t)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.issued[h] && !m.spent[h], nil
}

func (m *StubMint) IsSpent(t tokenhash.Token) (bool, error) {
	h := tokenhash.Hash(t)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spent[h], nil
}

func (m *StubMint) Melt(tokens []tokenhash.Token) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total uint64
	for _, t := range tokens {
		h := tokenhash.Hash(t)
		if !m.issued[h] {
			return 0, fmt.Errorf("mint: melt: unknown token")
		}
		if m.spent[h] {
			return 0, fmt.Errorf("mint: melt: token already spent")
		}
		for _, p := range t.Proofs {
			total += p.Amount
		}
	}
	for _, t := range tokens {
		m.spent[tokenhash.Hash(t)] = true
	}

	fee := total * FeeBps / 10000
	return total - fee, nil
}

func (m *StubMint) Swap(tokens []tokenhash.Token) ([]tokenhash.Token, error) {
	reclaimed, err := m.Melt(tokens)
	if err != nil {
		return nil, fmt.Errorf("mint: swap: %w", err)
	}
	return m.MintGameTokens(reclaimed)
}

var _ Mint = (*StubMint)(nil)

// DeriveP2PKLock deterministically derives a secp256k1 compressed public
// key from an arbitrary 32-byte seed, for demo wiring where a reward
// winner is identified only by their ed25519 event key and has not
// separately published a P2PK lock key. Not a substitute for real wallet
// key management — it exists so pkg/reward and the CLI demo can exercise
// MintP2PKTokens without a second real keypair in the loop.
func DeriveP2PKLock(seed [32]byte) ([]byte, error) {
	priv, err := crypto.ToECDSA(crypto.Keccak256(seed[:], []byte("kirk-p2pk-lock")))
	if err != nil {
		return nil, fmt.Errorf("mint: derive p2pk lock: %w", err)
	}
	return crypto.CompressPubkey(&priv.PublicKey), nil
}
