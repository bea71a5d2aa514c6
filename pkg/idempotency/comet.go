package idempotency

import (
	"encoding/hex"
	"fmt"

	dbm "github.com/cometbft/cometbft-db"
)

// CometKVStore persists the seen-set in a CometBFT dbm.DB key-value
// store. Keys are "kirk:reward_issued:" + hex(root); the value is a
// single byte and exists only to make presence checkable with Has.
type CometKVStore struct {
	db dbm.DB
}

func NewCometKVStore(db dbm.DB) *CometKVStore {
	return &CometKVStore{db: db}
}

func rootKey(root [32]byte) []byte {
	return []byte("kirk:reward_issued:" + hex.EncodeToString(root[:]))
}

func (s *CometKVStore) WouldIssueFor(root [32]byte) (bool, error) {
	has, err := s.db.Has(rootKey(root))
	if err != nil {
		return false, fmt.Errorf("idempotency: comet db has: %w", err)
	}
	return !has, nil
}

func (s *CometKVStore) Mark(root [32]byte) error {
	has, err := s.db.Has(rootKey(root))
	if err != nil {
		return fmt.Errorf("idempotency: comet db has: %w", err)
	}
	if has {
		return ErrAlreadyIssued
	}
	if err := s.db.SetSync(rootKey(root), []byte{1}); err != nil {
		return fmt.Errorf("idempotency: comet db set: %w", err)
	}
	return nil
}

var _ Store = (*CometKVStore)(nil)
