package idempotency

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	_ "github.com/lib/pq" // postgres driver, registered for database/sql
)

// PostgresStore persists the seen-set in a Postgres table, grounded on the
// teacher's pkg/database.Client connection-pooling pattern (database/sql
// over lib/pq) but scoped down to the one table this package owns.
//
// Expected schema:
//
//	CREATE TABLE kirk_reward_issued (
//	    game_sequence_root TEXT PRIMARY KEY,
//	    issued_at          TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) WouldIssueFor(root [32]byte) (bool, error) {
	var exists bool
	err := s.db.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM kirk_reward_issued WHERE game_sequence_root = $1)`,
		hex.EncodeToString(root[:]),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("idempotency: postgres query: %w", err)
	}
	return !exists, nil
}

// Mark relies on the table's primary key to make the race atomic: a
// duplicate insert fails with a unique-violation, which Mark reports as
// ErrAlreadyIssued rather than a raw driver error.
func (s *PostgresStore) Mark(root [32]byte) error {
	_, err := s.db.Exec(
		`INSERT INTO kirk_reward_issued (game_sequence_root) VALUES ($1)`,
		hex.EncodeToString(root[:]),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyIssued
		}
		return fmt.Errorf("idempotency: postgres insert: %w", err)
	}
	return nil
}

// isUniqueViolation checks for Postgres SQLSTATE 23505. lib/pq returns
// *pq.Error for driver errors, but its Code field is just a typed string,
// so matching on the formatted error message avoids a direct dependency on
// pq's error type here.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key value violates unique constraint")
}

var _ Store = (*PostgresStore)(nil)
