package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MJE43/minigame-engine/internal/ledger"
)

var _ ledger.Journal = (*Store)(nil)

// Claim reserves a credit idempotency key. A key survives restarts, so a payout is
// never issued twice by two processes sharing the database.
func (s *Store) Claim(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO credit_claims (idempotency_key, claimed_at) VALUES (?, ?)`,
		key, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release frees a claim so that the credit can be reissued.
func (s *Store) Release(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credit_claims WHERE idempotency_key = ?`, key); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

// Record stores a finished transaction. Recording the same transaction id again
// replaces the earlier row.
func (s *Store) Record(ctx context.Context, tx ledger.Transaction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO ledger_transactions (id, account, delta, reason, idempotency_key, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tx.ID.String(), tx.Account, tx.Delta, tx.Reason, tx.Key, string(tx.Outcome), tx.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("record transaction %s: %w", tx.ID, err)
	}
	return nil
}

// Transactions returns the journal for key, oldest first. An empty key returns the
// most recent limit transactions of every key.
func (s *Store) Transactions(ctx context.Context, key string, limit int) ([]ledger.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, account, delta, reason, idempotency_key, outcome, created_at
		FROM ledger_transactions`
	args := []any{}
	if key != "" {
		query += ` WHERE idempotency_key = ?`
		args = append(args, key)
	}
	query += ` ORDER BY created_at ASC, rowid ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		var (
			tx      ledger.Transaction
			id      string
			outcome string
		)
		if err := rows.Scan(&id, &tx.Account, &tx.Delta, &tx.Reason, &tx.Key, &outcome, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if tx.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("bad transaction id %q: %w", id, err)
		}
		tx.Outcome = ledger.TxOutcome(outcome)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}
