package ledger

import (
	"context"
	"sync"
)

// MemoryAuthority is an in-process balance authority used by the demo server,
// simulations and tests. Keys are idempotent: replaying a key returns the first
// answer without mutating balances again.
type MemoryAuthority struct {
	mu       sync.Mutex
	balances map[string]int64
	seen     map[string]bool
}

// NewMemoryAuthority creates an empty authority.
func NewMemoryAuthority() *MemoryAuthority {
	return &MemoryAuthority{
		balances: make(map[string]int64),
		seen:     make(map[string]bool),
	}
}

// Deposit sets up funds for an account.
func (m *MemoryAuthority) Deposit(account string, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] += amount
}

// Balance returns an account's current funds.
func (m *MemoryAuthority) Balance(account string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account]
}

// ApplyDelta implements Authority.
func (m *MemoryAuthority) ApplyDelta(ctx context.Context, tx Transaction) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if tx.Key != "" {
		if ok, dup := m.seen[tx.Key]; dup {
			return ok, nil
		}
	}
	ok := m.balances[tx.Account]+tx.Delta >= 0
	if ok {
		m.balances[tx.Account] += tx.Delta
	}
	if tx.Key != "" {
		m.seen[tx.Key] = ok
	}
	return ok, nil
}

// MemoryJournal is the default Journal. It keeps claims and transactions in memory.
type MemoryJournal struct {
	mu     sync.Mutex
	claims map[string]struct{}
	txs    []Transaction
}

// NewMemoryJournal creates an empty journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{claims: make(map[string]struct{})}
}

func (j *MemoryJournal) Claim(_ context.Context, key string) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.claims[key]; ok {
		return false, nil
	}
	j.claims[key] = struct{}{}
	return true, nil
}

func (j *MemoryJournal) Release(_ context.Context, key string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.claims, key)
	return nil
}

func (j *MemoryJournal) Record(_ context.Context, tx Transaction) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.txs = append(j.txs, tx)
	return nil
}

// Transactions returns a copy of every recorded transaction.
func (j *MemoryJournal) Transactions() []Transaction {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Transaction(nil), j.txs...)
}
