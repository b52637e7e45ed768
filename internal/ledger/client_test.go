package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// scriptedAuthority answers calls from a queue of responses, then falls back to ok.
type scriptedAuthority struct {
	mu        sync.Mutex
	responses []response
	calls     []Transaction
}

type response struct {
	ok    bool
	err   error
	delay time.Duration
}

func (a *scriptedAuthority) ApplyDelta(ctx context.Context, tx Transaction) (bool, error) {
	a.mu.Lock()
	a.calls = append(a.calls, tx)
	r := response{ok: true}
	if len(a.responses) > 0 {
		r = a.responses[0]
		a.responses = a.responses[1:]
	}
	a.mu.Unlock()

	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	return r.ok, r.err
}

func (a *scriptedAuthority) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

func fastConfig() Config {
	return Config{
		Timeout:       50 * time.Millisecond,
		CreditRetries: 2,
		RetryBase:     time.Millisecond,
	}
}

func TestDebitCommitted(t *testing.T) {
	auth := &scriptedAuthority{}
	c := NewClient(auth, fastConfig())

	tx, err := c.Debit(context.Background(), "p1", 100, "coin-flip", "k1")
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if tx.Delta != -100 || tx.Outcome != TxCommitted {
		t.Fatalf("unexpected tx %+v", tx)
	}
	if auth.calls[0].Delta != -100 || auth.calls[0].Key != "k1" {
		t.Fatalf("authority saw %+v", auth.calls[0])
	}
}

func TestDebitDeclined(t *testing.T) {
	auth := &scriptedAuthority{responses: []response{{ok: false}}}
	c := NewClient(auth, fastConfig())

	tx, err := c.Debit(context.Background(), "p1", 100, "coin-flip", "k1")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if tx.Outcome != TxRejected {
		t.Fatalf("expected rejected outcome, got %s", tx.Outcome)
	}
}

func TestDebitTimeoutIsRejection(t *testing.T) {
	auth := &scriptedAuthority{responses: []response{{ok: true, delay: 300 * time.Millisecond}}}
	c := NewClient(auth, fastConfig())

	start := time.Now()
	_, err := c.Debit(context.Background(), "p1", 10, "slots", "k1")
	if !errors.Is(err, ErrLedgerTimeout) {
		t.Fatalf("expected ErrLedgerTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("debit wait was not bounded: %v", elapsed)
	}
}

func TestDebitInvalidAmount(t *testing.T) {
	auth := &scriptedAuthority{}
	c := NewClient(auth, fastConfig())
	if _, err := c.Debit(context.Background(), "p1", 0, "x", "k"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if auth.callCount() != 0 {
		t.Fatal("no authority call expected")
	}
}

func TestCreditRetriesThenSucceeds(t *testing.T) {
	auth := &scriptedAuthority{responses: []response{
		{err: errors.New("connection reset")},
		{ok: true},
	}}
	c := NewClient(auth, fastConfig())

	tx, err := c.Credit(context.Background(), "p1", 195, "coin-flip", "credit-1")
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if tx.Outcome != TxCommitted {
		t.Fatalf("expected committed, got %s", tx.Outcome)
	}
	if auth.callCount() != 2 {
		t.Fatalf("expected 2 attempts, got %d", auth.callCount())
	}
}

func TestCreditIsIdempotentPerKey(t *testing.T) {
	auth := &scriptedAuthority{}
	c := NewClient(auth, fastConfig())
	ctx := context.Background()

	if _, err := c.Credit(ctx, "p1", 50, "box-pick", "round-1:w1"); err != nil {
		t.Fatalf("first credit: %v", err)
	}
	if _, err := c.Credit(ctx, "p1", 50, "box-pick", "round-1:w1"); !errors.Is(err, ErrAlreadyCredited) {
		t.Fatalf("expected ErrAlreadyCredited, got %v", err)
	}
	if auth.callCount() != 1 {
		t.Fatalf("expected exactly one authority credit, got %d", auth.callCount())
	}
}

func TestConcurrentCreditsSameKey(t *testing.T) {
	auth := &scriptedAuthority{}
	c := NewClient(auth, fastConfig())

	for i := 0; i < 20; i++ {
		c.CreditAsync("p1", 10, "wheel", "same-key")
	}
	c.Wait()

	if auth.callCount() != 1 {
		t.Fatalf("expected one credit under concurrency, got %d", auth.callCount())
	}
}

func TestCreditPayoutLost(t *testing.T) {
	failure := errors.New("authority down")
	auth := &scriptedAuthority{responses: []response{{err: failure}, {err: failure}, {err: failure}}}

	var lost atomic.Pointer[PayoutLostError]
	cfg := fastConfig()
	cfg.OnPayoutLost = func(e *PayoutLostError) { lost.Store(e) }
	c := NewClient(auth, cfg)

	_, err := c.Credit(context.Background(), "p1", 80, "tower", "k-lost")
	var ple *PayoutLostError
	if !errors.As(err, &ple) {
		t.Fatalf("expected PayoutLostError, got %v", err)
	}
	if ple.Attempts != 3 {
		t.Fatalf("expected 1 attempt + 2 retries, got %d", ple.Attempts)
	}
	if !errors.Is(err, failure) {
		t.Fatalf("expected cause to be wrapped, got %v", err)
	}
	if lost.Load() == nil {
		t.Fatal("OnPayoutLost not called")
	}

	// The claim is released so the payout can be reissued.
	if _, err := c.Credit(context.Background(), "p1", 80, "tower", "k-lost"); err != nil {
		t.Fatalf("reissue after release: %v", err)
	}
}

func TestCreditRetryAtLeastOnceOnTimeout(t *testing.T) {
	auth := &scriptedAuthority{responses: []response{
		{ok: true, delay: 200 * time.Millisecond},
		{ok: true},
	}}
	cfg := fastConfig()
	cfg.CreditRetries = -1 // raised to the minimum of one retry
	c := NewClient(auth, cfg)

	if _, err := c.Credit(context.Background(), "p1", 5, "push-tap", "k"); err != nil {
		t.Fatalf("expected retry to recover from timeout, got %v", err)
	}
}

func TestMemoryAuthority(t *testing.T) {
	m := NewMemoryAuthority()
	m.Deposit("p1", 100)
	c := NewClient(m, fastConfig())
	ctx := context.Background()

	if _, err := c.Debit(ctx, "p1", 150, "slots", "d1"); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if m.Balance("p1") != 100 {
		t.Fatalf("declined debit must not mutate balance, got %d", m.Balance("p1"))
	}
	if _, err := c.Debit(ctx, "p1", 60, "slots", "d2"); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if ok, _ := m.ApplyDelta(ctx, Transaction{Account: "p1", Delta: -60, Key: "d2"}); !ok {
		t.Fatal("replayed key should return the first answer")
	}
	if m.Balance("p1") != 40 {
		t.Fatalf("expected 40 after one debit, got %d", m.Balance("p1"))
	}

	ok, err := c.ApplyDelta(ctx, "p1", 25, "refund")
	if err != nil || !ok {
		t.Fatalf("ApplyDelta credit: ok=%v err=%v", ok, err)
	}
	if m.Balance("p1") != 65 {
		t.Fatalf("expected 65, got %d", m.Balance("p1"))
	}
}

func TestJournalRecordsOutcomes(t *testing.T) {
	j := NewMemoryJournal()
	cfg := fastConfig()
	cfg.Journal = j
	auth := &scriptedAuthority{responses: []response{{ok: false}}}
	c := NewClient(auth, cfg)

	c.Debit(context.Background(), "p1", 10, "zone-pick", "d1")
	c.Debit(context.Background(), "p1", 10, "zone-pick", "d2")

	txs := j.Transactions()
	if len(txs) != 2 {
		t.Fatalf("expected 2 journal entries, got %d", len(txs))
	}
	if txs[0].Outcome != TxRejected || txs[1].Outcome != TxCommitted {
		t.Fatalf("unexpected outcomes %s, %s", txs[0].Outcome, txs[1].Outcome)
	}
}

// lateAuthority commits every delta after delay, ignoring the caller's deadline.
type lateAuthority struct {
	inner *MemoryAuthority
	delay time.Duration
}

func (a lateAuthority) ApplyDelta(_ context.Context, tx Transaction) (bool, error) {
	time.Sleep(a.delay)
	return a.inner.ApplyDelta(context.Background(), tx)
}

func TestDebitCommittedAfterTimeoutIsRefunded(t *testing.T) {
	m := NewMemoryAuthority()
	m.Deposit("p1", 100)
	j := NewMemoryJournal()
	cfg := fastConfig()
	cfg.Timeout = 10 * time.Millisecond
	cfg.Journal = j
	c := NewClient(lateAuthority{inner: m, delay: 40 * time.Millisecond}, cfg)

	if _, err := c.Debit(context.Background(), "p1", 100, "coin-flip", "w1:debit"); !errors.Is(err, ErrLedgerTimeout) {
		t.Fatalf("expected ErrLedgerTimeout, got %v", err)
	}
	c.Wait()

	if m.Balance("p1") != 100 {
		t.Fatalf("late debit kept the stake: balance %d", m.Balance("p1"))
	}
	var refunded bool
	for _, tx := range j.Transactions() {
		if tx.Key == "w1:debit"+RefundSuffix && tx.Delta == 100 && tx.Outcome == TxCommitted {
			refunded = true
		}
	}
	if !refunded {
		t.Fatalf("no committed refund in journal: %+v", j.Transactions())
	}
}

func TestDebitCancelledBeforeCommitLeavesBalance(t *testing.T) {
	m := NewMemoryAuthority()
	m.Deposit("p1", 100)
	c := NewClient(m, fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Debit(ctx, "p1", 30, "coin-flip", "w2:debit"); err == nil {
		t.Fatal("expected cancelled debit to fail")
	}
	c.Wait()

	if m.Balance("p1") != 100 {
		t.Fatalf("cancelled debit changed balance to %d", m.Balance("p1"))
	}
}
