// Package ledger exchanges currency with the external balance authority.
//
// The engine never owns balances. It only asks the authority to apply signed deltas:
// negative for a stake debit, positive for a payout or refund credit. Debits gate
// gameplay and are bounded by a timeout that counts as rejection. Credits do not gate
// gameplay, are retried, and are issued at most once per idempotency key.
//
// # Usage
//
//	client := ledger.NewClient(authority, ledger.Config{Timeout: 3 * time.Second})
//
//	tx, err := client.Debit(ctx, "player-1", 100, "coin-flip", key)
//	if errors.Is(err, ledger.ErrInsufficientFunds) {
//	    // wager never created
//	}
//	client.CreditAsync("player-1", 195, "coin-flip", key+":credit")
package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// RefundSuffix is appended to a debit key to form the key of its refund credit.
const RefundSuffix = ":refund"

// reconcileWaits bounds, in multiples of Config.Timeout, how long an abandoned
// debit is awaited before its key is replayed.
const reconcileWaits = 10

// TxOutcome is the lifecycle of a ledger transaction.
type TxOutcome string

const (
	TxPending   TxOutcome = "pending"
	TxCommitted TxOutcome = "committed"
	TxRejected  TxOutcome = "rejected"
)

// Transaction is one requested balance mutation.
type Transaction struct {
	ID        uuid.UUID `json:"id"`
	Account   string    `json:"account"`
	Delta     int64     `json:"delta"`
	Reason    string    `json:"reason"`
	Key       string    `json:"key"`
	Outcome   TxOutcome `json:"outcome"`
	CreatedAt time.Time `json:"createdAt"`
}

// Authority is the external system of record for balances. ApplyDelta returns true
// only when the mutation is committed; false means insufficient funds or refusal.
// Implementations should treat Key as an idempotency key.
type Authority interface {
	ApplyDelta(ctx context.Context, tx Transaction) (bool, error)
}

// Journal persists transactions and guards credit idempotency.
type Journal interface {
	// Claim reserves a credit key. It returns false if the key was already claimed.
	Claim(ctx context.Context, key string) (bool, error)
	// Release frees a claim whose credit could not be delivered.
	Release(ctx context.Context, key string) error
	// Record stores a finished transaction.
	Record(ctx context.Context, tx Transaction) error
}

// Config holds configuration for the ledger client.
type Config struct {
	// Timeout bounds each authority call. Defaults to 5 seconds.
	Timeout time.Duration

	// CreditRetries is the number of retries after a failed credit attempt.
	// Defaults to 2; values below 1 are raised to 1.
	CreditRetries int

	// RetryBase is the initial backoff between credit attempts. Defaults to 200ms.
	RetryBase time.Duration

	// Journal records transactions and credit claims. Defaults to an in-memory journal.
	Journal Journal

	// Logger receives transaction logs. Nil discards them.
	Logger *log.Logger

	// OnPayoutLost is called when a credit fails after all retries.
	OnPayoutLost func(*PayoutLostError)
}

// Client wraps an Authority with timeouts, retries and idempotent credits.
type Client struct {
	auth   Authority
	cfg    Config
	logger *log.Logger

	inflight sync.WaitGroup
}

// NewClient creates a ledger client with defaults applied.
func NewClient(auth Authority, cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.CreditRetries == 0 {
		cfg.CreditRetries = 2
	}
	if cfg.CreditRetries < 1 {
		cfg.CreditRetries = 1
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 200 * time.Millisecond
	}
	if cfg.Journal == nil {
		cfg.Journal = NewMemoryJournal()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Client{auth: auth, cfg: cfg, logger: logger}
}

// ApplyDelta is the raw contract: it applies amount (negative debit, positive credit)
// and reports whether the authority confirmed it. Timeouts and transport failures
// report false with the error.
func (c *Client) ApplyDelta(ctx context.Context, account string, amount int64, reason string) (bool, error) {
	tx := c.newTx(account, amount, reason, uuid.NewString())
	ok, err := c.apply(ctx, tx)
	c.record(ctx, tx, ok)
	return ok, err
}

// Debit charges amount to account. The returned error is ErrInsufficientFunds when
// declined and ErrLedgerTimeout when unconfirmed in time; both mean the stake was
// not taken and the caller must not treat the wager as placed. A timed out or
// cancelled debit that the authority commits anyway is refunded under key+RefundSuffix.
func (c *Client) Debit(ctx context.Context, account string, amount int64, reason, key string) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	tx := c.newTx(account, -amount, reason, key)

	r, late := c.applyLate(ctx, tx)
	ok, err := r.ok, r.err
	tx = c.record(ctx, tx, ok && err == nil)
	switch {
	case err != nil:
		c.logger.Printf("debit_failed account=%s amount=%d reason=%s key=%s err=%v", account, amount, reason, key, err)
		if errors.Is(err, ErrLedgerTimeout) || errors.Is(err, context.Canceled) {
			c.reconcileDebit(tx, late)
		}
		return tx, err
	case !ok:
		c.logger.Printf("debit_declined account=%s amount=%d reason=%s key=%s", account, amount, reason, key)
		return tx, ErrInsufficientFunds
	}
	c.logger.Printf("debit_committed account=%s amount=%d reason=%s key=%s", account, amount, reason, key)
	return tx, nil
}

// Credit pays amount to account at most once per key, retrying failed attempts with
// exponential backoff. When every attempt fails the claim is released, OnPayoutLost
// fires and a *PayoutLostError is returned.
func (c *Client) Credit(ctx context.Context, account string, amount int64, reason, key string) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	claimed, err := c.cfg.Journal.Claim(ctx, key)
	if err != nil {
		return Transaction{}, fmt.Errorf("ledger: claim credit %s: %w", key, err)
	}
	if !claimed {
		return Transaction{}, ErrAlreadyCredited
	}

	tx := c.newTx(account, amount, reason, key)
	attempts := 0
	backoff := retry.WithMaxRetries(uint64(c.cfg.CreditRetries), retry.NewExponential(c.cfg.RetryBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		ok, err := c.apply(ctx, tx)
		if err != nil {
			c.logger.Printf("credit_attempt_failed account=%s amount=%d key=%s attempt=%d err=%v", account, amount, key, attempts, err)
			return retry.RetryableError(err)
		}
		if !ok {
			c.logger.Printf("credit_attempt_rejected account=%s amount=%d key=%s attempt=%d", account, amount, key, attempts)
			return retry.RetryableError(ErrCreditRejected)
		}
		return nil
	})

	if err != nil {
		tx = c.record(ctx, tx, false)
		if rerr := c.cfg.Journal.Release(context.Background(), key); rerr != nil {
			c.logger.Printf("credit_release_failed key=%s err=%v", key, rerr)
		}
		lost := &PayoutLostError{Tx: tx, Attempts: attempts, Err: err}
		c.logger.Printf("payout_lost account=%s amount=%d reason=%s key=%s attempts=%d err=%v", account, amount, reason, key, attempts, err)
		if c.cfg.OnPayoutLost != nil {
			c.cfg.OnPayoutLost(lost)
		}
		return tx, lost
	}

	tx = c.record(ctx, tx, true)
	c.logger.Printf("credit_committed account=%s amount=%d reason=%s key=%s attempts=%d", account, amount, reason, key, attempts)
	return tx, nil
}

// CreditAsync issues a credit without blocking the caller. Wait blocks until every
// asynchronous credit has finished.
func (c *Client) CreditAsync(account string, amount int64, reason, key string) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		_, err := c.Credit(context.Background(), account, amount, reason, key)
		if err != nil && !errors.Is(err, ErrAlreadyCredited) {
			c.logger.Printf("credit_async_failed account=%s key=%s err=%v", account, key, err)
		}
	}()
}

// Wait blocks until all asynchronous credits have completed.
func (c *Client) Wait() {
	c.inflight.Wait()
}

type applyResult struct {
	ok  bool
	err error
}

// apply calls the authority with the configured timeout. The wait is bounded even
// if the authority ignores context cancellation.
func (c *Client) apply(ctx context.Context, tx Transaction) (bool, error) {
	r, _ := c.applyLate(ctx, tx)
	return r.ok, r.err
}

// applyLate is apply that also hands back the still running call when the wait
// gave up first. The channel is nil when the authority answered in time.
func (c *Client) applyLate(ctx context.Context, tx Transaction) (applyResult, <-chan applyResult) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	done := make(chan applyResult, 1)
	go func() {
		ok, err := c.auth.ApplyDelta(ctx, tx)
		done <- applyResult{ok, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return applyResult{false, fmt.Errorf("%w: %v", ErrLedgerTimeout, r.err)}, nil
		}
		return r, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return applyResult{false, ErrLedgerTimeout}, done
		}
		return applyResult{false, ctx.Err()}, done
	}
}

// reconcileDebit settles a debit whose answer never arrived. It waits for the
// abandoned call, or replays the same key when that call failed or stays silent,
// and refunds the stake if the authority committed it after all. Wait covers it.
func (c *Client) reconcileDebit(tx Transaction, late <-chan applyResult) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()

		r := applyResult{err: ErrLedgerTimeout}
		if late != nil {
			select {
			case r = <-late:
			case <-time.After(reconcileWaits * c.cfg.Timeout):
			}
		}
		if r.err != nil {
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
			r.ok, r.err = c.auth.ApplyDelta(ctx, tx)
			cancel()
		}
		switch {
		case r.err != nil:
			c.logger.Printf("debit_unresolved account=%s key=%s err=%v", tx.Account, tx.Key, r.err)
			return
		case !r.ok:
			return
		}

		c.record(context.Background(), tx, true)
		c.logger.Printf("debit_late_commit account=%s amount=%d key=%s", tx.Account, -tx.Delta, tx.Key)
		if _, err := c.Credit(context.Background(), tx.Account, -tx.Delta, tx.Reason, tx.Key+RefundSuffix); err != nil && !errors.Is(err, ErrAlreadyCredited) {
			c.logger.Printf("debit_refund_failed account=%s key=%s err=%v", tx.Account, tx.Key, err)
		}
	}()
}

func (c *Client) newTx(account string, delta int64, reason, key string) Transaction {
	return Transaction{
		ID:        uuid.New(),
		Account:   account,
		Delta:     delta,
		Reason:    reason,
		Key:       key,
		Outcome:   TxPending,
		CreatedAt: time.Now().UTC(),
	}
}

func (c *Client) record(ctx context.Context, tx Transaction, committed bool) Transaction {
	tx.Outcome = TxRejected
	if committed {
		tx.Outcome = TxCommitted
	}
	if err := c.cfg.Journal.Record(context.WithoutCancel(ctx), tx); err != nil {
		c.logger.Printf("journal_record_failed key=%s err=%v", tx.Key, err)
	}
	return tx
}
