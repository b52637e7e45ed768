package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MJE43/minigame-engine/internal/ledger"
	"github.com/MJE43/minigame-engine/internal/outcome"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:", nil)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrations(t *testing.T) {
	s := openTestStore(t)
	v, err := s.Version(context.Background())
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if v != 2 {
		t.Errorf("Expected schema version 2, got %d", v)
	}

	for _, table := range []string{"outcomes", "ledger_transactions", "credit_claims"} {
		var name string
		err := s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestReopenFileDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "engine.db")

	s, err := Open(ctx, path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if ok, _ := s.Claim(ctx, "round:1:credit"); !ok {
		t.Fatal("first claim should succeed")
	}
	s.Close()

	s, err = Open(ctx, path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if ok, _ := s.Claim(ctx, "round:1:credit"); ok {
		t.Error("claim should survive a restart")
	}
}

func TestClaimRelease(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	ok, err := s.Claim(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	ok, err = s.Claim(ctx, "k")
	if err != nil || ok {
		t.Fatalf("second claim: ok=%v err=%v", ok, err)
	}
	if err := s.Release(ctx, "k"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if ok, _ := s.Claim(ctx, "k"); !ok {
		t.Error("claim after release should succeed")
	}
}

func TestJournalWithLedgerClient(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	auth := ledger.NewMemoryAuthority()
	auth.Deposit("alice", 100)
	client := ledger.NewClient(auth, ledger.Config{Journal: s, RetryBase: time.Millisecond})

	if _, err := client.Debit(ctx, "alice", 40, "coin-flip", "coin-flip:round:1:debit"); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if _, err := client.Credit(ctx, "alice", 78, "coin-flip", "coin-flip:round:1:credit"); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if _, err := client.Credit(ctx, "alice", 78, "coin-flip", "coin-flip:round:1:credit"); err != ledger.ErrAlreadyCredited {
		t.Fatalf("Expected ErrAlreadyCredited, got %v", err)
	}
	if got := auth.Balance("alice"); got != 138 {
		t.Errorf("Expected balance 138, got %d", got)
	}

	txs, err := s.Transactions(ctx, "", 0)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("Expected 2 transactions, got %d", len(txs))
	}
	if txs[0].Delta != -40 || txs[0].Outcome != ledger.TxCommitted {
		t.Errorf("unexpected debit %+v", txs[0])
	}
	if txs[1].Delta != 78 || txs[1].Key != "coin-flip:round:1:credit" {
		t.Errorf("unexpected credit %+v", txs[1])
	}

	byKey, err := s.Transactions(ctx, "coin-flip:round:1:debit", 10)
	if err != nil || len(byKey) != 1 {
		t.Fatalf("Expected 1 debit by key, got %d (err=%v)", len(byKey), err)
	}
}

func sampleOutcome(game, player string, at time.Time) outcome.Outcome {
	return outcome.Outcome{
		WagerID:    uuid.New(),
		Game:       game,
		Round:      3,
		Player:     player,
		Selection:  "heads",
		Stake:      100,
		Result:     outcome.ResultWin,
		Payout:     195,
		Multiplier: decimal.RequireFromString("1.95"),
		Detail:     map[string]any{"winner": "heads"},
		ResolvedAt: at,
	}
}

func TestOutcomeRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	o := sampleOutcome("coin-flip", "alice", time.Now().UTC().Truncate(time.Millisecond))
	s.OutcomeResolved(o)
	s.OutcomeResolved(o)

	page, err := s.ListOutcomes(ctx, OutcomesQuery{})
	if err != nil {
		t.Fatalf("ListOutcomes: %v", err)
	}
	if page.TotalCount != 1 || len(page.Outcomes) != 1 {
		t.Fatalf("Expected 1 outcome, got %d", page.TotalCount)
	}
	got := page.Outcomes[0]
	if got.WagerID != o.WagerID || got.Round != 3 || got.Payout != 195 || got.Result != outcome.ResultWin {
		t.Errorf("unexpected outcome %+v", got)
	}
	if !got.Multiplier.Equal(o.Multiplier) {
		t.Errorf("Expected multiplier %s, got %s", o.Multiplier, got.Multiplier)
	}
	if got.Detail["winner"] != "heads" {
		t.Errorf("detail not preserved: %v", got.Detail)
	}
	if !got.ResolvedAt.Equal(o.ResolvedAt) {
		t.Errorf("Expected resolved at %s, got %s", o.ResolvedAt, got.ResolvedAt)
	}
}

func TestListOutcomesPagination(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := s.SaveOutcome(ctx, sampleOutcome("coin-flip", "alice", base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("SaveOutcome: %v", err)
		}
	}
	if err := s.SaveOutcome(ctx, sampleOutcome("tower", "bob", base)); err != nil {
		t.Fatalf("SaveOutcome: %v", err)
	}

	page, err := s.ListOutcomes(ctx, OutcomesQuery{Game: "coin-flip", Page: 1, PerPage: 2})
	if err != nil {
		t.Fatalf("ListOutcomes: %v", err)
	}
	if page.TotalCount != 5 || page.TotalPages != 3 || len(page.Outcomes) != 2 {
		t.Fatalf("unexpected page %+v", page)
	}
	if !page.Outcomes[0].ResolvedAt.Equal(base.Add(4 * time.Second)) {
		t.Errorf("Expected newest first, got %s", page.Outcomes[0].ResolvedAt)
	}

	last, err := s.ListOutcomes(ctx, OutcomesQuery{Game: "coin-flip", Page: 3, PerPage: 2})
	if err != nil || len(last.Outcomes) != 1 {
		t.Fatalf("Expected 1 outcome on the last page, got %v (err=%v)", last, err)
	}

	bob, err := s.ListOutcomes(ctx, OutcomesQuery{Player: "bob"})
	if err != nil || bob.TotalCount != 1 || bob.Outcomes[0].Game != "tower" {
		t.Fatalf("player filter: %+v err=%v", bob, err)
	}
	if bob.PerPage != 50 {
		t.Errorf("Expected default page size 50, got %d", bob.PerPage)
	}
}
