package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MJE43/minigame-engine/internal/ledger"
	"github.com/MJE43/minigame-engine/internal/outcome"
	"github.com/MJE43/minigame-engine/internal/rng"
)

func towerParams() outcome.LadderParams {
	table := []string{"1.31", "1.74", "2.32", "3.10", "4.13", "5.51", "7.34", "9.79", "13.05", "17.40"}
	mults := make([]decimal.Decimal, len(table))
	for i, m := range table {
		mults[i] = decimal.RequireFromString(m)
	}
	return outcome.LadderParams{StepCount: 10, BoardWidth: 4, DangerPerRow: 1, Multipliers: mults}
}

// With fixedSource every row has its danger cell in column 0.
func newTestLadder(t *testing.T, auth ledger.Authority, obs Observer) (*Ladder, *ledger.Client) {
	t.Helper()
	lc := testLedger(auth)
	l, err := NewLadder(LadderOptions{
		Game:     "tower",
		Params:   towerParams(),
		Ledger:   lc,
		RNG:      fixedSource{},
		Observer: obs,
	})
	if err != nil {
		t.Fatalf("NewLadder: %v", err)
	}
	return l, lc
}

func TestLadderStartDeclined(t *testing.T) {
	auth := newTracingAuthority()
	obs := &recorder{}
	l, _ := newTestLadder(t, auth, obs)

	if _, err := l.Start(context.Background(), "broke", 100); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if _, ok := l.Active("broke"); ok {
		t.Error("declined start must not leave an active attempt")
	}
	if obs.declinedCount() != 1 {
		t.Errorf("expected declined notification")
	}
	if _, err := l.Start(context.Background(), "broke", 0); !errors.Is(err, ErrInvalidSelection) {
		t.Errorf("zero bet: expected ErrInvalidSelection, got %v", err)
	}
}

func TestLadderCashOut(t *testing.T) {
	auth := newTracingAuthority()
	auth.Deposit("p1", 1000)
	obs := &recorder{}
	l, lc := newTestLadder(t, auth, obs)
	ctx := context.Background()

	view, err := l.Start(ctx, "p1", 100)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if auth.Balance("p1") != 900 {
		t.Fatalf("expected bet debited before play, got %d", auth.Balance("p1"))
	}
	if view.Danger != nil {
		t.Error("danger map must stay hidden while active")
	}
	if _, err := l.Start(ctx, "p1", 100); !errors.Is(err, ErrAttemptActive) {
		t.Errorf("second start: expected ErrAttemptActive, got %v", err)
	}
	if _, err := l.CashOut(view.ID); !errors.Is(err, outcome.ErrCashOutAtZero) {
		t.Errorf("expected ErrCashOutAtZero, got %v", err)
	}

	for i := 0; i < 3; i++ {
		if view, err = l.Reveal(view.ID, 1); err != nil {
			t.Fatalf("Reveal %d: %v", i, err)
		}
	}
	if view.CurrentStep != 3 {
		t.Fatalf("expected step 3, got %d", view.CurrentStep)
	}

	view, err = l.CashOut(view.ID)
	if err != nil {
		t.Fatalf("CashOut: %v", err)
	}
	if view.Status != outcome.LadderCashed || view.Payout != 232 {
		t.Errorf("unexpected cash out %+v", view.LadderState)
	}
	lc.Wait()

	if auth.Balance("p1") != 1132 {
		t.Errorf("expected 1132, got %d", auth.Balance("p1"))
	}
	if _, err := l.Reveal(view.ID, 1); !errors.Is(err, outcome.ErrLadderTerminated) {
		t.Errorf("expected ErrLadderTerminated, got %v", err)
	}
	if _, err := l.CashOut(view.ID); !errors.Is(err, outcome.ErrLadderTerminated) {
		t.Errorf("expected ErrLadderTerminated on second cash out, got %v", err)
	}
	lc.Wait()

	outs := obs.outcomeList()
	if len(outs) != 1 || outs[0].Result != outcome.ResultWin || outs[0].Payout != 232 {
		t.Fatalf("expected exactly one winning outcome, got %+v", outs)
	}
	if auth.count(true) != 1 {
		t.Errorf("expected one credit, got %d", auth.count(true))
	}
	if _, ok := l.Active("p1"); ok {
		t.Error("terminated attempt must not stay active")
	}
	if _, err := l.Start(ctx, "p1", 10); err != nil {
		t.Errorf("new attempt after termination: %v", err)
	}
}

func TestLadderBust(t *testing.T) {
	auth := newTracingAuthority()
	auth.Deposit("p1", 100)
	obs := &recorder{}
	l, lc := newTestLadder(t, auth, obs)

	view, _ := l.Start(context.Background(), "p1", 100)
	view, err := l.Reveal(view.ID, 0)
	if err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	lc.Wait()

	if view.Status != outcome.LadderBusted || view.Payout != 0 {
		t.Errorf("unexpected bust state %+v", view.LadderState)
	}
	if len(view.Danger) != 10 {
		t.Errorf("danger map must be revealed after termination")
	}
	if auth.count(true) != 0 {
		t.Error("busted ladder must not credit")
	}
	if outs := obs.outcomeList(); len(outs) != 1 || outs[0].Result != outcome.ResultLoss {
		t.Errorf("expected one loss outcome, got %+v", outs)
	}
}

func TestLadderReachingTopPaysOut(t *testing.T) {
	auth := newTracingAuthority()
	auth.Deposit("p1", 10)
	l, lc := newTestLadder(t, auth, &recorder{})

	view, _ := l.Start(context.Background(), "p1", 10)
	var err error
	for i := 0; i < 10; i++ {
		if view, err = l.Reveal(view.ID, 2); err != nil {
			t.Fatalf("Reveal %d: %v", i, err)
		}
	}
	lc.Wait()

	if view.Status != outcome.LadderTopped || view.Payout != 174 {
		t.Errorf("unexpected top state %+v", view.LadderState)
	}
	if auth.Balance("p1") != 174 {
		t.Errorf("expected 174, got %d", auth.Balance("p1"))
	}
}

func TestLadderUnknownAttempt(t *testing.T) {
	l, _ := newTestLadder(t, newTracingAuthority(), nil)
	if _, err := l.Get(uuid.New()); !errors.Is(err, ErrAttemptNotFound) {
		t.Errorf("expected ErrAttemptNotFound, got %v", err)
	}
	if _, err := l.Reveal(uuid.New(), 0); !errors.Is(err, ErrAttemptNotFound) {
		t.Errorf("expected ErrAttemptNotFound, got %v", err)
	}
}

func TestLadderBoardFailureRefundsAndFreesSlot(t *testing.T) {
	auth := newTracingAuthority()
	auth.Deposit("p1", 1000)
	l, lc := newTestLadder(t, auth, &recorder{})
	l.newBoard = func(outcome.LadderParams, int64, rng.Source) (*outcome.Ladder, error) {
		return nil, errors.New("board unavailable")
	}
	ctx := context.Background()

	if _, err := l.Start(ctx, "p1", 100); err == nil {
		t.Fatal("expected Start to fail")
	}
	lc.Wait()
	if _, ok := l.Active("p1"); ok {
		t.Error("failed start must not leave an active attempt")
	}
	if auth.Balance("p1") != 1000 {
		t.Errorf("expected the bet refunded, balance %d", auth.Balance("p1"))
	}

	l.newBoard = outcome.NewLadder
	if _, err := l.Start(ctx, "p1", 100); err != nil {
		t.Fatalf("player locked out after failed start: %v", err)
	}
}

func TestLadderEndedAttemptsExpire(t *testing.T) {
	auth := newTracingAuthority()
	auth.Deposit("p1", 1000)
	l, lc := newTestLadder(t, auth, &recorder{})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	ended, _ := l.Start(ctx, "p1", 100)
	if _, err := l.Reveal(ended.ID, 0); err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	running, err := l.Start(ctx, "p1", 100)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	lc.Wait()

	now = now.Add(30 * time.Minute)
	if _, err := l.Get(ended.ID); err != nil {
		t.Fatalf("recent attempt should stay readable: %v", err)
	}

	now = now.Add(time.Hour)
	if _, err := l.Start(ctx, "p2", 100); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if _, err := l.Get(ended.ID); !errors.Is(err, ErrAttemptNotFound) {
		t.Errorf("expected expired attempt to be gone, got %v", err)
	}
	if _, err := l.Get(running.ID); err != nil {
		t.Errorf("running attempt must never expire: %v", err)
	}
}
