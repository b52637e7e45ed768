package session

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MJE43/minigame-engine/internal/ledger"
	"github.com/MJE43/minigame-engine/internal/outcome"
	"github.com/MJE43/minigame-engine/internal/rng"
)

// LadderOptions configures a Ladder session.
type LadderOptions struct {
	Game   string
	Params outcome.LadderParams
	Ledger *ledger.Client

	RNG      rng.Source
	Observer Observer
	Logger   *log.Logger
	Now      func() time.Time

	// Retention keeps ended attempts readable for this long. Defaults to one hour.
	Retention time.Duration
}

// LadderView is one climb attempt as shown to the player.
type LadderView struct {
	ID        uuid.UUID `json:"id"`
	Game      string    `json:"game"`
	Player    string    `json:"player"`
	StartedAt time.Time `json:"startedAt"`
	outcome.LadderState
}

type attempt struct {
	mu        sync.Mutex
	id        uuid.UUID
	player    string
	ladder    *outcome.Ladder
	startedAt time.Time
	endedAt   time.Time // guarded by Ladder.mu
}

// Ladder runs progressive climb-and-cash-out attempts. Each attempt debits its
// bet before the danger map is generated and is settled once when it terminates.
type Ladder struct {
	game   string
	params outcome.LadderParams
	ledger *ledger.Client
	src    rng.Source
	obs    Observer
	logger *log.Logger
	now    func() time.Time
	keep   time.Duration

	// newBoard draws the danger map.
	newBoard func(outcome.LadderParams, int64, rng.Source) (*outcome.Ladder, error)

	mu       sync.Mutex
	attempts map[uuid.UUID]*attempt
	// active maps a player to their running attempt; uuid.Nil reserves a slot
	// while the debit is in flight.
	active map[string]uuid.UUID
}

// NewLadder creates a ladder session.
func NewLadder(opts LadderOptions) (*Ladder, error) {
	if opts.Game == "" {
		return nil, fmt.Errorf("session: game id is required")
	}
	if opts.Ledger == nil {
		return nil, fmt.Errorf("session: %s: ledger client is required", opts.Game)
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, fmt.Errorf("session: %s: %w", opts.Game, err)
	}
	if opts.RNG == nil {
		opts.RNG = rng.Default()
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Retention <= 0 {
		opts.Retention = time.Hour
	}
	return &Ladder{
		game:     opts.Game,
		params:   opts.Params,
		ledger:   opts.Ledger,
		src:      opts.RNG,
		obs:      opts.Observer,
		logger:   opts.Logger,
		now:      opts.Now,
		keep:     opts.Retention,
		newBoard: outcome.NewLadder,
		attempts: make(map[uuid.UUID]*attempt),
		active:   make(map[string]uuid.UUID),
	}, nil
}

// Game returns the session's game id.
func (l *Ladder) Game() string { return l.game }

// Params returns the board parameters.
func (l *Ladder) Params() outcome.LadderParams { return l.params }

// Start debits bet and opens a new attempt for player.
func (l *Ladder) Start(ctx context.Context, player string, bet int64) (LadderView, error) {
	if bet <= 0 {
		return LadderView{}, ErrNonPositiveAmount
	}

	l.mu.Lock()
	if _, busy := l.active[player]; busy {
		l.mu.Unlock()
		return LadderView{}, ErrAttemptActive
	}
	l.active[player] = uuid.Nil
	l.pruneLocked()
	l.mu.Unlock()

	id := uuid.New()
	w := l.wager(id, player, bet)
	if _, err := l.ledger.Debit(ctx, player, bet, l.game, ladderKey(id)+":debit"); err != nil {
		l.mu.Lock()
		delete(l.active, player)
		l.mu.Unlock()
		l.logger.Printf("ladder_declined game=%s player=%s bet=%d err=%v", l.game, player, bet, err)
		l.obs.WagerDeclined(w, err)
		return LadderView{}, err
	}

	// The map is drawn only after the stake is confirmed.
	board, err := l.newBoard(l.params, bet, l.src)
	if err != nil {
		l.mu.Lock()
		delete(l.active, player)
		l.mu.Unlock()
		l.ledger.CreditAsync(player, bet, l.game, ladderKey(id)+":debit"+ledger.RefundSuffix)
		l.logger.Printf("ladder_board_failed game=%s attempt=%s player=%s bet=%d err=%v", l.game, id, player, bet, err)
		return LadderView{}, fmt.Errorf("session: %s: %w", l.game, err)
	}
	a := &attempt{id: id, player: player, ladder: board, startedAt: w.PlacedAt}

	l.mu.Lock()
	l.attempts[id] = a
	l.active[player] = id
	l.mu.Unlock()

	l.logger.Printf("ladder_started game=%s attempt=%s player=%s bet=%d", l.game, id, player, bet)
	return l.view(a, board.State()), nil
}

// Reveal opens col in the attempt's current row.
func (l *Ladder) Reveal(id uuid.UUID, col int) (LadderView, error) {
	return l.act(id, func(board *outcome.Ladder) (outcome.LadderState, error) {
		return board.Reveal(col)
	})
}

// CashOut ends the attempt at its current multiplier.
func (l *Ladder) CashOut(id uuid.UUID) (LadderView, error) {
	return l.act(id, func(board *outcome.Ladder) (outcome.LadderState, error) {
		return board.CashOut()
	})
}

// Get returns an attempt's state.
func (l *Ladder) Get(id uuid.UUID) (LadderView, error) {
	a, err := l.attempt(id)
	if err != nil {
		return LadderView{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return l.view(a, a.ladder.State()), nil
}

// Active returns the running attempt of player, if any.
func (l *Ladder) Active(player string) (uuid.UUID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.active[player]
	return id, ok && id != uuid.Nil
}

func (l *Ladder) act(id uuid.UUID, step func(*outcome.Ladder) (outcome.LadderState, error)) (LadderView, error) {
	a, err := l.attempt(id)
	if err != nil {
		return LadderView{}, err
	}

	a.mu.Lock()
	st, err := step(a.ladder)
	if err != nil {
		a.mu.Unlock()
		return LadderView{}, err
	}
	view := l.view(a, st)
	a.mu.Unlock()

	if st.Status.Terminal() {
		l.settle(a, st)
	}
	return view, nil
}

// settle runs once per attempt: the terminating action is the only one that
// returns a terminal state without ErrLadderTerminated.
func (l *Ladder) settle(a *attempt, st outcome.LadderState) {
	l.mu.Lock()
	if l.active[a.player] == a.id {
		delete(l.active, a.player)
	}
	a.endedAt = l.now()
	l.mu.Unlock()

	w := l.wager(a.id, a.player, st.Bet)
	w.PlacedAt = a.startedAt
	res := outcome.Resolution{
		Result:     resultOf(st),
		Payout:     st.Payout,
		Multiplier: st.Multiplier,
		Detail: map[string]any{
			"status":      st.Status,
			"currentStep": st.CurrentStep,
			"revealed":    st.Revealed,
		},
	}
	if res.Result == outcome.ResultLoss {
		res.Multiplier = decimal.Zero
	}
	o := outcome.NewOutcome(w, res, l.now().UTC())

	if o.Payout > 0 {
		l.ledger.CreditAsync(a.player, o.Payout, l.game, ladderKey(a.id)+":credit")
	}
	l.logger.Printf("ladder_settled game=%s attempt=%s player=%s status=%s step=%d payout=%d",
		l.game, a.id, a.player, st.Status, st.CurrentStep, o.Payout)
	l.obs.OutcomeResolved(o)
}

// pruneLocked forgets attempts that ended more than the retention period ago.
func (l *Ladder) pruneLocked() {
	cutoff := l.now().Add(-l.keep)
	for id, a := range l.attempts {
		if !a.endedAt.IsZero() && a.endedAt.Before(cutoff) {
			delete(l.attempts, id)
		}
	}
}

func (l *Ladder) attempt(id uuid.UUID) (*attempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.attempts[id]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	return a, nil
}

func (l *Ladder) wager(id uuid.UUID, player string, bet int64) outcome.Wager {
	return outcome.Wager{
		ID:        id,
		Game:      l.game,
		Player:    player,
		Selection: "climb",
		Amount:    bet,
		PlacedAt:  l.now().UTC(),
	}
}

func (l *Ladder) view(a *attempt, st outcome.LadderState) LadderView {
	return LadderView{ID: a.id, Game: l.game, Player: a.player, StartedAt: a.startedAt, LadderState: st}
}

func resultOf(st outcome.LadderState) outcome.Result {
	if st.Status == outcome.LadderBusted {
		return outcome.ResultLoss
	}
	return outcome.ResultWin
}

func ladderKey(id uuid.UUID) string {
	return "ladder:" + id.String()
}
