// Package session orchestrates the scheduler, the ledger client and the outcome
// resolvers for concrete mini-games.
//
// A Session runs one scheduled game. Wagers are collected while the round is
// preparing. When the round starts, each wager runs its own pipeline:
//
//	debit -> resolve -> credit -> notify
//
// A declined debit ends the pipeline before any randomness is consumed. Outcomes are
// surfaced when the round enters Results. A wager whose debit is still unconfirmed
// at that point is voided: if the debit later commits, the stake is refunded as a push.
//
// Ladder and Auction are interactive sessions without a round timer.
package session

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MJE43/minigame-engine/internal/clock"
	"github.com/MJE43/minigame-engine/internal/ledger"
	"github.com/MJE43/minigame-engine/internal/outcome"
	"github.com/MJE43/minigame-engine/internal/rng"
	"github.com/MJE43/minigame-engine/internal/round"
)

// WagerStatus tracks a wager through its round.
type WagerStatus string

const (
	WagerPlaced   WagerStatus = "placed"
	WagerDebiting WagerStatus = "debiting"
	WagerDeclined WagerStatus = "declined"
	WagerResolved WagerStatus = "resolved"
)

// Options configures a Session.
type Options struct {
	Game     string
	Strategy outcome.Strategy
	Round    round.Config
	Ledger   *ledger.Client

	// RNG defaults to rng.Default().
	RNG rng.Source
	// Observer defaults to NopObserver.
	Observer Observer
	// Logger defaults to discarding output.
	Logger *log.Logger
	// MaxConcurrentPipelines bounds concurrent wager pipelines per round. Zero means no limit.
	MaxConcurrentPipelines int
	// Now defaults to time.Now.
	Now func() time.Time
}

// WagerRequest is the inbound placeWager call.
type WagerRequest struct {
	Player    string `json:"player"`
	Asset     string `json:"asset,omitempty"`
	Selection string `json:"selection"`
	Amount    int64  `json:"amount"`
}

// WagerState is a wager and its progress through the current round.
type WagerState struct {
	Wager   outcome.Wager    `json:"wager"`
	Status  WagerStatus      `json:"status"`
	Void    bool             `json:"void,omitempty"`
	Outcome *outcome.Outcome `json:"outcome,omitempty"`
}

// State is a read-only view of a session.
type State struct {
	Game   string         `json:"game"`
	Kind   outcome.Kind   `json:"kind"`
	Round  round.Snapshot `json:"round"`
	Wagers []WagerState   `json:"wagers"`
	// Reveal is populated once the round has entered Results.
	Reveal map[string]any `json:"reveal,omitempty"`
}

type wagerKey struct {
	player string
	key    string
}

type entry struct {
	wager    outcome.Wager
	status   WagerStatus
	void     bool
	outcome  *outcome.Outcome
	notified bool
}

// Session drives one scheduled game instance.
type Session struct {
	game     string
	strategy outcome.Strategy
	ledger   *ledger.Client
	src      rng.Source
	obs      Observer
	logger   *log.Logger
	limit    int
	now      func() time.Time
	sched    *round.Scheduler

	mu      sync.Mutex
	roundID uint64
	phase   round.Phase
	draw    outcome.Draw
	wagers  map[wagerKey]*entry
	order   []*entry

	// Highest round id that passed each handler; makes the handlers idempotent.
	startedThrough uint64
	closedThrough  uint64
	endedThrough   uint64

	pipelines sync.WaitGroup
}

// New creates a session. The scheduler starts in round 1, preparing.
func New(opts Options) (*Session, error) {
	if opts.Game == "" {
		return nil, fmt.Errorf("session: game id is required")
	}
	if opts.Strategy == nil {
		return nil, fmt.Errorf("session: %s: strategy is required", opts.Game)
	}
	if opts.Ledger == nil {
		return nil, fmt.Errorf("session: %s: ledger client is required", opts.Game)
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

	s := &Session{
		game:     opts.Game,
		strategy: opts.Strategy,
		ledger:   opts.Ledger,
		src:      opts.RNG,
		obs:      opts.Observer,
		logger:   opts.Logger,
		limit:    opts.MaxConcurrentPipelines,
		now:      opts.Now,
		wagers:   make(map[wagerKey]*entry),
	}
	sched, err := round.New(opts.Round, round.Hooks{
		OnPhase:      s.phaseChanged,
		OnRoundStart: s.startRound,
		OnResults:    s.closeRound,
		OnRoundEnd:   s.endRound,
	})
	if err != nil {
		return nil, fmt.Errorf("session: %s: %w", opts.Game, err)
	}
	s.sched = sched

	snap := sched.Snapshot()
	s.roundID = snap.RoundID
	s.phase = snap.Phase
	s.draw = s.strategy.Begin(s.src)
	return s, nil
}

// Game returns the session's game id.
func (s *Session) Game() string { return s.game }

// Kind returns the resolver kind.
func (s *Session) Kind() outcome.Kind { return s.strategy.Kind() }

// PlaceWager records a wager for the current round. It makes no ledger call; the
// stake is debited when the round starts.
func (s *Session) PlaceWager(req WagerRequest) (outcome.Wager, error) {
	if req.Amount <= 0 {
		return outcome.Wager{}, ErrNonPositiveAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != round.PhasePreparing {
		return outcome.Wager{}, ErrWrongPhase
	}
	w := outcome.Wager{
		ID:        uuid.New(),
		Game:      s.game,
		Round:     s.roundID,
		Player:    req.Player,
		Asset:     req.Asset,
		Selection: req.Selection,
		Amount:    req.Amount,
		PlacedAt:  s.now().UTC(),
	}
	if err := s.strategy.Validate(w); err != nil {
		return outcome.Wager{}, fmt.Errorf("%w: %v", ErrInvalidSelection, err)
	}
	k := wagerKey{player: w.Player, key: w.SelectionKey()}
	if _, dup := s.wagers[k]; dup {
		return outcome.Wager{}, ErrDuplicateWager
	}

	e := &entry{wager: w, status: WagerPlaced}
	s.wagers[k] = e
	s.order = append(s.order, e)
	s.logger.Printf("wager_placed game=%s round=%d player=%s key=%q selection=%s amount=%d",
		s.game, w.Round, w.Player, k.key, w.Selection, w.Amount)
	return w, nil
}

// Tick advances the scheduler by one second.
func (s *Session) Tick() {
	s.sched.Tick()
}

// Run ticks the session from src until ctx is done.
func (s *Session) Run(ctx context.Context, src clock.Source) error {
	return clock.Drive(ctx, src, func(time.Time) { s.Tick() })
}

// Wait blocks until every wager pipeline and credit started so far has finished.
func (s *Session) Wait() {
	s.pipelines.Wait()
	s.ledger.Wait()
}

// Snapshot returns the scheduler and wager state of the current round.
func (s *Session) Snapshot() State {
	snap := s.sched.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Game:   s.game,
		Kind:   s.strategy.Kind(),
		Round:  snap,
		Wagers: make([]WagerState, 0, len(s.order)),
	}
	for _, e := range s.order {
		ws := WagerState{Wager: e.wager, Status: e.status, Void: e.void}
		if e.outcome != nil && e.notified {
			o := *e.outcome
			ws.Outcome = &o
		}
		st.Wagers = append(st.Wagers, ws)
	}
	if s.closedThrough >= s.roundID {
		st.Reveal = s.draw.Reveal()
	}
	return st
}

// --- scheduler hooks ---

// Preparing is applied and announced by endRound, so that no wager lands in the
// round being cleared and observers may wager as soon as they hear of it.
func (s *Session) phaseChanged(snap round.Snapshot) {
	if snap.Phase == round.PhasePreparing {
		return
	}
	s.mu.Lock()
	s.phase = snap.Phase
	s.mu.Unlock()
	s.obs.PhaseChanged(s.game, snap)
}

// startRound launches one pipeline per wager of the round.
func (s *Session) startRound(snap round.Snapshot) {
	s.mu.Lock()
	if snap.RoundID != s.roundID || snap.RoundID <= s.startedThrough {
		s.mu.Unlock()
		return
	}
	s.startedThrough = snap.RoundID
	entries := append([]*entry(nil), s.order...)
	for _, e := range entries {
		e.status = WagerDebiting
	}
	draw := s.draw
	s.mu.Unlock()

	if len(entries) == 0 {
		return
	}
	s.logger.Printf("round_started game=%s round=%d wagers=%d", s.game, snap.RoundID, len(entries))

	s.pipelines.Add(1)
	go func() {
		defer s.pipelines.Done()
		var g errgroup.Group
		if s.limit > 0 {
			g.SetLimit(s.limit)
		}
		for _, e := range entries {
			g.Go(func() error {
				s.settle(draw, e)
				return nil
			})
		}
		_ = g.Wait()
	}()
}

// settle runs debit -> resolve -> credit -> notify for a single wager.
func (s *Session) settle(draw outcome.Draw, e *entry) {
	w := e.wager
	key := wagerLedgerKey(w)

	if _, err := s.ledger.Debit(context.Background(), w.Player, w.Amount, s.game, key+":debit"); err != nil {
		s.mu.Lock()
		e.status = WagerDeclined
		s.mu.Unlock()
		s.logger.Printf("wager_declined game=%s round=%d player=%s amount=%d err=%v", s.game, w.Round, w.Player, w.Amount, err)
		s.obs.WagerDeclined(w, err)
		return
	}

	s.mu.Lock()
	var res outcome.Resolution
	if e.void {
		res = outcome.Void(w)
	} else {
		var err error
		res, err = draw.Resolve(w)
		if err != nil {
			// Selections are validated on placement; refund rather than keep the stake.
			s.logger.Printf("resolve_failed game=%s round=%d wager=%s err=%v", s.game, w.Round, w.ID, err)
			res = outcome.Void(w)
		}
	}
	o := outcome.NewOutcome(w, res, s.now().UTC())
	e.outcome = &o
	e.status = WagerResolved
	notify := s.closedThrough >= w.Round
	if notify {
		e.notified = true
	}
	s.mu.Unlock()

	if o.Payout > 0 {
		s.ledger.CreditAsync(w.Player, o.Payout, s.game, key+":credit")
	}
	if notify {
		s.obs.OutcomeResolved(o)
	}
}

// closeRound surfaces resolved outcomes and voids wagers whose debit is pending.
func (s *Session) closeRound(snap round.Snapshot) {
	s.mu.Lock()
	if snap.RoundID != s.roundID || snap.RoundID <= s.closedThrough {
		s.mu.Unlock()
		return
	}
	s.closedThrough = snap.RoundID

	var ready []outcome.Outcome
	voided := 0
	for _, e := range s.order {
		switch e.status {
		case WagerDebiting:
			e.void = true
			voided++
		case WagerResolved:
			if !e.notified {
				e.notified = true
				ready = append(ready, *e.outcome)
			}
		}
	}
	s.mu.Unlock()

	if voided > 0 {
		s.logger.Printf("round_closed_with_pending game=%s round=%d voided=%d", s.game, snap.RoundID, voided)
	}
	for _, o := range ready {
		s.obs.OutcomeResolved(o)
	}
}

// endRound clears the finished round and opens the next one. Pipelines still
// running keep a reference to their own entry, so clearing never loses a credit.
func (s *Session) endRound(ended uint64, next round.Snapshot) {
	s.mu.Lock()
	if ended != s.roundID || ended <= s.endedThrough {
		s.mu.Unlock()
		return
	}
	s.endedThrough = ended
	s.roundID = next.RoundID
	s.phase = next.Phase
	s.wagers = make(map[wagerKey]*entry)
	s.order = nil
	s.draw = s.strategy.Begin(s.src)
	s.mu.Unlock()

	s.obs.PhaseChanged(s.game, next)
}

func wagerLedgerKey(w outcome.Wager) string {
	return fmt.Sprintf("%s:round:%d:wager:%s", w.Game, w.Round, w.ID)
}
