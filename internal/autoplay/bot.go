package autoplay

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/MJE43/minigame-engine/internal/outcome"
	"github.com/MJE43/minigame-engine/internal/round"
	"github.com/MJE43/minigame-engine/internal/session"
)

// Table is the part of a scheduled session the bot plays against.
type Table interface {
	Game() string
	PlaceWager(session.WagerRequest) (outcome.Wager, error)
}

// Stats are the bot's running totals, also passed to the script.
type Stats struct {
	Rounds   int   `json:"rounds"`
	Wagers   int   `json:"wagers"`
	Wins     int   `json:"wins"`
	Losses   int   `json:"losses"`
	Pushes   int   `json:"pushes"`
	Declined int   `json:"declined"`
	Wagered  int64 `json:"wagered"`
	Profit   int64 `json:"profit"`
}

// Options configures a Bot.
type Options struct {
	Player string
	Script string
	Table  Table
	// CallTimeout bounds each wager() call. Defaults to 250ms.
	CallTimeout time.Duration
	Logger      *log.Logger
}

// Bot places one scripted wager per round. It observes the session it plays: the
// Preparing notification queues a turn, which Run executes off the scheduler path.
type Bot struct {
	session.NopObserver

	player string
	table  Table
	vm     *VM
	logger *log.Logger

	turns chan round.Snapshot

	mu      sync.Mutex
	stats   Stats
	last    *outcome.Outcome
	stopped bool
}

// NewBot compiles the script. It fails if the script does not define wager().
func NewBot(opts Options) (*Bot, error) {
	if opts.Player == "" {
		return nil, fmt.Errorf("autoplay: player is required")
	}
	if opts.Table == nil {
		return nil, fmt.Errorf("autoplay: table is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	vm := NewVM(opts.CallTimeout)
	if err := vm.Execute(opts.Script); err != nil {
		return nil, fmt.Errorf("autoplay: %w", err)
	}
	return &Bot{
		player: opts.Player,
		table:  opts.Table,
		vm:     vm,
		logger: logger,
		turns:  make(chan round.Snapshot, 1),
	}, nil
}

// PhaseChanged queues a turn when the bot's game opens a round. A turn that is
// still queued is replaced.
func (b *Bot) PhaseChanged(game string, snap round.Snapshot) {
	if game != b.table.Game() || snap.Phase != round.PhasePreparing {
		return
	}
	select {
	case b.turns <- snap:
	default:
		select {
		case <-b.turns:
		default:
		}
		select {
		case b.turns <- snap:
		default:
		}
	}
}

func (b *Bot) WagerDeclined(w outcome.Wager, err error) {
	if w.Player != b.player || w.Game != b.table.Game() {
		return
	}
	b.mu.Lock()
	b.stats.Declined++
	b.stats.Wagered -= w.Amount
	b.mu.Unlock()
}

func (b *Bot) OutcomeResolved(o outcome.Outcome) {
	if o.Player != b.player || o.Game != b.table.Game() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	switch o.Result {
	case outcome.ResultWin:
		b.stats.Wins++
	case outcome.ResultLoss:
		b.stats.Losses++
	case outcome.ResultPush:
		b.stats.Pushes++
	}
	b.stats.Profit += o.Payout - o.Stake
	b.last = &o
}

// Run plays queued turns until ctx is done or the script calls stop().
func (b *Bot) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap := <-b.turns:
			if !b.Turn(snap) {
				b.logger.Printf("autoplay_stopped game=%s player=%s", b.table.Game(), b.player)
				return nil
			}
		}
	}
}

// Turn asks the script for a wager in the round described by snap and places it.
// It returns false once the bot has stopped.
func (b *Bot) Turn(snap round.Snapshot) bool {
	if b.Stopped() {
		return false
	}

	d, err := b.vm.CallWager(b.scriptState(snap))
	if b.vm.StopRequested() {
		b.mu.Lock()
		b.stopped = true
		b.mu.Unlock()
	}
	if err != nil {
		b.logger.Printf("autoplay_script_error game=%s round=%d err=%v", b.table.Game(), snap.RoundID, err)
		return !b.Stopped()
	}

	b.mu.Lock()
	b.stats.Rounds++
	b.mu.Unlock()

	if d != nil {
		w, err := b.table.PlaceWager(session.WagerRequest{
			Player:    b.player,
			Asset:     d.Asset,
			Selection: d.Selection,
			Amount:    d.Amount,
		})
		if err != nil {
			b.logger.Printf("autoplay_wager_rejected game=%s round=%d selection=%s amount=%d err=%v",
				b.table.Game(), snap.RoundID, d.Selection, d.Amount, err)
		} else {
			b.mu.Lock()
			b.stats.Wagers++
			b.stats.Wagered += w.Amount
			b.mu.Unlock()
			b.logger.Printf("autoplay_wager game=%s round=%d selection=%s amount=%d", w.Game, w.Round, w.Selection, w.Amount)
		}
	}
	return !b.Stopped()
}

func (b *Bot) scriptState(snap round.Snapshot) map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := map[string]any{
		"game":          b.table.Game(),
		"round":         int64(snap.RoundID),
		"timeRemaining": snap.TimeRemaining,
		"stats": map[string]any{
			"rounds":   b.stats.Rounds,
			"wagers":   b.stats.Wagers,
			"wins":     b.stats.Wins,
			"losses":   b.stats.Losses,
			"pushes":   b.stats.Pushes,
			"declined": b.stats.Declined,
			"wagered":  b.stats.Wagered,
			"profit":   b.stats.Profit,
		},
		"last": nil,
	}
	if b.last != nil {
		state["last"] = map[string]any{
			"round":     int64(b.last.Round),
			"selection": b.last.Selection,
			"stake":     b.last.Stake,
			"result":    string(b.last.Result),
			"payout":    b.last.Payout,
			"detail":    b.last.Detail,
		}
	}
	return state
}

// Stats returns the running totals.
func (b *Bot) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Stopped reports whether the script has called stop().
func (b *Bot) Stopped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopped
}

// Logs returns the script's log buffer.
func (b *Bot) Logs() []LogEntry {
	return b.vm.Logs()
}
