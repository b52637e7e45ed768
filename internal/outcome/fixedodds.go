package outcome

import (
	"fmt"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/MJE43/minigame-engine/internal/rng"
)

// Winner draws exactly one winning option uniformly among Options per round.
// Drawing a tie option (listed in PushOptions) refunds every wager of the round.
type Winner struct {
	Options     []string
	PushOptions []string
	Multiplier  decimal.Decimal
}

// NewWinner validates and builds a winner-among-N strategy.
func NewWinner(options, pushOptions []string, multiplier decimal.Decimal) (*Winner, error) {
	if len(options) < 2 {
		return nil, fmt.Errorf("outcome: winner needs at least 2 options, got %d", len(options))
	}
	for _, p := range pushOptions {
		if !slices.Contains(options, p) {
			return nil, fmt.Errorf("outcome: push option %q is not an option", p)
		}
	}
	if multiplier.LessThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("outcome: payout multiplier must be >= 1, got %s", multiplier)
	}
	return &Winner{Options: options, PushOptions: pushOptions, Multiplier: multiplier}, nil
}

func (w *Winner) Kind() Kind { return KindWinner }

// Validate accepts any non-tie option.
func (w *Winner) Validate(wg Wager) error {
	if !slices.Contains(w.Options, wg.Selection) || slices.Contains(w.PushOptions, wg.Selection) {
		return fmt.Errorf("%w: %q", ErrUnknownSelection, wg.Selection)
	}
	return nil
}

func (w *Winner) Begin(src rng.Source) Draw {
	return &winnerDraw{strategy: w, src: src}
}

type winnerDraw struct {
	strategy *Winner
	src      rng.Source

	once   sync.Once
	winner int
	drawn  bool
	mu     sync.Mutex
}

func (d *winnerDraw) draw() int {
	d.once.Do(func() {
		d.winner = d.src.IntN(len(d.strategy.Options))
		d.mu.Lock()
		d.drawn = true
		d.mu.Unlock()
	})
	return d.winner
}

func (d *winnerDraw) Resolve(w Wager) (Resolution, error) {
	if err := d.strategy.Validate(w); err != nil {
		return Resolution{}, err
	}
	winner := d.strategy.Options[d.draw()]
	detail := map[string]any{"winner": winner}

	if slices.Contains(d.strategy.PushOptions, winner) {
		return Resolution{
			Result:     ResultPush,
			Payout:     w.Amount,
			Multiplier: decimal.NewFromInt(1),
			Detail:     detail,
		}, nil
	}
	if w.Selection == winner {
		return Resolution{
			Result:     ResultWin,
			Payout:     Payout(w.Amount, d.strategy.Multiplier),
			Multiplier: d.strategy.Multiplier,
			Detail:     detail,
		}, nil
	}
	return Resolution{Result: ResultLoss, Multiplier: decimal.Zero, Detail: detail}, nil
}

func (d *winnerDraw) Reveal() map[string]any {
	d.mu.Lock()
	drawn := d.drawn
	d.mu.Unlock()
	if !drawn {
		return nil
	}
	return map[string]any{"winner": d.strategy.Options[d.winner]}
}

// Chance resolves each wager with its own Boolean draw of probability
// WinProbability, independent of the selection. Multi-asset games list their
// asset keys in Assets; each asset's wager gets an independent draw.
type Chance struct {
	WinProbability float64
	Multiplier     decimal.Decimal
	// Options optionally restricts selections (e.g. "up", "down"). Empty accepts any.
	Options []string
	// Assets optionally restricts asset keys. Empty means single-wager games.
	Assets []string
}

// NewChance validates and builds an independent-probability strategy.
func NewChance(p float64, multiplier decimal.Decimal, options, assets []string) (*Chance, error) {
	if p <= 0 || p > 1 {
		return nil, fmt.Errorf("outcome: win probability must be in (0,1], got %v", p)
	}
	if multiplier.LessThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("outcome: payout multiplier must be >= 1, got %s", multiplier)
	}
	return &Chance{WinProbability: p, Multiplier: multiplier, Options: options, Assets: assets}, nil
}

func (c *Chance) Kind() Kind { return KindChance }

func (c *Chance) Validate(w Wager) error {
	if len(c.Options) > 0 && !slices.Contains(c.Options, w.Selection) {
		return fmt.Errorf("%w: %q", ErrUnknownSelection, w.Selection)
	}
	if len(c.Assets) > 0 {
		if !slices.Contains(c.Assets, w.Asset) {
			return fmt.Errorf("%w: asset %q", ErrUnknownSelection, w.Asset)
		}
	} else if w.Asset != "" {
		return fmt.Errorf("%w: game has no assets", ErrUnknownSelection)
	}
	return nil
}

func (c *Chance) Begin(src rng.Source) Draw {
	return &chanceDraw{strategy: c, src: src}
}

type chanceDraw struct {
	strategy *Chance
	src      rng.Source
}

func (d *chanceDraw) Resolve(w Wager) (Resolution, error) {
	if err := d.strategy.Validate(w); err != nil {
		return Resolution{}, err
	}
	if rng.Chance(d.src, d.strategy.WinProbability) {
		return Resolution{
			Result:     ResultWin,
			Payout:     Payout(w.Amount, d.strategy.Multiplier),
			Multiplier: d.strategy.Multiplier,
			Detail:     map[string]any{"hit": true},
		}, nil
	}
	return Resolution{Result: ResultLoss, Multiplier: decimal.Zero, Detail: map[string]any{"hit": false}}, nil
}

// Per-wager draws have no shared round state.
func (d *chanceDraw) Reveal() map[string]any { return nil }
