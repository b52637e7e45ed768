// Package games is the catalog of built-in mini-game definitions.
//
// Every definition is data: a resolver kind plus its parameters and, for scheduled
// games, the phase durations. Build turns a definition into a running instance.
package games

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MJE43/minigame-engine/internal/outcome"
	"github.com/MJE43/minigame-engine/internal/round"
)

// Definition describes one mini-game.
type Definition struct {
	ID   string       `json:"id" yaml:"id"`
	Name string       `json:"name" yaml:"name"`
	Kind outcome.Kind `json:"kind" yaml:"kind"`

	// Round holds the phase durations of scheduled games (winner, chance).
	Round round.Config `json:"round" yaml:"round"`

	// Winner-among-N and chance parameters.
	Options        []string        `json:"options,omitempty" yaml:"options"`
	PushOptions    []string        `json:"pushOptions,omitempty" yaml:"push_options"`
	Assets         []string        `json:"assets,omitempty" yaml:"assets"`
	WinProbability float64         `json:"winProbability,omitempty" yaml:"win_probability"`
	Multiplier     decimal.Decimal `json:"multiplier" yaml:"multiplier"`

	// Ladder parameters.
	Ladder outcome.LadderParams `json:"ladder,omitempty" yaml:"ladder"`

	// Auction parameters.
	EntryFee    int64         `json:"entryFee,omitempty" yaml:"entry_fee"`
	BidInterval time.Duration `json:"bidInterval,omitempty" yaml:"bid_interval"`
	MaxBotBid   int64         `json:"maxBotBid,omitempty" yaml:"max_bot_bid"`
}

// Scheduled reports whether the game runs on the round timer.
func (d Definition) Scheduled() bool {
	return d.Kind == outcome.KindWinner || d.Kind == outcome.KindChance
}

// Validate checks the definition for its kind.
func (d Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("games: definition without id")
	}
	switch d.Kind {
	case outcome.KindWinner, outcome.KindChance:
		if err := d.Round.Validate(); err != nil {
			return fmt.Errorf("games: %s: %w", d.ID, err)
		}
		if _, err := d.Strategy(); err != nil {
			return fmt.Errorf("games: %s: %w", d.ID, err)
		}
	case outcome.KindLadder:
		if err := d.Ladder.Validate(); err != nil {
			return fmt.Errorf("games: %s: %w", d.ID, err)
		}
	case outcome.KindAuction:
		if d.EntryFee <= 0 {
			return fmt.Errorf("games: %s: entry fee must be positive", d.ID)
		}
		if d.MaxBotBid < 1 {
			return fmt.Errorf("games: %s: max bot bid must be at least 1", d.ID)
		}
		if d.BidInterval < 0 {
			return fmt.Errorf("games: %s: bid interval must not be negative", d.ID)
		}
	default:
		return fmt.Errorf("games: %s: unknown kind %q", d.ID, d.Kind)
	}
	return nil
}

// Strategy builds the round resolver of a scheduled game.
func (d Definition) Strategy() (outcome.Strategy, error) {
	switch d.Kind {
	case outcome.KindWinner:
		return outcome.NewWinner(d.Options, d.PushOptions, d.Multiplier)
	case outcome.KindChance:
		return outcome.NewChance(d.WinProbability, d.Multiplier, d.Options, d.Assets)
	default:
		return nil, fmt.Errorf("games: %s: kind %q has no round strategy", d.ID, d.Kind)
	}
}

// Registry holds the built-in definitions.
var Registry = make(map[string]Definition)

// Register adds a definition to the registry.
func Register(d Definition) {
	Registry[d.ID] = d
}

// Get retrieves a definition by id.
func Get(id string) (Definition, bool) {
	d, ok := Registry[id]
	return d, ok
}

// List returns every registered definition sorted by id. Slices are shared with
// the registry and must not be modified.
func List() []Definition {
	defs := make([]Definition, 0, len(Registry))
	for _, d := range Registry {
		defs = append(defs, d)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs
}

func init() {
	for _, d := range fixedOdds() {
		Register(d)
	}
	for _, d := range ladders() {
		Register(d)
	}
	Register(pennyAuction())
}

func mult(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
