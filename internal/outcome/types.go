// Package outcome holds the wager model and the resolver strategies that turn a
// wager plus randomness into a payout.
//
// Three payout shapes are supported:
//   - FixedOdds: a single-shot bet, either one winner among N options drawn per round
//     (Winner) or an independent Boolean draw per wager (Chance).
//   - LowestUniqueValue: an append-only bid log whose leader is the lowest value
//     submitted exactly once (AuctionLog).
//   - ProgressiveLadder: a climb-and-cash-out board of danger cells (Ladder).
package outcome

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MJE43/minigame-engine/internal/rng"
)

// Result is the terminal classification of a wager.
type Result string

const (
	ResultWin  Result = "win"
	ResultLoss Result = "loss"
	// ResultPush refunds the stake: a voided wager or a drawn tie option.
	ResultPush Result = "push"
)

// Kind identifies a resolver strategy.
type Kind string

const (
	KindWinner  Kind = "winner"
	KindChance  Kind = "chance"
	KindLadder  Kind = "ladder"
	KindAuction Kind = "auction"
)

// ErrUnknownSelection is returned when a wager names an option or asset the
// strategy does not offer.
var ErrUnknownSelection = errors.New("outcome: unknown selection")

// Wager is a player's stake plus selection for one round.
type Wager struct {
	ID        uuid.UUID `json:"id"`
	Game      string    `json:"game"`
	Round     uint64    `json:"round"`
	Player    string    `json:"player"`
	Asset     string    `json:"asset,omitempty"`
	Selection string    `json:"selection"`
	Amount    int64     `json:"amount"`
	PlacedAt  time.Time `json:"placedAt"`
}

// SelectionKey is the uniqueness key of a wager within a player's round: the asset
// for multi-asset games, empty otherwise.
func (w Wager) SelectionKey() string {
	return w.Asset
}

// Resolution is a strategy's decision for a single wager.
type Resolution struct {
	Result     Result          `json:"result"`
	Payout     int64           `json:"payout"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Detail     map[string]any  `json:"detail,omitempty"`
}

// Outcome is the notification emitted once per resolved wager.
type Outcome struct {
	WagerID      uuid.UUID       `json:"wagerId"`
	Game         string          `json:"game"`
	Round        uint64          `json:"round"`
	Player       string          `json:"player"`
	SelectionKey string          `json:"selectionKey"`
	Selection    string          `json:"selection"`
	Stake        int64           `json:"stake"`
	Result       Result          `json:"result"`
	Payout       int64           `json:"payout"`
	Multiplier   decimal.Decimal `json:"multiplier"`
	Detail       map[string]any  `json:"detail,omitempty"`
	ResolvedAt   time.Time       `json:"resolvedAt"`
}

// NewOutcome combines a wager with its resolution.
func NewOutcome(w Wager, r Resolution, at time.Time) Outcome {
	return Outcome{
		WagerID:      w.ID,
		Game:         w.Game,
		Round:        w.Round,
		Player:       w.Player,
		SelectionKey: w.SelectionKey(),
		Selection:    w.Selection,
		Stake:        w.Amount,
		Result:       r.Result,
		Payout:       r.Payout,
		Multiplier:   r.Multiplier,
		Detail:       r.Detail,
		ResolvedAt:   at,
	}
}

// Strategy is a round-based resolver.
type Strategy interface {
	Kind() Kind
	// Validate checks a wager's selection before it is accepted.
	Validate(w Wager) error
	// Begin opens a new round. No randomness is consumed until the first Resolve.
	Begin(src rng.Source) Draw
}

// Draw is the per-round state of a strategy.
type Draw interface {
	// Resolve decides a wager whose stake has been confirmed.
	Resolve(w Wager) (Resolution, error)
	// Reveal describes the round's drawn state, or nil if nothing was drawn.
	Reveal() map[string]any
}

// Payout returns floor(bet * multiplier) in whole currency units.
func Payout(bet int64, multiplier decimal.Decimal) int64 {
	if bet <= 0 {
		return 0
	}
	return decimal.NewFromInt(bet).Mul(multiplier).Floor().IntPart()
}

// Void is the resolution of a wager whose round closed before its stake confirmed.
func Void(w Wager) Resolution {
	return Resolution{
		Result:     ResultPush,
		Payout:     w.Amount,
		Multiplier: decimal.NewFromInt(1),
		Detail:     map[string]any{"void": true},
	}
}
