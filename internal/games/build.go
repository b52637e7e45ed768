package games

import (
	"fmt"
	"log"

	"github.com/MJE43/minigame-engine/internal/ledger"
	"github.com/MJE43/minigame-engine/internal/outcome"
	"github.com/MJE43/minigame-engine/internal/rng"
	"github.com/MJE43/minigame-engine/internal/session"
)

// Deps are the collaborators shared by every game instance.
type Deps struct {
	Ledger   *ledger.Client
	RNG      rng.Source
	Observer session.Observer
	Logger   *log.Logger
}

// Build validates d and registers a running instance of it with m.
func Build(m *session.Manager, d Definition, deps Deps) error {
	if err := d.Validate(); err != nil {
		return err
	}

	switch d.Kind {
	case outcome.KindWinner, outcome.KindChance:
		strat, err := d.Strategy()
		if err != nil {
			return err
		}
		s, err := session.New(session.Options{
			Game:     d.ID,
			Strategy: strat,
			Round:    d.Round,
			Ledger:   deps.Ledger,
			RNG:      deps.RNG,
			Observer: deps.Observer,
			Logger:   deps.Logger,
		})
		if err != nil {
			return err
		}
		return m.AddSession(s)

	case outcome.KindLadder:
		l, err := session.NewLadder(session.LadderOptions{
			Game:     d.ID,
			Params:   d.Ladder,
			Ledger:   deps.Ledger,
			RNG:      deps.RNG,
			Observer: deps.Observer,
			Logger:   deps.Logger,
		})
		if err != nil {
			return err
		}
		return m.AddLadder(l)

	case outcome.KindAuction:
		a, err := session.NewAuction(session.AuctionOptions{
			Game:      d.ID,
			EntryFee:  d.EntryFee,
			MaxBotBid: d.MaxBotBid,
			Ledger:    deps.Ledger,
			RNG:       deps.RNG,
			Observer:  deps.Observer,
			Logger:    deps.Logger,
		})
		if err != nil {
			return err
		}
		return m.AddAuction(a, d.BidInterval)
	}
	return fmt.Errorf("games: %s: unknown kind %q", d.ID, d.Kind)
}

// BuildAll builds every definition, stopping at the first error.
func BuildAll(m *session.Manager, defs []Definition, deps Deps) error {
	for _, d := range defs {
		if err := Build(m, d, deps); err != nil {
			return err
		}
	}
	return nil
}
