package games

import (
	"github.com/MJE43/minigame-engine/internal/outcome"
	"github.com/MJE43/minigame-engine/internal/round"
)

func fixedOdds() []Definition {
	return []Definition{
		{
			ID:         "coin-flip",
			Name:       "Coin Flip",
			Kind:       outcome.KindWinner,
			Round:      round.Config{PreparationTime: 10, GameTime: 3, ResultsTime: 5},
			Options:    []string{"heads", "tails"},
			Multiplier: mult("1.95"),
		},
		{
			ID:         "team-battle",
			Name:       "Team Battle",
			Kind:       outcome.KindWinner,
			Round:      round.Config{PreparationTime: 15, GameTime: 10, ResultsTime: 5},
			Options:    []string{"red", "blue"},
			Multiplier: mult("1.9"),
		},
		{
			ID:          "match-day",
			Name:        "Match Day",
			Kind:        outcome.KindWinner,
			Round:       round.Config{PreparationTime: 20, GameTime: 15, ResultsTime: 8},
			Options:     []string{"home", "away", "draw"},
			PushOptions: []string{"draw"},
			Multiplier:  mult("2.9"),
		},
		{
			ID:         "zone-pick",
			Name:       "Zone Pick",
			Kind:       outcome.KindWinner,
			Round:      round.Config{PreparationTime: 10, GameTime: 5, ResultsTime: 5},
			Options:    []string{"north", "east", "south", "west"},
			Multiplier: mult("3.8"),
		},
		{
			ID:         "hack-target",
			Name:       "Hack Target",
			Kind:       outcome.KindWinner,
			Round:      round.Config{PreparationTime: 12, GameTime: 8, ResultsTime: 5},
			Options:    []string{"server-1", "server-2", "server-3", "server-4", "server-5"},
			Multiplier: mult("4.5"),
		},
		{
			ID:         "box-pick",
			Name:       "Box Pick",
			Kind:       outcome.KindWinner,
			Round:      round.Config{PreparationTime: 10, GameTime: 3, ResultsTime: 4},
			Options:    []string{"1", "2", "3"},
			Multiplier: mult("2.8"),
		},
		{
			ID:         "wheel-spin",
			Name:       "Wheel Spin",
			Kind:       outcome.KindWinner,
			Round:      round.Config{PreparationTime: 15, GameTime: 6, ResultsTime: 5},
			Options:    []string{"1", "2", "3", "4", "5", "6", "7", "8"},
			Multiplier: mult("7.5"),
		},
		{
			ID:             "slot-reels",
			Name:           "Slot Reels",
			Kind:           outcome.KindChance,
			Round:          round.Config{PreparationTime: 5, GameTime: 3, ResultsTime: 3},
			WinProbability: 0.15,
			Multiplier:     mult("6"),
		},
		{
			ID:             "push-tap",
			Name:           "Push Tap",
			Kind:           outcome.KindChance,
			Round:          round.Config{PreparationTime: 5, GameTime: 2, ResultsTime: 3},
			WinProbability: 0.45,
			Multiplier:     mult("2"),
		},
		{
			ID:             "market-pulse",
			Name:           "Market Pulse",
			Kind:           outcome.KindChance,
			Round:          round.Config{PreparationTime: 20, GameTime: 30, ResultsTime: 10},
			Options:        []string{"up", "down"},
			Assets:         []string{"BTC", "ETH", "SOL"},
			WinProbability: 0.5,
			Multiplier:     mult("1.9"),
		},
	}
}
