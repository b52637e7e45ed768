package games

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/MJE43/minigame-engine/internal/outcome"
)

// Literal multiplier tables. They are not derived from a house-edge formula.
var (
	towerTable = []string{"1.31", "1.74", "2.32", "3.10", "4.13", "5.51", "7.34", "9.79", "13.05", "17.40"}
	minesTable = []string{"1.21", "1.52", "1.98", "2.64", "3.65", "5.24", "7.86", "12.58"}
)

func table(values []string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = mult(v)
	}
	return out
}

func ladders() []Definition {
	return []Definition{
		{
			ID:   "tower",
			Name: "Tower Climb",
			Kind: outcome.KindLadder,
			Ladder: outcome.LadderParams{
				StepCount:    10,
				BoardWidth:   4,
				DangerPerRow: 1,
				Multipliers:  table(towerTable),
			},
		},
		{
			ID:   "mine-run",
			Name: "Mine Run",
			Kind: outcome.KindLadder,
			Ladder: outcome.LadderParams{
				StepCount:    8,
				BoardWidth:   5,
				DangerPerRow: 1,
				Multipliers:  table(minesTable),
			},
		},
	}
}

func pennyAuction() Definition {
	return Definition{
		ID:          "penny-auction",
		Name:        "Penny Auction",
		Kind:        outcome.KindAuction,
		EntryFee:    1,
		BidInterval: 7 * time.Second,
		MaxBotBid:   25,
	}
}
