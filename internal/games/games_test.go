package games

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/MJE43/minigame-engine/internal/ledger"
	"github.com/MJE43/minigame-engine/internal/outcome"
	"github.com/MJE43/minigame-engine/internal/rng"
	"github.com/MJE43/minigame-engine/internal/session"
)

func TestRegistry(t *testing.T) {
	expected := []string{
		"box-pick", "coin-flip", "hack-target", "market-pulse", "match-day", "mine-run",
		"penny-auction", "push-tap", "slot-reels", "team-battle", "tower", "wheel-spin", "zone-pick",
	}

	for _, id := range expected {
		d, ok := Get(id)
		if !ok {
			t.Errorf("Game '%s' not found in registry", id)
			continue
		}
		if d.ID != id {
			t.Errorf("Game ID mismatch: expected '%s', got '%s'", id, d.ID)
		}
		if err := d.Validate(); err != nil {
			t.Errorf("built-in %s is invalid: %v", id, err)
		}
	}

	defs := List()
	if len(defs) != len(expected) {
		t.Fatalf("Expected %d games, got %d", len(expected), len(defs))
	}
	for i, d := range defs {
		if d.ID != expected[i] {
			t.Errorf("List not sorted: position %d has %s", i, d.ID)
		}
	}
}

func TestTowerTable(t *testing.T) {
	d, _ := Get("tower")
	want := []string{"1.31", "1.74", "2.32", "3.10", "4.13", "5.51", "7.34", "9.79", "13.05", "17.40"}
	if len(d.Ladder.Multipliers) != len(want) {
		t.Fatalf("expected %d steps, got %d", len(want), len(d.Ladder.Multipliers))
	}
	for i, w := range want {
		if !d.Ladder.Multipliers[i].Equal(decimal.RequireFromString(w)) {
			t.Errorf("step %d: expected %s, got %s", i+1, w, d.Ladder.Multipliers[i])
		}
	}
	if d.Ladder.BoardWidth != 4 || d.Ladder.DangerPerRow != 1 {
		t.Errorf("unexpected board %+v", d.Ladder)
	}
}

func TestValidateRejectsBadDefinitions(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
	}{
		{"no id", Definition{Kind: outcome.KindWinner}},
		{"unknown kind", Definition{ID: "x", Kind: "lottery"}},
		{"zero round", Definition{ID: "x", Kind: outcome.KindWinner, Options: []string{"a", "b"}, Multiplier: decimal.NewFromInt(2)}},
		{"one option", func() Definition {
			d, _ := Get("coin-flip")
			d.Options = []string{"heads"}
			return d
		}()},
		{"probability above one", func() Definition {
			d, _ := Get("slot-reels")
			d.WinProbability = 1.5
			return d
		}()},
		{"multiplier below one", func() Definition {
			d, _ := Get("push-tap")
			d.Multiplier = decimal.RequireFromString("0.5")
			return d
		}()},
		{"ladder table mismatch", func() Definition {
			d, _ := Get("tower")
			d.Ladder.StepCount = 11
			return d
		}()},
		{"auction without fee", func() Definition {
			d := pennyAuction()
			d.EntryFee = 0
			return d
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.def.Validate(); err == nil {
				t.Errorf("expected validation error for %+v", tt.def)
			}
		})
	}
}

func TestStrategyKinds(t *testing.T) {
	coin, _ := Get("coin-flip")
	s, err := coin.Strategy()
	if err != nil || s.Kind() != outcome.KindWinner {
		t.Fatalf("coin-flip strategy: kind=%v err=%v", s, err)
	}
	market, _ := Get("market-pulse")
	if s, err := market.Strategy(); err != nil || s.Kind() != outcome.KindChance {
		t.Fatalf("market-pulse strategy: err=%v", err)
	}
	tower, _ := Get("tower")
	if _, err := tower.Strategy(); err == nil {
		t.Error("ladder games have no round strategy")
	}
	if !coin.Scheduled() || tower.Scheduled() {
		t.Error("Scheduled misclassifies games")
	}
}

func TestBuildAll(t *testing.T) {
	m := session.NewManager()
	deps := Deps{
		Ledger: ledger.NewClient(ledger.NewMemoryAuthority(), ledger.Config{}),
		RNG:    rng.NewSeeded(1),
	}
	if err := BuildAll(m, List(), deps); err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	if len(m.IDs()) != len(Registry) {
		t.Errorf("expected %d instances, got %d", len(Registry), len(m.IDs()))
	}
	if _, err := m.Session("coin-flip"); err != nil {
		t.Errorf("coin-flip session: %v", err)
	}
	if _, err := m.Ladder("tower"); err != nil {
		t.Errorf("tower ladder: %v", err)
	}
	if _, err := m.Auction("penny-auction"); err != nil {
		t.Errorf("penny auction: %v", err)
	}

	coin, _ := Get("coin-flip")
	if err := Build(m, coin, deps); err == nil {
		t.Error("expected duplicate registration error")
	}
}
