package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MJE43/minigame-engine/internal/games"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Expected addr :8080, got %s", cfg.Addr)
	}
	if cfg.LedgerTimeout != 5*time.Second {
		t.Errorf("Expected 5s ledger timeout, got %s", cfg.LedgerTimeout)
	}
	if cfg.CreditRetries != 2 {
		t.Errorf("Expected 2 credit retries, got %d", cfg.CreditRetries)
	}
	if cfg.Tick != time.Second {
		t.Errorf("Expected 1s tick, got %s", cfg.Tick)
	}
	if cfg.Account != "demo" || cfg.StartingBalance != 10000 {
		t.Errorf("unexpected demo account %s/%d", cfg.Account, cfg.StartingBalance)
	}
	if cfg.LedgerURL != "" {
		t.Errorf("Expected no ledger URL, got %s", cfg.LedgerURL)
	}
}

func TestLoadFromOverrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"MINIGAMES_ADDR":           "127.0.0.1:9000",
		"MINIGAMES_LEDGER_URL":     "https://ledger.example",
		"MINIGAMES_LEDGER_TIMEOUT": "750ms",
		"MINIGAMES_CREDIT_RETRIES": "4",
		"MINIGAMES_TICK":           "10ms",
		"MINIGAMES_AUTOPLAY_GAME":  "box-pick",
	})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9000" || cfg.LedgerURL != "https://ledger.example" {
		t.Errorf("unexpected addresses %+v", cfg)
	}
	if cfg.LedgerTimeout != 750*time.Millisecond || cfg.CreditRetries != 4 {
		t.Errorf("unexpected ledger settings %s/%d", cfg.LedgerTimeout, cfg.CreditRetries)
	}
	if cfg.Tick != 10*time.Millisecond || cfg.AutoplayGame != "box-pick" {
		t.Errorf("unexpected tick/autoplay %s/%s", cfg.Tick, cfg.AutoplayGame)
	}
}

func TestLoadFromRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad duration", map[string]string{"MINIGAMES_TICK": "soon"}},
		{"zero timeout", map[string]string{"MINIGAMES_LEDGER_TIMEOUT": "0s"}},
		{"zero retries", map[string]string{"MINIGAMES_CREDIT_RETRIES": "0"}},
		{"negative balance", map[string]string{"MINIGAMES_STARTING_BALANCE": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFrom(tt.env); err == nil {
				t.Errorf("expected error for %v", tt.env)
			}
		})
	}
}

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func find(defs []games.Definition, id string) (games.Definition, bool) {
	for _, d := range defs {
		if d.ID == id {
			return d, true
		}
	}
	return games.Definition{}, false
}

func TestLoadCatalogEmptyPath(t *testing.T) {
	defs, err := LoadCatalog("", games.List())
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if len(defs) != len(games.Registry) {
		t.Errorf("Expected %d games, got %d", len(games.Registry), len(defs))
	}
}

func TestLoadCatalogMerges(t *testing.T) {
	path := writeCatalog(t, `
disabled: [push-tap, mine-run]
games:
  coin-flip:
    multiplier: 1.9
    round:
      preparation_time: 4
  tower:
    ladder:
      danger_per_row: 2
      multipliers: [1.5, 2.2, 3.4, 5.1, 7.6, 11.4, 17.1, 25.6, 38.4, 57.6]
  penny-auction:
    bid_interval: 2s
  lucky-seven:
    name: Lucky Seven
    kind: winner
    options: ["7", "other"]
    multiplier: 1.8
    round: {preparation_time: 5, game_time: 2, results_time: 2}
`)

	defs, err := LoadCatalog(path, games.List())
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}

	if _, ok := find(defs, "push-tap"); ok {
		t.Error("push-tap should be disabled")
	}
	if _, ok := find(defs, "mine-run"); ok {
		t.Error("mine-run should be disabled")
	}

	coin, _ := find(defs, "coin-flip")
	if !coin.Multiplier.Equal(decimal.RequireFromString("1.9")) {
		t.Errorf("Expected coin-flip multiplier 1.9, got %s", coin.Multiplier)
	}
	if coin.Round.PreparationTime != 4 || coin.Round.GameTime != 3 || coin.Round.ResultsTime != 5 {
		t.Errorf("round override not merged field by field: %+v", coin.Round)
	}
	if len(coin.Options) != 2 {
		t.Errorf("options should be inherited, got %v", coin.Options)
	}

	tower, _ := find(defs, "tower")
	if tower.Ladder.DangerPerRow != 2 || tower.Ladder.StepCount != 10 || tower.Ladder.BoardWidth != 4 {
		t.Errorf("unexpected tower board %+v", tower.Ladder)
	}
	if !tower.Ladder.Multipliers[9].Equal(decimal.RequireFromString("57.6")) {
		t.Errorf("tower table not replaced: %v", tower.Ladder.Multipliers)
	}

	auction, _ := find(defs, "penny-auction")
	if auction.BidInterval != 2*time.Second || auction.EntryFee != 1 {
		t.Errorf("unexpected auction %+v", auction)
	}

	lucky, ok := find(defs, "lucky-seven")
	if !ok {
		t.Fatal("lucky-seven should be added")
	}
	if lucky.Name != "Lucky Seven" || lucky.ID != "lucky-seven" {
		t.Errorf("unexpected new game %+v", lucky)
	}

	for i := 1; i < len(defs); i++ {
		if defs[i-1].ID >= defs[i].ID {
			t.Fatalf("catalog not sorted at %d: %s >= %s", i, defs[i-1].ID, defs[i].ID)
		}
	}

	// The registry itself is untouched.
	base, _ := games.Get("coin-flip")
	if base.Round.PreparationTime != 10 {
		t.Errorf("registry mutated: %+v", base.Round)
	}
}

func TestLoadCatalogInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", "games: [nope"},
		{"new game without kind", "games:\n  mystery:\n    name: Mystery\n"},
		{"table length mismatch", "games:\n  tower:\n    ladder:\n      step_count: 3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadCatalog(writeCatalog(t, tt.body), games.List()); err == nil {
				t.Error("expected an error")
			}
		})
	}

	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"), games.List()); err == nil {
		t.Error("expected an error for a missing file")
	}
}
