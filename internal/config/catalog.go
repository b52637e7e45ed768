package config

import (
	"fmt"
	"os"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/MJE43/minigame-engine/internal/games"
)

// CatalogFile is the YAML layout of game overrides:
//
//	disabled: [push-tap]
//	games:
//	  coin-flip:
//	    multiplier: 1.9
//	    round: {preparation_time: 5}
//	  lucky-seven:
//	    kind: winner
//	    options: ["7", "other"]
//	    multiplier: 1.8
//	    round: {preparation_time: 5, game_time: 2, results_time: 2}
type CatalogFile struct {
	Disabled []string                    `yaml:"disabled"`
	Games    map[string]games.Definition `yaml:"games"`
}

// ReadCatalog parses a catalog override file.
func ReadCatalog(path string) (CatalogFile, error) {
	var cf CatalogFile
	b, err := os.ReadFile(path)
	if err != nil {
		return CatalogFile{}, fmt.Errorf("read catalog: %w", err)
	}
	if err := yaml.Unmarshal(b, &cf); err != nil {
		return CatalogFile{}, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return cf, nil
}

// LoadCatalog merges the overrides at path onto base. An empty path returns base.
// Every resulting definition is validated; the result is sorted by id.
func LoadCatalog(path string, base []games.Definition) ([]games.Definition, error) {
	if path == "" {
		return validated(base)
	}
	cf, err := ReadCatalog(path)
	if err != nil {
		return nil, err
	}
	return Apply(cf, base)
}

// Apply merges cf onto base: existing ids are overridden field by field, unknown
// ids are added, disabled ids are removed.
func Apply(cf CatalogFile, base []games.Definition) ([]games.Definition, error) {
	byID := make(map[string]games.Definition, len(base)+len(cf.Games))
	for _, d := range base {
		byID[d.ID] = d
	}
	for id, override := range cf.Games {
		override.ID = id
		if current, ok := byID[id]; ok {
			byID[id] = mergeDefinition(current, override)
		} else {
			byID[id] = override
		}
	}
	for _, id := range cf.Disabled {
		delete(byID, id)
	}

	out := make([]games.Definition, 0, len(byID))
	for _, d := range byID {
		out = append(out, d)
	}
	return validated(out)
}

func validated(defs []games.Definition) ([]games.Definition, error) {
	out := slices.Clone(defs)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	for _, d := range out {
		if err := d.Validate(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// mergeDefinition performs a shallow merge: 'b' overrides 'a' where non-zero.
// Slices in 'b' replace those of 'a' when provided.
func mergeDefinition(a, b games.Definition) games.Definition {
	out := a

	if b.Name != "" {
		out.Name = b.Name
	}
	if b.Kind != "" {
		out.Kind = b.Kind
	}

	if b.Round.PreparationTime != 0 {
		out.Round.PreparationTime = b.Round.PreparationTime
	}
	if b.Round.GameTime != 0 {
		out.Round.GameTime = b.Round.GameTime
	}
	if b.Round.ResultsTime != 0 {
		out.Round.ResultsTime = b.Round.ResultsTime
	}

	if len(b.Options) > 0 {
		out.Options = b.Options
	}
	if len(b.PushOptions) > 0 {
		out.PushOptions = b.PushOptions
	}
	if len(b.Assets) > 0 {
		out.Assets = b.Assets
	}
	if b.WinProbability != 0 {
		out.WinProbability = b.WinProbability
	}
	if !b.Multiplier.IsZero() {
		out.Multiplier = b.Multiplier
	}

	if b.Ladder.StepCount != 0 {
		out.Ladder.StepCount = b.Ladder.StepCount
	}
	if b.Ladder.BoardWidth != 0 {
		out.Ladder.BoardWidth = b.Ladder.BoardWidth
	}
	if b.Ladder.DangerPerRow != 0 {
		out.Ladder.DangerPerRow = b.Ladder.DangerPerRow
	}
	if len(b.Ladder.Multipliers) > 0 {
		out.Ladder.Multipliers = b.Ladder.Multipliers
	}

	if b.EntryFee != 0 {
		out.EntryFee = b.EntryFee
	}
	if b.BidInterval != 0 {
		out.BidInterval = b.BidInterval
	}
	if b.MaxBotBid != 0 {
		out.MaxBotBid = b.MaxBotBid
	}
	return out
}
