// Command simulate estimates win frequency and return-to-player of every catalog
// game by playing seeded rounds against its resolver.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"

	"github.com/MJE43/minigame-engine/internal/config"
	"github.com/MJE43/minigame-engine/internal/games"
	"github.com/MJE43/minigame-engine/internal/outcome"
	"github.com/MJE43/minigame-engine/internal/rng"
)

const stake = 100

type tally struct {
	rounds  int
	wins    int
	pushes  int
	staked  int64
	paidOut int64
}

func (t tally) rtp() float64 {
	if t.staked == 0 {
		return 0
	}
	return float64(t.paidOut) / float64(t.staked)
}

func main() {
	rounds := flag.Int("rounds", 100_000, "rounds per game")
	seed := flag.Uint64("seed", 1, "random seed")
	cashout := flag.Int("cashout", 3, "ladder step to cash out at")
	catalogPath := flag.String("catalog", "", "optional catalog override file")
	flag.Parse()

	catalog, err := config.LoadCatalog(*catalogPath, games.List())
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
	if *rounds < 1 {
		pterm.Error.Println("rounds must be positive")
		os.Exit(1)
	}

	src := rng.NewSeeded(*seed)
	pterm.DefaultSection.Printfln("Simulating %s rounds per game (seed %d)", humanize.Comma(int64(*rounds)), *seed)

	scheduled := [][]string{{"Game", "Kind", "Rounds", "Win %", "Push %", "RTP"}}
	ladders := [][]string{{"Game", "Cash out", "Reach %", "Expected %", "Top %", "Expected top %", "RTP"}}
	for _, d := range catalog {
		switch {
		case d.Scheduled():
			t, err := simulateRounds(d, src, *rounds)
			if err != nil {
				pterm.Warning.Printfln("%s: %v", d.ID, err)
				continue
			}
			scheduled = append(scheduled, []string{
				d.ID, string(d.Kind), humanize.Comma(int64(t.rounds)),
				percent(t.wins, t.rounds), percent(t.pushes, t.rounds),
				strconv.FormatFloat(t.rtp(), 'f', 4, 64),
			})
		case d.Kind == outcome.KindLadder:
			ladders = append(ladders, simulateLadder(d, src, *rounds, *cashout))
		}
	}

	if err := pterm.DefaultTable.WithHasHeader().WithData(scheduled).Render(); err != nil {
		pterm.Error.Println(err)
	}
	pterm.Println()
	if err := pterm.DefaultTable.WithHasHeader().WithData(ladders).Render(); err != nil {
		pterm.Error.Println(err)
	}
}

// simulateRounds plays one wager per round on a uniformly chosen option.
func simulateRounds(d games.Definition, src rng.Source, n int) (tally, error) {
	strat, err := d.Strategy()
	if err != nil {
		return tally{}, err
	}
	var t tally
	for i := 0; i < n; i++ {
		w := outcome.Wager{Game: d.ID, Round: uint64(i + 1), Player: "sim", Selection: "any", Amount: stake}
		if len(d.Options) > 0 {
			w.Selection = d.Options[src.IntN(len(d.Options))]
		}
		if len(d.Assets) > 0 {
			w.Asset = d.Assets[src.IntN(len(d.Assets))]
		}
		res, err := strat.Begin(src).Resolve(w)
		if err != nil {
			return tally{}, err
		}
		t.rounds++
		t.staked += w.Amount
		t.paidOut += res.Payout
		switch res.Result {
		case outcome.ResultWin:
			t.wins++
		case outcome.ResultPush:
			t.pushes++
		}
	}
	return t, nil
}

// simulateLadder climbs to the top on random columns and records how far each
// attempt got. Cashing out at step k pays whenever the climb reached k.
func simulateLadder(d games.Definition, src rng.Source, n, cashout int) []string {
	p := d.Ladder
	if cashout < 1 || cashout > p.StepCount {
		cashout = p.StepCount
	}
	reached := make([]int, p.StepCount+1)
	for i := 0; i < n; i++ {
		board, err := outcome.NewLadder(p, stake, src)
		if err != nil {
			return []string{d.ID, err.Error(), "", "", "", "", ""}
		}
		for {
			st, err := board.Reveal(src.IntN(p.BoardWidth))
			if err != nil || st.Status.Terminal() {
				reached[st.CurrentStep]++
				break
			}
		}
	}

	atLeast := func(k int) int {
		c := 0
		for step := k; step <= p.StepCount; step++ {
			c += reached[step]
		}
		return c
	}
	safe := float64(p.BoardWidth-p.DangerPerRow) / float64(p.BoardWidth)
	hits := atLeast(cashout)
	rtp := float64(hits) * float64(outcome.Payout(stake, p.Multipliers[cashout-1])) / float64(n*stake)

	return []string{
		d.ID,
		fmt.Sprintf("step %d (x%s)", cashout, p.Multipliers[cashout-1]),
		percent(hits, n),
		strconv.FormatFloat(100*math.Pow(safe, float64(cashout)), 'f', 2, 64),
		percent(reached[p.StepCount], n),
		strconv.FormatFloat(100*math.Pow(safe, float64(p.StepCount)), 'f', 2, 64),
		strconv.FormatFloat(rtp, 'f', 4, 64),
	}
}

func percent(k, n int) string {
	if n == 0 {
		return "0.00"
	}
	return strconv.FormatFloat(100*float64(k)/float64(n), 'f', 2, 64)
}
