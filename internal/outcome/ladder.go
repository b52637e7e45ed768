package outcome

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/MJE43/minigame-engine/internal/rng"
)

var (
	ErrLadderTerminated = errors.New("outcome: ladder already terminated")
	ErrCashOutAtZero    = errors.New("outcome: cash out requires at least one safe step")
	ErrBadColumn        = errors.New("outcome: column out of range")
)

// LadderParams configures a progressive ladder board.
type LadderParams struct {
	StepCount    int               `json:"stepCount" yaml:"step_count"`
	BoardWidth   int               `json:"boardWidth" yaml:"board_width"`
	DangerPerRow int               `json:"dangerPerRow" yaml:"danger_per_row"`
	Multipliers  []decimal.Decimal `json:"multipliers" yaml:"multipliers"`
}

// Validate checks board geometry and that the multiplier table strictly increases.
func (p LadderParams) Validate() error {
	if p.StepCount < 1 {
		return fmt.Errorf("outcome: ladder step count must be >= 1, got %d", p.StepCount)
	}
	if p.BoardWidth < 2 {
		return fmt.Errorf("outcome: ladder board width must be >= 2, got %d", p.BoardWidth)
	}
	if p.DangerPerRow < 1 || p.DangerPerRow >= p.BoardWidth {
		return fmt.Errorf("outcome: danger cells per row must be in [1,%d), got %d", p.BoardWidth, p.DangerPerRow)
	}
	if len(p.Multipliers) != p.StepCount {
		return fmt.Errorf("outcome: ladder needs %d multipliers, got %d", p.StepCount, len(p.Multipliers))
	}
	for i := 1; i < len(p.Multipliers); i++ {
		if !p.Multipliers[i].GreaterThan(p.Multipliers[i-1]) {
			return fmt.Errorf("outcome: ladder multipliers must increase (step %d: %s after %s)",
				i+1, p.Multipliers[i], p.Multipliers[i-1])
		}
	}
	return nil
}

// LadderStatus is the lifecycle of one ladder attempt.
type LadderStatus string

const (
	LadderActive LadderStatus = "active"
	LadderBusted LadderStatus = "busted"
	LadderCashed LadderStatus = "cashed"
	// LadderTopped means every row was cleared (an implicit cash out).
	LadderTopped LadderStatus = "topped"
)

// Terminal reports whether no further actions are permitted.
func (s LadderStatus) Terminal() bool {
	return s != LadderActive
}

// LadderState is a read-only view of an attempt.
type LadderState struct {
	CurrentStep int             `json:"currentStep"`
	StepCount   int             `json:"stepCount"`
	BoardWidth  int             `json:"boardWidth"`
	Status      LadderStatus    `json:"status"`
	Bet         int64           `json:"bet"`
	Payout      int64           `json:"payout"`
	Multiplier  decimal.Decimal `json:"multiplier"`
	Revealed    []int           `json:"revealed"`
	// Danger is only exposed once the ladder has terminated.
	Danger [][]bool `json:"danger,omitempty"`
}

// Ladder is a single attempt. A new Ladder is generated per attempt and never
// mutated after termination. Ladder is not safe for concurrent use.
type Ladder struct {
	params   LadderParams
	bet      int64
	danger   [][]bool
	step     int
	status   LadderStatus
	revealed []int
}

// NewLadder generates the danger map: exactly DangerPerRow distinct columns per row.
func NewLadder(params LadderParams, bet int64, src rng.Source) (*Ladder, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if bet <= 0 {
		return nil, fmt.Errorf("outcome: ladder bet must be positive, got %d", bet)
	}

	danger := make([][]bool, params.StepCount)
	for row := range danger {
		danger[row] = make([]bool, params.BoardWidth)
		for _, col := range rng.SampleDistinct(src, params.BoardWidth, params.DangerPerRow) {
			danger[row][col] = true
		}
	}

	return &Ladder{
		params: params,
		bet:    bet,
		danger: danger,
		status: LadderActive,
	}, nil
}

// Reveal opens one cell in the lowest unrevealed row.
func (l *Ladder) Reveal(col int) (LadderState, error) {
	if l.status.Terminal() {
		return l.State(), ErrLadderTerminated
	}
	if col < 0 || col >= l.params.BoardWidth {
		return l.State(), fmt.Errorf("%w: %d not in [0,%d)", ErrBadColumn, col, l.params.BoardWidth)
	}

	l.revealed = append(l.revealed, col)
	if l.danger[l.step][col] {
		l.status = LadderBusted
		return l.State(), nil
	}

	l.step++
	if l.step == l.params.StepCount {
		l.status = LadderTopped
	}
	return l.State(), nil
}

// CashOut terminates the ladder as a win at the current step's multiplier.
func (l *Ladder) CashOut() (LadderState, error) {
	if l.status.Terminal() {
		return l.State(), ErrLadderTerminated
	}
	if l.step == 0 {
		return l.State(), ErrCashOutAtZero
	}
	l.status = LadderCashed
	return l.State(), nil
}

// Multiplier is the table entry for the current step, or 1 before any step.
func (l *Ladder) Multiplier() decimal.Decimal {
	if l.step == 0 {
		return decimal.NewFromInt(1)
	}
	return l.params.Multipliers[l.step-1]
}

// Payout is zero for a busted ladder, otherwise bet * multiplier at the current step.
func (l *Ladder) Payout() int64 {
	if l.status == LadderBusted {
		return 0
	}
	if l.step == 0 {
		return l.bet
	}
	return Payout(l.bet, l.Multiplier())
}

// Result classifies a terminated ladder. Active ladders report ResultPush.
func (l *Ladder) Result() Result {
	switch l.status {
	case LadderBusted:
		return ResultLoss
	case LadderCashed, LadderTopped:
		return ResultWin
	default:
		return ResultPush
	}
}

// State returns a snapshot of the attempt.
func (l *Ladder) State() LadderState {
	st := LadderState{
		CurrentStep: l.step,
		StepCount:   l.params.StepCount,
		BoardWidth:  l.params.BoardWidth,
		Status:      l.status,
		Bet:         l.bet,
		Payout:      l.Payout(),
		Multiplier:  l.Multiplier(),
		Revealed:    append([]int(nil), l.revealed...),
	}
	if l.status == LadderBusted {
		st.Multiplier = decimal.Zero
	}
	if l.status.Terminal() {
		st.Danger = make([][]bool, len(l.danger))
		for i, row := range l.danger {
			st.Danger[i] = append([]bool(nil), row...)
		}
	}
	return st
}
