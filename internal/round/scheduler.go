// Package round implements the phase scheduler shared by every timed mini-game.
//
// A Scheduler cycles Preparing -> Running -> Results -> Preparing forever. It owns
// wall-clock phase timing only; it performs no I/O and cannot fail once constructed.
package round

import (
	"fmt"
	"sync"
)

// Phase is a scheduler state.
type Phase string

const (
	PhasePreparing Phase = "preparing"
	PhaseRunning   Phase = "running"
	PhaseResults   Phase = "results"
)

// Config holds per-phase durations in seconds.
type Config struct {
	PreparationTime int `json:"preparationTime" yaml:"preparation_time"`
	GameTime        int `json:"gameTime" yaml:"game_time"`
	ResultsTime     int `json:"resultsTime" yaml:"results_time"`
}

// Validate rejects phases shorter than one second.
func (c Config) Validate() error {
	if c.PreparationTime < 1 {
		return fmt.Errorf("round: preparation time must be at least 1s, got %d", c.PreparationTime)
	}
	if c.GameTime < 1 {
		return fmt.Errorf("round: game time must be at least 1s, got %d", c.GameTime)
	}
	if c.ResultsTime < 1 {
		return fmt.Errorf("round: results time must be at least 1s, got %d", c.ResultsTime)
	}
	return nil
}

func (c Config) duration(p Phase) int {
	switch p {
	case PhaseRunning:
		return c.GameTime
	case PhaseResults:
		return c.ResultsTime
	default:
		return c.PreparationTime
	}
}

// Snapshot is a read-only view of the scheduler.
type Snapshot struct {
	RoundID       uint64 `json:"roundId"`
	Phase         Phase  `json:"phase"`
	TimeRemaining int    `json:"timeRemaining"`
	TotalTime     int    `json:"totalTime"`
}

// Hooks are invoked on phase transitions. Any of them may be nil. Hooks run after
// the scheduler's lock is released, in the order OnPhase then the specific hook.
type Hooks struct {
	// OnRoundStart fires once on Preparing -> Running with the new Running snapshot.
	OnRoundStart func(Snapshot)
	// OnResults fires once on Running -> Results.
	OnResults func(Snapshot)
	// OnRoundEnd fires once on Results -> Preparing with the id of the round that ended.
	OnRoundEnd func(endedRound uint64, next Snapshot)
	// OnPhase fires on every transition.
	OnPhase func(Snapshot)
}

// Scheduler is the round lifecycle state machine.
type Scheduler struct {
	mu        sync.Mutex
	cfg       Config
	hooks     Hooks
	roundID   uint64
	phase     Phase
	remaining int
	total     int
}

// New creates a scheduler in round 1, Preparing, with the full preparation time left.
func New(cfg Config, hooks Hooks) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{
		cfg:       cfg,
		hooks:     hooks,
		roundID:   1,
		phase:     PhasePreparing,
		remaining: cfg.PreparationTime,
		total:     cfg.PreparationTime,
	}, nil
}

// Tick advances the scheduler by one second. A tick observed at zero remaining
// performs the pending transition instead of decrementing. Otherwise the counter is
// decremented and, if it reached zero, the transition happens in the same tick.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	var fire func()
	if s.remaining == 0 {
		fire = s.advanceLocked()
	} else {
		s.remaining--
		if s.remaining == 0 {
			fire = s.advanceLocked()
		}
	}
	s.mu.Unlock()

	if fire != nil {
		fire()
	}
}

// advanceLocked performs one transition and returns the hook calls to run once the
// lock is released.
func (s *Scheduler) advanceLocked() func() {
	from := s.phase
	var ended uint64

	switch from {
	case PhasePreparing:
		s.phase = PhaseRunning
	case PhaseRunning:
		s.phase = PhaseResults
	case PhaseResults:
		ended = s.roundID
		s.roundID++
		s.phase = PhasePreparing
	}
	s.total = s.cfg.duration(s.phase)
	s.remaining = s.total

	snap := s.snapshotLocked()
	hooks := s.hooks
	return func() {
		if hooks.OnPhase != nil {
			hooks.OnPhase(snap)
		}
		switch from {
		case PhasePreparing:
			if hooks.OnRoundStart != nil {
				hooks.OnRoundStart(snap)
			}
		case PhaseRunning:
			if hooks.OnResults != nil {
				hooks.OnResults(snap)
			}
		case PhaseResults:
			if hooks.OnRoundEnd != nil {
				hooks.OnRoundEnd(ended, snap)
			}
		}
	}
}

// Phase returns the current phase.
func (s *Scheduler) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// TimeRemaining returns the seconds left in the current phase.
func (s *Scheduler) TimeRemaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// RoundID returns the current round id.
func (s *Scheduler) RoundID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roundID
}

// Snapshot returns all observable fields atomically.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Config returns the scheduler's phase durations.
func (s *Scheduler) Config() Config {
	return s.cfg
}

func (s *Scheduler) snapshotLocked() Snapshot {
	return Snapshot{
		RoundID:       s.roundID,
		Phase:         s.phase,
		TimeRemaining: s.remaining,
		TotalTime:     s.total,
	}
}
