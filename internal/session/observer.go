package session

import (
	"github.com/MJE43/minigame-engine/internal/outcome"
	"github.com/MJE43/minigame-engine/internal/round"
)

// Observer receives notifications from sessions. Implementations must not block;
// they are called from scheduler hooks and wager pipelines.
type Observer interface {
	// PhaseChanged fires on every scheduler transition.
	PhaseChanged(game string, snap round.Snapshot)
	// WagerDeclined fires when the ledger refuses or times out a stake debit.
	WagerDeclined(w outcome.Wager, err error)
	// OutcomeResolved fires exactly once per resolved wager.
	OutcomeResolved(o outcome.Outcome)
}

// LeaderObserver is an optional interface for observers interested in auction
// leadership changes.
type LeaderObserver interface {
	LeaderChanged(game string, leader outcome.Entry, ok bool)
}

// NopObserver ignores every notification. Embed it to implement part of Observer.
type NopObserver struct{}

func (NopObserver) PhaseChanged(string, round.Snapshot) {}
func (NopObserver) WagerDeclined(outcome.Wager, error)  {}
func (NopObserver) OutcomeResolved(outcome.Outcome)     {}

// Observers fans every notification out to each element in order.
type Observers []Observer

func (obs Observers) PhaseChanged(game string, snap round.Snapshot) {
	for _, o := range obs {
		o.PhaseChanged(game, snap)
	}
}

func (obs Observers) WagerDeclined(w outcome.Wager, err error) {
	for _, o := range obs {
		o.WagerDeclined(w, err)
	}
}

func (obs Observers) OutcomeResolved(out outcome.Outcome) {
	for _, o := range obs {
		o.OutcomeResolved(out)
	}
}

func (obs Observers) LeaderChanged(game string, leader outcome.Entry, ok bool) {
	for _, o := range obs {
		if lo, isLeader := o.(LeaderObserver); isLeader {
			lo.LeaderChanged(game, leader, ok)
		}
	}
}
