package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSelection rejects a wager locally, before any ledger call.
	ErrInvalidSelection = errors.New("session: invalid selection")
	// ErrWrongPhase rejects a wager placed outside the preparing phase.
	ErrWrongPhase = fmt.Errorf("%w: wagers are only accepted while preparing", ErrInvalidSelection)
	// ErrDuplicateWager rejects a second wager on the same selection key in a round.
	ErrDuplicateWager = fmt.Errorf("%w: wager already placed for this selection key", ErrInvalidSelection)
	// ErrNonPositiveAmount rejects zero or negative stakes.
	ErrNonPositiveAmount = fmt.Errorf("%w: amount must be positive", ErrInvalidSelection)

	ErrUnknownGame     = errors.New("session: unknown game")
	ErrDuplicateGame   = errors.New("session: game already registered")
	ErrAttemptNotFound = errors.New("session: ladder attempt not found")
	ErrAttemptActive   = fmt.Errorf("%w: player already has an active ladder", ErrInvalidSelection)
)
