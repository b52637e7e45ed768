package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MJE43/minigame-engine/internal/clock"
)

// SourceFunc builds a tick source firing every interval.
type SourceFunc func(every time.Duration) clock.Source

type auctionEntry struct {
	auction     *Auction
	bidderEvery time.Duration
}

// Manager holds the running game instances by id.
type Manager struct {
	mu       sync.RWMutex
	rounds   map[string]*Session
	ladders  map[string]*Ladder
	auctions map[string]auctionEntry
}

// NewManager creates an empty registry.
func NewManager() *Manager {
	return &Manager{
		rounds:   make(map[string]*Session),
		ladders:  make(map[string]*Ladder),
		auctions: make(map[string]auctionEntry),
	}
}

func (m *Manager) taken(id string) bool {
	_, r := m.rounds[id]
	_, l := m.ladders[id]
	_, a := m.auctions[id]
	return r || l || a
}

// AddSession registers a scheduled game.
func (m *Manager) AddSession(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.taken(s.Game()) {
		return fmt.Errorf("%w: %s", ErrDuplicateGame, s.Game())
	}
	m.rounds[s.Game()] = s
	return nil
}

// AddLadder registers a ladder game.
func (m *Manager) AddLadder(l *Ladder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.taken(l.Game()) {
		return fmt.Errorf("%w: %s", ErrDuplicateGame, l.Game())
	}
	m.ladders[l.Game()] = l
	return nil
}

// AddAuction registers an auction whose background bidder fires every bidderEvery.
// A zero interval disables the bidder.
func (m *Manager) AddAuction(a *Auction, bidderEvery time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.taken(a.Game()) {
		return fmt.Errorf("%w: %s", ErrDuplicateGame, a.Game())
	}
	m.auctions[a.Game()] = auctionEntry{auction: a, bidderEvery: bidderEvery}
	return nil
}

// Session looks up a scheduled game.
func (m *Manager) Session(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.rounds[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGame, id)
	}
	return s, nil
}

// Ladder looks up a ladder game.
func (m *Manager) Ladder(id string) (*Ladder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.ladders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGame, id)
	}
	return l, nil
}

// Auction looks up an auction game.
func (m *Manager) Auction(id string) (*Auction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.auctions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGame, id)
	}
	return a.auction, nil
}

// IDs returns every registered game id, sorted.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.rounds)+len(m.ladders)+len(m.auctions))
	for id := range m.rounds {
		ids = append(ids, id)
	}
	for id := range m.ladders {
		ids = append(ids, id)
	}
	for id := range m.auctions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Run drives every scheduled session and auction bidder until ctx is done. Each
// session ticks on its own source built with tick as the interval.
func (m *Manager) Run(ctx context.Context, source SourceFunc, tick time.Duration) error {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.rounds))
	for _, s := range m.rounds {
		sessions = append(sessions, s)
	}
	auctions := make([]auctionEntry, 0, len(m.auctions))
	for _, a := range m.auctions {
		auctions = append(auctions, a)
	}
	m.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, s := range sessions {
		g.Go(func() error { return s.Run(ctx, source(tick)) })
	}
	for _, a := range auctions {
		if a.bidderEvery <= 0 {
			continue
		}
		g.Go(func() error { return a.auction.RunBidder(ctx, source(a.bidderEvery)) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Wait drains in-flight pipelines and credits of every scheduled session.
func (m *Manager) Wait() {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.rounds))
	for _, s := range m.rounds {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()
	for _, s := range sessions {
		s.Wait()
	}
}
