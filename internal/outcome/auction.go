package outcome

import (
	"errors"
	"sync"
	"time"
)

// ErrInvalidBid is returned for non-positive bid values.
var ErrInvalidBid = errors.New("outcome: bid value must be positive")

// Entry is one bid in a lowest-unique-value auction.
type Entry struct {
	Seq    uint64    `json:"seq"`
	Value  int64     `json:"value"`
	Bidder string    `json:"bidder"`
	At     time.Time `json:"at"`
}

// IsOwn reports whether the entry was placed by player.
func (e Entry) IsOwn(player string) bool {
	return e.Bidder == player
}

// AuctionLog is an unbounded append-only bid log. Entries are never removed, so a
// value that has been bid twice stays ineligible for good. It is safe for
// concurrent appends; the leader is recomputed on every read.
type AuctionLog struct {
	mu      sync.RWMutex
	entries []Entry
	seq     uint64
}

// NewAuctionLog creates an empty log.
func NewAuctionLog() *AuctionLog {
	return &AuctionLog{}
}

// Append records a bid.
func (l *AuctionLog) Append(bidder string, value int64, at time.Time) (Entry, error) {
	if value <= 0 {
		return Entry{}, ErrInvalidBid
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	e := Entry{Seq: l.seq, Value: value, Bidder: bidder, At: at}
	l.entries = append(l.entries, e)
	return e, nil
}

// Entries returns a copy of the log in append order.
func (l *AuctionLog) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Entry(nil), l.entries...)
}

// Len returns the number of bids recorded.
func (l *AuctionLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Counts returns occurrences per distinct value.
func (l *AuctionLog) Counts() map[int64]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return countValues(l.entries)
}

// Leader returns the entry holding the lowest unique value.
func (l *AuctionLog) Leader() (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return LowestUnique(l.entries)
}

// LowestUnique returns the entry whose value appears exactly once and is minimal
// among such values. ok is false when no value is unique.
func LowestUnique(entries []Entry) (leader Entry, ok bool) {
	counts := countValues(entries)
	for _, e := range entries {
		if counts[e.Value] != 1 {
			continue
		}
		if !ok || e.Value < leader.Value {
			leader, ok = e, true
		}
	}
	return leader, ok
}

func countValues(entries []Entry) map[int64]int {
	counts := make(map[int64]int, len(entries))
	for _, e := range entries {
		counts[e.Value]++
	}
	return counts
}
