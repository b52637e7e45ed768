package session

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MJE43/minigame-engine/internal/clock"
	"github.com/MJE43/minigame-engine/internal/ledger"
	"github.com/MJE43/minigame-engine/internal/outcome"
	"github.com/MJE43/minigame-engine/internal/rng"
)

// DefaultBidder is the name the background bidder appends under.
const DefaultBidder = "house-bot"

// AuctionOptions configures an Auction session.
type AuctionOptions struct {
	Game     string
	EntryFee int64
	Ledger   *ledger.Client

	// BidderName defaults to DefaultBidder.
	BidderName string
	// MaxBotBid is the highest value the background bidder submits. Defaults to 10.
	MaxBotBid int64

	RNG      rng.Source
	Observer Observer
	Logger   *log.Logger
	Now      func() time.Time
}

// Standing is a player's view of the auction.
type Standing struct {
	Game      string          `json:"game"`
	EntryFee  int64           `json:"entryFee"`
	TotalBids int             `json:"totalBids"`
	Leader    *outcome.Entry  `json:"leader,omitempty"`
	Leading   bool            `json:"leading"`
	OwnBids   []outcome.Entry `json:"ownBids"`
	// UniqueOwn lists the player's values that are currently submitted exactly once.
	UniqueOwn []int64 `json:"uniqueOwn"`
}

// Auction is a lowest-unique-value auction. Each bid costs EntryFee, charged before
// the bid is appended. The jackpot is settled outside the engine.
type Auction struct {
	game      string
	fee       int64
	bidder    string
	maxBotBid int64
	ledger    *ledger.Client
	src       rng.Source
	obs       Observer
	logger    *log.Logger
	now       func() time.Time

	bids *outcome.AuctionLog

	mu         sync.Mutex
	leader     outcome.Entry
	haveLeader bool
}

// NewAuction creates an auction session with an empty log.
func NewAuction(opts AuctionOptions) (*Auction, error) {
	if opts.Game == "" {
		return nil, fmt.Errorf("session: game id is required")
	}
	if opts.Ledger == nil {
		return nil, fmt.Errorf("session: %s: ledger client is required", opts.Game)
	}
	if opts.EntryFee <= 0 {
		return nil, fmt.Errorf("session: %s: entry fee must be positive, got %d", opts.Game, opts.EntryFee)
	}
	if opts.BidderName == "" {
		opts.BidderName = DefaultBidder
	}
	if opts.MaxBotBid <= 0 {
		opts.MaxBotBid = 10
	}
	if opts.RNG == nil {
		opts.RNG = rng.Default()
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Auction{
		game:      opts.Game,
		fee:       opts.EntryFee,
		bidder:    opts.BidderName,
		maxBotBid: opts.MaxBotBid,
		ledger:    opts.Ledger,
		src:       opts.RNG,
		obs:       opts.Observer,
		logger:    opts.Logger,
		now:       opts.Now,
		bids:      outcome.NewAuctionLog(),
	}, nil
}

// Game returns the session's game id.
func (a *Auction) Game() string { return a.game }

// EntryFee returns the per-bid fee.
func (a *Auction) EntryFee() int64 { return a.fee }

// Bid charges the entry fee and, once the debit commits, appends value to the log.
func (a *Auction) Bid(ctx context.Context, player string, value int64) (outcome.Entry, error) {
	if value <= 0 {
		return outcome.Entry{}, fmt.Errorf("%w: bid value must be positive", ErrInvalidSelection)
	}
	if player == a.bidder {
		return outcome.Entry{}, fmt.Errorf("%w: reserved bidder name", ErrInvalidSelection)
	}

	key := fmt.Sprintf("auction:%s:bid:%s", a.game, uuid.NewString())
	if _, err := a.ledger.Debit(ctx, player, a.fee, a.game, key); err != nil {
		a.logger.Printf("bid_declined game=%s player=%s value=%d err=%v", a.game, player, value, err)
		a.obs.WagerDeclined(outcome.Wager{
			Game:      a.game,
			Player:    player,
			Selection: fmt.Sprint(value),
			Amount:    a.fee,
			PlacedAt:  a.now().UTC(),
		}, err)
		return outcome.Entry{}, err
	}

	e, err := a.bids.Append(player, value, a.now().UTC())
	if err != nil {
		return outcome.Entry{}, err
	}
	a.logger.Printf("bid_placed game=%s player=%s value=%d seq=%d", a.game, player, value, e.Seq)
	a.recompute()
	return e, nil
}

// RunBidder injects a random low value from the background bidder on every tick of
// src until ctx is done. The bidder pays no fee.
func (a *Auction) RunBidder(ctx context.Context, src clock.Source) error {
	return clock.Drive(ctx, src, func(at time.Time) {
		a.botBid(at)
	})
}

func (a *Auction) botBid(at time.Time) {
	value := 1 + int64(a.src.IntN(int(a.maxBotBid)))
	if _, err := a.bids.Append(a.bidder, value, at.UTC()); err != nil {
		a.logger.Printf("bot_bid_failed game=%s err=%v", a.game, err)
		return
	}
	a.recompute()
}

// Leader returns the current lowest unique entry.
func (a *Auction) Leader() (outcome.Entry, bool) {
	return a.bids.Leader()
}

// Entries returns the full bid history.
func (a *Auction) Entries() []outcome.Entry {
	return a.bids.Entries()
}

// Standing summarizes the auction for player.
func (a *Auction) Standing(player string) Standing {
	entries := a.bids.Entries()
	counts := make(map[int64]int, len(entries))
	for _, e := range entries {
		counts[e.Value]++
	}

	st := Standing{
		Game:      a.game,
		EntryFee:  a.fee,
		TotalBids: len(entries),
		OwnBids:   []outcome.Entry{},
		UniqueOwn: []int64{},
	}
	if leader, ok := outcome.LowestUnique(entries); ok {
		st.Leader = &leader
		st.Leading = leader.IsOwn(player)
	}
	for _, e := range entries {
		if !e.IsOwn(player) {
			continue
		}
		st.OwnBids = append(st.OwnBids, e)
		if counts[e.Value] == 1 {
			st.UniqueOwn = append(st.UniqueOwn, e.Value)
		}
	}
	return st
}

// recompute notifies LeaderObservers when the leading entry changes.
func (a *Auction) recompute() {
	a.mu.Lock()
	leader, ok := a.bids.Leader()
	changed := ok != a.haveLeader || leader.Seq != a.leader.Seq
	a.leader, a.haveLeader = leader, ok
	a.mu.Unlock()

	if !changed {
		return
	}
	if lo, isLeader := a.obs.(LeaderObserver); isLeader {
		lo.LeaderChanged(a.game, leader, ok)
	}
}
