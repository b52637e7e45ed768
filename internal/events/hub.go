// Package events streams session notifications to websocket clients.
package events

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/MJE43/minigame-engine/internal/outcome"
	"github.com/MJE43/minigame-engine/internal/round"
	"github.com/MJE43/minigame-engine/internal/session"
)

// Event types.
const (
	TypePhase    = "phase"
	TypeOutcome  = "outcome"
	TypeDeclined = "declined"
	TypeLeader   = "auction_leader"
)

// Msg is the wire envelope.
type Msg struct {
	T    string    `json:"t"`
	Game string    `json:"game"`
	At   time.Time `json:"at"`
	M    any       `json:"m,omitempty"`
}

type declined struct {
	Wager outcome.Wager `json:"wager"`
	Error string        `json:"error"`
}

type leader struct {
	Leader *outcome.Entry `json:"leader"`
}

type client struct {
	id   string
	game string // empty receives every game
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
}

// Options configures a Hub.
type Options struct {
	// AllowOrigins lists accepted Origin headers. Requests without one are accepted.
	AllowOrigins []string
	// BufferSize is the per-client queue length. Defaults to 64.
	BufferSize int
	// PingInterval defaults to 15 seconds.
	PingInterval time.Duration
	Logger       *log.Logger
}

// Hub fans notifications out to connected clients. Publishing never blocks; a
// client whose queue is full is disconnected.
type Hub struct {
	allowOrigins map[string]bool
	opts         Options
	logger       *log.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}

	broadcast chan Msg
}

var (
	_ session.Observer       = (*Hub)(nil)
	_ session.LeaderObserver = (*Hub)(nil)
)

// NewHub creates a hub. Call Run to start delivery.
func NewHub(opts Options) *Hub {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 64
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 15 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	allow := map[string]bool{}
	for _, a := range opts.AllowOrigins {
		if a != "" {
			allow[a] = true
		}
	}
	return &Hub{
		allowOrigins: allow,
		opts:         opts,
		logger:       logger,
		clients:      map[*client]struct{}{},
		broadcast:    make(chan Msg, 256),
	}
}

// Run delivers published messages until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-h.broadcast:
			h.deliver(m)
		}
	}
}

func (h *Hub) deliver(m Msg) {
	data, err := json.Marshal(m)
	if err != nil {
		h.logger.Printf("event_encode_failed type=%s game=%s err=%v", m.T, m.Game, err)
		return
	}
	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		if c.game != "" && c.game != m.Game {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Printf("ws_slow_client client=%s type=%s game=%s", c.id, m.T, m.Game)
		h.drop(c)
	}
}

// drop disconnects c. Its queue overflowed, so the stream it saw is no longer whole.
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.closeOnce.Do(func() {
		if c.conn != nil {
			go c.conn.Close(websocket.StatusPolicyViolation, "slow consumer")
		}
	})
}

// Publish queues m for delivery, dropping it if the hub is saturated.
func (h *Hub) Publish(m Msg) {
	if m.At.IsZero() {
		m.At = time.Now().UTC()
	}
	select {
	case h.broadcast <- m:
	default:
		h.logger.Printf("event_dropped type=%s game=%s reason=hub_full", m.T, m.Game)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) PhaseChanged(game string, snap round.Snapshot) {
	h.Publish(Msg{T: TypePhase, Game: game, M: snap})
}

func (h *Hub) WagerDeclined(w outcome.Wager, err error) {
	h.Publish(Msg{T: TypeDeclined, Game: w.Game, M: declined{Wager: w, Error: err.Error()}})
}

func (h *Hub) OutcomeResolved(o outcome.Outcome) {
	h.Publish(Msg{T: TypeOutcome, Game: o.Game, At: o.ResolvedAt, M: o})
}

func (h *Hub) LeaderChanged(game string, e outcome.Entry, ok bool) {
	var l leader
	if ok {
		l.Leader = &e
	}
	h.Publish(Msg{T: TypeLeader, Game: game, M: l})
}

// ServeHTTP upgrades the request. The optional game query parameter restricts the
// stream to one game.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin != "" && len(h.allowOrigins) > 0 && !h.allowOrigins[origin] {
		http.Error(w, "forbidden origin", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: len(h.allowOrigins) == 0})
	if err != nil {
		h.logger.Printf("ws_accept_failed err=%v", err)
		return
	}

	c := &client{
		id:   uuid.NewString()[:8],
		game: r.URL.Query().Get("game"),
		conn: conn,
		send: make(chan []byte, h.opts.BufferSize),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Printf("ws_connected client=%s game=%q", c.id, c.game)

	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		c.closeOnce.Do(func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") })
		h.logger.Printf("ws_disconnected client=%s", c.id)
	}()

	go h.writer(ctx, c)

	// Clients only listen; reading detects the close handshake.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func (h *Hub) writer(ctx context.Context, c *client) {
	ping := time.NewTicker(h.opts.PingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		case <-ping.C:
			_ = c.conn.Ping(ctx)
		}
	}
}
