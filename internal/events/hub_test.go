package events

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/MJE43/minigame-engine/internal/outcome"
	"github.com/MJE43/minigame-engine/internal/round"
)

type received struct {
	T    string         `json:"t"`
	Game string         `json:"game"`
	M    map[string]any `json:"m"`
}

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	h := NewHub(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", n, h.Clients())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readMsg(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var m received
	if err := wsjson.Read(ctx, conn, &m); err != nil {
		t.Fatalf("wsjson.Read: %v", err)
	}
	return m
}

func TestBroadcastOutcome(t *testing.T) {
	h, srv := startHub(t)
	conn := dial(t, srv, "")
	waitClients(t, h, 1)

	h.OutcomeResolved(outcome.Outcome{
		WagerID:    uuid.New(),
		Game:       "coin-flip",
		Round:      7,
		Player:     "alice",
		Selection:  "heads",
		Stake:      100,
		Result:     outcome.ResultWin,
		Payout:     195,
		Multiplier: decimal.RequireFromString("1.95"),
		ResolvedAt: time.Now(),
	})

	m := readMsg(t, conn)
	if m.T != TypeOutcome || m.Game != "coin-flip" {
		t.Fatalf("unexpected message %+v", m)
	}
	if m.M["payout"] != float64(195) || m.M["result"] != "win" {
		t.Errorf("unexpected payload %v", m.M)
	}
}

func TestGameFilter(t *testing.T) {
	h, srv := startHub(t)
	tower := dial(t, srv, "?game=tower")
	waitClients(t, h, 1)

	h.PhaseChanged("coin-flip", round.Snapshot{RoundID: 1, Phase: round.PhaseRunning})
	h.WagerDeclined(outcome.Wager{Game: "tower", Player: "bob", Amount: 50}, errors.New("insufficient funds"))

	m := readMsg(t, tower)
	if m.T != TypeDeclined || m.Game != "tower" {
		t.Fatalf("filtered client got %+v", m)
	}
	if m.M["error"] != "insufficient funds" {
		t.Errorf("unexpected payload %v", m.M)
	}
}

func TestLeaderChanged(t *testing.T) {
	h, srv := startHub(t)
	conn := dial(t, srv, "")
	waitClients(t, h, 1)

	h.LeaderChanged("penny-auction", outcome.Entry{Seq: 2, Value: 5, Bidder: "alice"}, true)
	m := readMsg(t, conn)
	if m.T != TypeLeader {
		t.Fatalf("unexpected type %s", m.T)
	}
	l, ok := m.M["leader"].(map[string]any)
	if !ok || l["value"] != float64(5) {
		t.Errorf("unexpected leader payload %v", m.M)
	}

	h.LeaderChanged("penny-auction", outcome.Entry{}, false)
	m = readMsg(t, conn)
	if m.M["leader"] != nil {
		t.Errorf("Expected no leader, got %v", m.M["leader"])
	}
}

func TestSlowClientDropped(t *testing.T) {
	h := NewHub(Options{BufferSize: 1})
	slow := &client{id: "slow", send: make(chan []byte, 1)}
	fast := &client{id: "fast", send: make(chan []byte, 4)}
	h.clients[slow] = struct{}{}
	h.clients[fast] = struct{}{}

	h.deliver(Msg{T: TypePhase, Game: "coin-flip"})
	h.deliver(Msg{T: TypePhase, Game: "coin-flip"})

	if h.Clients() != 1 {
		t.Fatalf("Expected the slow client to be removed, got %d clients", h.Clients())
	}
	if _, ok := h.clients[fast]; !ok {
		t.Error("Expected the fast client to stay connected")
	}
	if len(fast.send) != 2 {
		t.Errorf("Expected 2 messages for the fast client, got %d", len(fast.send))
	}

	h.deliver(Msg{T: TypePhase, Game: "coin-flip"})
	if len(slow.send) != 1 {
		t.Errorf("Expected no delivery after drop, slow queue has %d", len(slow.send))
	}
}

func TestSlowClientConnectionClosed(t *testing.T) {
	h, srv := startHub(t)
	conn := dial(t, srv, "")
	waitClients(t, h, 1)

	h.mu.RLock()
	var c *client
	for k := range h.clients {
		c = k
	}
	h.mu.RUnlock()
	h.drop(c)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			if websocket.CloseStatus(err) != websocket.StatusPolicyViolation {
				t.Errorf("Expected policy violation close, got %v", err)
			}
			break
		}
	}
	waitClients(t, h, 0)
}

func TestDisconnectRemovesClient(t *testing.T) {
	h, srv := startHub(t)
	conn := dial(t, srv, "")
	waitClients(t, h, 1)
	conn.Close(websocket.StatusNormalClosure, "done")
	waitClients(t, h, 0)
}

func TestForbiddenOrigin(t *testing.T) {
	h := NewHub(Options{AllowOrigins: []string{"https://games.example"}})
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	opts := &websocket.DialOptions{HTTPHeader: map[string][]string{"Origin": {"https://evil.example"}}}
	if _, _, err := websocket.Dial(ctx, url, opts); err == nil {
		t.Error("Expected dial to fail for a foreign origin")
	}
}
