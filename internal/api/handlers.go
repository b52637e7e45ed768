package api

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MJE43/minigame-engine/internal/games"
	"github.com/MJE43/minigame-engine/internal/outcome"
	"github.com/MJE43/minigame-engine/internal/session"
	"github.com/MJE43/minigame-engine/internal/store"
)

const (
	maxBodyBytes   = 1 << 20
	exportPageSize = 500
)

// HealthResponse is the /health body.
type HealthResponse struct {
	Status        string            `json:"status"`
	EngineVersion string            `json:"engine_version"`
	GitCommit     string            `json:"git_commit,omitempty"`
	Uptime        string            `json:"uptime"`
	Games         int               `json:"games"`
	Goroutines    int               `json:"goroutines"`
	Checks        map[string]string `json:"checks"`
	Timestamp     string            `json:"timestamp"`
	RequestID     string            `json:"request_id,omitempty"`
}

// GamesResponse lists the catalog.
type GamesResponse struct {
	Games         []games.Definition `json:"games"`
	EngineVersion string             `json:"engine_version"`
}

// LadderStartRequest opens a ladder attempt.
type LadderStartRequest struct {
	Player string `json:"player"`
	Bet    int64  `json:"bet"`
}

// RevealRequest opens one column of the current row.
type RevealRequest struct {
	Column *int `json:"column"`
}

// BidRequest places one auction bid.
type BidRequest struct {
	Player string `json:"player"`
	Value  int64  `json:"value"`
}

// BalanceResponse is an account balance.
type BalanceResponse struct {
	Account string `json:"account"`
	Balance int64  `json:"balance"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "healthy",
		EngineVersion: EngineVersion,
		GitCommit:     GitCommit,
		Uptime:        time.Since(s.startTime).Round(time.Second).String(),
		Games:         len(s.manager.IDs()),
		Goroutines:    runtime.NumGoroutine(),
		Checks:        map[string]string{},
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		RequestID:     middleware.GetReqID(r.Context()),
	}
	status := http.StatusOK
	if s.history != nil {
		if err := s.history.Ping(r.Context()); err != nil {
			resp.Status = "unhealthy"
			resp.Checks["database"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			resp.Checks["database"] = "ok"
		}
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GamesResponse{Games: s.order, EngineVersion: EngineVersion})
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "game")
	d, ok := s.catalog[id]
	if !ok {
		s.handleError(w, r, fmt.Errorf("%w: %s", session.ErrUnknownGame, id))
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

// --- scheduled rounds ---

func (s *Server) handleRound(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Session(chi.URLParam(r, "game"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handlePlaceWager(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Session(chi.URLParam(r, "game"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	var req session.WagerRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Player == "" {
		s.handleValidationError(w, r, "player", "player is required")
		return
	}
	wager, err := sess.PlaceWager(req)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, wager)
}

// --- ladders ---

func (s *Server) handleStartLadder(w http.ResponseWriter, r *http.Request) {
	l, err := s.manager.Ladder(chi.URLParam(r, "game"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	var req LadderStartRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Player == "" {
		s.handleValidationError(w, r, "player", "player is required")
		return
	}
	view, err := l.Start(r.Context(), req.Player, req.Bet)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, view)
}

func (s *Server) ladderAttempt(w http.ResponseWriter, r *http.Request) (*session.Ladder, uuid.UUID, bool) {
	l, err := s.manager.Ladder(chi.URLParam(r, "game"))
	if err != nil {
		s.handleError(w, r, err)
		return nil, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "attempt"))
	if err != nil {
		s.handleValidationError(w, r, "attempt", "attempt must be a UUID")
		return nil, uuid.Nil, false
	}
	return l, id, true
}

func (s *Server) handleGetLadder(w http.ResponseWriter, r *http.Request) {
	l, id, ok := s.ladderAttempt(w, r)
	if !ok {
		return
	}
	view, err := l.Get(id)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	l, id, ok := s.ladderAttempt(w, r)
	if !ok {
		return
	}
	var req RevealRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Column == nil {
		s.handleValidationError(w, r, "column", "column is required")
		return
	}
	view, err := l.Reveal(id, *req.Column)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCashOut(w http.ResponseWriter, r *http.Request) {
	l, id, ok := s.ladderAttempt(w, r)
	if !ok {
		return
	}
	view, err := l.CashOut(id)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

// --- auction ---

func (s *Server) handleBid(w http.ResponseWriter, r *http.Request) {
	a, err := s.manager.Auction(chi.URLParam(r, "game"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	var req BidRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Player == "" {
		s.handleValidationError(w, r, "player", "player is required")
		return
	}
	entry, err := a.Bid(r.Context(), req.Player, req.Value)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleAuction(w http.ResponseWriter, r *http.Request) {
	a, err := s.manager.Auction(chi.URLParam(r, "game"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, a.Standing(r.URL.Query().Get("player")))
}

// --- history and balances ---

func (s *Server) handleListOutcomes(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeJSON(w, http.StatusOK, store.OutcomesPage{Outcomes: []outcome.Outcome{}, Page: 1})
		return
	}
	q := store.OutcomesQuery{
		Game:   r.URL.Query().Get("game"),
		Player: r.URL.Query().Get("player"),
	}
	var ok bool
	if q.Page, ok = s.intParam(w, r, "page"); !ok {
		return
	}
	if q.PerPage, ok = s.intParam(w, r, "per_page"); !ok {
		return
	}
	page, err := s.history.ListOutcomes(r.Context(), q)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

// handleExportOutcomes streams the filtered history as CSV, newest first.
func (s *Server) handleExportOutcomes(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.handleError(w, r, fmt.Errorf("outcome history is not configured"))
		return
	}
	q := store.OutcomesQuery{
		Game:    r.URL.Query().Get("game"),
		Player:  r.URL.Query().Get("player"),
		Page:    1,
		PerPage: exportPageSize,
	}
	first, err := s.history.ListOutcomes(r.Context(), q)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="outcomes.csv"`)
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"wager_id", "game", "round", "player", "selection_key", "selection", "stake", "result", "payout", "multiplier", "resolved_at"})

	page := first
	for {
		for _, o := range page.Outcomes {
			_ = cw.Write([]string{
				o.WagerID.String(), o.Game, strconv.FormatUint(o.Round, 10), o.Player,
				o.SelectionKey, o.Selection, strconv.FormatInt(o.Stake, 10), string(o.Result),
				strconv.FormatInt(o.Payout, 10), o.Multiplier.String(), o.ResolvedAt.UTC().Format(time.RFC3339Nano),
			})
		}
		if q.Page >= page.TotalPages {
			break
		}
		q.Page++
		if page, err = s.history.ListOutcomes(r.Context(), q); err != nil {
			// Headers are gone; the truncated file is the only signal left.
			s.logger.Printf("level=ERROR type=export_failed page=%d err=%v", q.Page, err)
			break
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		s.logger.Printf("level=ERROR type=export_failed err=%v", err)
	}
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if s.balance == nil {
		s.writeJSON(w, http.StatusNotImplemented, NewError(ErrTypeInternal, "balance lookup is not configured").
			WithRequestID(middleware.GetReqID(r.Context())).Build())
		return
	}
	account := chi.URLParam(r, "account")
	bal, err := s.balance(r.Context(), account)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, BalanceResponse{Account: account, Balance: bal})
}

// --- helpers ---

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.handleValidationError(w, r, "body", fmt.Sprintf("invalid JSON: %v", err))
		return false
	}
	return true
}

func (s *Server) intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		s.handleValidationError(w, r, name, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
