// Package api exposes the running games over HTTP.
package api

import (
	"context"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/minigame-engine/internal/games"
	"github.com/MJE43/minigame-engine/internal/session"
	"github.com/MJE43/minigame-engine/internal/store"
)

// Build information, set via ldflags.
var (
	EngineVersion = "dev"
	GitCommit     = "unknown"
)

// OutcomeHistory serves persisted outcomes.
type OutcomeHistory interface {
	ListOutcomes(ctx context.Context, q store.OutcomesQuery) (*store.OutcomesPage, error)
	Ping(ctx context.Context) error
}

// BalanceFunc reads an account balance from the authority.
type BalanceFunc func(ctx context.Context, account string) (int64, error)

// Options configures a Server. Manager and Catalog are required.
type Options struct {
	Manager *session.Manager
	Catalog []games.Definition
	History OutcomeHistory
	Balance BalanceFunc
	// Events is mounted at /ws when set.
	Events http.Handler
	// RequestTimeout bounds every API request. Defaults to 30 seconds.
	RequestTimeout time.Duration
	Logger         *log.Logger
}

// Server handles HTTP requests.
type Server struct {
	manager   *session.Manager
	catalog   map[string]games.Definition
	order     []games.Definition
	history   OutcomeHistory
	balance   BalanceFunc
	events    http.Handler
	timeout   time.Duration
	logger    *log.Logger
	startTime time.Time
}

// NewServer creates a new API server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	catalog := make(map[string]games.Definition, len(opts.Catalog))
	for _, d := range opts.Catalog {
		catalog[d.ID] = d
	}
	return &Server{
		manager:   opts.Manager,
		catalog:   catalog,
		order:     opts.Catalog,
		history:   opts.History,
		balance:   opts.Balance,
		events:    opts.Events,
		timeout:   opts.RequestTimeout,
		logger:    logger,
		startTime: time.Now(),
	}
}

// Routes sets up the HTTP routes with their middleware.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// The event stream is long-lived and stays outside the request timeout.
	if s.events != nil {
		r.Handle("/ws", s.events)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.logRequests)
		r.Use(middleware.Timeout(s.timeout))

		r.Get("/health", s.handleHealth)

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/games", s.handleListGames)
			r.Get("/outcomes", s.handleListOutcomes)
			r.Get("/outcomes/export.csv", s.handleExportOutcomes)
			r.Get("/accounts/{account}/balance", s.handleBalance)

			r.Route("/games/{game}", func(r chi.Router) {
				r.Get("/", s.handleGetGame)

				r.Get("/round", s.handleRound)
				r.Post("/wagers", s.handlePlaceWager)

				r.Post("/ladders", s.handleStartLadder)
				r.Get("/ladders/{attempt}", s.handleGetLadder)
				r.Post("/ladders/{attempt}/reveal", s.handleReveal)
				r.Post("/ladders/{attempt}/cashout", s.handleCashOut)

				r.Post("/bids", s.handleBid)
				r.Get("/auction", s.handleAuction)
			})
		})
	})

	return r
}

// logRequests writes one line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Printf("request method=%s path=%s status=%d bytes=%d duration=%s request_id=%s remote=%s",
			r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start),
			middleware.GetReqID(r.Context()), r.RemoteAddr)
	})
}
