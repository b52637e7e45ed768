// Command minigamesd serves the mini-game catalog over HTTP and WebSocket.
//
// Usage:
//
//	minigamesd                          run the server
//	minigamesd token set <url> <token>  store a ledger token in the OS keychain
//	minigamesd token delete <url>       remove a stored ledger token
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/MJE43/minigame-engine/internal/api"
	"github.com/MJE43/minigame-engine/internal/authority"
	"github.com/MJE43/minigame-engine/internal/autoplay"
	"github.com/MJE43/minigame-engine/internal/clock"
	"github.com/MJE43/minigame-engine/internal/config"
	"github.com/MJE43/minigame-engine/internal/events"
	"github.com/MJE43/minigame-engine/internal/games"
	"github.com/MJE43/minigame-engine/internal/ledger"
	"github.com/MJE43/minigame-engine/internal/outcome"
	"github.com/MJE43/minigame-engine/internal/round"
	"github.com/MJE43/minigame-engine/internal/secrets"
	"github.com/MJE43/minigame-engine/internal/session"
	"github.com/MJE43/minigame-engine/internal/store"
)

const (
	appConfigDirName = "minigame-engine"
	tokensFileName   = "tokens.json"
	shutdownTimeout  = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	tokens := secrets.NewTokenStore(cfg.KeyringService, tokensPath())

	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := tokenCommand(tokens, os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, tokens); err != nil {
		log.Fatalf("minigamesd: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config, tokens *secrets.TokenStore) (err error) {
	catalog, err := config.LoadCatalog(cfg.CatalogPath, games.List())
	if err != nil {
		return err
	}

	db, err := store.Open(ctx, cfg.DBPath, log.New(os.Stderr, "[STORE] ", log.LstdFlags))
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, db.Close()) }()

	auth, balance, err := buildAuthority(cfg, tokens)
	if err != nil {
		return err
	}
	ledgerLog := log.New(os.Stderr, "[LEDGER] ", log.LstdFlags)
	client := ledger.NewClient(auth, ledger.Config{
		Timeout:       cfg.LedgerTimeout,
		CreditRetries: cfg.CreditRetries,
		Journal:       db,
		Logger:        ledgerLog,
		OnPayoutLost: func(e *ledger.PayoutLostError) {
			ledgerLog.Printf("level=ERROR payout_lost err=%v", e)
		},
	})

	hub := events.NewHub(events.Options{Logger: log.New(os.Stderr, "[EVENTS] ", log.LstdFlags)})
	late := &relay{}

	m := session.NewManager()
	if err := games.BuildAll(m, catalog, games.Deps{
		Ledger:   client,
		Observer: session.Observers{db, hub, late},
		Logger:   log.New(os.Stderr, "[GAME] ", log.LstdFlags),
	}); err != nil {
		return err
	}

	var player *autoplay.Bot
	if cfg.AutoplayScript != "" {
		if player, err = buildBot(cfg, m); err != nil {
			return err
		}
		late.set(player)
	}

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: api.NewServer(api.Options{
			Manager: m,
			Catalog: catalog,
			History: db,
			Balance: balance,
			Events:  hub,
			Logger:  log.New(os.Stderr, "[API] ", log.LstdFlags),
		}).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.Run(ctx, func(every time.Duration) clock.Source { return clock.NewTicker(every) }, cfg.Tick)
	})
	g.Go(func() error {
		if err := hub.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if player != nil {
		g.Go(func() error { return player.Run(ctx) })
	}
	g.Go(func() error {
		log.Printf("listening addr=%s games=%d", cfg.Addr, len(catalog))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	m.Wait()
	client.Wait()
	log.Printf("stopped")
	return err
}

// buildAuthority selects the remote authority when a ledger URL is configured and
// an in-memory one seeded with the demo account otherwise.
func buildAuthority(cfg config.Config, tokens *secrets.TokenStore) (ledger.Authority, api.BalanceFunc, error) {
	if cfg.LedgerURL == "" {
		mem := ledger.NewMemoryAuthority()
		mem.Deposit(cfg.Account, cfg.StartingBalance)
		return mem, func(_ context.Context, account string) (int64, error) {
			return mem.Balance(account), nil
		}, nil
	}

	token, err := tokens.Resolve(cfg.LedgerURL, cfg.LedgerToken)
	if err != nil {
		return nil, nil, err
	}
	remote := authority.NewClient(authority.Config{
		BaseURL:    cfg.LedgerURL,
		Token:      token,
		MaxRetries: cfg.CreditRetries,
		UserAgent:  "minigamesd/" + api.EngineVersion,
	})
	return remote, func(ctx context.Context, account string) (int64, error) {
		resp, err := remote.Balance(ctx, account)
		if err != nil {
			return 0, err
		}
		return resp.Balance, nil
	}, nil
}

func buildBot(cfg config.Config, m *session.Manager) (*autoplay.Bot, error) {
	script, err := os.ReadFile(cfg.AutoplayScript)
	if err != nil {
		return nil, fmt.Errorf("autoplay script: %w", err)
	}
	table, err := m.Session(cfg.AutoplayGame)
	if err != nil {
		return nil, fmt.Errorf("autoplay: %w", err)
	}
	return autoplay.NewBot(autoplay.Options{
		Player: cfg.Account,
		Script: string(script),
		Table:  table,
		Logger: log.New(os.Stderr, "[AUTOPLAY] ", log.LstdFlags),
	})
}

// relay forwards session events to an observer attached after the games are built.
type relay struct {
	mu     sync.RWMutex
	target session.Observer
}

func (r *relay) set(o session.Observer) {
	r.mu.Lock()
	r.target = o
	r.mu.Unlock()
}

func (r *relay) get() session.Observer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.target == nil {
		return session.NopObserver{}
	}
	return r.target
}

func (r *relay) PhaseChanged(game string, snap round.Snapshot) { r.get().PhaseChanged(game, snap) }
func (r *relay) WagerDeclined(w outcome.Wager, err error)      { r.get().WagerDeclined(w, err) }
func (r *relay) OutcomeResolved(o outcome.Outcome)             { r.get().OutcomeResolved(o) }

func tokensPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, appConfigDirName, tokensFileName)
}

func tokenCommand(tokens *secrets.TokenStore, args []string) error {
	switch {
	case len(args) == 3 && args[0] == "set":
		return tokens.Set(args[1], args[2])
	case len(args) == 2 && args[0] == "delete":
		if err := tokens.Delete(args[1]); err != nil && !errors.Is(err, secrets.ErrNotFound) {
			return err
		}
		return nil
	default:
		return fmt.Errorf("usage: minigamesd token set <url> <token> | token delete <url>")
	}
}
