// Package authority is an HTTP client for a remote balance authority.
//
// The authority owns every player balance. The engine only asks it to apply signed
// deltas, each carrying an idempotency key, and reads balances for display.
//
// # Usage
//
//	client := authority.NewClient(authority.Config{
//	    BaseURL: "https://wallet.internal",
//	    Token:   token,
//	})
//
//	ledgerClient := ledger.NewClient(client, ledger.Config{})
package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/MJE43/minigame-engine/internal/ledger"
)

const (
	deltaPath   = "api/v1/balance/delta"
	balancePath = "api/v1/balance/"
)

// Config holds configuration for the authority client.
type Config struct {
	// BaseURL is the authority's root URL. Required.
	BaseURL string

	// Token is sent as the x-access-token header.
	Token string

	// MaxRetries is the maximum number of retry attempts for retryable errors.
	// Defaults to 2 if zero.
	MaxRetries int

	// BaseRetryDelay is the initial delay before the first retry.
	// Defaults to 250ms if zero.
	BaseRetryDelay time.Duration

	// MaxRetryDelay caps the exponential backoff delay.
	// Defaults to 2 seconds if zero.
	MaxRetryDelay time.Duration

	// HTTPClient allows injecting a custom HTTP client (useful for testing).
	// Defaults to a client with 10s timeout.
	HTTPClient *http.Client

	// UserAgent overrides the User-Agent header. Optional.
	UserAgent string
}

// Client talks to the balance authority. It implements ledger.Authority.
type Client struct {
	config Config
	http   *http.Client
	mu     sync.RWMutex
}

var _ ledger.Authority = (*Client)(nil)

// NewClient creates a new authority client with defaults applied.
func NewClient(cfg Config) *Client {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.BaseRetryDelay == 0 {
		cfg.BaseRetryDelay = 250 * time.Millisecond
	}
	if cfg.MaxRetryDelay == 0 {
		cfg.MaxRetryDelay = 2 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{config: cfg, http: httpClient}
}

// SetToken replaces the access token (thread-safe).
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config.Token = token
}

// Token returns the current access token (thread-safe).
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.Token
}

// BaseURL returns the configured authority root.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

type deltaRequest struct {
	Account        string `json:"account"`
	Delta          int64  `json:"delta"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
	TransactionID  string `json:"transaction_id"`
}

type deltaResponse struct {
	Committed bool  `json:"committed"`
	Balance   int64 `json:"balance"`
}

// BalanceResponse is the authority's view of one account.
type BalanceResponse struct {
	Account string `json:"account"`
	Balance int64  `json:"balance"`
}

// ApplyDelta posts a balance mutation. An insufficientBalance error from the
// authority is a declined mutation (false, nil); a duplicateKey error means the key
// was applied earlier and counts as committed.
func (c *Client) ApplyDelta(ctx context.Context, tx ledger.Transaction) (bool, error) {
	body := deltaRequest{
		Account:        tx.Account,
		Delta:          tx.Delta,
		Reason:         tx.Reason,
		IdempotencyKey: tx.Key,
		TransactionID:  tx.ID.String(),
	}
	var out deltaResponse
	err := c.doRequestWithRetry(ctx, http.MethodPost, deltaPath, body, &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			switch {
			case apiErr.IsInsufficientBalance():
				return false, nil
			case apiErr.IsDuplicateKey():
				return true, nil
			}
		}
		return false, err
	}
	return out.Committed, nil
}

// Balance reads an account's balance.
func (c *Client) Balance(ctx context.Context, account string) (BalanceResponse, error) {
	var out BalanceResponse
	err := c.doRequestWithRetry(ctx, http.MethodGet, balancePath+url.PathEscape(account), nil, &out)
	return out, err
}

// --- Core request methods ---

// doRequest sends a single request and decodes a 200 response into out.
func (c *Client) doRequest(ctx context.Context, method, path string, body, out any) error {
	target := fmt.Sprintf("%s/%s", strings.TrimRight(c.config.BaseURL, "/"), strings.TrimPrefix(path, "/"))

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("authority: marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("authority: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-access-token", c.Token())
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("authority: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("authority: read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return &AuthError{StatusCode: resp.StatusCode, Message: "access token expired or invalid"}
	}
	if resp.StatusCode != http.StatusOK {
		// Business refusals come back as {"error": {"errorType": ..., "message": ...}}.
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if resp.StatusCode < 500 && json.Unmarshal(respBody, &envelope) == nil && envelope.Error != nil {
			return envelope.Error
		}
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("authority: invalid response JSON: %w", err)
	}
	return nil
}

// doRequestWithRetry retries retryable HTTP errors with capped exponential backoff.
func (c *Client) doRequestWithRetry(ctx context.Context, method, path string, body, out any) error {
	retries := c.config.MaxRetries
	if retries < 0 {
		retries = 0
	}
	backoff := retry.WithCappedDuration(c.config.MaxRetryDelay,
		retry.WithMaxRetries(uint64(retries), retry.NewExponential(c.config.BaseRetryDelay)))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.doRequest(ctx, method, path, body, out)
		if retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if retryable(err) {
		return fmt.Errorf("authority: max retries exceeded: %w", err)
	}
	return err
}

func retryable(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.IsRetryable()
}
