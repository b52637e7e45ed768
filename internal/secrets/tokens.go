// Package secrets keeps the balance authority's bearer tokens in the OS keychain,
// with a JSON file fallback for hosts that have no keyring backend.
package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

// ErrNotFound is returned when no token is stored for an endpoint.
var ErrNotFound = keyring.ErrNotFound

// DefaultService is the keychain service name.
const DefaultService = "minigame-engine"

// TokenStore stores one token per ledger endpoint.
type TokenStore struct {
	service      string
	fallbackPath string
	mu           sync.Mutex
}

// NewTokenStore creates a store. An empty fallbackPath disables the file fallback.
func NewTokenStore(service, fallbackPath string) *TokenStore {
	if strings.TrimSpace(service) == "" {
		service = DefaultService
	}
	return &TokenStore{service: service, fallbackPath: fallbackPath}
}

func entryName(endpoint string) string {
	return "ledger/" + strings.TrimRight(strings.TrimSpace(endpoint), "/")
}

// Set stores token for endpoint.
func (s *TokenStore) Set(endpoint, token string) error {
	if strings.TrimSpace(endpoint) == "" {
		return fmt.Errorf("secrets: endpoint is required")
	}
	err := keyring.Set(s.service, entryName(endpoint), token)
	if err == nil {
		return nil
	}
	if !unavailable(err) {
		return fmt.Errorf("secrets: keyring set: %w", err)
	}
	return s.updateFile(func(m map[string]string) { m[entryName(endpoint)] = token })
}

// Get returns the token for endpoint, consulting the fallback file when the
// keyring has none or is unavailable.
func (s *TokenStore) Get(endpoint string) (string, error) {
	if strings.TrimSpace(endpoint) == "" {
		return "", fmt.Errorf("secrets: endpoint is required")
	}
	token, err := keyring.Get(s.service, entryName(endpoint))
	if err == nil {
		return token, nil
	}
	if !unavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("secrets: keyring get: %w", err)
	}

	m, ferr := s.readFile()
	if ferr != nil {
		return "", ferr
	}
	if token, ok := m[entryName(endpoint)]; ok {
		return token, nil
	}
	return "", ErrNotFound
}

// Delete removes the token for endpoint from both the keyring and the fallback.
func (s *TokenStore) Delete(endpoint string) error {
	kerr := keyring.Delete(s.service, entryName(endpoint))
	if kerr != nil && (errors.Is(kerr, keyring.ErrNotFound) || unavailable(kerr)) {
		kerr = nil
	}
	var ferr error
	if s.fallbackPath != "" {
		ferr = s.updateFile(func(m map[string]string) { delete(m, entryName(endpoint)) })
	}
	if kerr != nil {
		return fmt.Errorf("secrets: keyring delete: %w", kerr)
	}
	return ferr
}

// Resolve returns explicit if set, else the stored token. A missing token is not
// an error: the authority is then called unauthenticated.
func (s *TokenStore) Resolve(endpoint, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	token, err := s.Get(endpoint)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return token, err
}

func unavailable(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "secret service") ||
		strings.Contains(msg, "dbus") ||
		strings.Contains(msg, "no keychain") ||
		strings.Contains(msg, "keyring backend not available")
}

func (s *TokenStore) readFile() (map[string]string, error) {
	if s.fallbackPath == "" {
		return map[string]string{}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readFileLocked()
}

func (s *TokenStore) readFileLocked() (map[string]string, error) {
	out := map[string]string{}
	raw, err := os.ReadFile(s.fallbackPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("secrets: read fallback: %w", err)
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("secrets: decode fallback: %w", err)
	}
	return out, nil
}

func (s *TokenStore) updateFile(mutate func(map[string]string)) error {
	if s.fallbackPath == "" {
		return fmt.Errorf("secrets: keyring unavailable and no fallback path configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readFileLocked()
	if err != nil {
		return err
	}
	mutate(m)
	if err := os.MkdirAll(filepath.Dir(s.fallbackPath), 0o700); err != nil {
		return fmt.Errorf("secrets: mkdir fallback dir: %w", err)
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("secrets: encode fallback: %w", err)
	}
	if err := os.WriteFile(s.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("secrets: write fallback: %w", err)
	}
	return nil
}
