// Package auth acquires OAuth2 client-credentials tokens for the catalog API
// and reuses them until shortly before they expire.
package auth

import (
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/catalog-proxy/pkg/logging"
)

var (
	// ErrTokenUnavailable is returned when no token could be obtained.
	ErrTokenUnavailable = errors.New("token unavailable")

	// ErrInvalidToken indicates a stored or received token could not be decoded.
	ErrInvalidToken = errors.New("invalid token")
)

var tokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "catalog_token_refreshes_total",
	Help: "Total OAuth2 token requests by result",
}, []string{"result"})

const (
	// DefaultExpiresIn is assumed when the token response has no expires_in.
	DefaultExpiresIn = 5 * time.Minute

	// DefaultRefreshMargin is how long before expiry a token is replaced.
	DefaultRefreshMargin = 30 * time.Second
)

// Config holds the client-credentials settings.
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string

	// Scope is sent when non-empty.
	Scope string

	// RefreshMargin defaults to DefaultRefreshMargin.
	RefreshMargin time.Duration
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// TokenSource hands out bearer tokens, fetching a new one only when the
// stored token is missing or about to expire.
type TokenSource struct {
	cfg        Config
	store      Store
	httpClient *http.Client
	logger     zerolog.Logger
	now        func() time.Time

	// mu serialises check-and-refresh so concurrent callers trigger at most
	// one token request.
	mu sync.Mutex
}

// NewTokenSource creates a token source. A nil store keeps tokens in memory;
// a nil httpClient uses a client with a 10 second timeout.
func NewTokenSource(cfg Config, store Store, httpClient *http.Client) (*TokenSource, error) {
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("token url is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client id and secret are required")
	}
	if cfg.RefreshMargin <= 0 {
		cfg.RefreshMargin = DefaultRefreshMargin
	}
	if store == nil {
		store = NewMemoryStore()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &TokenSource{
		cfg:        cfg,
		store:      store,
		httpClient: httpClient,
		logger:     logging.NewLogger("auth"),
		now:        time.Now,
	}, nil
}

// FetchToken returns a usable access token.
func (s *TokenSource) FetchToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok, err := s.store.Load(ctx)
	if err != nil {
		// Store errors are not fatal; request a fresh token instead.
		s.logger.Warn().Err(err).Msg("Token store load failed")
	}
	if ok && tok.ValidAt(s.now(), s.cfg.RefreshMargin) {
		s.logger.Debug().Time("expires_at", tok.ExpiresAt).Msg("Reusing stored token")
		return tok.AccessToken, nil
	}

	tok, err = s.requestToken(ctx)
	if err != nil {
		tokenRefreshes.WithLabelValues("failure").Inc()
		s.logger.Error().Err(err).Str("token_url", s.cfg.TokenURL).Msg("Token request failed")
		return "", fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	tokenRefreshes.WithLabelValues("success").Inc()

	if err := s.store.Save(ctx, tok); err != nil {
		s.logger.Warn().Err(err).Msg("Token store save failed")
	}

	s.logger.Info().Time("expires_at", tok.ExpiresAt).Msg("Token refreshed")
	return tok.AccessToken, nil
}

// Invalidate drops the stored token so the next FetchToken requests a new one.
func (s *TokenSource) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Clear(ctx)
}

// requestToken performs the client-credentials grant.
func (s *TokenSource) requestToken(ctx context.Context) (Token, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {s.cfg.ClientID},
		"client_secret": {s.cfg.ClientSecret},
	}
	if s.cfg.Scope != "" {
		form.Set("scope", s.cfg.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Token{}, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Token{}, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return Token{}, fmt.Errorf("%w: decode token response: %v", ErrInvalidToken, err)
	}
	if tr.AccessToken == "" {
		return Token{}, fmt.Errorf("%w: empty access_token", ErrInvalidToken)
	}

	expiresIn := time.Duration(tr.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = DefaultExpiresIn
	}

	return Token{
		AccessToken: tr.AccessToken,
		ExpiresAt:   s.now().Add(expiresIn),
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
