package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/guarzo/mltrends/internal/cache"
)

const (
	DefaultTokenURL = "https://api.mercadolibre.com/oauth/token"

	// ExpiryBuffer is subtracted from a token's expiry before it is reused.
	ExpiryBuffer = 5 * time.Minute

	tokenKey = "oauth:token"
)

// ErrNotConfigured is returned when no client credentials are set.
var ErrNotConfigured = errors.New("oauth client credentials not configured")

// Config holds the client-credentials grant settings.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// Configured reports whether both client id and secret are set.
func (c Config) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// NewTokenSource returns a source that performs a fresh client-credentials
// exchange on every call. Wrap it in a CachedTokenSource.
func NewTokenSource(cfg Config, httpClient *http.Client) oauth2.TokenSource {
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	ctx := context.Background()
	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}
	return tokenSourceFunc(func() (*oauth2.Token, error) {
		return cc.Token(ctx)
	})
}

type tokenSourceFunc func() (*oauth2.Token, error)

func (f tokenSourceFunc) Token() (*oauth2.Token, error) { return f() }

// Status describes the current token without exposing it.
type Status struct {
	Configured bool      `json:"configured"`
	Valid      bool      `json:"valid"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
	Source     string    `json:"source,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// CachedTokenSource reuses a token until ExpiryBuffer before it expires,
// sharing it with other processes through a cache.Store.
type CachedTokenSource struct {
	base   oauth2.TokenSource
	store  cache.Store
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	token  *oauth2.Token
	source string
}

var _ oauth2.TokenSource = (*CachedTokenSource)(nil)

// NewCachedTokenSource wraps base. store may be nil for memory-only caching.
func NewCachedTokenSource(base oauth2.TokenSource, store cache.Store, logger *slog.Logger) *CachedTokenSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedTokenSource{
		base:   base,
		store:  store,
		logger: logger.With("component", "oauth"),
		now:    time.Now,
	}
}

func (c *CachedTokenSource) Token() (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.usable(c.token) {
		c.source = "memory"
		return c.token, nil
	}

	ctx := context.Background()
	if c.store != nil {
		var stored oauth2.Token
		ok, err := cache.GetJSON(ctx, c.store, tokenKey, &stored)
		if err != nil {
			c.logger.Warn("token cache read failed", "error", err)
		} else if ok && c.usable(&stored) {
			c.token, c.source = &stored, "cache"
			return c.token, nil
		}
	}

	token, err := c.base.Token()
	if err != nil {
		return nil, fmt.Errorf("client credentials exchange: %w", err)
	}
	c.token, c.source = token, "fresh"
	c.logger.Info("obtained new access token", "expires_at", token.Expiry)

	if c.store != nil {
		if ttl := token.Expiry.Sub(c.now()) - ExpiryBuffer; ttl > 0 {
			if err := cache.SetJSON(ctx, c.store, tokenKey, token, ttl); err != nil {
				c.logger.Warn("token cache write failed", "error", err)
			}
		}
	}
	return token, nil
}

// Status fetches a token if needed and reports on it.
func (c *CachedTokenSource) Status() Status {
	token, err := c.Token()
	if err != nil {
		return Status{Configured: true, Error: err.Error()}
	}

	c.mu.Lock()
	source := c.source
	c.mu.Unlock()

	return Status{
		Configured: true,
		Valid:      token.Valid(),
		ExpiresAt:  token.Expiry,
		Source:     source,
	}
}

func (c *CachedTokenSource) usable(t *oauth2.Token) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	if t.Expiry.IsZero() {
		return true
	}
	return c.now().Add(ExpiryBuffer).Before(t.Expiry)
}
