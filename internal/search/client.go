package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/guarzo/mltrends/internal/httpx"
	"github.com/guarzo/mltrends/internal/keywords"
	"github.com/guarzo/mltrends/internal/metrics"
	"github.com/guarzo/mltrends/internal/model"
)

const (
	DefaultBaseURL = "https://api.mercadolibre.com"
	DefaultLimit   = 3

	// blockedBodyLimit caps how much of a 403 page we read for diagnostics.
	blockedBodyLimit = 64 << 10
)

// Searcher runs a keyword search against the marketplace for one site.
type Searcher interface {
	Search(ctx context.Context, site, keyword string, limit int) (*model.SearchResponse, error)
}

// StatusError is returned when the last keyword variant fails with a non-2xx
// status that is not a rate limit or an edge block.
type StatusError struct {
	StatusCode int
	Query      string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("search %q: unexpected status %d", e.Query, e.StatusCode)
}

// Config holds the direct search client settings.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64 // 0 disables client-side rate limiting
	Burst             int
}

// Client queries the public search endpoint, falling back through keyword
// variants until one returns results.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

var _ Searcher = (*Client)(nil)

// NewClient creates a search client. A nil httpClient gets a client with
// cfg.Timeout; a nil logger uses slog.Default().
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger.With("component", "search"),
	}
}

// attempt is the outcome of searching one keyword variant.
type attempt struct {
	resp    *model.SearchResponse
	outcome string
	err     error
}

// Search tries each keyword variant in order and returns the first response
// with a positive total. When every variant is exhausted without results it
// returns an empty response; only a failure on the last variant is an error.
func (c *Client) Search(ctx context.Context, site, keyword string, limit int) (*model.SearchResponse, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	variants := keywords.Variants(keyword)
	for i, variant := range variants {
		last := i == len(variants)-1

		a := c.searchVariant(ctx, site, variant, limit)
		switch a.outcome {
		case metrics.OutcomeHit:
			return a.resp, nil
		case metrics.OutcomeEmpty, metrics.OutcomeRateLimited, metrics.OutcomeBlocked:
			continue
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if last {
			return nil, a.err
		}
		c.logger.Debug("search variant failed, trying next",
			"site", site, "variant", variant, "error", a.err)
	}

	return model.EmptySearchResponse(keyword, limit), nil
}

func (c *Client) searchVariant(ctx context.Context, site, variant string, limit int) attempt {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return attempt{outcome: metrics.OutcomeTransport, err: fmt.Errorf("rate limiter: %w", err)}
		}
	}

	start := time.Now()
	a := c.do(ctx, site, variant, limit)
	metrics.RecordSearch(site, a.outcome, time.Since(start))
	return a
}

func (c *Client) do(ctx context.Context, site, variant string, limit int) attempt {
	params := url.Values{}
	params.Set("q", variant)
	params.Set("limit", strconv.Itoa(limit))
	endpoint := fmt.Sprintf("%s/sites/%s/search?%s", c.baseURL, url.PathEscape(site), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return attempt{outcome: metrics.OutcomeTransport, err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", httpx.AcceptEncoding)
	req.Header.Set("User-Agent", httpx.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return attempt{outcome: metrics.OutcomeTransport, err: fmt.Errorf("search request failed: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.Warn("search rate limited, skipping variant", "site", site, "variant", variant)
		return attempt{outcome: metrics.OutcomeRateLimited}
	case resp.StatusCode == http.StatusForbidden:
		c.logBlocked(resp, site, variant)
		return attempt{outcome: metrics.OutcomeBlocked}
	case resp.StatusCode/100 != 2:
		return attempt{
			outcome: metrics.OutcomeHTTPError,
			err:     &StatusError{StatusCode: resp.StatusCode, Query: variant},
		}
	}

	body, err := httpx.BodyReader(resp)
	if err != nil {
		return attempt{outcome: metrics.OutcomeTransport, err: err}
	}
	defer body.Close()

	var out model.SearchResponse
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		return attempt{outcome: metrics.OutcomeTransport, err: fmt.Errorf("parse search response: %w", err)}
	}
	if out.Results == nil {
		out.Results = []model.SearchProduct{}
	}

	if out.Paging.Total > 0 {
		return attempt{resp: &out, outcome: metrics.OutcomeHit}
	}
	return attempt{resp: &out, outcome: metrics.OutcomeEmpty}
}

// logBlocked records which edge layer refused the request. The details stay
// in the logs and are never returned to callers.
func (c *Client) logBlocked(resp *http.Response, site, variant string) {
	body, _ := httpx.ReadBody(resp, blockedBodyLimit)
	block := classifyBlock(resp.Header, body)
	c.logger.Warn("search blocked by edge layer, skipping variant",
		"site", site,
		"variant", variant,
		"vendor", block.Vendor,
		"request_id", block.RequestID,
		"server", block.Server,
	)
}
