package trends

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/guarzo/mltrends/internal/httpx"
	"github.com/guarzo/mltrends/internal/model"
)

const DefaultAPIBaseURL = "https://api.mercadolibre.com"

// APISource reads trends from the authenticated marketplace API.
type APISource struct {
	baseURL    string
	httpClient *http.Client
	tokens     oauth2.TokenSource
}

var _ Source = (*APISource)(nil)

// NewAPISource creates a source that authenticates every request with a
// bearer token from tokens.
func NewAPISource(baseURL string, httpClient *http.Client, tokens oauth2.TokenSource) *APISource {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &APISource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		tokens:     tokens,
	}
}

type apiTrend struct {
	Keyword string `json:"keyword"`
	URL     string `json:"url"`
}

func (a *APISource) Fetch(ctx context.Context, site string) ([]model.TrendItem, error) {
	token, err := a.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("get access token: %w", err)
	}

	endpoint := fmt.Sprintf("%s/trends/%s", a.baseURL, url.PathEscape(site))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	token.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", httpx.AcceptEncoding)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trends request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trends api returned status %d", resp.StatusCode)
	}

	body, err := httpx.BodyReader(resp)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var raw []apiTrend
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse trends response: %w", err)
	}

	items := make([]model.TrendItem, 0, len(raw))
	for _, t := range raw {
		keyword := strings.TrimSpace(t.Keyword)
		if keyword == "" {
			continue
		}
		items = append(items, model.TrendItem{Keyword: keyword, URL: t.URL})
	}
	if len(items) == 0 {
		return nil, ErrNoTrends
	}
	return model.WithTrendTypes(items), nil
}
