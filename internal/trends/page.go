package trends

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/guarzo/mltrends/internal/httpx"
	"github.com/guarzo/mltrends/internal/model"
)

// trendLinkSelectors are tried in order; the first one that yields links wins.
var trendLinkSelectors = []string{
	"a.ui-search-entry-keyword",
	"ol li a[href*='listado.']",
	"a[href*='listado.']",
}

// PageSource scrapes the public trends page of a site. It needs no
// credentials and is used when no OAuth client is configured.
type PageSource struct {
	httpClient *http.Client
	// hostOverride replaces the site's trends host, e.g. with a test server.
	hostOverride string
}

var _ Source = (*PageSource)(nil)

// NewPageSource creates a scraping source. hostOverride may be empty.
func NewPageSource(httpClient *http.Client, hostOverride string) *PageSource {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &PageSource{httpClient: httpClient, hostOverride: strings.TrimRight(hostOverride, "/")}
}

func (p *PageSource) Fetch(ctx context.Context, site string) ([]model.TrendItem, error) {
	cfg, err := model.LookupSite(site)
	if err != nil {
		return nil, err
	}

	pageURL := "https://" + cfg.TrendsHost + "/"
	if p.hostOverride != "" {
		pageURL = p.hostOverride + "/"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", httpx.UserAgent)
	req.Header.Set("Accept", "text/html")
	req.Header.Set("Accept-Encoding", httpx.AcceptEncoding)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching trends page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trends page returned status %d", resp.StatusCode)
	}

	body, err := httpx.BodyReader(resp)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parsing trends page: %w", err)
	}

	items := parseTrendLinks(doc, resp.Request.URL)
	if len(items) == 0 {
		return nil, ErrNoTrends
	}
	return model.WithTrendTypes(items), nil
}

func parseTrendLinks(doc *goquery.Document, base *url.URL) []model.TrendItem {
	for _, selector := range trendLinkSelectors {
		var items []model.TrendItem
		seen := make(map[string]bool)

		doc.Find(selector).Each(func(i int, s *goquery.Selection) {
			href, ok := s.Attr("href")
			if !ok {
				return
			}
			keyword := strings.Join(strings.Fields(s.Text()), " ")
			key := strings.ToLower(keyword)
			if keyword == "" || seen[key] {
				return
			}
			seen[key] = true

			if ref, err := url.Parse(href); err == nil && base != nil {
				href = base.ResolveReference(ref).String()
			}
			items = append(items, model.TrendItem{Keyword: keyword, URL: href})
		})

		if len(items) > 0 {
			return items
		}
	}
	return nil
}
