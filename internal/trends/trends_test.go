package trends

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/guarzo/mltrends/internal/cache"
	"github.com/guarzo/mltrends/internal/model"
)

func TestAPISource_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/trends/MLA" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer APP_USR-123" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		var b strings.Builder
		b.WriteString("[")
		for i := 0; i < 35; i++ {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(`{"keyword":"kw` + string(rune('a'+i%26)) + `","url":"https://listado.mercadolibre.com.ar/kw"}`)
		}
		b.WriteString(`,{"keyword":"   ","url":"x"}]`)
		_, _ = w.Write([]byte(b.String()))
	}))
	defer srv.Close()

	tokens := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "APP_USR-123", TokenType: "bearer"})
	src := NewAPISource(srv.URL, srv.Client(), tokens)

	items, err := src.Fetch(context.Background(), "MLA")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 35 {
		t.Fatalf("expected 35 items (blank keyword dropped), got %d", len(items))
	}

	tests := []struct {
		index int
		want  model.TrendType
	}{
		{0, model.TrendFastestGrowing},
		{9, model.TrendFastestGrowing},
		{10, model.TrendMostWanted},
		{29, model.TrendMostWanted},
		{30, model.TrendMostPopular},
		{34, model.TrendMostPopular},
	}
	for _, tt := range tests {
		if items[tt.index].TrendType != tt.want {
			t.Errorf("item %d: expected %s, got %s", tt.index, tt.want, items[tt.index].TrendType)
		}
	}
}

func TestAPISource_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		token  oauth2.TokenSource
		want   string
	}{
		{"server error", http.StatusInternalServerError, "", oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "t"}), "status 500"},
		{"bad json", http.StatusOK, "{", oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "t"}), "parse trends response"},
		{"empty list", http.StatusOK, "[]", oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "t"}), ErrNoTrends.Error()},
		{"token failure", http.StatusOK, "[]", failingTokens{}, "get access token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewAPISource(srv.URL, srv.Client(), tt.token).Fetch(context.Background(), "MLB")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

type failingTokens struct{}

func (failingTokens) Token() (*oauth2.Token, error) { return nil, errors.New("invalid_client") }

const trendsPage = `<!DOCTYPE html>
<html><body>
<section>
  <ol>
    <li><a class="ui-search-entry-keyword" href="https://listado.mercadolibre.com.ar/zapatillas-nike">Zapatillas   Nike</a></li>
    <li><a class="ui-search-entry-keyword" href="/iphone-15">iPhone 15</a></li>
    <li><a class="ui-search-entry-keyword" href="https://listado.mercadolibre.com.ar/zapatillas-nike">zapatillas nike</a></li>
    <li><a class="ui-search-entry-keyword" href="https://listado.mercadolibre.com.ar/aire">Aire acondicionado</a></li>
  </ol>
  <a href="https://www.mercadolibre.com.ar/ayuda">Ayuda</a>
</section>
</body></html>`

func TestPageSource_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("expected a browser user agent")
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(trendsPage))
	}))
	defer srv.Close()

	items, err := NewPageSource(srv.Client(), srv.URL).Fetch(context.Background(), "mla")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if len(items) != 3 {
		t.Fatalf("expected 3 deduplicated trends, got %d: %+v", len(items), items)
	}
	if items[0].Keyword != "Zapatillas Nike" {
		t.Errorf("expected whitespace-normalized keyword, got %q", items[0].Keyword)
	}
	if items[1].URL != srv.URL+"/iphone-15" {
		t.Errorf("expected relative link resolved, got %q", items[1].URL)
	}
	if items[2].TrendType != model.TrendFastestGrowing {
		t.Errorf("expected trend type assigned, got %q", items[2].TrendType)
	}
}

func TestPageSource_FallbackSelector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><div><a href="https://listado.mercadolibre.com.mx/termo">Termo</a><a href="/help">Help</a></div></body></html>`))
	}))
	defer srv.Close()

	items, err := NewPageSource(srv.Client(), srv.URL).Fetch(context.Background(), "MLM")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 1 || items[0].Keyword != "Termo" {
		t.Errorf("unexpected items %+v", items)
	}
}

func TestPageSource_Errors(t *testing.T) {
	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>nothing</body></html>`))
	}))
	defer empty.Close()

	if _, err := NewPageSource(empty.Client(), empty.URL).Fetch(context.Background(), "MLA"); !errors.Is(err, ErrNoTrends) {
		t.Errorf("expected ErrNoTrends, got %v", err)
	}
	if _, err := NewPageSource(empty.Client(), empty.URL).Fetch(context.Background(), "XXX"); !errors.Is(err, model.ErrUnknownSite) {
		t.Errorf("expected ErrUnknownSite, got %v", err)
	}
}

type countingSource struct {
	items []model.TrendItem
	err   error
	calls atomic.Int32
}

func (c *countingSource) Fetch(ctx context.Context, site string) ([]model.TrendItem, error) {
	c.calls.Add(1)
	return c.items, c.err
}

func TestCachedSource(t *testing.T) {
	ctx := context.Background()
	next := &countingSource{items: model.WithTrendTypes([]model.TrendItem{{Keyword: "a"}, {Keyword: "b"}})}
	src := NewCachedSource(next, cache.NewMemoryStore(10), time.Minute, nil)

	for i := 0; i < 3; i++ {
		items, err := src.Fetch(ctx, "MLA")
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if len(items) != 2 || items[0].TrendType != model.TrendFastestGrowing {
			t.Fatalf("unexpected items %+v", items)
		}
	}
	if next.calls.Load() != 1 {
		t.Errorf("expected one upstream fetch, got %d", next.calls.Load())
	}

	if err := src.Invalidate(ctx, "MLA"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := src.Fetch(ctx, "MLA"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if next.calls.Load() != 2 {
		t.Errorf("expected refetch after invalidate, got %d", next.calls.Load())
	}
}

func TestCachedSource_UpstreamErrorNotCached(t *testing.T) {
	next := &countingSource{err: errors.New("boom")}
	src := NewCachedSource(next, cache.NewMemoryStore(10), time.Minute, nil)

	for i := 0; i < 2; i++ {
		if _, err := src.Fetch(context.Background(), "MLA"); err == nil {
			t.Fatal("expected error")
		}
	}
	if next.calls.Load() != 2 {
		t.Errorf("errors must not be cached, got %d calls", next.calls.Load())
	}
}

func TestFallback(t *testing.T) {
	primary := &countingSource{err: errors.New("401 unauthorized")}
	secondary := &countingSource{items: []model.TrendItem{{Keyword: "x"}}}

	items, err := Fallback{Primary: primary, Secondary: secondary}.Fetch(context.Background(), "MLA")
	if err != nil || len(items) != 1 {
		t.Fatalf("expected fallback items, got %v %v", items, err)
	}

	secondary.err = errors.New("scrape failed")
	secondary.items = nil
	_, err = Fallback{Primary: primary, Secondary: secondary}.Fetch(context.Background(), "MLA")
	if err == nil || !strings.Contains(err.Error(), "401") || !strings.Contains(err.Error(), "scrape failed") {
		t.Errorf("expected joined error, got %v", err)
	}
}
