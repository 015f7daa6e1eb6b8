package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/guarzo/mltrends/internal/auth"
	"github.com/guarzo/mltrends/internal/cache"
	"github.com/guarzo/mltrends/internal/config"
	"github.com/guarzo/mltrends/internal/search"
	"github.com/guarzo/mltrends/internal/trends"
)

// app holds the components shared by every command.
type app struct {
	store    cache.Store
	tokens   *auth.CachedTokenSource
	trends   *trends.CachedSource
	searcher *search.Client
	enriched *cache.EnrichmentCache
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	store, err := cache.Open(ctx, cfg.Cache())
	if err != nil {
		return nil, fmt.Errorf("open %s cache: %w", cfg.CacheBackend, err)
	}
	logger.Info("cache ready", "backend", cfg.CacheBackend)

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	var (
		source trends.Source = trends.NewPageSource(httpClient, "")
		tokens *auth.CachedTokenSource
	)
	if cfg.Auth().Configured() {
		tokens = auth.NewCachedTokenSource(auth.NewTokenSource(cfg.Auth(), httpClient), store, logger)
		source = trends.Fallback{
			Primary:   trends.NewAPISource(cfg.APIBaseURL, httpClient, tokens),
			Secondary: source,
			Logger:    logger,
		}
	} else {
		logger.Info("no oauth credentials configured, reading trends from the public page")
	}

	return &app{
		store:    store,
		tokens:   tokens,
		trends:   trends.NewCachedSource(source, store, trends.DefaultTTL, logger),
		searcher: search.NewClient(cfg.Search(), httpClient, logger),
		enriched: cache.NewEnrichmentCache(store, cfg.CacheTTL),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
