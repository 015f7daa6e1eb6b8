package warmer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/guarzo/mltrends/internal/enrich"
	"github.com/guarzo/mltrends/internal/search"
	"github.com/guarzo/mltrends/internal/trends"
)

// Invalidator drops a cached value for a site. Both the enrichment cache
// and the cached trends source implement it.
type Invalidator interface {
	Invalidate(ctx context.Context, site string) error
}

// Options configure a Warmer.
type Options struct {
	Sites []string
	// Schedule is a standard cron expression or descriptor such as "@hourly".
	Schedule string
	// Pages is how many pages of each site's trend list to enrich. Default 1.
	Pages int
	Batch enrich.Options
}

// Warmer precomputes enriched trend lists so dashboard sessions are served
// from cache.
type Warmer struct {
	opts       Options
	source     trends.Source
	searcher   search.Searcher
	cache      enrich.EnrichmentCache
	invalidate []Invalidator
	logger     *slog.Logger
	cron       *cron.Cron
}

// New creates a warmer. invalidators run before each warm so the session
// recomputes instead of reading the entry it is about to replace.
func New(opts Options, source trends.Source, searcher search.Searcher, cache enrich.EnrichmentCache, logger *slog.Logger, invalidators ...Invalidator) *Warmer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Pages <= 0 {
		opts.Pages = 1
	}
	return &Warmer{
		opts:       opts,
		source:     source,
		searcher:   searcher,
		cache:      cache,
		invalidate: invalidators,
		logger:     logger.With("component", "warmer"),
	}
}

// Result summarizes one warmed site.
type Result struct {
	Site     string
	Items    int
	Failed   int
	Duration time.Duration
}

// Warm invalidates and recomputes the enriched list for site.
func (w *Warmer) Warm(ctx context.Context, site string) (Result, error) {
	start := time.Now()
	for _, inv := range w.invalidate {
		if err := inv.Invalidate(ctx, site); err != nil {
			w.logger.Warn("cache invalidation failed", "site", site, "error", err)
		}
	}

	opts := w.opts.Batch
	opts.Site = site
	sess := enrich.NewSession(opts, w.source, w.searcher, w.cache, w.logger)
	defer sess.Close()

	if err := sess.Load(ctx); err != nil {
		return Result{Site: site}, fmt.Errorf("warm %s: %w", site, err)
	}
	for page := 1; page < w.opts.Pages && sess.Snapshot().HasMore; page++ {
		if err := sess.LoadMore(ctx); err != nil {
			return Result{Site: site}, fmt.Errorf("warm %s page %d: %w", site, page+1, err)
		}
	}

	snap := sess.Snapshot()
	return Result{
		Site:     site,
		Items:    len(snap.Items),
		Failed:   snap.Requests.FailedRequests,
		Duration: time.Since(start),
	}, nil
}

// WarmAll warms every configured site in turn. A failing site does not
// stop the others; their errors are joined.
func (w *Warmer) WarmAll(ctx context.Context) ([]Result, error) {
	var (
		results []Result
		errs    []error
	)
	for _, site := range w.opts.Sites {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := w.Warm(ctx, site)
		if err != nil {
			w.logger.Error("warm failed", "site", site, "error", err)
			errs = append(errs, err)
			continue
		}
		w.logger.Info("warmed enriched trends", "site", site, "items", res.Items, "failed", res.Failed, "duration", res.Duration)
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// WarmIfNeeded warms only the sites with no cached enriched list.
func (w *Warmer) WarmIfNeeded(ctx context.Context) error {
	var errs []error
	for _, site := range w.opts.Sites {
		if w.cache != nil {
			items, err := w.cache.Get(ctx, site)
			if err == nil && items != nil {
				w.logger.Debug("enriched cache is fresh, skipping", "site", site)
				continue
			}
		}
		if _, err := w.Warm(ctx, site); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Start schedules WarmAll on the configured cron expression. Runs that
// would overlap a still running warm are skipped. The schedule stops when
// ctx is done.
func (w *Warmer) Start(ctx context.Context) error {
	if w.opts.Schedule == "" {
		return errors.New("warm schedule is empty")
	}
	logger := cronLogger{w.logger}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))

	if _, err := c.AddFunc(w.opts.Schedule, func() {
		if _, err := w.WarmAll(ctx); err != nil {
			w.logger.Warn("scheduled warm finished with errors", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("parse warm schedule %q: %w", w.opts.Schedule, err)
	}

	w.cron = c
	c.Start()
	w.logger.Info("cache warmer scheduled", "schedule", w.opts.Schedule, "sites", w.opts.Sites)

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}

// Next returns the next scheduled run, or the zero time when not started.
func (w *Warmer) Next() time.Time {
	if w.cron == nil {
		return time.Time{}
	}
	entries := w.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
