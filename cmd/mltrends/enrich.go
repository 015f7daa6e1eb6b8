package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/guarzo/mltrends/internal/analysis"
	"github.com/guarzo/mltrends/internal/enrich"
	"github.com/guarzo/mltrends/internal/model"
	"github.com/guarzo/mltrends/internal/progress"
	"github.com/guarzo/mltrends/internal/report"
)

func newEnrichCmd() *cobra.Command {
	var (
		site    string
		limit   int
		pages   int
		csvPath string
		why     bool
		weights string
		noCache bool
		quiet   bool
	)

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Enrich a site's trending keywords and print them ranked by opportunity",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := model.LookupSite(site)
			if err != nil {
				return err
			}
			w, err := analysis.WeightsByName(weights)
			if err != nil {
				return err
			}

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := cfg.Batch(s.Code)
			opts.Weights = w
			if limit > 0 {
				opts.Limit = limit
			}

			var ec enrich.EnrichmentCache = a.enriched
			if noCache {
				ec = nil
			}
			sess := enrich.NewSession(opts, a.trends, a.searcher, ec, logger)
			defer sess.Close()

			ind := progress.NewIndicator("Enriching "+s.Code+" trends", os.Stderr, !quiet)
			unsubscribe := sess.Subscribe(ind.Observe())
			defer unsubscribe()

			ind.Start()
			if err := sess.Load(ctx); err != nil {
				ind.FinishWithError(err)
				return err
			}
			for page := 1; page < pages && sess.Snapshot().HasMore; page++ {
				if err := sess.LoadMore(ctx); err != nil {
					ind.FinishWithError(err)
					return err
				}
			}
			ind.Finish()

			snap := sess.Snapshot()
			if snap.FromCache {
				logger.Info("served from cache; pass --no-cache to recompute", "site", s.Code)
			}
			rows := analysis.ReportOpportunities(analysis.RankByOpportunity(snap.Items), opts.Weights, why)

			if csvPath != "" {
				if err := report.WriteFile(csvPath, rows); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "wrote %d trends to %s\n", len(snap.Items), csvPath)
				return nil
			}
			return report.WriteCSV(os.Stdout, rows)
		},
	}

	cmd.Flags().StringVar(&site, "site", "MLA", "marketplace site code")
	cmd.Flags().IntVar(&limit, "limit", 0, "trends per page (default PAGE_SIZE)")
	cmd.Flags().IntVar(&pages, "pages", 1, "number of pages to enrich")
	cmd.Flags().StringVar(&csvPath, "csv", "", "write results to this CSV file instead of stdout")
	cmd.Flags().BoolVar(&why, "why", false, "include the score breakdown")
	cmd.Flags().StringVar(&weights, "weights", analysis.BatchWeights.Name, "weight preset: batch or on_demand")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "ignore and do not write the enrichment cache")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "hide the progress bar")
	return cmd
}
