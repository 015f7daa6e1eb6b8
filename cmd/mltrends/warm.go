package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/guarzo/mltrends/internal/model"
	"github.com/guarzo/mltrends/internal/warmer"
)

func newWarmCmd() *cobra.Command {
	var pages int

	cmd := &cobra.Command{
		Use:   "warm [site...]",
		Short: "Recompute and cache enriched trends for sites (default WARM_SITES)",
		RunE: func(cmd *cobra.Command, args []string) error {
			sites := cfg.WarmSites
			if len(args) > 0 {
				sites = nil
				for _, arg := range args {
					s, err := model.LookupSite(arg)
					if err != nil {
						return err
					}
					sites = append(sites, s.Code)
				}
			}
			if len(sites) == 0 {
				return fmt.Errorf("no sites given and WARM_SITES is empty")
			}

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			w := warmer.New(warmer.Options{Sites: sites, Pages: pages, Batch: cfg.Batch("")},
				a.trends, a.searcher, a.enriched, logger, a.enriched, a.trends)
			results, err := w.WarmAll(cmd.Context())
			for _, r := range results {
				fmt.Fprintf(os.Stdout, "%s\t%d items\t%d failed\t%s\n", r.Site, r.Items, r.Failed, r.Duration.Round(time.Millisecond))
			}
			return err
		},
	}
	cmd.Flags().IntVar(&pages, "pages", 1, "pages of trends to enrich per site")
	return cmd
}
