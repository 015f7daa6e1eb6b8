package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/guarzo/mltrends/internal/server"
	"github.com/guarzo/mltrends/internal/warmer"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	gin.SetMode(cfg.GinMode)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	batch := cfg.Batch("")
	api := server.New(server.Deps{
		Trends:         a.trends,
		Searcher:       a.searcher,
		Enriched:       a.enriched,
		Tokens:         a.tokens,
		Batch:          batch,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})
	defer api.Close()

	if cfg.WarmSchedule != "" && len(cfg.WarmSites) > 0 {
		w := warmer.New(warmer.Options{Sites: cfg.WarmSites, Schedule: cfg.WarmSchedule, Batch: batch},
			a.trends, a.searcher, a.enriched, logger, a.enriched, a.trends)
		if err := w.Start(ctx); err != nil {
			return err
		}
		go func() {
			if err := w.WarmIfNeeded(ctx); err != nil {
				logger.Warn("initial cache warm finished with errors", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Info("server listening", "addr", srv.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server exited")
	return nil
}
