package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/bunbetsu/internal/metrics"
	"github.com/hyperjump/bunbetsu/internal/rag"
	"github.com/hyperjump/bunbetsu/internal/server"
	"github.com/hyperjump/bunbetsu/internal/watcher"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		host  string
		port  int
		watch bool
	)
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"server"},
		Short:   "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			m := metrics.New()
			svc, cfg, logger, err := a.openService(ctx, rag.WithMetrics(m))
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer svc.Close()

			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("watch") {
				cfg.Watch.Enabled = watch
			}

			if cfg.Watch.Enabled {
				w := watcher.New(svc.DataDir(), cfg.Watch.Extensions, svc,
					watcher.WithLogger(logger),
					watcher.WithDebounce(time.Duration(cfg.Watch.DebounceMS)*time.Millisecond),
				)
				if err := w.Start(ctx); err != nil {
					return err
				}
				defer w.Stop()
			}

			srv := server.NewServer(svc, cfg, logger, server.WithMetrics(m))
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				logger.Warn("server shutdown failed", zap.Error(err))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	cmd.Flags().BoolVar(&watch, "watch", false, "watch the data directory for changes")
	return cmd
}
