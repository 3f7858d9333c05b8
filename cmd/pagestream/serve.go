package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	transport "github.com/autom8ter/pagestream/transport/http"
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "serve the configured query over http",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *Config) error {
	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	registry := prometheus.NewRegistry()
	e, s, err := cfg.Open(logger, registry)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := e.Init(ctx, cfg.Query.Path, cfg.Query.SortField, cfg.QueryOpts()...); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/", transport.New(e, logger).Handler())
	server := &http.Server{
		Addr:              fmt.Sprintf(":%v", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	egp, ctx := errgroup.WithContext(ctx)
	egp.Go(func() error {
		logger.Info(ctx, "starting http server", map[string]interface{}{
			"addr": server.Addr,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	egp.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info(shutdownCtx, "shutting down http server", map[string]interface{}{})
		return server.Shutdown(shutdownCtx)
	})
	return egp.Wait()
}
