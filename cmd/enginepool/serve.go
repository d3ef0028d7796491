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
	"github.com/spf13/viper"

	"github.com/freeeve/enginepool/internal/analysis"
	"github.com/freeeve/enginepool/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the pool over HTTP",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("addr", ":8009", "listen address")
	_ = viper.BindPFlag("serve.addr", f.Lookup("addr"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := readConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := newPool(cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Dispose()

	go func() {
		if err := pool.WarmUp(ctx); err != nil {
			if errors.Is(err, analysis.ErrUnavailable) {
				logger.Warn().Err(err).Msg("serving without an engine")
				return
			}
			logger.Error().Err(err).Msg("warm up")
		}
	}()

	srv := &http.Server{
		Addr: viper.GetString("serve.addr"),
		Handler: httpapi.NewRouter(logger.With().Str("component", "http").Logger(), pool, httpapi.Defaults{
			EvalDepth:     cfg.Depth.Eval,
			EaseDepth:     cfg.Depth.Ease,
			DiscoverDepth: cfg.Depth.Discover,
			DiscoverTop:   cfg.Depth.Top,
		}),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // discovery holds the request open
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool.Cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown error")
	}
	logger.Info().Msg("shutdown complete")
	return nil
}
