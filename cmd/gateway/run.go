package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"security-gateway/internal/config"
	"security-gateway/internal/logger"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the gateway (reverse proxy with admission control)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway()
		},
	}
}

func runGateway() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	log.Info().Str("version", Version).Msg("gateway starting")

	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return fmt.Errorf("invalid UPSTREAM_URL: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	pipeline, audit, err := buildPipeline(cfg, store, log)
	if err != nil {
		return err
	}
	audit.Start()
	defer audit.Close()

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("proxy error")
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	h, err := buildHandler(cfg, pipeline, proxy, log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
	ops := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           opsHandler(store, time.Second),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().
		Str("listen", cfg.ListenAddr).
		Str("upstream", target.String()).
		Str("metrics", cfg.MetricsAddr).
		Str("store", cfg.StoreBackend).
		Str("algorithm", cfg.RateAlgorithm).
		Bool("block_on_attack", cfg.BlockOnAttack).
		Int("policies", len(pipeline.Policies.Keys())).
		Msg("gateway listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(srv) })
	g.Go(func() error { return serve(ops) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), ops.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("gateway stopped")
	return nil
}

func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server %s: %w", srv.Addr, err)
	}
	return nil
}
