package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tollgate-labs/tollgate/server/internal/config"
	dbpkg "github.com/tollgate-labs/tollgate/server/internal/db"
	"github.com/tollgate-labs/tollgate/server/internal/grpcapi"
	"github.com/tollgate-labs/tollgate/server/internal/httpapi"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/service"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC APIs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg config.Config) error {
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if cfg.IsDev() && cfg.SeedFile != "" {
		seed, err := dbpkg.LoadSeedFile(cfg.SeedFile)
		if err != nil {
			return err
		}
		if _, err := dbpkg.SeedDev(ctx, a.svc, seed, logger); err != nil {
			return err
		}
	}

	pruner := service.NewDecisionPruner(a.events, service.PrunerConfig{
		RetentionDays: cfg.DecisionRetentionDays,
		IntervalHours: cfg.PruneIntervalHours,
	}, logger)
	pruner.Start(ctx)
	defer pruner.Stop()

	// The caller header is a dev convenience; prod callers need a token.
	allowHeader := cfg.IsDev()
	if !allowHeader && cfg.JWTSecret == "" {
		logger.Warn("no JWT secret configured; every mutating request will be rejected")
	}

	httpSrv := httpapi.NewServer(httpapi.Dependencies{
		Logger:            logger,
		Addr:              cfg.HTTPAddr,
		Service:           a.svc,
		JWTSecret:         cfg.JWTSecret,
		AllowCallerHeader: allowHeader,
		RateLimit:         cfg.RateLimitRPS,
		RateBurst:         cfg.RateLimitBurst,
	})
	grpcSrv := grpcapi.NewServer(grpcapi.Dependencies{
		Logger:            logger,
		Service:           a.svc,
		JWTSecret:         cfg.JWTSecret,
		AllowCallerHeader: allowHeader,
	})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.GRPCAddr, err)
	}

	errc := make(chan error, 2)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr, "env", cfg.Env)
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		logger.Info("grpc listening", "addr", lis.Addr().String())
		if err := grpcSrv.Serve(ctx, lis); err != nil {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errc:
		logger.Error("server error", "err", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if serr := httpSrv.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("http shutdown", "err", serr)
	}
	grpcSrv.Stop()
	logger.Info("stopped")
	return err
}
