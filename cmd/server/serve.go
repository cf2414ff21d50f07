package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"kol-scoreboard/internal/api"
	"kol-scoreboard/internal/broadcast"
	"kol-scoreboard/internal/config"
	"kol-scoreboard/internal/observability"
	"kol-scoreboard/internal/orchestrator"
	"kol-scoreboard/internal/ratelimit"
	"kol-scoreboard/internal/render"
)

func rootCmd() *cobra.Command {
	v := config.NewViper()
	var configFile string

	cmd := &cobra.Command{
		Use:   "kolscore-server",
		Short: "serve KOL wallet stats, votes and the live vote stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := config.Load(v, configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := observability.NewLogger(observability.LogOptions{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
			})
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "config file (default ./config.yaml or ./config/config.yaml)")
	flags.String("addr", ":8080", "HTTP listen address")
	flags.String("votes-backend", config.BackendMemory, "vote store backend (memory, postgres, mongo)")
	flags.String("renderer", config.RendererChrome, "page renderer (chrome, http)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.String("postgres-dsn", "", "PostgreSQL connection string")
	flags.String("mongo-uri", "", "MongoDB connection string (replica set)")
	flags.String("clickhouse-dsn", "", "ClickHouse DSN, enables the scrape audit log")
	flags.String("redis-url", "", "Redis URL, moves the scrape cache to Redis")

	for key, flag := range map[string]string{
		"server.addr":     "addr",
		"votes.backend":   "votes-backend",
		"scrape.renderer": "renderer",
		"log.level":       "log-level",
		"log.format":      "log-format",
		"postgres.dsn":    "postgres-dsn",
		"mongo.uri":       "mongo-uri",
		"clickhouse.dsn":  "clickhouse-dsn",
		"redis.url":       "redis-url",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	deps, cleanup, err := openDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	orch := orchestrator.New(orchestrator.Options{
		Renderer: render.NewFromConfig(cfg.Scrape, logger),
		Budget:   cfg.Scrape.Budget,
		Logger:   logger,
	})

	hub := broadcast.NewHub(cfg.Stream.SubscriberBuffer, logger)
	defer hub.Close()
	bridge := broadcast.NewBridge(deps.votes, deps.votes, hub, nil, logger)

	limits := api.Limits{
		VoteLimit:  cfg.RateLimit.VoteLimit,
		VoteWindow: cfg.RateLimit.VoteWindow,
		ReadLimit:  cfg.RateLimit.ReadLimit,
		ReadWindow: cfg.RateLimit.ReadWindow,
	}
	srv := api.New(api.Options{
		Scraper:            orch,
		Votes:              deps.votes,
		Hub:                hub,
		Cache:              deps.cache,
		CacheTTL:           cfg.Scrape.CacheTTL,
		Runs:               deps.runs,
		Comments:           deps.comments,
		Notes:              deps.notes,
		Limiter:            ratelimit.New(cfg.RateLimit.MaxKeys),
		Limits:             &limits,
		TrustProxy:         cfg.RateLimit.TrustProxy,
		RequireWalletVoter: cfg.Votes.RequireWalletVoter,
		RecentDefault:      cfg.Votes.RecentDefault,
		RecentMax:          cfg.Votes.RecentMax,
		CORSOrigin:         cfg.Server.CORSOrigin,
		Heartbeat:          cfg.Stream.Heartbeat,
		Backend:            cfg.Votes.Backend,
		Logger:             logger,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bridge.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("starting server",
			"addr", cfg.Server.Addr,
			"votes_backend", cfg.Votes.Backend,
			"renderer", cfg.Scrape.Renderer,
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("gracefully shutting down")

		// Streams only end when their subscription does.
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
