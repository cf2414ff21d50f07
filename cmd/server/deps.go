package main

import (
	"context"
	"fmt"
	"log/slog"

	"kol-scoreboard/internal/config"
	"kol-scoreboard/internal/storage"
	chstore "kol-scoreboard/internal/storage/clickhouse"
	"kol-scoreboard/internal/storage/memory"
	"kol-scoreboard/internal/storage/migrations"
	mongostore "kol-scoreboard/internal/storage/mongo"
	pgstore "kol-scoreboard/internal/storage/postgres"
	redisstore "kol-scoreboard/internal/storage/redis"
)

// voteBackend is a vote store that also publishes its committed mutations.
type voteBackend interface {
	storage.VoteStore
	storage.MutationSource
}

// dependencies holds the storage implementations selected by configuration.
type dependencies struct {
	votes    voteBackend
	comments storage.CommentStore
	notes    storage.NoteStore
	cache    storage.ScrapeCache
	runs     storage.ScrapeRunStore // in memory unless ClickHouse is configured
}

// openDependencies connects every configured backend. The returned cleanup
// releases them in reverse order.
func openDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &dependencies{}

	switch cfg.Votes.Backend {
	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fail(fmt.Errorf("connect to postgres: %w", err))
		}
		closers = append(closers, pool.Close)
		if cfg.Postgres.Migrate {
			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				return fail(err)
			}
		}
		deps.votes = pgstore.NewVoteStore(pool)
		deps.comments = pgstore.NewCommentStore(pool)
		deps.notes = pgstore.NewNoteStore(pool)

	case config.BackendMongo:
		client, err := mongostore.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			return fail(fmt.Errorf("connect to mongo: %w", err))
		}
		closers = append(closers, func() { _ = client.Disconnect(context.Background()) })
		db := client.Database(cfg.Mongo.Database)
		if err := mongostore.EnsureSchema(ctx, db, cfg.Mongo.Collection); err != nil {
			return fail(err)
		}
		if err := mongostore.EnsureCommunitySchema(ctx, db); err != nil {
			return fail(err)
		}
		deps.votes = mongostore.NewVoteStore(db.Collection(cfg.Mongo.Collection))
		deps.comments = mongostore.NewCommentStore(db.Collection(mongostore.CommentsCollection))
		deps.notes = mongostore.NewNoteStore(db.Collection(mongostore.NotesCollection))

	default:
		deps.votes = memory.NewVoteStore()
		deps.comments = memory.NewCommentStore()
		deps.notes = memory.NewNoteStore()
	}

	if cfg.Redis.URL != "" {
		client, err := redisstore.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			return fail(fmt.Errorf("connect to redis: %w", err))
		}
		closers = append(closers, func() { _ = client.Close() })
		deps.cache = redisstore.NewScrapeCache(client, cfg.Redis.KeyPrefix)
	} else {
		deps.cache = memory.NewScrapeCache(cfg.Scrape.CacheSize, cfg.Scrape.CacheTTL)
	}

	if cfg.ClickHouse.DSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouse.DSN)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = conn.Close() })
		deps.runs = chstore.NewScrapeRunStore(conn)
	} else {
		deps.runs = memory.NewScrapeRunStore()
	}

	logger.Info("storage ready",
		"votes_backend", cfg.Votes.Backend,
		"redis_cache", cfg.Redis.URL != "",
		"clickhouse_audit", cfg.ClickHouse.DSN != "",
	)
	return deps, cleanup, nil
}
