// Package app opens the shared dependencies of every binary: the document
// store on Postgres, the auth accounts, Redis and the change-event stream.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/hackgods/clinic-functions/internal/config"
	"github.com/hackgods/clinic-functions/internal/db"
	"github.com/hackgods/clinic-functions/internal/docstore"
	"github.com/hackgods/clinic-functions/internal/events"
	"github.com/hackgods/clinic-functions/internal/functions"
	"github.com/hackgods/clinic-functions/internal/identity"
	redisclient "github.com/hackgods/clinic-functions/internal/redis"
)

type App struct {
	Config    config.Config
	Log       zerolog.Logger
	Pool      *pgxpool.Pool
	Gorm      *gorm.DB
	Redis     *redis.Client
	Stream    *events.RedisStream
	Store     *docstore.Client
	Accounts  *identity.Service
	Tokens    *identity.Tokens
	Functions *functions.Functions
}

// Open connects everything. Committed writes and account deletions are
// published on the event stream for the trigger worker.
func Open(ctx context.Context, cfg config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
	defer cancelPg()

	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{
		AppName:          "clinic-functions",
		Consumers:        cfg.TriggerConsumers,
		MaxConns:         cfg.PostgresMaxConns,
		StatementTimeout: cfg.HandlerTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	a.Pool = pool
	log.Info().Msg("connected to Postgres")

	backend := docstore.NewPgBackend(pool)
	if err := backend.EnsureSchema(pgCtx); err != nil {
		a.Close()
		return nil, err
	}

	gdb, err := db.ConnectGorm(cfg.PostgresDSN, log.With().Str("component", "gorm").Logger())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("auth database: %w", err)
	}
	a.Gorm = gdb

	rdb, err := redisclient.Connect(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.TriggerConsumers)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	a.Redis = rdb
	log.Info().Msg("connected to Redis")

	a.Stream = events.NewRedisStream(rdb, cfg.EventStream, cfg.ConsumerGroup, log.With().Str("component", "events").Logger())
	a.Store = docstore.New(backend, a.Stream.ChangeSink())

	a.Accounts = identity.NewService(gdb, identity.WithDeleteSink(a.Stream.AuthSink()))
	if err := a.Accounts.Migrate(pgCtx); err != nil {
		a.Close()
		return nil, err
	}

	a.Tokens = identity.NewTokens(cfg.TokenSecret, cfg.Issuer, cfg.Audience, cfg.TokenTTL)
	a.Functions = functions.New(a.Store, a.Accounts, a.Tokens, functions.SettingsFromConfig(cfg), log)
	return a, nil
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Log.Error().Err(err).Msg("error closing redis")
		}
	}
	if a.Gorm != nil {
		if sqlDB, err := a.Gorm.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
