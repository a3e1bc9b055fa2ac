package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-functions/internal/app"
	"github.com/hackgods/clinic-functions/internal/config"
	"github.com/hackgods/clinic-functions/internal/events"
	"github.com/hackgods/clinic-functions/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("prod", "info")
		boot.Fatal().Err(err).Msg("config load error")
	}

	log := logging.Component(logging.New(cfg.Env, cfg.LogLevel), "trigger-worker")
	log.Info().
		Str("env", cfg.Env).
		Str("stream", cfg.EventStream).
		Str("group", cfg.ConsumerGroup).
		Int("consumers", cfg.TriggerConsumers).
		Msg("trigger-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(rootCtx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	router := events.NewRouter(logging.Component(log, "triggers"), cfg.HandlerTimeout)
	a.Functions.RegisterTriggers(router)

	if err := a.Stream.EnsureGroup(rootCtx); err != nil {
		log.Fatal().Err(err).Msg("create consumer group")
	}

	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}

	consumers := max(cfg.TriggerConsumers, 1)
	g, gctx := errgroup.WithContext(rootCtx)
	for i := range consumers {
		name := fmt.Sprintf("%s-%d", host, i)
		g.Go(func() error {
			log.Info().Str("consumer", name).Msg("consumer started")
			return a.Stream.Consume(gctx, name, router.Dispatch)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("consumer stopped")
	}
	log.Info().Msg("shutting down trigger-worker")
}
