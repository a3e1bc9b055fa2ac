package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/hackgods/clinic-functions/internal/app"
	"github.com/hackgods/clinic-functions/internal/config"
	"github.com/hackgods/clinic-functions/internal/logging"
	redisclient "github.com/hackgods/clinic-functions/internal/redis"
	"github.com/hackgods/clinic-functions/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("prod", "info")
		boot.Fatal().Err(err).Msg("config load error")
	}

	log := logging.Component(logging.New(cfg.Env, cfg.LogLevel), "timer-worker")
	log.Info().
		Str("env", cfg.Env).
		Dur("reminder_interval", cfg.ReminderInterval).
		Dur("sweep_interval", cfg.SweepInterval).
		Dur("scheduled_deletion_interval", cfg.ScheduledDeletionInterval).
		Msg("timer-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(rootCtx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	locker := redisclient.NewRedisJobLocker(a.Redis, cfg.LockTTL)
	sched := scheduler.New(locker, cfg.HandlerTimeout, logging.Component(log, "scheduler"))
	for _, job := range a.Functions.Jobs() {
		sched.Add(job)
	}

	if err := sched.Run(rootCtx); err != nil {
		log.Error().Err(err).Msg("scheduler stopped")
	}
	log.Info().Msg("shutdown signal received, stopping timer-worker")
}
