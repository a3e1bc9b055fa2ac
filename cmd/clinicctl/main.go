package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hackgods/clinic-functions/internal/app"
	"github.com/hackgods/clinic-functions/internal/cli"
	"github.com/hackgods/clinic-functions/internal/config"
	"github.com/hackgods/clinic-functions/internal/logging"
	redisclient "github.com/hackgods/clinic-functions/internal/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(open)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func open(ctx context.Context) (*cli.Deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logging.Component(logging.NewWithWriter(cfg.Env, cfg.LogLevel, os.Stderr), "clinicctl")

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return &cli.Deps{
		Store:     a.Store,
		Accounts:  a.Accounts,
		Functions: a.Functions,
		Locker:    redisclient.NewRedisJobLocker(a.Redis, cfg.LockTTL),
		Log:       log,
		Close:     a.Close,
	}, nil
}
