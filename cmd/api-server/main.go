package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/clinic-functions/internal/api"
	"github.com/hackgods/clinic-functions/internal/app"
	"github.com/hackgods/clinic-functions/internal/config"
	"github.com/hackgods/clinic-functions/internal/logging"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("prod", "info")
		boot.Fatal().Err(err).Msg("config load error")
	}

	log := logging.Component(logging.New(cfg.Env, cfg.LogLevel), "api-server")
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(rootCtx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	v, err := a.Tokens.Validator()
	if err != nil {
		log.Fatal().Err(err).Msg("token validator")
	}

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.RouterConfig{
			Callables:     a.Functions.Callables(),
			HTTPFunctions: a.Functions.HTTPFunctions(),
			Store:         a.Store,
			Validator:     v,
			Postgres:      a.Pool,
			Redis:         api.RedisPinger(a.Redis),
			Log:           log,
			Timeout:       cfg.HandlerTimeout,
			Env:           cfg.Env,
			Version:       version,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
