package api

import (
	"net/http"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-functions/internal/docstore"
	"github.com/hackgods/clinic-functions/internal/functions"
)

type RouterConfig struct {
	Callables     map[string]functions.Callable
	HTTPFunctions map[string]functions.HTTPFunc
	Store         *docstore.Client
	Validator     *validator.Validator
	Postgres      Pinger
	Redis         Pinger
	Log           zerolog.Logger
	Timeout       time.Duration // per callable/HTTP function invocation
	Env           string
	Version       string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.With(Authenticate(cfg.Validator, cfg.Log, callableAuthError)).
		Post("/callable/{name}", callableHandler(cfg.Callables, cfg.Timeout, cfg.Log))

	r.Post("/http/{name}", httpFunctionHandler(cfg.HTTPFunctions, cfg.Timeout, cfg.Log))

	docs := &documentHandler{store: cfg.Store, now: time.Now}
	r.Route("/v1/documents/{collection}", func(r chi.Router) {
		r.Use(Authenticate(cfg.Validator, cfg.Log, documentAuthError))
		r.Post("/", docs.create)
		r.Get("/{id}", docs.get)
		r.Put("/{id}", docs.replace)
		r.Patch("/{id}", docs.update)
		r.Delete("/{id}", docs.delete)
	})

	return r
}
