package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-functions/internal/docstore"
)

// Handler processes one event. Returned errors are logged, never retried.
type Handler func(ctx context.Context, e Event) error

type route struct {
	name    string
	handler Handler
}

type routeKey struct {
	collection string
	kind       docstore.ChangeKind
}

// Router maps events to the trigger handlers registered for them. Routes
// must all be registered before the first Dispatch.
type Router struct {
	docs    map[routeKey][]route
	auth    []route
	timeout time.Duration
	log     zerolog.Logger
}

func NewRouter(log zerolog.Logger, timeout time.Duration) *Router {
	return &Router{
		docs:    make(map[routeKey][]route),
		timeout: timeout,
		log:     log,
	}
}

func (r *Router) OnCreate(collection, name string, h Handler) {
	r.on(collection, docstore.KindCreate, name, h)
}

func (r *Router) OnUpdate(collection, name string, h Handler) {
	r.on(collection, docstore.KindUpdate, name, h)
}

func (r *Router) OnDelete(collection, name string, h Handler) {
	r.on(collection, docstore.KindDelete, name, h)
}

// OnAuthDelete registers a handler for deleted auth accounts.
func (r *Router) OnAuthDelete(name string, h Handler) {
	r.auth = append(r.auth, route{name: name, handler: h})
}

func (r *Router) on(collection string, kind docstore.ChangeKind, name string, h Handler) {
	key := routeKey{collection: collection, kind: kind}
	r.docs[key] = append(r.docs[key], route{name: name, handler: h})
}

// Routes returns the names of the handlers an event would run.
func (r *Router) Routes(e Event) []string {
	matched := r.match(e)
	names := make([]string, 0, len(matched))
	for _, rt := range matched {
		names = append(names, rt.name)
	}
	return names
}

// Dispatch runs every matching handler in registration order, each under its
// own timeout. A failing handler does not stop the others.
func (r *Router) Dispatch(ctx context.Context, e Event) {
	for _, rt := range r.match(e) {
		r.run(ctx, rt, e)
	}
}

func (r *Router) run(ctx context.Context, rt route, e Event) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	err := rt.handler(ctx, e)
	logEvt := r.log.Debug()
	if err != nil {
		logEvt = r.log.Error().Err(err)
	}
	logEvt.
		Str("trigger", rt.name).
		Str("event", e.String()).
		Dur("duration", time.Since(start)).
		Msg("trigger finished")
}

func (r *Router) match(e Event) []route {
	if e.Source == SourceAuth {
		if e.Kind != docstore.KindDelete {
			return nil
		}
		return r.auth
	}
	return r.docs[routeKey{collection: e.Collection, kind: e.Kind}]
}

// ChangeSink delivers store changes to the router synchronously, in the
// committing goroutine.
func (r *Router) ChangeSink() docstore.ChangeSink {
	return func(ctx context.Context, changes []docstore.Change) {
		for _, c := range changes {
			r.Dispatch(context.WithoutCancel(ctx), FromChange(c))
		}
	}
}

// AuthSink delivers auth deletions to the router synchronously.
func (r *Router) AuthSink() func(ctx context.Context, uid, email string) {
	return func(ctx context.Context, uid, email string) {
		r.Dispatch(context.WithoutCancel(ctx), AuthDeleted(uid, email, time.Now()))
	}
}
