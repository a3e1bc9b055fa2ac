package functions

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"

	"github.com/hackgods/clinic-functions/internal/db"
	"github.com/hackgods/clinic-functions/internal/docstore"
	"github.com/hackgods/clinic-functions/internal/events"
	"github.com/hackgods/clinic-functions/internal/identity"
)

var testNow = time.Date(2025, 10, 20, 12, 50, 0, 0, time.UTC)

type harness struct {
	f        *Functions
	store    *docstore.Client
	backend  *docstore.MemoryBackend
	accounts *identity.Service
	tokens   *identity.Tokens
}

// newHarness wires the functions to an in-memory store. With triggers set,
// every committed write is dispatched synchronously, the way the trigger
// worker would.
func newHarness(t *testing.T, triggers bool) *harness {
	t.Helper()

	gdb, err := db.OpenGorm(sqlite.Open(":memory:"), zerolog.Nop())
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	router := events.NewRouter(zerolog.Nop(), time.Second)

	backend := docstore.NewMemoryBackend()
	store := docstore.New(backend, nil)
	var accountOpts []identity.Option
	accountOpts = append(accountOpts, identity.WithHashCost(bcrypt.MinCost))
	if triggers {
		accountOpts = append(accountOpts, identity.WithDeleteSink(router.AuthSink()))
	}
	accounts := identity.NewService(gdb, accountOpts...)
	require.NoError(t, accounts.Migrate(context.Background()))

	tokens := identity.NewTokens("test-secret", "https://auth.test/", "clinic-test", time.Hour)

	f := New(store, accounts, tokens, Settings{
		ReminderInterval:          15 * time.Minute,
		ReminderLead:              time.Hour,
		SweepInterval:             5 * time.Minute,
		ScheduledDeletionInterval: time.Minute,
		RequestTTL:                10 * time.Minute,
		ProviderRequestGrace:      time.Minute,
		Location:                  time.UTC,
	}, zerolog.Nop())
	f.now = func() time.Time { return testNow }

	if triggers {
		f.RegisterTriggers(router)
		store.SetSink(router.ChangeSink())
	}

	return &harness{f: f, store: store, backend: backend, accounts: accounts, tokens: tokens}
}

func (h *harness) set(t *testing.T, collection, id string, data any) {
	t.Helper()
	require.NoError(t, h.store.Set(context.Background(), collection, id, data))
}

func (h *harness) get(t *testing.T, collection, id string) map[string]any {
	t.Helper()
	doc, err := h.store.Get(context.Background(), collection, id)
	require.NoError(t, err)
	return doc.Data
}

func (h *harness) exists(t *testing.T, collection, id string) bool {
	t.Helper()
	ok, err := h.store.Exists(context.Background(), collection, id)
	require.NoError(t, err)
	return ok
}

func (h *harness) find(t *testing.T, q docstore.Query) []docstore.Document {
	t.Helper()
	docs, err := h.store.Find(context.Background(), q)
	require.NoError(t, err)
	return docs
}

func payload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func requireCode(t *testing.T, err error, code Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, AsError(err).Code, "error: %v", err)
}

func authEvent(uid string) events.Event {
	return events.AuthDeleted(uid, "", testNow)
}
