package functions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-functions/internal/docstore"
	"github.com/hackgods/clinic-functions/internal/identity"
	"github.com/hackgods/clinic-functions/internal/records"
)

// seedUserData gives uid a profile and related documents, next to the same
// kind of data for a bystander. Reviews are backed by the seeded appointments
// so the review trigger keeps them.
func seedUserData(t *testing.T, h *harness, uid string) {
	t.Helper()

	for _, owner := range []string{uid, "bystander"} {
		h.set(t, records.Patients, owner, map[string]any{"userId": owner})
		h.set(t, records.Professionals, owner, map[string]any{"userId": owner})
		h.set(t, records.LegacyProfessionals, owner, map[string]any{"userId": owner})
		h.set(t, records.Appointments, "as-patient-"+owner, map[string]any{"idpat": owner, "idpro": "someone", "status": "confirmed"})
		h.set(t, records.Appointments, "as-pro-"+owner, map[string]any{"idpat": "someone", "idpro": owner, "status": "confirmed"})
		h.set(t, records.Reviews, "review-by-"+owner, map[string]any{"idpat": owner, "idpro": "someone", "note": 5})
		h.set(t, records.Reviews, "review-of-"+owner, map[string]any{"idpat": "someone", "idpro": owner, "note": 4})
		h.set(t, records.Availability, "slot-"+owner, map[string]any{"professionalId": owner})
		h.set(t, records.Notifications, "notif-"+owner, map[string]any{"destinataire": owner})
	}
}

func assertReaped(t *testing.T, h *harness, uid string) {
	t.Helper()

	for _, coll := range profileCollections {
		assert.False(t, h.exists(t, coll, uid), "%s/%s should be gone", coll, uid)
	}
	for _, q := range relatedQueries {
		docs := h.find(t, docstore.From(q.collection).Where(q.field, docstore.OpEq, uid))
		assert.Empty(t, docs, "%s.%s == %s should be gone", q.collection, q.field, uid)
	}
	for _, q := range appointmentRefs {
		docs := h.find(t, docstore.From(q.collection).Where(q.field, docstore.OpEq, uid))
		require.Len(t, docs, 1, "%s.%s == %s should be kept", q.collection, q.field, uid)
		assert.Equal(t, "cancelled", docs[0].Data["status"])
		assert.Equal(t, "system", docs[0].Data["cancelledBy"])
	}

	assert.True(t, h.exists(t, records.Patients, "bystander"))
	assert.Equal(t, "confirmed", h.get(t, records.Appointments, "as-patient-bystander")["status"])
	assert.True(t, h.exists(t, records.Reviews, "review-of-bystander"))
	assert.True(t, h.exists(t, records.Notifications, "notif-bystander"))
}

func TestUserDocumentDeletionReapsEverything(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	acc, err := h.accounts.CreateUser(ctx, identity.NewAccount{Email: "gone@example.com", Password: "secret1"})
	require.NoError(t, err)
	uid := acc.UID

	h.set(t, records.Users, uid, records.User{Role: records.RolePatient, Email: "gone@example.com"})
	seedUserData(t, h, uid)

	require.NoError(t, h.store.Delete(ctx, records.Users, uid))

	assertReaped(t, h, uid)
	_, err = h.accounts.GetUser(ctx, uid)
	assert.True(t, errors.Is(err, identity.ErrUserNotFound), "auth account should be deleted")
}

func TestUserDocumentDeletionToleratesMissingAccount(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	h.set(t, records.Users, "orphan", records.User{Role: records.RoleDoctor})
	seedUserData(t, h, "orphan")

	require.NoError(t, h.store.Delete(ctx, records.Users, "orphan"))
	assertReaped(t, h, "orphan")
}

func TestAuthDeletionReapsEverything(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	acc, err := h.accounts.CreateUser(ctx, identity.NewAccount{Email: "console@example.com", Password: "secret1"})
	require.NoError(t, err)
	h.set(t, records.Users, acc.UID, records.User{Role: records.RoleNurse})
	seedUserData(t, h, acc.UID)

	require.NoError(t, h.accounts.DeleteUser(ctx, acc.UID))
	assertReaped(t, h, acc.UID)
}

func TestReapChunksLargeCollections(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	total := docstore.MaxBatchSize + 5
	for start := 0; start < total; start += docstore.MaxBatchSize {
		b := h.store.Batch()
		for i := start; i < total && i < start+docstore.MaxBatchSize; i++ {
			b.Set(records.Notifications, docstore.NewID(), map[string]any{"destinataire": "busy"})
		}
		require.NoError(t, b.Commit(ctx))
	}

	require.NoError(t, h.f.ReapAuthAccount(ctx, authEvent("busy")))
	assert.Equal(t, 0, h.backend.Count(records.Notifications))
}

func TestCleanupUserData(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	h.set(t, records.Users, "p1", map[string]any{"role": "patient"})
	h.set(t, records.Patients, "p1", map[string]any{"userId": "p1"})
	h.set(t, records.LegacyProfessionals, "p1", map[string]any{"userId": "p1"})
	h.set(t, records.Appointments, "a1", map[string]any{"idpat": "p1", "idpro": "d1", "status": "confirmed"})
	h.set(t, records.Appointments, "a2", map[string]any{"idpat": "p1", "idpro": "d2", "status": "pending"})
	h.set(t, records.Appointments, "a3", map[string]any{"idpat": "p2", "idpro": "d1", "status": "confirmed"})

	_, err := h.f.CleanupUserData(ctx, nil, nil)
	requireCode(t, err, CodeUnauthenticated)

	res, err := h.f.CleanupUserData(ctx, &Caller{UID: "p1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"success": true, "cleaned": "p1"}, res)

	for _, coll := range profileCollections {
		assert.False(t, h.exists(t, coll, "p1"), coll)
	}
	for _, id := range []string{"a1", "a2"} {
		a := h.get(t, records.Appointments, id)
		assert.Equal(t, "cancelled", a["status"])
		assert.Equal(t, "system", a["cancelledBy"])
	}
	assert.Equal(t, "confirmed", h.get(t, records.Appointments, "a3")["status"])
}

func TestCleanupUserDataKeepsCancelledAppointments(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	acc, err := h.accounts.CreateUser(ctx, identity.NewAccount{Email: "leaving@example.com", Password: "secret1"})
	require.NoError(t, err)
	uid := acc.UID
	h.set(t, records.Users, uid, records.User{Role: records.RolePatient, Email: "leaving@example.com"})
	h.set(t, records.Appointments, "a1", map[string]any{"idpat": uid, "idpro": "d1", "status": "confirmed"})
	h.set(t, records.Appointments, "a2", map[string]any{"idpat": "other", "idpro": "d1", "status": "confirmed"})

	_, err = h.f.CleanupUserData(ctx, &Caller{UID: uid}, nil)
	require.NoError(t, err)

	a1 := h.get(t, records.Appointments, "a1")
	assert.Equal(t, "cancelled", a1["status"])
	assert.Equal(t, "system", a1["cancelledBy"])
	assert.Equal(t, "confirmed", h.get(t, records.Appointments, "a2")["status"])

	assert.False(t, h.exists(t, records.Users, uid))
	assert.False(t, h.exists(t, records.Patients, uid))
	_, err = h.accounts.GetUser(ctx, uid)
	assert.True(t, errors.Is(err, identity.ErrUserNotFound), "auth account should be deleted")
}

func TestReapCancelsLargeAppointmentSets(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	total := docstore.MaxBatchSize + 5
	for start := 0; start < total; start += docstore.MaxBatchSize {
		b := h.store.Batch()
		for i := start; i < total && i < start+docstore.MaxBatchSize; i++ {
			b.Set(records.Appointments, docstore.NewID(), map[string]any{"idpat": "busy", "status": "confirmed"})
		}
		require.NoError(t, b.Commit(ctx))
	}
	h.set(t, records.Appointments, "already", map[string]any{"idpat": "busy", "status": "cancelled", "cancelledBy": "patient"})

	require.NoError(t, h.f.ReapAuthAccount(ctx, authEvent("busy")))

	cancelled := h.find(t, docstore.From(records.Appointments).Where("cancelledBy", docstore.OpEq, "system"))
	assert.Len(t, cancelled, total)
	assert.Equal(t, "patient", h.get(t, records.Appointments, "already")["cancelledBy"])
}
