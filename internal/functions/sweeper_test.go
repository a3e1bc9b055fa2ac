package functions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-functions/internal/docstore"
	"github.com/hackgods/clinic-functions/internal/records"
)

func TestSweepProviderRequests(t *testing.T) {
	h := newHarness(t, false)

	h.set(t, records.ProviderRequests, "expired", map[string]any{"expireAt": testNow.Add(-time.Minute)})
	h.set(t, records.ProviderRequests, "expiring-now", map[string]any{"expireAt": testNow})
	h.set(t, records.ProviderRequests, "active", map[string]any{"expireAt": testNow.Add(time.Minute)})
	h.set(t, records.ProviderRequests, "legacy", map[string]any{"status": "pending"})
	h.set(t, records.ProviderRequests, "garbled", map[string]any{"expireAt": "soon"})

	n, err := h.f.SweepProviderRequests(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.False(t, h.exists(t, records.ProviderRequests, "expired"))
	assert.False(t, h.exists(t, records.ProviderRequests, "expiring-now"))
	assert.True(t, h.exists(t, records.ProviderRequests, "active"))
	assert.True(t, h.exists(t, records.ProviderRequests, "legacy"), "the sweep leaves requests without expireAt alone")
	assert.True(t, h.exists(t, records.ProviderRequests, "garbled"), "an unreadable expireAt does not stop the sweep")
}

func TestManualCleanupProviderRequests(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	h.set(t, records.ProviderRequests, "expired", map[string]any{"expireAt": testNow.Add(-time.Hour)})
	h.set(t, records.ProviderRequests, "legacy", map[string]any{"status": "pending"})
	h.set(t, records.ProviderRequests, "garbled", map[string]any{"expireAt": "soon"})
	h.set(t, records.ProviderRequests, "active-1", map[string]any{"expireAt": testNow.Add(time.Minute)})
	h.set(t, records.ProviderRequests, "active-2", map[string]any{"expireAt": testNow.Add(time.Hour)})

	_, err := h.f.ManualCleanupProviderRequests(ctx, nil, nil)
	requireCode(t, err, CodeUnauthenticated)
	assert.Equal(t, 5, h.backend.Count(records.ProviderRequests))

	res, err := h.f.ManualCleanupProviderRequests(ctx, &Caller{UID: "admin"}, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderCleanupResult{
		Success:   true,
		Deleted:   3,
		Preserved: 2,
		Message:   "Deleted 3 expired documents, preserved 2 active ones",
	}, res)
	assert.True(t, h.exists(t, records.ProviderRequests, "active-1"))
	assert.True(t, h.exists(t, records.ProviderRequests, "active-2"))
}

func TestMigrateProviderRequestsExpireAt(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	kept := testNow.Add(time.Hour)
	h.set(t, records.ProviderRequests, "legacy-1", map[string]any{"status": "pending"})
	h.set(t, records.ProviderRequests, "legacy-2", map[string]any{"status": "pending"})
	h.set(t, records.ProviderRequests, "current", map[string]any{"expireAt": kept})

	res, err := h.f.MigrateProviderRequestsExpireAt(ctx)
	require.NoError(t, err)
	assert.Equal(t, MigrationResult{
		Success: true,
		Updated: 2,
		Skipped: 1,
		Total:   3,
		Message: "Migrated 2 documents, skipped 1",
	}, res)

	legacy, err := docstore.Decode[records.ProviderRequest](h.get(t, records.ProviderRequests, "legacy-1"))
	require.NoError(t, err)
	require.NotNil(t, legacy.ExpireAt)
	require.NotNil(t, legacy.MigratedAt)
	assert.True(t, legacy.ExpireAt.Equal(testNow.Add(time.Minute)))
	assert.True(t, legacy.MigratedAt.Equal(testNow))
	assert.Equal(t, "pending", legacy.Status)

	current, err := docstore.Decode[records.ProviderRequest](h.get(t, records.ProviderRequests, "current"))
	require.NoError(t, err)
	assert.True(t, current.ExpireAt.Equal(kept))
	assert.Nil(t, current.MigratedAt)

	// Once the grace period is over the regular sweep picks them up.
	h.f.now = func() time.Time { return testNow.Add(2 * time.Minute) }
	n, err := h.f.SweepProviderRequests(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMigrateProviderRequestsChunks(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	total := docstore.MaxBatchSize + 20
	for start := 0; start < total; start += docstore.MaxBatchSize {
		b := h.store.Batch()
		for i := start; i < total && i < start+docstore.MaxBatchSize; i++ {
			b.Set(records.ProviderRequests, docstore.NewID(), map[string]any{"status": "pending"})
		}
		require.NoError(t, b.Commit(ctx))
	}

	res, err := h.f.MigrateProviderRequestsExpireAt(ctx)
	require.NoError(t, err)
	assert.Equal(t, total, res.(MigrationResult).Updated)

	legacy := h.find(t, docstore.From(records.ProviderRequests).Where("expireAt", docstore.OpGt, testNow))
	assert.Len(t, legacy, total)
}

func TestSweepAppointmentRequests(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	old := testNow.Add(-11 * time.Minute)
	h.set(t, records.AppointmentRequests, "stale", records.AppointmentRequest{PatientID: "p1", ProfessionalID: "d1", Status: "pending", CreatedAt: old})
	h.set(t, records.AppointmentRequests, "fresh", records.AppointmentRequest{PatientID: "p1", ProfessionalID: "d1", Status: "pending", CreatedAt: testNow.Add(-9 * time.Minute)})
	h.set(t, records.AppointmentRequests, "accepted", records.AppointmentRequest{PatientID: "p1", ProfessionalID: "d1", Status: "accepted", CreatedAt: old})

	res, err := h.f.ManualCleanupExpiredRequests(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpiredRequestsResult{Success: true, Message: "Deleted 1 expired requests", DeletedCount: 1}, res)

	assert.False(t, h.exists(t, records.AppointmentRequests, "stale"))
	assert.True(t, h.exists(t, records.AppointmentRequests, "fresh"))
	assert.True(t, h.exists(t, records.AppointmentRequests, "accepted"))

	res, err = h.f.ManualCleanupExpiredRequests(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpiredRequestsResult{Success: true, Message: "No expired requests found", DeletedCount: 0}, res)
}

func scheduledFor(t *testing.T, h *harness, requestID string) []records.ScheduledDeletion {
	t.Helper()
	var out []records.ScheduledDeletion
	for _, doc := range h.find(t, docstore.From(records.ScheduledDeletions).Where("requestId", docstore.OpEq, requestID)) {
		sd, err := docstore.Decode[records.ScheduledDeletion](doc.Data)
		require.NoError(t, err)
		out = append(out, sd)
	}
	return out
}

func TestRequestCreationSchedulesExpiration(t *testing.T) {
	h := newHarness(t, true)

	h.set(t, records.AppointmentRequests, "r1", records.AppointmentRequest{PatientID: "p1", ProfessionalID: "d1", Status: "pending", CreatedAt: testNow})

	got := scheduledFor(t, h, "r1")
	require.Len(t, got, 1)
	assert.Equal(t, "pending", got[0].Status)
	assert.Equal(t, "p1", got[0].PatientID)
	assert.Equal(t, "d1", got[0].ProviderID)
	assert.True(t, got[0].ExpirationTime.Equal(testNow.Add(10*time.Minute)))
}

func TestResolvedRequestCancelsScheduledDeletion(t *testing.T) {
	for _, status := range []string{"accepted", "rejected"} {
		t.Run(status, func(t *testing.T) {
			h := newHarness(t, true)
			ctx := context.Background()

			h.set(t, records.AppointmentRequests, "r1", records.AppointmentRequest{PatientID: "p1", ProfessionalID: "d1", Status: "pending", CreatedAt: testNow})
			require.Len(t, scheduledFor(t, h, "r1"), 1)

			require.NoError(t, h.store.Update(ctx, records.AppointmentRequests, "r1", map[string]any{"notes": "edited"}))
			assert.Len(t, scheduledFor(t, h, "r1"), 1, "unrelated edits keep the schedule")

			require.NoError(t, h.store.Update(ctx, records.AppointmentRequests, "r1", map[string]any{"status": status}))
			assert.Empty(t, scheduledFor(t, h, "r1"))
		})
	}
}

func TestDeletedRequestCancelsScheduledDeletion(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	h.set(t, records.AppointmentRequests, "r1", records.AppointmentRequest{PatientID: "p1", ProfessionalID: "d1", Status: "pending", CreatedAt: testNow})
	h.set(t, records.AppointmentRequests, "r2", records.AppointmentRequest{PatientID: "p2", ProfessionalID: "d1", Status: "pending", CreatedAt: testNow})

	require.NoError(t, h.store.Delete(ctx, records.AppointmentRequests, "r1"))

	assert.Empty(t, scheduledFor(t, h, "r1"))
	assert.Len(t, scheduledFor(t, h, "r2"), 1)
}

func TestProcessScheduledDeletions(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	due := testNow.Add(-time.Second)
	h.set(t, records.AppointmentRequests, "still-pending", map[string]any{"status": "pending"})
	h.set(t, records.AppointmentRequests, "accepted", map[string]any{"status": "accepted"})
	h.set(t, records.AppointmentRequests, "not-due", map[string]any{"status": "pending"})

	h.set(t, records.ScheduledDeletions, "sd-pending", records.ScheduledDeletion{RequestID: "still-pending", ExpirationTime: due, Status: "pending"})
	h.set(t, records.ScheduledDeletions, "sd-accepted", records.ScheduledDeletion{RequestID: "accepted", ExpirationTime: due, Status: "pending"})
	h.set(t, records.ScheduledDeletions, "sd-gone", records.ScheduledDeletion{RequestID: "vanished", ExpirationTime: due, Status: "pending"})
	h.set(t, records.ScheduledDeletions, "sd-later", records.ScheduledDeletion{RequestID: "not-due", ExpirationTime: testNow.Add(time.Minute), Status: "pending"})

	n, err := h.f.ProcessScheduledDeletions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.False(t, h.exists(t, records.AppointmentRequests, "still-pending"))
	assert.True(t, h.exists(t, records.AppointmentRequests, "accepted"))
	assert.True(t, h.exists(t, records.AppointmentRequests, "not-due"))

	for _, id := range []string{"sd-pending", "sd-accepted", "sd-gone"} {
		assert.False(t, h.exists(t, records.ScheduledDeletions, id), id)
	}
	assert.True(t, h.exists(t, records.ScheduledDeletions, "sd-later"))
}

func TestScheduledExpirationEndToEnd(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	h.set(t, records.AppointmentRequests, "r1", records.AppointmentRequest{PatientID: "p1", ProfessionalID: "d1", Status: "pending", CreatedAt: testNow})

	n, err := h.f.ProcessScheduledDeletions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "nothing is due yet")

	h.f.now = func() time.Time { return testNow.Add(10 * time.Minute) }
	n, err = h.f.ProcessScheduledDeletions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, h.exists(t, records.AppointmentRequests, "r1"))
	assert.Equal(t, 0, h.backend.Count(records.ScheduledDeletions))
}
