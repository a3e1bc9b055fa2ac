package functions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hackgods/clinic-functions/internal/docstore"
	"github.com/hackgods/clinic-functions/internal/events"
	"github.com/hackgods/clinic-functions/internal/records"
)

// SweepProviderRequests deletes provider requests whose expireAt has passed.
func (f *Functions) SweepProviderRequests(ctx context.Context) (int, error) {
	n, err := f.store.DeleteWhere(ctx, docstore.From(records.ProviderRequests).
		Where("expireAt", docstore.OpLte, f.now()))
	if err != nil {
		return n, fmt.Errorf("sweep provider requests: %w", err)
	}
	if n > 0 {
		f.logger("sweeper").Info().Int("deleted", n).Msg("expired provider requests deleted")
	}
	return n, nil
}

// ProviderCleanupResult is returned by ManualCleanupProviderRequests.
type ProviderCleanupResult struct {
	Success   bool   `json:"success"`
	Deleted   int    `json:"deleted"`
	Preserved int    `json:"preserved"`
	Message   string `json:"message"`
}

// ManualCleanupProviderRequests deletes every provider request that is
// expired or carries no usable expireAt, and keeps the active ones.
func (f *Functions) ManualCleanupProviderRequests(ctx context.Context, caller *Caller, _ json.RawMessage) (any, error) {
	if caller == nil {
		return nil, unauthenticated()
	}
	log := f.logger("sweeper")
	log.Info().Str("uid", caller.UID).Msg("manual provider request cleanup")

	docs, err := f.store.Find(ctx, docstore.From(records.ProviderRequests))
	if err != nil {
		return nil, internal("Cleanup failed", err)
	}

	now := f.now()
	var doomed []docstore.Document
	for _, doc := range docs {
		req, err := docstore.Decode[records.ProviderRequest](doc.Data)
		if err != nil || req.ExpireAt == nil || req.Expired(now) {
			doomed = append(doomed, doc)
		}
	}

	deleted, err := f.store.DeleteDocs(ctx, doomed)
	if err != nil {
		return nil, internal("Cleanup failed", err)
	}
	preserved := len(docs) - deleted

	log.Info().Int("deleted", deleted).Int("preserved", preserved).Msg("manual provider request cleanup done")
	return ProviderCleanupResult{
		Success:   true,
		Deleted:   deleted,
		Preserved: preserved,
		Message:   fmt.Sprintf("Deleted %d expired documents, preserved %d active ones", deleted, preserved),
	}, nil
}

// MigrationResult is returned by MigrateProviderRequestsExpireAt.
type MigrationResult struct {
	Success bool   `json:"success"`
	Updated int    `json:"updated"`
	Skipped int    `json:"skipped"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// MigrateProviderRequestsExpireAt gives legacy provider requests without an
// expireAt a short grace period so the sweep picks them up.
func (f *Functions) MigrateProviderRequestsExpireAt(ctx context.Context) (any, error) {
	docs, err := f.store.Find(ctx, docstore.From(records.ProviderRequests))
	if err != nil {
		return nil, fmt.Errorf("load provider requests: %w", err)
	}

	now := f.now().UTC()
	fields := map[string]any{
		"expireAt":   now.Add(f.settings.ProviderRequestGrace),
		"migratedAt": now,
	}

	updated, skipped := 0, 0
	batch := f.store.Batch()
	for _, doc := range docs {
		if _, ok := doc.Data["expireAt"]; ok {
			skipped++
			continue
		}
		batch.Update(records.ProviderRequests, doc.ID, fields)
		updated++
		if batch.Len() == docstore.MaxBatchSize {
			if err := batch.Commit(ctx); err != nil {
				return nil, fmt.Errorf("migrate provider requests: %w", err)
			}
			batch = f.store.Batch()
		}
	}
	if err := batch.Commit(ctx); err != nil {
		return nil, fmt.Errorf("migrate provider requests: %w", err)
	}

	f.logger("sweeper").Info().Int("updated", updated).Int("skipped", skipped).Msg("provider requests migrated")
	return MigrationResult{
		Success: true,
		Updated: updated,
		Skipped: skipped,
		Total:   len(docs),
		Message: fmt.Sprintf("Migrated %d documents, skipped %d", updated, skipped),
	}, nil
}

func (f *Functions) expiredRequestsQuery() docstore.Query {
	return docstore.From(records.AppointmentRequests).
		Where("status", docstore.OpEq, records.StatusPending).
		Where("createdAt", docstore.OpLt, f.now().Add(-f.settings.RequestTTL))
}

// SweepAppointmentRequests deletes pending appointment requests older than
// the request TTL.
func (f *Functions) SweepAppointmentRequests(ctx context.Context) (int, error) {
	n, err := f.store.DeleteWhere(ctx, f.expiredRequestsQuery())
	if err != nil {
		return n, fmt.Errorf("sweep appointment requests: %w", err)
	}
	if n > 0 {
		f.logger("sweeper").Info().Int("deleted", n).Msg("expired appointment requests deleted")
	}
	return n, nil
}

// ExpiredRequestsResult is returned by ManualCleanupExpiredRequests.
type ExpiredRequestsResult struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	DeletedCount int    `json:"deletedCount"`
}

func (f *Functions) ManualCleanupExpiredRequests(ctx context.Context) (any, error) {
	n, err := f.SweepAppointmentRequests(ctx)
	if err != nil {
		return nil, err
	}
	msg := fmt.Sprintf("Deleted %d expired requests", n)
	if n == 0 {
		msg = "No expired requests found"
	}
	return ExpiredRequestsResult{Success: true, Message: msg, DeletedCount: n}, nil
}

// ScheduleRequestExpiration records when a new appointment request expires.
func (f *Functions) ScheduleRequestExpiration(ctx context.Context, e events.Event) error {
	req, err := docstore.Decode[records.AppointmentRequest](e.After)
	if err != nil {
		return fmt.Errorf("decode appointment request %s: %w", e.DocID, err)
	}

	now := f.now().UTC()
	tracking := records.ScheduledDeletion{
		RequestID:      e.DocID,
		ExpirationTime: now.Add(f.settings.RequestTTL),
		Status:         records.StatusPending,
		PatientID:      req.PatientID,
		ProviderID:     req.ProfessionalID,
		CreatedAt:      now,
	}
	if _, err := f.store.Add(ctx, records.ScheduledDeletions, tracking); err != nil {
		return fmt.Errorf("schedule deletion of %s: %w", e.DocID, err)
	}

	f.logger("sweeper").Info().Str("request", e.DocID).Time("expires", tracking.ExpirationTime).Msg("request expiration scheduled")
	return nil
}

// CancelScheduledDeletion drops the tracking of a deleted request.
func (f *Functions) CancelScheduledDeletion(ctx context.Context, e events.Event) error {
	return f.cancelScheduledDeletion(ctx, e.DocID)
}

// CancelScheduledDeletionOnResolve drops the tracking of a request that was
// accepted or rejected before it expired.
func (f *Functions) CancelScheduledDeletionOnResolve(ctx context.Context, e events.Event) error {
	status, _ := e.After["status"].(string)
	if status != records.StatusAccepted && status != records.StatusRejected {
		return nil
	}
	return f.cancelScheduledDeletion(ctx, e.DocID)
}

func (f *Functions) cancelScheduledDeletion(ctx context.Context, requestID string) error {
	n, err := f.store.DeleteWhere(ctx, docstore.From(records.ScheduledDeletions).
		Where("requestId", docstore.OpEq, requestID))
	if err != nil {
		return fmt.Errorf("cancel scheduled deletion of %s: %w", requestID, err)
	}
	if n > 0 {
		f.logger("sweeper").Info().Str("request", requestID).Msg("scheduled deletion cancelled")
	}
	return nil
}

// ProcessScheduledDeletions carries out due scheduled deletions: the request
// is deleted if it is still pending, then the tracking document goes.
func (f *Functions) ProcessScheduledDeletions(ctx context.Context) (int, error) {
	log := f.logger("sweeper")

	due, err := f.store.Find(ctx, docstore.From(records.ScheduledDeletions).
		Where("status", docstore.OpEq, records.StatusPending).
		Where("expirationTime", docstore.OpLte, f.now()))
	if err != nil {
		return 0, fmt.Errorf("find due scheduled deletions: %w", err)
	}

	expired := 0
	for _, doc := range due {
		tracking, err := docstore.Decode[records.ScheduledDeletion](doc.Data)
		if err != nil {
			log.Warn().Err(err).Str("scheduled_deletion", doc.ID).Msg("dropping undecodable scheduled deletion")
			if err := f.store.Delete(ctx, records.ScheduledDeletions, doc.ID); err != nil {
				log.Error().Err(err).Str("scheduled_deletion", doc.ID).Msg("delete scheduled deletion")
			}
			continue
		}

		deleted, err := f.expireRequest(ctx, doc.ID, tracking.RequestID)
		if err != nil {
			log.Error().Err(err).Str("request", tracking.RequestID).Msg("expire appointment request")
			continue
		}
		if deleted {
			expired++
		}
	}

	if len(due) > 0 {
		log.Info().Int("due", len(due)).Int("expired", expired).Msg("scheduled deletions processed")
	}
	return expired, nil
}

// expireRequest deletes the tracking document, plus the request when it is
// still pending, in one batch.
func (f *Functions) expireRequest(ctx context.Context, trackingID, requestID string) (bool, error) {
	batch := f.store.Batch()

	deleteRequest := false
	doc, err := f.store.Get(ctx, records.AppointmentRequests, requestID)
	switch {
	case err == nil:
		status, _ := doc.Data["status"].(string)
		deleteRequest = status == records.StatusPending
	case !errors.Is(err, docstore.ErrNotFound):
		return false, err
	}

	if deleteRequest {
		batch.Delete(records.AppointmentRequests, requestID)
	}
	batch.Delete(records.ScheduledDeletions, trackingID)

	if err := batch.Commit(ctx); err != nil {
		return false, err
	}
	return deleteRequest, nil
}
