package functions

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-functions/internal/docstore"
	"github.com/hackgods/clinic-functions/internal/events"
	"github.com/hackgods/clinic-functions/internal/identity"
	"github.com/hackgods/clinic-functions/internal/records"
)

// profileCollections hold documents keyed by the user's uid.
var profileCollections = []string{
	records.Users,
	records.Patients,
	records.Professionals,
	records.LegacyProfessionals,
}

type reference struct {
	collection string
	field      string
}

// appointmentRefs are the appointment fields naming a user. Those
// appointments are cancelled, never deleted.
var appointmentRefs = []reference{
	{records.Appointments, "idpat"},
	{records.Appointments, "idpro"},
}

// relatedQueries are the (collection, field) pairs whose documents are
// deleted along with the user.
var relatedQueries = []reference{
	{records.Reviews, "idpat"},
	{records.Reviews, "idpro"},
	{records.Availability, "professionalId"},
	{records.Notifications, "destinataire"},
}

// systemCancel marks an appointment cancelled on behalf of a removed account.
var systemCancel = map[string]any{"status": records.StatusCancelled, "cancelledBy": "system"}

// ReapAuthAccount removes the stored data of a deleted auth account.
func (f *Functions) ReapAuthAccount(ctx context.Context, e events.Event) error {
	log := f.logger("reaper").With().Str("uid", e.UID).Logger()
	log.Info().Str("email", e.Email).Msg("auth account deleted, starting cleanup")

	f.reap(ctx, log, e.UID, profileCollections)
	return nil
}

// ReapUserDocument deletes the auth account of a removed user document, then
// the rest of the user's data. An already missing account is fine.
func (f *Functions) ReapUserDocument(ctx context.Context, e events.Event) error {
	uid := e.DocID
	log := f.logger("reaper").With().Str("uid", uid).Logger()
	log.Info().Msg("user document deleted, starting cleanup")

	if err := f.accounts.DeleteUser(ctx, uid); err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			log.Info().Msg("auth account already gone")
		} else {
			log.Error().Err(err).Msg("delete auth account")
		}
	} else {
		log.Info().Msg("auth account deleted")
	}

	f.reap(ctx, log, uid, profileCollections[1:])
	return nil
}

// reap runs every cleanup step for uid. Steps are independent: a failure is
// logged and the next step still runs.
func (f *Functions) reap(ctx context.Context, log zerolog.Logger, uid string, collections []string) {
	for _, coll := range collections {
		if err := f.deleteIfExists(ctx, coll, uid); err != nil {
			log.Error().Err(err).Str("collection", coll).Msg("delete profile document")
		}
	}

	for _, q := range appointmentRefs {
		n, err := f.cancelAppointments(ctx, q.field, uid)
		if err != nil {
			log.Error().Err(err).Str("field", q.field).Int("cancelled", n).Msg("cancel appointments")
			continue
		}
		if n > 0 {
			log.Info().Str("field", q.field).Int("cancelled", n).Msg("appointments cancelled")
		}
	}

	for _, q := range relatedQueries {
		n, err := f.store.DeleteWhere(ctx, docstore.From(q.collection).Where(q.field, docstore.OpEq, uid))
		if err != nil {
			log.Error().Err(err).Str("collection", q.collection).Str("field", q.field).Int("deleted", n).Msg("delete related documents")
			continue
		}
		if n > 0 {
			log.Info().Str("collection", q.collection).Str("field", q.field).Int("deleted", n).Msg("related documents deleted")
		}
	}

	log.Info().Msg("cleanup completed")
}

// cancelAppointments cancels the appointments whose field equals uid, in
// batches of at most MaxBatchSize. Already cancelled ones are left alone.
func (f *Functions) cancelAppointments(ctx context.Context, field, uid string) (int, error) {
	docs, err := f.store.Find(ctx, docstore.From(records.Appointments).Where(field, docstore.OpEq, uid))
	if err != nil {
		return 0, err
	}

	done := 0
	batch := f.store.Batch()
	for _, doc := range docs {
		if doc.Data["status"] == records.StatusCancelled {
			continue
		}
		batch.Update(records.Appointments, doc.ID, systemCancel)
		if batch.Len() == docstore.MaxBatchSize {
			if err := batch.Commit(ctx); err != nil {
				return done, err
			}
			done += docstore.MaxBatchSize
			batch = f.store.Batch()
		}
	}
	n := batch.Len()
	if err := batch.Commit(ctx); err != nil {
		return done, err
	}
	return done + n, nil
}

func (f *Functions) deleteIfExists(ctx context.Context, collection, id string) error {
	ok, err := f.store.Exists(ctx, collection, id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return f.store.Delete(ctx, collection, id)
}

// CleanupUserData deletes the caller's profile documents and cancels the
// appointments they booked.
func (f *Functions) CleanupUserData(ctx context.Context, caller *Caller, _ json.RawMessage) (any, error) {
	if caller == nil {
		return nil, unauthenticated()
	}
	uid := caller.UID

	appts, err := f.store.Find(ctx, docstore.From(records.Appointments).Where("idpat", docstore.OpEq, uid))
	if err != nil {
		return nil, internal("Cleanup failed", err)
	}

	batch := f.store.Batch()
	for _, coll := range profileCollections[1:] {
		batch.Delete(coll, uid)
	}
	batch.Delete(records.Users, uid)

	for _, a := range appts {
		if batch.Len() == docstore.MaxBatchSize {
			if err := batch.Commit(ctx); err != nil {
				return nil, internal("Cleanup failed", err)
			}
			batch = f.store.Batch()
		}
		batch.Update(records.Appointments, a.ID, systemCancel)
	}
	if err := batch.Commit(ctx); err != nil {
		return nil, internal("Cleanup failed", err)
	}

	f.logger("reaper").Info().Str("uid", uid).Int("cancelled", len(appts)).Msg("user data cleaned up")
	return map[string]any{"success": true, "cleaned": uid}, nil
}
