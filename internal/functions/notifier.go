package functions

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-functions/internal/docstore"
	"github.com/hackgods/clinic-functions/internal/events"
	"github.com/hackgods/clinic-functions/internal/records"
)

const (
	fallbackPatientName = "Un patient"
	fallbackNote        = "Pas de note"

	// reminderWorkers bounds the reminder batches committed at once.
	reminderWorkers = 8
)

// NotifyAppointmentCreated tells the professional about a new booking.
func (f *Functions) NotifyAppointmentCreated(ctx context.Context, e events.Event) error {
	appt, err := docstore.Decode[records.Appointment](e.After)
	if err != nil {
		return fmt.Errorf("decode appointment %s: %w", e.DocID, err)
	}

	name := f.patientName(ctx, appt.PatientID)
	note := orDefault(appt.Note, fallbackNote)

	n := records.Notification{
		Destinataire: appt.ProfessionalID,
		Message:      fmt.Sprintf("🔔 %s a réservé un rendez-vous le %s à %s. Note: %s", name, appt.Date, appt.Heure, note),
		Type:         records.NotificationAppointment,
		Read:         false,
		Datetime:     f.now().UTC(),
		SenderID:     appt.PatientID,
		Payload: map[string]any{
			"appId":     e.DocID,
			"patientId": appt.PatientID,
			"action":    "new_booking",
		},
	}

	if _, err := f.store.Add(ctx, records.Notifications, n); err != nil {
		return fmt.Errorf("notify %s of appointment %s: %w", appt.ProfessionalID, e.DocID, err)
	}

	f.logger("notifier").Info().
		Str("appointment", e.DocID).
		Str("destinataire", appt.ProfessionalID).
		Msg("booking notification sent")
	return nil
}

// patientName looks the display name up in patients, then users.
func (f *Functions) patientName(ctx context.Context, uid string) string {
	if uid == "" {
		return fallbackPatientName
	}
	for _, coll := range []string{records.Patients, records.Users} {
		doc, err := f.store.Get(ctx, coll, uid)
		if err != nil {
			continue
		}
		if nom, ok := doc.Data["nom"].(string); ok && nom != "" {
			return nom
		}
	}
	return fallbackPatientName
}

// SendReminders notifies patient and professional of every confirmed,
// not yet reminded appointment starting in (now, now+lead+interval]. The
// window reaches back to now so a late or skipped tick still catches
// appointments the previous run did not cover; reminderSentAt keeps each
// appointment to one reminder. It returns once every batch has committed.
func (f *Functions) SendReminders(ctx context.Context) (int, error) {
	log := f.logger("notifier")
	loc := f.settings.Location
	now := f.now()
	from := now
	to := now.Add(f.settings.ReminderLead + f.settings.ReminderInterval)

	candidates, err := f.store.Find(ctx, docstore.From(records.Appointments).
		Where("status", docstore.OpEq, records.StatusConfirmed).
		Where("date", docstore.OpIn, records.DatesBetween(from, to, loc)))
	if err != nil {
		return 0, fmt.Errorf("find reminder candidates: %w", err)
	}

	type due struct {
		id   string
		appt records.Appointment
	}
	var selected []due
	for _, doc := range candidates {
		appt, err := docstore.Decode[records.Appointment](doc.Data)
		if err != nil {
			log.Warn().Err(err).Str("appointment", doc.ID).Msg("skipping undecodable appointment")
			continue
		}
		if appt.ReminderSentAt != nil {
			continue
		}
		start, err := appt.StartsAt(loc)
		if err != nil {
			log.Warn().Err(err).Str("appointment", doc.ID).Msg("skipping appointment without a usable start")
			continue
		}
		if start.After(from) && !start.After(to) {
			selected = append(selected, due{id: doc.ID, appt: appt})
		}
	}

	if len(selected) == 0 {
		log.Debug().Msg("no upcoming appointments to remind")
		return 0, nil
	}

	// Batches are independent: one failing must not cancel the others.
	sentAt := now.UTC()
	var sent atomic.Int64
	var g errgroup.Group
	g.SetLimit(reminderWorkers)
	for _, d := range selected {
		g.Go(func() error {
			err := f.store.Batch().
				Set(records.Notifications, docstore.NewID(), records.Notification{
					Destinataire: d.appt.PatientID,
					Message:      fmt.Sprintf("⏰ Rappel : Vous avez un rendez-vous aujourd'hui à %s. Ne soyez pas en retard !", d.appt.Heure),
					Type:         records.NotificationReminder,
					Datetime:     sentAt,
					SenderID:     d.appt.ProfessionalID,
				}).
				Set(records.Notifications, docstore.NewID(), records.Notification{
					Destinataire: d.appt.ProfessionalID,
					Message:      fmt.Sprintf("⏰ Rappel : Vous avez une consultation prévue à %s.", d.appt.Heure),
					Type:         records.NotificationReminder,
					Datetime:     sentAt,
					SenderID:     d.appt.PatientID,
				}).
				Update(records.Appointments, d.id, map[string]any{"reminderSentAt": sentAt}).
				Commit(ctx)
			if err != nil {
				log.Error().Err(err).Str("appointment", d.id).Msg("reminder batch failed")
				return fmt.Errorf("remind appointment %s: %w", d.id, err)
			}
			sent.Add(1)
			return nil
		})
	}

	err = g.Wait()
	log.Info().Int64("appointments", sent.Load()).
		Int("selected", len(selected)).
		Time("window_start", from.In(loc)).
		Time("window_end", to.In(loc)).
		Msg("reminders sent")
	return int(sent.Load()), err
}
