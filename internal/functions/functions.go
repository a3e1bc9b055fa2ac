// Package functions holds the backend handlers of the clinic platform: the
// document and auth triggers, the timer jobs, and the callable and HTTP
// functions. Every handler turns one event into reads and batched writes on
// the document store; no state is kept between invocations.
package functions

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-functions/internal/config"
	"github.com/hackgods/clinic-functions/internal/docstore"
	"github.com/hackgods/clinic-functions/internal/events"
	"github.com/hackgods/clinic-functions/internal/identity"
	"github.com/hackgods/clinic-functions/internal/records"
	"github.com/hackgods/clinic-functions/internal/scheduler"
)

// Settings are the timing knobs of the handlers.
type Settings struct {
	ReminderInterval          time.Duration
	ReminderLead              time.Duration
	SweepInterval             time.Duration
	ScheduledDeletionInterval time.Duration
	RequestTTL                time.Duration
	ProviderRequestGrace      time.Duration
	Location                  *time.Location
}

func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		ReminderInterval:          cfg.ReminderInterval,
		ReminderLead:              cfg.ReminderLead,
		SweepInterval:             cfg.SweepInterval,
		ScheduledDeletionInterval: cfg.ScheduledDeletionInterval,
		RequestTTL:                cfg.RequestTTL,
		ProviderRequestGrace:      cfg.ProviderRequestGrace,
		Location:                  cfg.Location(),
	}
}

type Functions struct {
	store    *docstore.Client
	accounts *identity.Service
	tokens   *identity.Tokens
	settings Settings
	log      zerolog.Logger
	now      func() time.Time
}

func New(store *docstore.Client, accounts *identity.Service, tokens *identity.Tokens, settings Settings, log zerolog.Logger) *Functions {
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	return &Functions{
		store:    store,
		accounts: accounts,
		tokens:   tokens,
		settings: settings,
		log:      log,
		now:      time.Now,
	}
}

// RegisterTriggers wires the document and auth triggers into r.
func (f *Functions) RegisterTriggers(r *events.Router) {
	r.OnCreate(records.Users, "onUserCreated", f.ProvisionProfile)
	r.OnDelete(records.Users, "onUserDocumentDeleted", f.ReapUserDocument)
	r.OnAuthDelete("onAuthUserDeleted", f.ReapAuthAccount)

	r.OnCreate(records.Appointments, "onAppointmentCreated", f.NotifyAppointmentCreated)
	r.OnCreate(records.Reviews, "onReviewCreated", f.GateReview)

	r.OnCreate(records.AppointmentRequests, "scheduleRequestExpiration", f.ScheduleRequestExpiration)
	r.OnUpdate(records.AppointmentRequests, "cancelScheduledDeletionOnResolve", f.CancelScheduledDeletionOnResolve)
	r.OnDelete(records.AppointmentRequests, "cancelScheduledDeletion", f.CancelScheduledDeletion)
}

// Jobs lists the timer jobs.
func (f *Functions) Jobs() []scheduler.Job {
	return []scheduler.Job{
		{Name: "sendAppointmentReminder", Interval: f.settings.ReminderInterval, Run: f.runJob(f.SendReminders)},
		{Name: "cleanupExpiredRequests", Interval: f.settings.SweepInterval, Run: f.runJob(f.SweepProviderRequests)},
		{Name: "cleanupExpiredAppointmentRequests", Interval: f.settings.SweepInterval, Run: f.runJob(f.SweepAppointmentRequests)},
		{Name: "processScheduledDeletions", Interval: f.settings.ScheduledDeletionInterval, Run: f.runJob(f.ProcessScheduledDeletions)},
	}
}

func (f *Functions) runJob(job func(ctx context.Context) (int, error)) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := job(ctx)
		return err
	}
}

func (f *Functions) logger(component string) *zerolog.Logger {
	l := f.log.With().Str("component", component).Logger()
	return &l
}
