package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-functions/internal/app"
	"github.com/hackgods/clinic-functions/internal/config"
	"github.com/hackgods/clinic-functions/internal/docstore"
	"github.com/hackgods/clinic-functions/internal/identity"
	"github.com/hackgods/clinic-functions/internal/logging"
	"github.com/hackgods/clinic-functions/internal/records"
)

var specialties = []string{
	"Dermatologie",
	"Cardiologie",
	"Médecine générale",
	"Orthopédie",
	"Endocrinologie",
	"Neurologie",
	"Pédiatrie",
	"Psychiatrie",
	"Ophtalmologie",
	"ORL",
}

var slots = []string{"08:30", "09:00", "09:30", "10:00", "11:00", "14:00", "14:30", "15:00", "16:00", "17:30"}

type seeder struct {
	a        *app.App
	fake     *gofakeit.Faker
	password string
	log      zerolog.Logger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("prod", "info")
		boot.Fatal().Err(err).Msg("config load error")
	}
	log := logging.Component(logging.New(cfg.Env, cfg.LogLevel), "seed")
	log.Info().Msg("seed starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	s := &seeder{
		a:        a,
		fake:     gofakeit.New(0),
		password: getEnv("SEED_PASSWORD", "password123"),
		log:      log,
	}

	pros, err := s.seedUsers(ctx, getInt("SEED_PROFESSIONALS", 20), true)
	if err != nil {
		log.Fatal().Err(err).Msg("seed professionals")
	}
	patients, err := s.seedUsers(ctx, getInt("SEED_PATIENTS", 200), false)
	if err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}
	if err := s.seedAvailability(ctx, pros); err != nil {
		log.Fatal().Err(err).Msg("seed availability")
	}
	if err := s.seedAppointments(ctx, patients, pros, getInt("SEED_APPOINTMENTS", 300), cfg.Location()); err != nil {
		log.Fatal().Err(err).Msg("seed appointments")
	}

	log.Info().Str("password", s.password).Msg("seed complete")
}

// seedUsers creates auth accounts and their users documents. The trigger
// worker provisions the matching profiles.
func (s *seeder) seedUsers(ctx context.Context, count int, professional bool) ([]string, error) {
	s.log.Info().Int("count", count).Bool("professional", professional).Msg("seeding users")

	uids := make([]string, 0, count)
	batch := s.a.Store.Batch()
	for range count {
		first, last := s.fake.FirstName(), s.fake.LastName()
		acc, err := s.a.Accounts.CreateUser(ctx, identity.NewAccount{
			Email:       s.fake.Email(),
			Password:    s.password,
			DisplayName: first + " " + last,
			PhoneNumber: s.fake.Phone(),
		})
		if err != nil {
			return uids, err
		}

		user := records.User{
			Role:      records.RolePatient,
			Nom:       last,
			Prenom:    first,
			Email:     acc.Email,
			Telephone: acc.PhoneNumber,
			CreatedAt: time.Now().UTC(),
		}
		if professional {
			user.Role = records.RoleDoctor
			if s.fake.Number(0, 3) == 0 {
				user.Role = records.RoleNurse
			}
			user.Specialite = s.fake.RandomString(specialties)
		}

		batch.Set(records.Users, acc.UID, user)
		uids = append(uids, acc.UID)
		if batch.Len() == docstore.MaxBatchSize {
			if err := batch.Commit(ctx); err != nil {
				return uids, err
			}
			batch = s.a.Store.Batch()
		}
	}
	if err := batch.Commit(ctx); err != nil {
		return uids, err
	}

	s.log.Info().Int("count", len(uids)).Msg("users seeded")
	return uids, nil
}

func (s *seeder) seedAvailability(ctx context.Context, pros []string) error {
	batch := s.a.Store.Batch()
	today := time.Now()
	for _, pro := range pros {
		for day := range 7 {
			date := today.AddDate(0, 0, day).Format(time.DateOnly)
			for _, heure := range slots {
				batch.Set(records.Availability, docstore.NewID(), records.AvailabilitySlot{
					ProfessionalID: pro,
					Date:           date,
					Heure:          heure,
				})
				if batch.Len() == docstore.MaxBatchSize {
					if err := batch.Commit(ctx); err != nil {
						return err
					}
					batch = s.a.Store.Batch()
				}
			}
		}
	}
	if err := batch.Commit(ctx); err != nil {
		return err
	}
	s.log.Info().Int("professionals", len(pros)).Msg("availability seeded")
	return nil
}

// seedAppointments books confirmed appointments over the next two days so
// the reminder job has work.
func (s *seeder) seedAppointments(ctx context.Context, patients, pros []string, count int, loc *time.Location) error {
	if len(patients) == 0 || len(pros) == 0 {
		return fmt.Errorf("need patients and professionals, got %d and %d", len(patients), len(pros))
	}

	now := time.Now().In(loc)
	for start := 0; start < count; start += docstore.MaxBatchSize {
		end := min(start+docstore.MaxBatchSize, count)

		batch := s.a.Store.Batch()
		for range end - start {
			at := now.Add(time.Duration(s.fake.Number(60, 48*60)) * time.Minute).Truncate(5 * time.Minute)
			batch.Set(records.Appointments, docstore.NewID(), records.Appointment{
				PatientID:      patients[s.fake.Number(0, len(patients)-1)],
				ProfessionalID: pros[s.fake.Number(0, len(pros)-1)],
				Date:           at.Format(time.DateOnly),
				Heure:          at.Format("15:04"),
				Status:         records.StatusConfirmed,
			})
		}
		if err := batch.Commit(ctx); err != nil {
			return err
		}
		s.log.Info().Int("seeded", end).Int("total", count).Msg("appointments seeded")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
