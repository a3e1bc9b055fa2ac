// Package records holds the typed shape of every stored collection. Handlers
// decode document data into these records at the entry boundary and never
// poke at untyped maps past that point.
package records

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Collection names.
const (
	Users               = "users"
	Patients            = "patients"
	Professionals       = "professionals"
	LegacyProfessionals = "professionnels"
	Appointments        = "appointments"
	Reviews             = "avis"
	Availability        = "disponibilites"
	Notifications       = "notifications"
	ProviderRequests    = "provider_requests"
	AppointmentRequests = "appointment_requests"
	ScheduledDeletions  = "scheduled_deletions"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleNurse   Role = "nurse"
)

// IsProfessional reports whether the role gets a professional profile.
func (r Role) IsProfessional() bool {
	return r == RoleDoctor || r == RoleNurse
}

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusArrived   = "arrived"
	StatusCancelled = "cancelled"
	StatusAccepted  = "accepted"
	StatusRejected  = "rejected"
)

// ReviewableStatuses are the appointment states that entitle a patient to
// review a professional.
var ReviewableStatuses = []string{StatusConfirmed, StatusCompleted, StatusArrived}

const (
	NotificationAppointment = "appointment"
	NotificationReminder    = "reminder"
)

type User struct {
	UID          string    `json:"uid,omitempty"`
	Role         Role      `json:"role"`
	Nom          string    `json:"nom,omitempty"`
	Prenom       string    `json:"prenom,omitempty"`
	Email        string    `json:"email,omitempty"`
	Telephone    string    `json:"telephone,omitempty"`
	Specialite   string    `json:"specialite,omitempty"`
	Profession   string    `json:"profession,omitempty"`
	PhotoProfile string    `json:"photoProfile,omitempty"`
	CreatedAt    time.Time `json:"createdAt,omitzero"`
}

type PatientProfile struct {
	UserID               string    `json:"userId"`
	Nom                  string    `json:"nom"`
	Prenom               string    `json:"prenom"`
	Email                string    `json:"email"`
	Allergies            string    `json:"allergies"`
	Antecedents          string    `json:"antecedents"`
	DossiersMedicaux     string    `json:"dossiers_medicaux"`
	GroupeSanguin        string    `json:"groupe_sanguin"`
	NotificationsNonLues int       `json:"notifications_non_lues"`
	CreatedAt            time.Time `json:"createdAt,omitzero"`
}

type ProfessionalProfile struct {
	UserID             string    `json:"userId"`
	Nom                string    `json:"nom"`
	Email              string    `json:"email"`
	Role               Role      `json:"role"`
	Specialite         string    `json:"specialite"`
	Profession         string    `json:"profession"`
	Bio                string    `json:"bio"`
	ConsultationsCount int       `json:"consultationsCount"`
	PhotoProfile       string    `json:"photoProfile"`
	Rating             float64   `json:"rating"`
	ReviewsCount       int       `json:"reviewsCount"`
	CreatedAt          time.Time `json:"createdAt,omitzero"`
	UpdatedAt          time.Time `json:"updatedAt,omitzero"`
}

type Appointment struct {
	PatientID      string     `json:"idpat"`
	ProfessionalID string     `json:"idpro"`
	Date           string     `json:"date"`  // YYYY-MM-DD
	Heure          string     `json:"heure"` // HH:MM
	Status         string     `json:"status"`
	Note           string     `json:"note,omitempty"`
	CancelledBy    string     `json:"cancelledBy,omitempty"`
	ReminderSentAt *time.Time `json:"reminderSentAt,omitempty"`
}

const (
	dateLayout  = "2006-01-02"
	startLayout = "2006-01-02 15:04"
)

// StartsAt combines date and heure in loc.
func (a Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(startLayout, a.Date+" "+a.Heure, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("appointment start %q %q: %w", a.Date, a.Heure, err)
	}
	return t, nil
}

// DatesBetween lists the calendar dates, formatted like Appointment.Date,
// touched by the interval [from, to] in loc.
func DatesBetween(from, to time.Time, loc *time.Location) []string {
	from, to = from.In(loc), to.In(loc)
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)

	var out []string
	for !day.After(to) {
		out = append(out, day.Format(dateLayout))
		day = day.AddDate(0, 0, 1)
	}
	return out
}

type Review struct {
	PatientID      string `json:"idpat"`
	ProfessionalID string `json:"idpro"`
	Note           Score  `json:"note"`
	Commentaire    string `json:"commentaire,omitempty"`
}

// Score is a review note. Clients have stored notes as strings or left them
// out, so anything that is not a JSON number decodes as an invalid Score
// instead of failing the whole record.
type Score struct {
	Value float64
	Valid bool
}

func NewScore(v float64) Score {
	return Score{Value: v, Valid: true}
}

func (s *Score) UnmarshalJSON(b []byte) error {
	*s = Score{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] == '"' || bytes.Equal(b, []byte("null")) {
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	*s = NewScore(v)
	return nil
}

func (s Score) MarshalJSON() ([]byte, error) {
	if !s.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(s.Value)
}

type AvailabilitySlot struct {
	ProfessionalID string `json:"professionalId"`
	Date           string `json:"date,omitempty"`
	Heure          string `json:"heure,omitempty"`
}

type Notification struct {
	Destinataire string         `json:"destinataire"`
	Message      string         `json:"message"`
	Type         string         `json:"type"`
	Read         bool           `json:"read"`
	Datetime     time.Time      `json:"datetime"`
	SenderID     string         `json:"senderId,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}

type ProviderRequest struct {
	Status     string     `json:"status,omitempty"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
	ExpireAt   *time.Time `json:"expireAt,omitempty"`
	MigratedAt *time.Time `json:"migratedAt,omitempty"`
}

// Expired reports whether the request carries an expireAt at or before now.
func (p ProviderRequest) Expired(now time.Time) bool {
	return p.ExpireAt != nil && !p.ExpireAt.After(now)
}

type AppointmentRequest struct {
	PatientID       string    `json:"idpat"`
	ProfessionalID  string    `json:"idpro"`
	PatientName     string    `json:"patientName,omitempty"`
	Service         string    `json:"service,omitempty"`
	AppointmentDate string    `json:"appointmentDate,omitempty"`
	AppointmentTime string    `json:"appointmentTime,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt,omitzero"`
	UpdatedAt       time.Time `json:"updatedAt,omitzero"`
}

type ScheduledDeletion struct {
	RequestID      string    `json:"requestId"`
	ExpirationTime time.Time `json:"expirationTime"`
	Status         string    `json:"status"`
	PatientID      string    `json:"patientId,omitempty"`
	ProviderID     string    `json:"providerId,omitempty"`
	CreatedAt      time.Time `json:"createdAt,omitzero"`
}
