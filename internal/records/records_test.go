package records

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleIsProfessional(t *testing.T) {
	tests := []struct {
		role Role
		want bool
	}{
		{RoleDoctor, true},
		{RoleNurse, true},
		{RolePatient, false},
		{Role("admin"), false},
		{Role(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.role.IsProfessional())
		})
	}
}

func TestScoreDecoding(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		want  float64
		valid bool
	}{
		{"integer", `{"note": 4}`, 4, true},
		{"decimal", `{"note": 3.5}`, 3.5, true},
		{"string", `{"note": "5"}`, 0, false},
		{"null", `{"note": null}`, 0, false},
		{"missing", `{}`, 0, false},
		{"object", `{"note": {"v": 1}}`, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r Review
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &r))
			assert.Equal(t, tt.valid, r.Note.Valid)
			assert.Equal(t, tt.want, r.Note.Value)
		})
	}
}

func TestAppointmentStartsAt(t *testing.T) {
	loc := time.FixedZone("UTC+1", 3600)
	a := Appointment{Date: "2025-10-20", Heure: "14:30"}

	got, err := a.StartsAt(loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, 10, 20, 13, 30, 0, 0, time.UTC)))

	_, err = Appointment{Date: "20/10/2025", Heure: "14h30"}.StartsAt(loc)
	assert.Error(t, err)
}

func TestDatesBetween(t *testing.T) {
	from := time.Date(2025, 10, 20, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, []string{"2025-10-20"}, DatesBetween(from, from.Add(15*time.Minute), time.UTC))
	assert.Equal(t, []string{"2025-10-20", "2025-10-21"}, DatesBetween(from, from.Add(45*time.Minute), time.UTC))

	shifted := time.FixedZone("UTC+1", 3600)
	assert.Equal(t, []string{"2025-10-21"}, DatesBetween(from, from.Add(15*time.Minute), shifted))
}

func TestProviderRequestExpired(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	assert.True(t, ProviderRequest{ExpireAt: &past}.Expired(now))
	assert.True(t, ProviderRequest{ExpireAt: &now}.Expired(now))
	assert.False(t, ProviderRequest{ExpireAt: &future}.Expired(now))
	assert.False(t, ProviderRequest{}.Expired(now))
}

func TestUserOmitsZeroCreatedAt(t *testing.T) {
	raw, err := json.Marshal(User{Role: RolePatient, Nom: "Durand"})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "createdAt")
}

func TestAvailabilitySlotEncoding(t *testing.T) {
	raw, err := json.Marshal(AvailabilitySlot{ProfessionalID: "d1", Date: "2025-10-20", Heure: "09:00"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"professionalId":"d1","date":"2025-10-20","heure":"09:00"}`, string(raw))
	assert.Equal(t, "disponibilites", Availability)
}
