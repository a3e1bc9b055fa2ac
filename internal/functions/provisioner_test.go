package functions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-functions/internal/events"
	"github.com/hackgods/clinic-functions/internal/records"
)

func TestProvisionProfessional(t *testing.T) {
	for _, role := range []records.Role{records.RoleDoctor, records.RoleNurse} {
		t.Run(string(role), func(t *testing.T) {
			h := newHarness(t, true)
			h.set(t, records.Users, "d1", records.User{Role: role, Nom: "House", Email: "house@example.com"})

			p := h.get(t, records.Professionals, "d1")
			assert.Equal(t, "d1", p["userId"])
			assert.Equal(t, "House", p["nom"])
			assert.Equal(t, string(role), p["role"])
			assert.Equal(t, "Non spécifiée", p["specialite"])
			assert.Equal(t, "medecin", p["profession"])
			assert.Equal(t, "", p["bio"])
			assert.Equal(t, float64(0), p["consultationsCount"])
			assert.Equal(t, float64(0), p["rating"])
			assert.Equal(t, float64(0), p["reviewsCount"])
			assert.False(t, h.exists(t, records.Patients, "d1"))
		})
	}
}

func TestProvisionKeepsGivenSpecialty(t *testing.T) {
	h := newHarness(t, true)
	h.set(t, records.Users, "d2", records.User{Role: records.RoleDoctor, Specialite: "Cardiologie", Profession: "chirurgien"})

	p := h.get(t, records.Professionals, "d2")
	assert.Equal(t, "Cardiologie", p["specialite"])
	assert.Equal(t, "chirurgien", p["profession"])
}

func TestProvisionPatient(t *testing.T) {
	h := newHarness(t, true)
	h.set(t, records.Users, "p1", records.User{Role: records.RolePatient, Nom: "Durand", Prenom: "Alice"})

	p := h.get(t, records.Patients, "p1")
	assert.Equal(t, "p1", p["userId"])
	assert.Equal(t, "Durand", p["nom"])
	assert.Equal(t, "Aucune", p["allergies"])
	assert.Equal(t, "Aucun", p["antecedents"])
	assert.Equal(t, "", p["dossiers_medicaux"])
	assert.Equal(t, "Non renseigné", p["groupe_sanguin"])
	assert.Equal(t, float64(0), p["notifications_non_lues"])
	assert.False(t, h.exists(t, records.Professionals, "p1"))
}

func TestProvisionSkipsUnknownRole(t *testing.T) {
	h := newHarness(t, true)
	h.set(t, records.Users, "a1", map[string]any{"role": "admin"})

	assert.Equal(t, 0, h.backend.Count(records.Patients))
	assert.Equal(t, 0, h.backend.Count(records.Professionals))
}

func TestProvisionIsIdempotent(t *testing.T) {
	h := newHarness(t, false)
	e := events.Event{
		Source:     events.SourceDocument,
		Collection: records.Users,
		DocID:      "d1",
		After:      map[string]any{"role": "doctor", "nom": "House"},
	}

	require.NoError(t, h.f.ProvisionProfile(context.Background(), e))
	first := h.get(t, records.Professionals, "d1")
	require.NoError(t, h.f.ProvisionProfile(context.Background(), e))

	assert.Equal(t, first, h.get(t, records.Professionals, "d1"))
	assert.Equal(t, 1, h.backend.Count(records.Professionals))
}

func TestProvisionRejectsMalformedUser(t *testing.T) {
	h := newHarness(t, false)
	err := h.f.ProvisionProfile(context.Background(), events.Event{
		DocID: "u1",
		After: map[string]any{"role": "doctor", "createdAt": "yesterday"},
	})
	assert.Error(t, err)
}
