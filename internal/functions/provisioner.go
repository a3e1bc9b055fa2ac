package functions

import (
	"context"
	"fmt"

	"github.com/hackgods/clinic-functions/internal/docstore"
	"github.com/hackgods/clinic-functions/internal/events"
	"github.com/hackgods/clinic-functions/internal/records"
)

const (
	defaultSpecialite    = "Non spécifiée"
	defaultProfession    = "medecin"
	defaultAllergies     = "Aucune"
	defaultAntecedents   = "Aucun"
	defaultGroupeSanguin = "Non renseigné"
)

// ProvisionProfile creates the role-specific profile of a new user. The
// profile is written whole, so replaying the event rewrites the same document.
func (f *Functions) ProvisionProfile(ctx context.Context, e events.Event) error {
	log := f.logger("provisioner")

	user, err := docstore.Decode[records.User](e.After)
	if err != nil {
		return fmt.Errorf("decode user %s: %w", e.DocID, err)
	}
	uid := e.DocID
	now := f.now().UTC()

	switch {
	case user.Role.IsProfessional():
		profile := records.ProfessionalProfile{
			UserID:       uid,
			Nom:          user.Nom,
			Email:        user.Email,
			Role:         user.Role,
			Specialite:   orDefault(user.Specialite, defaultSpecialite),
			Profession:   orDefault(user.Profession, defaultProfession),
			PhotoProfile: user.PhotoProfile,
			CreatedAt:    now,
		}
		if err := f.store.Set(ctx, records.Professionals, uid, profile); err != nil {
			return fmt.Errorf("create professional profile %s: %w", uid, err)
		}
		log.Info().Str("uid", uid).Str("role", string(user.Role)).Msg("professional profile created")

	case user.Role == records.RolePatient:
		profile := records.PatientProfile{
			UserID:        uid,
			Nom:           user.Nom,
			Prenom:        user.Prenom,
			Email:         user.Email,
			Allergies:     defaultAllergies,
			Antecedents:   defaultAntecedents,
			GroupeSanguin: defaultGroupeSanguin,
			CreatedAt:     now,
		}
		if err := f.store.Set(ctx, records.Patients, uid, profile); err != nil {
			return fmt.Errorf("create patient profile %s: %w", uid, err)
		}
		log.Info().Str("uid", uid).Msg("patient profile created")

	default:
		log.Warn().Str("uid", uid).Str("role", string(user.Role)).Msg("no profile for role, skipping")
	}

	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
