package functions

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/hackgods/clinic-functions/internal/docstore"
	"github.com/hackgods/clinic-functions/internal/events"
	"github.com/hackgods/clinic-functions/internal/records"
)

// GateReview keeps a new review only when the patient has a reviewable
// appointment with the professional, then refreshes the professional's
// rating. The appointment check is a plain read, not a transaction.
func (f *Functions) GateReview(ctx context.Context, e events.Event) error {
	log := f.logger("reviews").With().Str("review", e.DocID).Logger()

	review, err := docstore.Decode[records.Review](e.After)
	if err != nil {
		return fmt.Errorf("decode review %s: %w", e.DocID, err)
	}

	allowed, err := f.hasReviewableAppointment(ctx, review.PatientID, review.ProfessionalID)
	if err != nil {
		return fmt.Errorf("check appointment for review %s: %w", e.DocID, err)
	}
	if !allowed {
		if err := f.store.Delete(ctx, records.Reviews, e.DocID); err != nil {
			return fmt.Errorf("delete review %s: %w", e.DocID, err)
		}
		log.Warn().
			Str("idpat", review.PatientID).
			Str("idpro", review.ProfessionalID).
			Msg("review deleted: no valid appointment")
		return nil
	}

	rating, count, err := f.UpdateRating(ctx, review.ProfessionalID)
	if err != nil {
		log.Error().Err(err).Str("idpro", review.ProfessionalID).Msg("update provider rating")
		return nil
	}
	log.Info().Str("idpro", review.ProfessionalID).Float64("rating", rating).Int("reviews", count).Msg("provider rating updated")
	return nil
}

func (f *Functions) hasReviewableAppointment(ctx context.Context, patientID, professionalID string) (bool, error) {
	if patientID == "" || professionalID == "" {
		return false, nil
	}
	docs, err := f.store.Find(ctx, docstore.From(records.Appointments).
		Where("idpat", docstore.OpEq, patientID).
		Where("idpro", docstore.OpEq, professionalID).
		Where("status", docstore.OpIn, records.ReviewableStatuses).
		Take(1))
	if err != nil {
		return false, err
	}
	return len(docs) > 0, nil
}

// UpdateRating recomputes the rating of a professional from every stored
// review. Notes that are not numbers are ignored.
func (f *Functions) UpdateRating(ctx context.Context, professionalID string) (float64, int, error) {
	docs, err := f.store.Find(ctx, docstore.From(records.Reviews).Where("idpro", docstore.OpEq, professionalID))
	if err != nil {
		return 0, 0, fmt.Errorf("load reviews: %w", err)
	}

	var notes []float64
	for _, doc := range docs {
		r, err := docstore.Decode[records.Review](doc.Data)
		if err != nil || !r.Note.Valid {
			continue
		}
		notes = append(notes, r.Note.Value)
	}
	rating := averageRating(notes)

	fields := map[string]any{
		"rating":       rating,
		"reviewsCount": len(notes),
		"updatedAt":    f.now().UTC(),
	}

	err = f.store.Update(ctx, records.Professionals, professionalID, fields)
	if errors.Is(err, docstore.ErrNotFound) {
		err = f.store.Update(ctx, records.LegacyProfessionals, professionalID, fields)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("write rating: %w", err)
	}
	return rating, len(notes), nil
}

// averageRating is the mean rounded to two decimals, 0 without notes.
func averageRating(notes []float64) float64 {
	if len(notes) == 0 {
		return 0
	}
	var sum float64
	for _, n := range notes {
		sum += n
	}
	return math.Round(sum/float64(len(notes))*100) / 100
}
