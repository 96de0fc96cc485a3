// Package emergency owns the persisted Emergency record and its status lifecycle.
package emergency

import (
	"time"

	apperrors "rapidresponse/internal/common/errors"
	"rapidresponse/internal/models"
)

// ApplyTransition moves e to the requested status in place and returns the audit row
// for the change. Only ACTIVE -> RESOLVED and ACTIVE -> CANCELLED are accepted.
// Resolving records the whole minutes elapsed since creation as the actual response time.
func ApplyTransition(e *models.Emergency, status, notes string, now time.Time) (*models.EmergencyStatusUpdate, error) {
	next, ok := models.ParseEmergencyStatus(status)
	if !ok {
		return nil, apperrors.NewInvalidInputError("unknown status: " + status)
	}
	if !e.Status.CanTransition(next) {
		return nil, apperrors.NewInvalidTransitionError(string(e.Status), string(next))
	}

	update := &models.EmergencyStatusUpdate{
		EmergencyID: e.ID,
		OldStatus:   e.Status,
		NewStatus:   next,
		Notes:       notes,
		CreatedAt:   now,
	}

	e.Status = next
	e.UpdatedAt = now
	if notes != "" {
		e.Notes = notes
	}
	if next == models.StatusResolved {
		minutes := int(now.Sub(e.CreatedAt) / time.Minute)
		if minutes < 0 {
			minutes = 0
		}
		e.ActualResponseTime = &minutes
	}
	return update, nil
}
