package emergency

import (
	"context"
	"strings"
	"time"

	apperrors "rapidresponse/internal/common/errors"
	"rapidresponse/internal/common/logger"
	"rapidresponse/internal/common/metrics"
	"rapidresponse/internal/models"
)

// Repository is the persistence the Service needs. PostgresStore implements it.
type Repository interface {
	Get(ctx context.Context, id string) (*models.Emergency, error)
	Transition(ctx context.Context, id string, apply TransitionFunc) (*models.Emergency, *models.EmergencyStatusUpdate, error)
	UpdateNotes(ctx context.Context, id, notes string, now time.Time) (*models.Emergency, error)
	StatusHistory(ctx context.Context, id string) ([]models.EmergencyStatusUpdate, error)
	History(ctx context.Context, f models.HistoryFilter) ([]models.Emergency, error)
	StatsSince(ctx context.Context, period string, since time.Time) (*models.EmergencyStats, error)
}

// Publisher fans an event out to subscribers.
type Publisher interface {
	Publish(ctx context.Context, event models.Event) (*models.PublishResult, error)
}

type Service struct {
	repo      Repository
	publisher Publisher
	now       func() time.Time
	logger    logger.Logger
}

// NewService builds a Service. publisher may be nil.
func NewService(repo Repository, publisher Publisher, log logger.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		now:       time.Now,
		logger:    log.WithFields(map[string]interface{}{"component": "emergency"}),
	}
}

func (s *Service) Get(ctx context.Context, id string) (*models.Emergency, error) {
	return s.repo.Get(ctx, id)
}

// UpdateStatus applies a status transition and publishes status_changed once it is
// committed. Concurrent terminal transitions on the same emergency serialize on the row
// lock, so only the first one is accepted.
func (s *Service) UpdateStatus(ctx context.Context, id, status, notes string) (*models.Emergency, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.NewInvalidInputError("emergency id is required")
	}
	now := s.now().UTC()

	e, update, err := s.repo.Transition(ctx, id, func(e *models.Emergency) (*models.EmergencyStatusUpdate, error) {
		return ApplyTransition(e, status, notes, now)
	})
	if err != nil {
		return nil, err
	}

	metrics.EmergencyTransitions.WithLabelValues(string(update.OldStatus), string(update.NewStatus)).Inc()
	s.logger.Info("Emergency status changed", map[string]interface{}{
		"emergency_id": e.ID,
		"old_status":   update.OldStatus,
		"new_status":   update.NewStatus,
	})

	if s.publisher != nil {
		event := models.StatusChangedEvent{
			EmergencyID:        e.ID,
			EmergencyType:      e.Type,
			OldStatus:          update.OldStatus,
			NewStatus:          update.NewStatus,
			Notes:              update.Notes,
			ActualResponseTime: e.ActualResponseTime,
			ChangedAt:          update.CreatedAt,
		}
		if _, err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Error("Failed to publish status_changed", map[string]interface{}{
				"emergency_id": e.ID,
				"error":        err.Error(),
			})
		}
	}
	return e, nil
}

// UpdateNotes changes the free-text notes without touching the status.
func (s *Service) UpdateNotes(ctx context.Context, id, notes string) (*models.Emergency, error) {
	return s.repo.UpdateNotes(ctx, id, notes, s.now().UTC())
}

func (s *Service) StatusHistory(ctx context.Context, id string) ([]models.EmergencyStatusUpdate, error) {
	return s.repo.StatusHistory(ctx, id)
}

func (s *Service) History(ctx context.Context, f models.HistoryFilter) ([]models.Emergency, error) {
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return nil, apperrors.NewInvalidInputError("from must not be after to")
	}
	return s.repo.History(ctx, f)
}

// Stats summarizes emergencies created within the period (24h, 7d or 30d).
func (s *Service) Stats(ctx context.Context, period string) (*models.EmergencyStats, error) {
	if period == "" {
		period = DefaultStatsPeriod
	}
	window, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	return s.repo.StatsSince(ctx, period, s.now().UTC().Add(-window))
}
