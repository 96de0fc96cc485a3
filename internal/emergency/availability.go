package emergency

import (
	"context"
	"database/sql"
	"strings"

	apperrors "rapidresponse/internal/common/errors"
	"rapidresponse/internal/models"
)

// AvailabilityStore reads and writes per-service responder availability.
type AvailabilityStore struct {
	db *sql.DB
}

func NewAvailabilityStore(db *sql.DB) *AvailabilityStore {
	return &AvailabilityStore{db: db}
}

// List returns every known service availability row ordered by service type.
func (s *AvailabilityStore) List(ctx context.Context) ([]models.ServiceAvailability, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT service_type, status, available_units, average_response_time, updated_at
		FROM service_availability
		ORDER BY service_type`)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("select_availability", err)
	}
	defer rows.Close()

	out := []models.ServiceAvailability{}
	for rows.Next() {
		var (
			a      models.ServiceAvailability
			status string
			avg    sql.NullInt64
		)
		if err := rows.Scan(&a.ServiceType, &status, &a.AvailableUnits, &avg, &a.UpdatedAt); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan_availability", err)
		}
		a.Status = models.ServiceStatus(status)
		a.AverageResponseTime = nullIntPtr(avg)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("select_availability", err)
	}
	return out, nil
}

// Upsert validates and stores the availability of one service type.
func (s *AvailabilityStore) Upsert(ctx context.Context, a models.ServiceAvailability) (*models.ServiceAvailability, error) {
	a.ServiceType = strings.ToUpper(strings.TrimSpace(a.ServiceType))
	if a.ServiceType == "" {
		return nil, apperrors.NewInvalidInputError("service_type is required")
	}
	status, ok := models.ParseServiceStatus(string(a.Status))
	if !ok {
		return nil, apperrors.NewInvalidInputError("status must be one of active, limited, inactive")
	}
	a.Status = status
	if a.AvailableUnits < 0 {
		return nil, apperrors.NewInvalidInputError("available_units must not be negative")
	}
	if a.AverageResponseTime != nil && *a.AverageResponseTime < 0 {
		return nil, apperrors.NewInvalidInputError("average_response_time must not be negative")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO service_availability (service_type, status, available_units, average_response_time, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (service_type) DO UPDATE SET
			status = EXCLUDED.status,
			available_units = EXCLUDED.available_units,
			average_response_time = EXCLUDED.average_response_time,
			updated_at = EXCLUDED.updated_at`,
		a.ServiceType,
		string(a.Status),
		a.AvailableUnits,
		intArg(a.AverageResponseTime),
		a.UpdatedAt,
	)
	if err != nil {
		return nil, apperrors.NewDatabaseInsertFailedError(err)
	}
	return &a, nil
}
