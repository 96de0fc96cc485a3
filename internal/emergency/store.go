package emergency

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"rapidresponse/internal/common/database"
	apperrors "rapidresponse/internal/common/errors"
	"rapidresponse/internal/models"

	"github.com/google/uuid"
)

const emergencyColumns = `id, emergency_type, priority_level, status, location_lat, location_lon,
	response_plan, estimated_response_time, actual_response_time, notes, created_at, updated_at`

// defaultHistoryLimit caps History when the filter sets no limit.
const defaultHistoryLimit = 100

// TransitionFunc mutates a locked emergency and returns the audit row to append.
type TransitionFunc func(e *models.Emergency) (*models.EmergencyStatusUpdate, error)

// PostgresStore persists emergencies and their status history.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEmergency(row rowScanner) (*models.Emergency, error) {
	var (
		e                 models.Emergency
		lat, lon          sql.NullFloat64
		plan              []byte
		estimated, actual sql.NullInt64
		status, priority  string
	)
	if err := row.Scan(
		&e.ID, &e.Type, &priority, &status, &lat, &lon,
		&plan, &estimated, &actual, &e.Notes, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	e.Priority = models.Priority(priority)
	e.Status = models.EmergencyStatus(status)
	if lat.Valid && lon.Valid {
		e.Location = &models.Location{Lat: lat.Float64, Lon: lon.Float64}
	}
	if len(plan) > 0 {
		if err := json.Unmarshal(plan, &e.ResponsePlan); err != nil {
			return nil, fmt.Errorf("decode response plan for %s: %w", e.ID, err)
		}
	}
	e.EstimatedResponseTime = nullIntPtr(estimated)
	e.ActualResponseTime = nullIntPtr(actual)
	return &e, nil
}

func nullIntPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func intArg(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func locationArgs(loc *models.Location) (interface{}, interface{}) {
	if loc == nil {
		return nil, nil
	}
	return loc.Lat, loc.Lon
}

// Create inserts a new emergency.
func (s *PostgresStore) Create(ctx context.Context, e *models.Emergency) error {
	plan, err := json.Marshal(e.ResponsePlan)
	if err != nil {
		return apperrors.NewDatabaseInsertFailedError(fmt.Errorf("encode response plan: %w", err))
	}
	lat, lon := locationArgs(e.Location)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO emergencies (`+emergencyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID,
		e.Type,
		string(e.Priority),
		string(e.Status),
		lat,
		lon,
		plan,
		intArg(e.EstimatedResponseTime),
		intArg(e.ActualResponseTime),
		e.Notes,
		e.CreatedAt,
		e.UpdatedAt,
	)
	if err != nil {
		return apperrors.NewDatabaseInsertFailedError(err)
	}
	return nil
}

// Get returns the emergency with id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Emergency, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+emergencyColumns+` FROM emergencies WHERE id = $1`, id)
	e, err := scanEmergency(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("emergency", id)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("select_emergency", err)
	}
	return e, nil
}

// Transition locks the emergency row, lets apply mutate it, then writes the new state
// and the audit row in the same transaction.
func (s *PostgresStore) Transition(ctx context.Context, id string, apply TransitionFunc) (*models.Emergency, *models.EmergencyStatusUpdate, error) {
	var (
		e      *models.Emergency
		update *models.EmergencyStatusUpdate
	)
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+emergencyColumns+` FROM emergencies WHERE id = $1 FOR UPDATE`, id)
		current, err := scanEmergency(row)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NewNotFoundError("emergency", id)
		}
		if err != nil {
			return apperrors.NewQueryExecutionFailedError("lock_emergency", err)
		}

		u, err := apply(current)
		if err != nil {
			return err
		}
		if u.ID == "" {
			u.ID = uuid.NewString()
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE emergencies
			SET status = $2, actual_response_time = $3, notes = $4, updated_at = $5
			WHERE id = $1`,
			current.ID,
			string(current.Status),
			intArg(current.ActualResponseTime),
			current.Notes,
			current.UpdatedAt,
		); err != nil {
			return apperrors.NewQueryExecutionFailedError("update_emergency", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO emergency_status_updates (id, emergency_id, old_status, new_status, notes, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			u.ID,
			u.EmergencyID,
			string(u.OldStatus),
			string(u.NewStatus),
			u.Notes,
			u.CreatedAt,
		); err != nil {
			return apperrors.NewDatabaseInsertFailedError(err)
		}

		e, update = current, u
		return nil
	})
	if err != nil {
		if _, ok := apperrors.AsStandard(err); ok {
			return nil, nil, err
		}
		return nil, nil, apperrors.NewDatabaseConnectionFailedError(err)
	}
	return e, update, nil
}

// UpdateNotes replaces the notes of an emergency in any state.
func (s *PostgresStore) UpdateNotes(ctx context.Context, id, notes string, now time.Time) (*models.Emergency, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE emergencies SET notes = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+emergencyColumns, id, notes, now)
	e, err := scanEmergency(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("emergency", id)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("update_notes", err)
	}
	return e, nil
}

// StatusHistory returns the accepted transitions of an emergency, oldest first.
func (s *PostgresStore) StatusHistory(ctx context.Context, id string) ([]models.EmergencyStatusUpdate, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM emergencies WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("select_emergency", err)
	}
	if !exists {
		return nil, apperrors.NewNotFoundError("emergency", id)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, emergency_id, old_status, new_status, notes, created_at
		FROM emergency_status_updates
		WHERE emergency_id = $1
		ORDER BY created_at ASC`, id)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("select_status_updates", err)
	}
	defer rows.Close()

	updates := []models.EmergencyStatusUpdate{}
	for rows.Next() {
		var (
			u            models.EmergencyStatusUpdate
			oldSt, newSt string
		)
		if err := rows.Scan(&u.ID, &u.EmergencyID, &oldSt, &newSt, &u.Notes, &u.CreatedAt); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan_status_update", err)
		}
		u.OldStatus = models.EmergencyStatus(oldSt)
		u.NewStatus = models.EmergencyStatus(newSt)
		updates = append(updates, u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("select_status_updates", err)
	}
	return updates, nil
}

// buildHistoryQuery renders the filtered history query and its arguments.
func buildHistoryQuery(f models.HistoryFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}
	if t := models.NormalizeType(f.Type); t != "" {
		add("emergency_type = $%d", t)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}

	limit := f.Limit
	if limit <= 0 || limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + emergencyColumns + ` FROM emergencies`)
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	args = append(args, limit)
	sb.WriteString(fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args)))
	return sb.String(), args
}

// History lists emergencies matching the filter, newest first.
func (s *PostgresStore) History(ctx context.Context, f models.HistoryFilter) ([]models.Emergency, error) {
	query, args := buildHistoryQuery(f)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("select_history", err)
	}
	defer rows.Close()

	out := []models.Emergency{}
	for rows.Next() {
		e, err := scanEmergency(rows)
		if err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan_emergency", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("select_history", err)
	}
	return out, nil
}

// StatsSince summarizes emergencies created at or after since.
func (s *PostgresStore) StatsSince(ctx context.Context, period string, since time.Time) (*models.EmergencyStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT emergency_type, status, actual_response_time
		FROM emergencies
		WHERE created_at >= $1`, since)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("select_stats", err)
	}
	defer rows.Close()

	var samples []statSample
	for rows.Next() {
		var (
			sample statSample
			status string
			actual sql.NullInt64
		)
		if err := rows.Scan(&sample.Type, &status, &actual); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan_stats", err)
		}
		sample.Status = models.EmergencyStatus(status)
		sample.ActualResponseTime = nullIntPtr(actual)
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("select_stats", err)
	}
	return computeStats(period, samples), nil
}
