package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "rapidresponse/internal/common/errors"
	"rapidresponse/internal/models"

	"github.com/lib/pq"
)

const notificationColumns = `id, emergency_id, recipient_type, recipient_id, channel, notification_type,
	message, status, error, created_at, sent_at, delivered_at, failed_at`

// statusTimestamp names the column stamped when a notification reaches a status.
var statusTimestamp = map[models.NotificationStatus]string{
	models.NotificationSent:      "sent_at",
	models.NotificationDelivered: "delivered_at",
	models.NotificationFailed:    "failed_at",
}

// PostgresRepository stores subscriptions and notifications.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateSubscription stores sub. Subscribing twice with the same tuple returns the
// existing subscription with its address refreshed.
func (r *PostgresRepository) CreateSubscription(ctx context.Context, sub *models.NotificationSubscription) (*models.NotificationSubscription, error) {
	out := *sub
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO notification_subscriptions (id, subscriber_type, subscriber_id, notification_type, channel, address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (subscriber_type, subscriber_id, notification_type, channel)
		DO UPDATE SET address = EXCLUDED.address
		RETURNING id, created_at`,
		sub.ID,
		sub.SubscriberType,
		sub.SubscriberID,
		sub.NotificationType,
		string(sub.Channel),
		sub.Address,
		sub.CreatedAt,
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, apperrors.NewDatabaseInsertFailedError(err)
	}
	return &out, nil
}

// ListSubscriptionsByType returns the subscriptions for one notification type.
func (r *PostgresRepository) ListSubscriptionsByType(ctx context.Context, notificationType string) ([]models.NotificationSubscription, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, subscriber_type, subscriber_id, notification_type, channel, address, created_at
		FROM notification_subscriptions
		WHERE notification_type = $1
		ORDER BY created_at`, notificationType)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("select_subscriptions", err)
	}
	defer rows.Close()

	var subs []models.NotificationSubscription
	for rows.Next() {
		var (
			s       models.NotificationSubscription
			channel string
		)
		if err := rows.Scan(&s.ID, &s.SubscriberType, &s.SubscriberID, &s.NotificationType, &channel, &s.Address, &s.CreatedAt); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan_subscription", err)
		}
		s.Channel = models.Channel(channel)
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("select_subscriptions", err)
	}
	return subs, nil
}

func (r *PostgresRepository) CreateNotification(ctx context.Context, n *models.Notification) error {
	var emergencyID interface{}
	if n.EmergencyID != nil {
		emergencyID = *n.EmergencyID
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, emergency_id, recipient_type, recipient_id, channel, notification_type, message, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID,
		emergencyID,
		n.RecipientType,
		n.RecipientID,
		string(n.Channel),
		n.NotificationType,
		n.Message,
		string(n.Status),
		n.CreatedAt,
	)
	if err != nil {
		return apperrors.NewDatabaseInsertFailedError(err)
	}
	return nil
}

// UpdateStatus moves a notification forward to next, stamping the matching timestamp.
// It reports false when the notification is missing or already past next.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, next models.NotificationStatus, errMsg string, at time.Time) (bool, error) {
	column, ok := statusTimestamp[next]
	if !ok {
		return false, apperrors.NewInvalidInputError(fmt.Sprintf("cannot move notification to %q", next))
	}
	preds := models.PredecessorsOf(next)
	from := make([]string, len(preds))
	for i, p := range preds {
		from[i] = string(p)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = $2, error = $3, `+column+` = $4
		WHERE id = $1 AND status = ANY($5)`,
		id,
		string(next),
		errMsg,
		at,
		pq.Array(from),
	)
	if err != nil {
		return false, apperrors.NewQueryExecutionFailedError("update_notification", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.NewQueryExecutionFailedError("update_notification", err)
	}
	return n > 0, nil
}

type notificationScanner interface {
	Scan(dest ...interface{}) error
}

func scanNotification(row notificationScanner) (*models.Notification, error) {
	var (
		n           models.Notification
		emergencyID sql.NullString
		channel     string
		status      string
		sentAt      sql.NullTime
		deliveredAt sql.NullTime
		failedAt    sql.NullTime
	)
	if err := row.Scan(
		&n.ID, &emergencyID, &n.RecipientType, &n.RecipientID, &channel, &n.NotificationType,
		&n.Message, &status, &n.Error, &n.CreatedAt, &sentAt, &deliveredAt, &failedAt,
	); err != nil {
		return nil, err
	}
	if emergencyID.Valid {
		n.EmergencyID = &emergencyID.String
	}
	n.Channel = models.Channel(channel)
	n.Status = models.NotificationStatus(status)
	n.SentAt = nullTimePtr(sentAt)
	n.DeliveredAt = nullTimePtr(deliveredAt)
	n.FailedAt = nullTimePtr(failedAt)
	return &n, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func (r *PostgresRepository) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	n, err := scanNotification(r.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("notification", id)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("select_notification", err)
	}
	return n, nil
}

// ListForRecipient returns the newest notifications of a recipient, at most limit. An
// empty recipientType matches every recipient type sharing the id.
func (r *PostgresRepository) ListForRecipient(ctx context.Context, recipientType, recipientID string, limit int) ([]models.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE recipient_id = $1 AND ($2::text = '' OR recipient_type = $2)
		ORDER BY created_at DESC
		LIMIT $3`, recipientID, recipientType, limit)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("select_notifications", err)
	}
	defer rows.Close()

	out := []models.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan_notification", err)
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("select_notifications", err)
	}
	return out, nil
}
