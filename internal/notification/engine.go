// Package notification fans domain events out to subscribers over email, SMS, mobile
// push and live WebSocket connections, and tracks per-recipient delivery status.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"rapidresponse/internal/common/config"
	apperrors "rapidresponse/internal/common/errors"
	"rapidresponse/internal/common/logger"
	"rapidresponse/internal/common/metrics"
	"rapidresponse/internal/common/validation"
	"rapidresponse/internal/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// maxPageSize caps ListForSubscriber.
const maxPageSize = 100

var errChannelNotConfigured = errors.New("channel not configured")

// Store is the persistence the Engine needs. PostgresRepository implements it.
type Store interface {
	CreateSubscription(ctx context.Context, sub *models.NotificationSubscription) (*models.NotificationSubscription, error)
	ListSubscriptionsByType(ctx context.Context, notificationType string) ([]models.NotificationSubscription, error)
	CreateNotification(ctx context.Context, n *models.Notification) error
	UpdateStatus(ctx context.Context, id string, next models.NotificationStatus, errMsg string, at time.Time) (bool, error)
	GetNotification(ctx context.Context, id string) (*models.Notification, error)
	ListForRecipient(ctx context.Context, recipientType, recipientID string, limit int) ([]models.Notification, error)
}

type SubscribeRequest struct {
	SubscriberType   string `json:"subscriber_type"`
	SubscriberID     string `json:"subscriber_id"`
	NotificationType string `json:"notification_type"`
	Channel          string `json:"channel"`
	Address          string `json:"address,omitempty"`
}

type Engine struct {
	store           Store
	adapters        map[models.Channel]ChannelAdapter
	hub             *Hub
	templates       map[string]models.NotificationTemplate
	concurrency     int
	deliveryTimeout time.Duration
	pageSize        int
	now             func() time.Time
	logger          logger.Logger
}

// NewEngine builds an Engine. Channels missing from adapters are treated as disabled.
// hub may be nil when live push is not served.
func NewEngine(store Store, adapters map[models.Channel]ChannelAdapter, hub *Hub, cfg config.NotificationConfig, log logger.Logger) *Engine {
	e := &Engine{
		store:           store,
		adapters:        adapters,
		hub:             hub,
		templates:       DefaultTemplates,
		concurrency:     cfg.Concurrency,
		deliveryTimeout: config.GetDuration(cfg.DeliveryTimeout),
		pageSize:        cfg.PageSize,
		now:             time.Now,
		logger:          log.WithFields(map[string]interface{}{"component": "notification"}),
	}
	if e.adapters == nil {
		e.adapters = map[models.Channel]ChannelAdapter{}
	}
	if e.concurrency <= 0 {
		e.concurrency = 8
	}
	if e.deliveryTimeout <= 0 {
		e.deliveryTimeout = 5 * time.Second
	}
	if e.pageSize <= 0 || e.pageSize > maxPageSize {
		e.pageSize = maxPageSize
	}
	return e
}

// Subscribe registers interest of a subscriber in one notification type on one channel.
// Repeating a subscription is idempotent.
func (e *Engine) Subscribe(ctx context.Context, req SubscribeRequest) (*models.NotificationSubscription, error) {
	sub := models.NotificationSubscription{
		SubscriberType:   strings.TrimSpace(req.SubscriberType),
		SubscriberID:     strings.TrimSpace(req.SubscriberID),
		NotificationType: strings.TrimSpace(req.NotificationType),
		Address:          strings.TrimSpace(req.Address),
	}

	var missing []string
	if sub.SubscriberType == "" {
		missing = append(missing, "subscriber_type")
	}
	if sub.SubscriberID == "" {
		missing = append(missing, "subscriber_id")
	}
	if sub.NotificationType == "" {
		missing = append(missing, "notification_type")
	}
	if strings.TrimSpace(req.Channel) == "" {
		missing = append(missing, "channel")
	}
	if len(missing) > 0 {
		return nil, apperrors.NewInvalidInputError("missing required fields: " + strings.Join(missing, ", "))
	}

	channel, ok := models.ParseChannel(req.Channel)
	if !ok {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("unsupported channel %q", req.Channel))
	}
	sub.Channel = channel

	if err := validateTarget(sub); err != nil {
		return nil, err
	}

	sub.ID = uuid.NewString()
	sub.CreatedAt = e.now().UTC()
	stored, err := e.store.CreateSubscription(ctx, &sub)
	if err != nil {
		return nil, err
	}

	e.logger.Info("Subscription registered", map[string]interface{}{
		"subscription_id":   stored.ID,
		"subscriber_id":     stored.SubscriberID,
		"notification_type": stored.NotificationType,
		"channel":           stored.Channel,
	})
	return stored, nil
}

func validateTarget(sub models.NotificationSubscription) error {
	target := sub.Target()
	switch sub.Channel {
	case models.ChannelEmail:
		if !validation.ValidateEmail(target) {
			return apperrors.NewInvalidInputError("email channel requires a valid email address")
		}
	case models.ChannelSMS:
		if !validation.ValidatePhone(target) {
			return apperrors.NewInvalidInputError("sms channel requires a valid phone number")
		}
	case models.ChannelPush:
		if !strings.HasPrefix(target, "arn:") {
			return apperrors.NewInvalidInputError("push channel requires an endpoint ARN")
		}
	}
	return nil
}

// Publish creates one pending notification per subscription to the event type and
// delivers them concurrently. Delivery failures are recorded on the notification and
// never fail the publish.
func (e *Engine) Publish(ctx context.Context, event models.Event) (*models.PublishResult, error) {
	if event == nil || strings.TrimSpace(event.EventType()) == "" {
		return nil, apperrors.NewInvalidInputError("event type is required")
	}

	subs, err := e.store.ListSubscriptionsByType(ctx, event.EventType())
	if err != nil {
		return nil, err
	}

	result := &models.PublishResult{
		EventType:     event.EventType(),
		Matched:       len(subs),
		Notifications: []models.Notification{},
	}
	if len(subs) == 0 {
		return result, nil
	}

	env, err := Render(e.templates, event)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	message, err := json.Marshal(env)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	var emergencyID *string
	if ref := event.EmergencyRef(); ref != "" {
		emergencyID = &ref
	}

	type job struct {
		n      models.Notification
		target string
	}
	jobs := make([]job, 0, len(subs))
	for _, sub := range subs {
		n := models.Notification{
			ID:               uuid.NewString(),
			EmergencyID:      emergencyID,
			RecipientType:    sub.SubscriberType,
			RecipientID:      sub.SubscriberID,
			Channel:          sub.Channel,
			NotificationType: event.EventType(),
			Message:          string(message),
			Status:           models.NotificationPending,
			CreatedAt:        e.now().UTC(),
		}
		if err := e.store.CreateNotification(ctx, &n); err != nil {
			e.logger.Error("Failed to store notification, skipping delivery", map[string]interface{}{
				"subscriber_id": sub.SubscriberID,
				"channel":       sub.Channel,
				"error":         err.Error(),
			})
			n.Status = models.NotificationFailed
			n.Error = err.Error()
			result.Record(n)
			continue
		}
		jobs = append(jobs, job{n: n, target: sub.Target()})
	}

	out := make([]models.Notification, len(jobs))
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i := range jobs {
		i := i
		g.Go(func() error {
			out[i] = e.deliver(ctx, jobs[i].n, jobs[i].target, env)
			return nil
		})
	}
	_ = g.Wait()

	for _, n := range out {
		result.Record(n)
	}

	e.logger.Info("Event published", map[string]interface{}{
		"event_type": result.EventType,
		"matched":    result.Matched,
		"sent":       result.Sent,
		"delivered":  result.Delivered,
		"pending":    result.Pending,
		"failed":     result.Failed,
	})
	return result, nil
}

// deliver hands n to its channel adapter and persists the status it reached.
func (e *Engine) deliver(ctx context.Context, n models.Notification, target string, env *Envelope) models.Notification {
	status := models.NotificationFailed
	var deliverErr error

	if adapter, ok := e.adapters[n.Channel]; ok {
		dctx, cancel := context.WithTimeout(ctx, e.deliveryTimeout)
		status, deliverErr = adapter.Deliver(dctx, target, env)
		cancel()
	} else {
		deliverErr = errChannelNotConfigured
	}

	if deliverErr != nil {
		status = models.NotificationFailed
		n.Error = fmt.Sprintf("%s: %s", apperrors.ErrCodeDeliveryFailed, deliverErr.Error())
		e.logger.Warn("Notification delivery failed", map[string]interface{}{
			"notification_id": n.ID,
			"channel":         n.Channel,
			"error":           deliverErr.Error(),
		})
	}
	metrics.NotificationsDelivered.WithLabelValues(string(n.Channel), string(status)).Inc()

	if status == models.NotificationPending {
		return n
	}

	at := e.now().UTC()
	if _, err := e.store.UpdateStatus(ctx, n.ID, status, n.Error, at); err != nil {
		e.logger.Error("Failed to record notification status", map[string]interface{}{
			"notification_id": n.ID,
			"status":          status,
			"error":           err.Error(),
		})
	}
	stamp(&n, status, at)
	return n
}

func stamp(n *models.Notification, status models.NotificationStatus, at time.Time) {
	n.Status = status
	switch status {
	case models.NotificationSent:
		n.SentAt = &at
	case models.NotificationDelivered:
		n.DeliveredAt = &at
	case models.NotificationFailed:
		n.FailedAt = &at
	}
}

// Acknowledge marks a pending or sent notification as delivered. Acknowledging a
// delivered notification again is a no-op.
func (e *Engine) Acknowledge(ctx context.Context, id string) (*models.Notification, error) {
	n, err := e.store.GetNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	switch n.Status {
	case models.NotificationDelivered:
		return n, nil
	case models.NotificationFailed:
		return nil, apperrors.NewInvalidTransitionError(string(n.Status), string(models.NotificationDelivered))
	}

	at := e.now().UTC()
	updated, err := e.store.UpdateStatus(ctx, id, models.NotificationDelivered, n.Error, at)
	if err != nil {
		return nil, err
	}
	if !updated {
		// Another writer moved it first.
		current, err := e.store.GetNotification(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Status == models.NotificationDelivered {
			return current, nil
		}
		return nil, apperrors.NewInvalidTransitionError(string(current.Status), string(models.NotificationDelivered))
	}

	stamp(n, models.NotificationDelivered, at)
	return n, nil
}

// ListForSubscriber returns the newest notifications addressed to subscriberID. A
// non-empty subscriberType narrows the list to that subscriber type.
func (e *Engine) ListForSubscriber(ctx context.Context, subscriberType, subscriberID string) ([]models.Notification, error) {
	subscriberID = strings.TrimSpace(subscriberID)
	if subscriberID == "" {
		return nil, apperrors.NewInvalidInputError("subscriber_id is required")
	}
	return e.store.ListForRecipient(ctx, strings.TrimSpace(subscriberType), subscriberID, e.pageSize)
}

// Connect attaches a live connection for clientID. The returned func detaches it.
func (e *Engine) Connect(clientID string, conn Conn) (func(), error) {
	if e.hub == nil {
		return nil, apperrors.NewInvalidInputError("live channel is not enabled")
	}
	if strings.TrimSpace(clientID) == "" {
		return nil, apperrors.NewInvalidInputError("client_id is required")
	}
	return e.hub.Connect(clientID, conn), nil
}

func (e *Engine) Disconnect(clientID string) {
	if e.hub != nil {
		e.hub.Disconnect(clientID)
	}
}
