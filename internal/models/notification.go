package models

import (
	"strings"
	"time"
)

// Channel is a delivery path for notifications.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
	ChannelLive  Channel = "live"
)

// ParseChannel normalizes a channel name. "websocket" is accepted for live.
func ParseChannel(s string) (Channel, bool) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelLive:
		return c, true
	case "websocket":
		return ChannelLive, true
	}
	return "", false
}

// NotificationStatus is the per-recipient delivery state.
type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationSent      NotificationStatus = "sent"
	NotificationDelivered NotificationStatus = "delivered"
	NotificationFailed    NotificationStatus = "failed"
)

func (s NotificationStatus) IsTerminal() bool {
	return s == NotificationDelivered || s == NotificationFailed
}

// CanAdvance reports whether a notification may move from s to next. Status never
// moves backwards.
func (s NotificationStatus) CanAdvance(next NotificationStatus) bool {
	switch s {
	case NotificationPending:
		return next == NotificationSent || next == NotificationDelivered || next == NotificationFailed
	case NotificationSent:
		return next == NotificationDelivered || next == NotificationFailed
	}
	return false
}

// PredecessorsOf lists the statuses from which next can be reached.
func PredecessorsOf(next NotificationStatus) []NotificationStatus {
	var out []NotificationStatus
	for _, s := range []NotificationStatus{NotificationPending, NotificationSent} {
		if s.CanAdvance(next) {
			out = append(out, s)
		}
	}
	return out
}

type NotificationSubscription struct {
	ID               string    `json:"id" db:"id"`
	SubscriberType   string    `json:"subscriber_type" db:"subscriber_type"`
	SubscriberID     string    `json:"subscriber_id" db:"subscriber_id"`
	NotificationType string    `json:"notification_type" db:"notification_type"`
	Channel          Channel   `json:"channel" db:"channel"`
	Address          string    `json:"address,omitempty" db:"address"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// Target returns the channel address, defaulting to the subscriber id.
func (s NotificationSubscription) Target() string {
	if s.Address != "" {
		return s.Address
	}
	return s.SubscriberID
}

type Notification struct {
	ID               string             `json:"id" db:"id"`
	EmergencyID      *string            `json:"emergency_id,omitempty" db:"emergency_id"`
	RecipientType    string             `json:"recipient_type" db:"recipient_type"`
	RecipientID      string             `json:"recipient_id" db:"recipient_id"`
	Channel          Channel            `json:"channel" db:"channel"`
	NotificationType string             `json:"notification_type" db:"notification_type"`
	Message          string             `json:"message" db:"message"`
	Status           NotificationStatus `json:"status" db:"status"`
	Error            string             `json:"error,omitempty" db:"error"`
	CreatedAt        time.Time          `json:"created_at" db:"created_at"`
	SentAt           *time.Time         `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt      *time.Time         `json:"delivered_at,omitempty" db:"delivered_at"`
	FailedAt         *time.Time         `json:"failed_at,omitempty" db:"failed_at"`
}

// NotificationTemplate renders the human readable part of a notification.
type NotificationTemplate struct {
	Type    string `json:"type"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// PublishResult summarizes one fan-out.
type PublishResult struct {
	EventType     string         `json:"event_type"`
	Matched       int            `json:"matched"`
	Sent          int            `json:"sent"`
	Delivered     int            `json:"delivered"`
	Pending       int            `json:"pending"`
	Failed        int            `json:"failed"`
	Notifications []Notification `json:"notifications"`
}

// Record counts a notification under its final status.
func (r *PublishResult) Record(n Notification) {
	r.Notifications = append(r.Notifications, n)
	switch n.Status {
	case NotificationSent:
		r.Sent++
	case NotificationDelivered:
		r.Delivered++
	case NotificationFailed:
		r.Failed++
	default:
		r.Pending++
	}
}
