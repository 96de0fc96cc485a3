package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"rapidresponse/internal/models"
)

// LiveAdapter pushes notifications to connected clients through the Hub. A notification
// is delivered once the connection has written it. An absent client, a full queue, a
// failed write or an expired ctx leave it pending.
type LiveAdapter struct {
	hub *Hub
}

func NewLiveAdapter(hub *Hub) *LiveAdapter {
	return &LiveAdapter{hub: hub}
}

func (a *LiveAdapter) Deliver(ctx context.Context, recipient string, msg *Envelope) (models.NotificationStatus, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return models.NotificationFailed, fmt.Errorf("encode live message: %w", err)
	}
	if err := a.hub.Send(ctx, recipient, raw); err != nil {
		return models.NotificationPending, nil
	}
	return models.NotificationDelivered, nil
}
