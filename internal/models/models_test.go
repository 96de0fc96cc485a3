package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmergencyStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to EmergencyStatus
		want     bool
	}{
		{StatusActive, StatusResolved, true},
		{StatusActive, StatusCancelled, true},
		{StatusActive, StatusActive, false},
		{StatusResolved, StatusCancelled, false},
		{StatusResolved, StatusResolved, false},
		{StatusCancelled, StatusActive, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestNotificationStatus_ForwardOnly(t *testing.T) {
	assert.True(t, NotificationPending.CanAdvance(NotificationSent))
	assert.True(t, NotificationPending.CanAdvance(NotificationDelivered))
	assert.True(t, NotificationSent.CanAdvance(NotificationDelivered))
	assert.True(t, NotificationSent.CanAdvance(NotificationFailed))
	assert.False(t, NotificationSent.CanAdvance(NotificationPending))
	assert.False(t, NotificationDelivered.CanAdvance(NotificationFailed))
	assert.False(t, NotificationFailed.CanAdvance(NotificationSent))

	assert.ElementsMatch(t, []NotificationStatus{NotificationPending, NotificationSent}, PredecessorsOf(NotificationDelivered))
	assert.ElementsMatch(t, []NotificationStatus{NotificationPending}, PredecessorsOf(NotificationSent))
}

func TestParseChannel(t *testing.T) {
	c, ok := ParseChannel("WebSocket")
	assert.True(t, ok)
	assert.Equal(t, ChannelLive, c)

	c, ok = ParseChannel(" sms ")
	assert.True(t, ok)
	assert.Equal(t, ChannelSMS, c)

	_, ok = ParseChannel("pigeon")
	assert.False(t, ok)
}

func TestRequiredServices(t *testing.T) {
	rs := RequiredServices{Fire: true}.Union(RequiredServices{Medical: true})
	assert.Equal(t, RequiredServices{Fire: true, Medical: true}, rs)
	assert.Equal(t, []string{"FIRE", "MEDICAL"}, rs.ServiceTypes())
	assert.Empty(t, RequiredServices{}.ServiceTypes())
}

func TestLocationValid(t *testing.T) {
	assert.True(t, Location{Lat: 40.7, Lon: -74}.Valid())
	assert.False(t, Location{Lat: 91, Lon: 0}.Valid())
	assert.False(t, Location{Lat: 0, Lon: -181}.Valid())
}

func TestSubscriptionTarget(t *testing.T) {
	assert.Equal(t, "user-1", NotificationSubscription{SubscriberID: "user-1"}.Target())
	assert.Equal(t, "+15550100", NotificationSubscription{SubscriberID: "user-1", Address: "+15550100"}.Target())
}
