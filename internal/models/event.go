package models

import "time"

const (
	EventEmergencyCreated = "emergency_created"
	EventStatusChanged    = "status_changed"
)

// Event is a domain event fanned out to subscribers.
type Event interface {
	EventType() string
	// EmergencyRef returns the referenced emergency id, or "" when there is none.
	EmergencyRef() string
}

type EmergencyCreatedEvent struct {
	Emergency Emergency `json:"emergency"`
}

func (e EmergencyCreatedEvent) EventType() string    { return EventEmergencyCreated }
func (e EmergencyCreatedEvent) EmergencyRef() string { return e.Emergency.ID }

type StatusChangedEvent struct {
	EmergencyID        string          `json:"emergency_id"`
	EmergencyType      string          `json:"emergency_type"`
	OldStatus          EmergencyStatus `json:"old_status"`
	NewStatus          EmergencyStatus `json:"new_status"`
	Notes              string          `json:"notes,omitempty"`
	ActualResponseTime *int            `json:"actual_response_time,omitempty"`
	ChangedAt          time.Time       `json:"changed_at"`
}

func (e StatusChangedEvent) EventType() string    { return EventStatusChanged }
func (e StatusChangedEvent) EmergencyRef() string { return e.EmergencyID }

// GenericEvent carries events raised by external processes.
type GenericEvent struct {
	Type        string                 `json:"type"`
	EmergencyID string                 `json:"emergency_id,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

func (e GenericEvent) EventType() string    { return e.Type }
func (e GenericEvent) EmergencyRef() string { return e.EmergencyID }
