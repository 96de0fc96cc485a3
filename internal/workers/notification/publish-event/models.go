package publishevent

// Input names an event raised by a process step. Data is rendered by the generic
// notification template.
type Input struct {
	EventType   string                 `json:"eventType"`
	EmergencyID string                 `json:"emergencyId,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

type Output struct {
	EventType string `json:"eventType"`
	Matched   int    `json:"matched"`
	Sent      int    `json:"sent"`
	Delivered int    `json:"delivered"`
	Pending   int    `json:"pending"`
	Failed    int    `json:"failed"`
}
