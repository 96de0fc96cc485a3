package processreport

import "rapidresponse/internal/models"

// Input carries a report from the process. Audio is base64 encoded.
type Input struct {
	Text     string           `json:"text,omitempty"`
	Audio    []byte           `json:"audio,omitempty"`
	Location *models.Location `json:"location,omitempty"`
}

type Output struct {
	EmergencyID           string                  `json:"emergencyId"`
	EmergencyType         string                  `json:"emergencyType"`
	Priority              models.Priority         `json:"priority"`
	Status                models.EmergencyStatus  `json:"status"`
	RequiredServices      models.RequiredServices `json:"requiredServices"`
	EstimatedResponseTime *int                    `json:"estimatedResponseTime,omitempty"`
	DegradedSources       []string                `json:"degradedSources,omitempty"`
}
