package updatestatus

import "rapidresponse/internal/models"

type Input struct {
	EmergencyID string `json:"emergencyId"`
	Status      string `json:"status"`
	Notes       string `json:"notes,omitempty"`
}

type Output struct {
	EmergencyID        string                 `json:"emergencyId"`
	Status             models.EmergencyStatus `json:"status"`
	ActualResponseTime *int                   `json:"actualResponseTime,omitempty"`
}
