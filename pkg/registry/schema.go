package registry

import "encoding/json"

// JobRegistry documents the job types this service handles for process modelers.
type JobRegistry struct {
	Version     string `json:"version"`
	LastUpdated string `json:"lastUpdated"`
	Jobs        []Job  `json:"jobs"`
}

type Job struct {
	TaskType     string          `json:"taskType"`
	DisplayName  string          `json:"displayName"`
	Description  string          `json:"description"`
	Category     string          `json:"category"`
	InputSchema  json.RawMessage `json:"inputSchema"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
	ErrorCodes   []string        `json:"errorCodes"`
	Timeout      string          `json:"timeout"`
	Retries      int             `json:"retries"`
}
