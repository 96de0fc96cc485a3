package models

import (
	"strings"
	"time"
)

// Priority is the urgency assigned by classification.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// ParsePriority normalizes a priority label, reporting whether it is known.
func ParsePriority(s string) (Priority, bool) {
	p := Priority(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return p, true
	}
	return "", false
}

// EmergencyStatus is the lifecycle state of an emergency.
type EmergencyStatus string

const (
	StatusActive    EmergencyStatus = "ACTIVE"
	StatusResolved  EmergencyStatus = "RESOLVED"
	StatusCancelled EmergencyStatus = "CANCELLED"
)

// ParseEmergencyStatus normalizes a status label, reporting whether it is known.
func ParseEmergencyStatus(s string) (EmergencyStatus, bool) {
	st := EmergencyStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusActive, StatusResolved, StatusCancelled:
		return st, true
	}
	return "", false
}

// IsTerminal reports whether no further status change is accepted.
func (s EmergencyStatus) IsTerminal() bool {
	return s == StatusResolved || s == StatusCancelled
}

// CanTransition reports whether moving from s to next is legal.
func (s EmergencyStatus) CanTransition(next EmergencyStatus) bool {
	return s == StatusActive && next.IsTerminal()
}

// Emergency types produced by the classifier. Type stays free-form; these are the
// values the resolver and enrichment react to.
const (
	TypeFire            = "FIRE"
	TypeMedical         = "MEDICAL"
	TypeCrime           = "CRIME"
	TypeNaturalDisaster = "NATURAL_DISASTER"
	TypeTraffic         = "TRAFFIC"
	TypeOther           = "OTHER"
)

// NormalizeType upper-cases and trims an emergency type.
func NormalizeType(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinates are within WGS84 bounds.
func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lon >= -180 && l.Lon <= 180
}

// RequiredServices flags the responder kinds an emergency needs.
type RequiredServices struct {
	Fire    bool `json:"fire"`
	Medical bool `json:"medical"`
	Police  bool `json:"police"`
	Rescue  bool `json:"rescue"`
}

// Union returns the services required by either r or o.
func (r RequiredServices) Union(o RequiredServices) RequiredServices {
	return RequiredServices{
		Fire:    r.Fire || o.Fire,
		Medical: r.Medical || o.Medical,
		Police:  r.Police || o.Police,
		Rescue:  r.Rescue || o.Rescue,
	}
}

// ServiceTypes lists the required services as availability service types.
func (r RequiredServices) ServiceTypes() []string {
	var out []string
	if r.Fire {
		out = append(out, "FIRE")
	}
	if r.Medical {
		out = append(out, "MEDICAL")
	}
	if r.Police {
		out = append(out, "POLICE")
	}
	if r.Rescue {
		out = append(out, "RESCUE")
	}
	return out
}

// ReportDetails is the processed content of a report.
type ReportDetails struct {
	OriginalText     string            `json:"original_text"`
	OriginalLanguage string            `json:"original_language"`
	ProcessedText    string            `json:"processed_text"`
	Location         *Location         `json:"location,omitempty"`
	Confidence       float64           `json:"confidence"`
	RequiredServices RequiredServices  `json:"required_services"`
	Context          *EmergencyContext `json:"context,omitempty"`
}

// EmergencyRecord is the assembled outcome of intake, stored as the response plan.
type EmergencyRecord struct {
	Type     string        `json:"type"`
	Priority Priority      `json:"priority"`
	Details  ReportDetails `json:"details"`
}

type Emergency struct {
	ID                    string          `json:"id" db:"id"`
	Type                  string          `json:"emergency_type" db:"emergency_type"`
	Priority              Priority        `json:"priority_level" db:"priority_level"`
	Status                EmergencyStatus `json:"status" db:"status"`
	Location              *Location       `json:"location,omitempty"`
	ResponsePlan          EmergencyRecord `json:"response_plan" db:"response_plan"`
	EstimatedResponseTime *int            `json:"estimated_response_time,omitempty" db:"estimated_response_time"`
	ActualResponseTime    *int            `json:"actual_response_time,omitempty" db:"actual_response_time"`
	Notes                 string          `json:"notes,omitempty" db:"notes"`
	CreatedAt             time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at" db:"updated_at"`
}

// EmergencyStatusUpdate is one immutable audit row per accepted transition.
type EmergencyStatusUpdate struct {
	ID          string          `json:"id" db:"id"`
	EmergencyID string          `json:"emergency_id" db:"emergency_id"`
	OldStatus   EmergencyStatus `json:"old_status" db:"old_status"`
	NewStatus   EmergencyStatus `json:"new_status" db:"new_status"`
	Notes       string          `json:"notes,omitempty" db:"notes"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// ServiceStatus is the operational state of a responder service.
type ServiceStatus string

const (
	ServiceActive   ServiceStatus = "active"
	ServiceLimited  ServiceStatus = "limited"
	ServiceInactive ServiceStatus = "inactive"
)

func ParseServiceStatus(s string) (ServiceStatus, bool) {
	st := ServiceStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case ServiceActive, ServiceLimited, ServiceInactive:
		return st, true
	}
	return "", false
}

type ServiceAvailability struct {
	ServiceType         string        `json:"service_type" db:"service_type"`
	Status              ServiceStatus `json:"status" db:"status"`
	AvailableUnits      int           `json:"available_units" db:"available_units"`
	AverageResponseTime *int          `json:"average_response_time,omitempty" db:"average_response_time"`
	UpdatedAt           time.Time     `json:"updated_at" db:"updated_at"`
}

// HistoryFilter narrows emergency history queries. Zero values mean no filter.
type HistoryFilter struct {
	From   *time.Time
	To     *time.Time
	Type   string
	Status EmergencyStatus
	Limit  int
}

// EmergencyStats summarizes emergencies created within a period.
type EmergencyStats struct {
	Period              string         `json:"time_period"`
	TotalEmergencies    int            `json:"total_emergencies"`
	AverageResponseTime *float64       `json:"average_response_time"`
	ByType              map[string]int `json:"emergency_types"`
	SuccessRate         float64        `json:"success_rate"`
}
