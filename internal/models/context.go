package models

// Conditions and congestion level reported when a source could not be reached.
const UnknownCondition = "unknown"

type Weather struct {
	Temperature *float64 `json:"temperature"`
	Conditions  string   `json:"conditions"`
	WindSpeed   *float64 `json:"wind_speed"`
	Visibility  *float64 `json:"visibility"`
}

// DefaultWeather is used when weather lookup fails.
func DefaultWeather() Weather {
	return Weather{Conditions: UnknownCondition}
}

type Traffic struct {
	CongestionLevel string   `json:"congestion_level"`
	AverageSpeed    *float64 `json:"average_speed"`
	Incidents       []string `json:"incidents"`
}

// DefaultTraffic is used when traffic lookup fails.
func DefaultTraffic() Traffic {
	return Traffic{CongestionLevel: UnknownCondition, Incidents: []string{}}
}

// FacilityKind names the class of nearby facility consulted for an emergency.
type FacilityKind string

const (
	FacilityNone          FacilityKind = ""
	FacilityHospital      FacilityKind = "hospital"
	FacilityFireStation   FacilityKind = "fire_station"
	FacilityPoliceStation FacilityKind = "police_station"
)

type Facility struct {
	ID       string       `json:"id,omitempty"`
	Name     string       `json:"name"`
	Kind     FacilityKind `json:"kind"`
	Address  string       `json:"address,omitempty"`
	Phone    string       `json:"phone,omitempty"`
	Location Location     `json:"location"`
	Distance *float64     `json:"distance_km,omitempty"`
}

// EmergencyContext is the situational data gathered around a report location.
type EmergencyContext struct {
	Weather      Weather      `json:"weather"`
	Traffic      Traffic      `json:"traffic"`
	FacilityType FacilityKind `json:"facility_type,omitempty"`
	Facilities   []Facility   `json:"facilities"`
	Degraded     []string     `json:"degraded,omitempty"`
}
