package notification

import (
	"encoding/json"
	"fmt"
	"strings"

	"rapidresponse/internal/models"
)

// DefaultTemplates are the per-event message templates. Placeholders are {{key}} and
// are filled from the event payload.
var DefaultTemplates = map[string]models.NotificationTemplate{
	models.EventEmergencyCreated: {
		Type:    models.EventEmergencyCreated,
		Subject: "New {{priority_level}} priority {{emergency_type}} emergency",
		Body:    "Emergency {{id}} ({{emergency_type}}, priority {{priority_level}}) has been reported and is {{status}}.",
	},
	models.EventStatusChanged: {
		Type:    models.EventStatusChanged,
		Subject: "Emergency {{emergency_id}} is now {{new_status}}",
		Body:    "Emergency {{emergency_id}} ({{emergency_type}}) changed from {{old_status}} to {{new_status}}. {{notes}}",
	},
}

var genericTemplate = models.NotificationTemplate{
	Subject: "Emergency notification: {{type}}",
	Body:    "Event {{type}} for emergency {{emergency_id}}.",
}

// Envelope is the JSON document stored as the notification message and pushed to live
// subscribers.
type Envelope struct {
	Type        string          `json:"type"`
	EmergencyID string          `json:"emergency_id,omitempty"`
	Subject     string          `json:"subject"`
	Text        string          `json:"text"`
	Payload     json.RawMessage `json:"payload"`
}

// Render builds the message for event from the matching template.
func Render(templates map[string]models.NotificationTemplate, event models.Event) (*Envelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event.EventType(), err)
	}

	data, err := flatten(event, payload)
	if err != nil {
		return nil, err
	}

	tmpl, ok := templates[event.EventType()]
	if !ok {
		tmpl = genericTemplate
	}

	return &Envelope{
		Type:        event.EventType(),
		EmergencyID: event.EmergencyRef(),
		Subject:     renderTemplate(tmpl.Subject, data),
		Text:        strings.TrimSpace(renderTemplate(tmpl.Body, data)),
		Payload:     payload,
	}, nil
}

// flatten returns the template variables for an event. Emergency payloads are nested
// under "emergency", so their fields are lifted to the top level.
func flatten(event models.Event, payload []byte) (map[string]interface{}, error) {
	data := map[string]interface{}{}
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", event.EventType(), err)
	}
	if nested, ok := data["emergency"].(map[string]interface{}); ok {
		for k, v := range nested {
			data[k] = v
		}
	}
	if g, ok := event.(models.GenericEvent); ok {
		for k, v := range g.Data {
			if _, exists := data[k]; !exists {
				data[k] = v
			}
		}
	}
	data["type"] = event.EventType()
	if _, ok := data["emergency_id"]; !ok {
		data["emergency_id"] = event.EmergencyRef()
	}
	return data, nil
}

// renderTemplate fills {{key}} placeholders in one left-to-right pass. Keys may use dots
// to reach nested payload fields. Placeholders with no value render empty. Substituted
// values are copied verbatim and never scanned for placeholders themselves.
func renderTemplate(tmpl string, data map[string]interface{}) string {
	var b strings.Builder
	rest := tmpl
	for {
		start := strings.Index(rest, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(rest[start+2:], "}}")
		if end == -1 {
			break
		}
		b.WriteString(rest[:start])
		key := strings.TrimSpace(rest[start+2 : start+2+end])
		b.WriteString(formatValue(lookupValue(data, key)))
		rest = rest[start+2+end+2:]
	}
	b.WriteString(rest)
	return b.String()
}

func lookupValue(data map[string]interface{}, key string) interface{} {
	var current interface{} = data
	for _, part := range strings.Split(key, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		if current, ok = m[part]; !ok {
			return nil
		}
	}
	return current
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
