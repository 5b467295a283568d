package objects

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EmergencyAlert is a row of emergency_alerts.
type EmergencyAlert struct {
	ID                 string              `json:"id"`
	Title              string              `json:"title"`
	Description        string              `json:"description"`
	Location           string              `json:"location"`
	Type               IncidentType        `json:"type"`
	Severity           Severity            `json:"severity"`
	Status             *AlertStatus        `json:"status,omitempty"`
	AffectedPopulation *string             `json:"affected_population,omitempty"`
	AISeverityScore    decimal.NullDecimal `json:"ai_severity_score"`
	CreatedBy          *string             `json:"created_by,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

func (a EmergencyAlert) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return invalid("title", "required")
	}

	if strings.TrimSpace(a.Description) == "" {
		return invalid("description", "required")
	}

	if strings.TrimSpace(a.Location) == "" {
		return invalid("location", "required")
	}

	if !a.Type.Valid() {
		return invalid("type", "unknown incident type %q", a.Type)
	}

	if !a.Severity.Valid() {
		return invalid("severity", "unknown severity %q", a.Severity)
	}

	if a.Status != nil && !a.Status.Valid() {
		return invalid("status", "unknown status %q", *a.Status)
	}

	return nil
}
