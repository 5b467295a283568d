package objects

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// IncidentReport is a row of incident_reports.
type IncidentReport struct {
	ID              string              `json:"id"`
	Type            IncidentType        `json:"type"`
	Severity        Severity            `json:"severity"`
	Location        string              `json:"location"`
	Description     string              `json:"description"`
	ContactInfo     *string             `json:"contact_info,omitempty"`
	IsAnonymous     bool                `json:"is_anonymous"`
	Images          []string            `json:"images,omitempty"`
	AISeverityScore decimal.NullDecimal `json:"ai_severity_score"`
	Verified        bool                `json:"verified"`
	VerifiedBy      *string             `json:"verified_by,omitempty"`
	VerifiedAt      *time.Time          `json:"verified_at,omitempty"`
	Status          AlertStatus         `json:"status"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// NewIncidentReport is what a reporter submits. Identity, timestamps, status and
// verification are assigned by the service.
type NewIncidentReport struct {
	Type        IncidentType `json:"type"`
	Severity    Severity     `json:"severity"`
	Location    string       `json:"location"`
	Description string       `json:"description"`
	ContactInfo *string      `json:"contact_info,omitempty"`
	IsAnonymous bool         `json:"is_anonymous"`
	Images      []string     `json:"images,omitempty"`
}

func (r NewIncidentReport) Validate() error {
	if !r.Type.Valid() {
		return invalid("type", "unknown incident type %q", r.Type)
	}

	if !r.Severity.Valid() {
		return invalid("severity", "unknown severity %q", r.Severity)
	}

	if strings.TrimSpace(r.Location) == "" {
		return invalid("location", "required")
	}

	if strings.TrimSpace(r.Description) == "" {
		return invalid("description", "required")
	}

	if r.IsAnonymous && r.ContactInfo != nil && *r.ContactInfo != "" {
		return invalid("contact_info", "must be empty for anonymous reports")
	}

	return nil
}

// Report builds the stored record of a new submission.
func (r NewIncidentReport) Report() IncidentReport {
	return IncidentReport{
		Type:        r.Type,
		Severity:    r.Severity,
		Location:    strings.TrimSpace(r.Location),
		Description: strings.TrimSpace(r.Description),
		ContactInfo: r.ContactInfo,
		IsAnonymous: r.IsAnonymous,
		Images:      r.Images,
		Verified:    false,
		Status:      AlertStatusActive,
	}
}
