package objects

import (
	"fmt"
	"slices"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

func (s Severity) Valid() bool {
	return slices.Contains(Severities, s)
}

// Rank orders severities from low (1) to critical (4). Unknown values rank 0.
func (s Severity) Rank() int {
	return slices.Index(Severities, s) + 1
}

type AlertStatus string

const (
	AlertStatusActive     AlertStatus = "active"
	AlertStatusResolved   AlertStatus = "resolved"
	AlertStatusMonitoring AlertStatus = "monitoring"
	AlertStatusWatch      AlertStatus = "watch"
)

var AlertStatuses = []AlertStatus{AlertStatusActive, AlertStatusResolved, AlertStatusMonitoring, AlertStatusWatch}

func (s AlertStatus) Valid() bool {
	return slices.Contains(AlertStatuses, s)
}

type IncidentType string

const (
	IncidentTypeFlood      IncidentType = "flood"
	IncidentTypeFire       IncidentType = "fire"
	IncidentTypeEarthquake IncidentType = "earthquake"
	IncidentTypeWeather    IncidentType = "weather"
	IncidentTypeAccident   IncidentType = "accident"
	IncidentTypeHazmat     IncidentType = "hazmat"
	IncidentTypeMedical    IncidentType = "medical"
	IncidentTypeOther      IncidentType = "other"
)

var IncidentTypes = []IncidentType{
	IncidentTypeFlood,
	IncidentTypeFire,
	IncidentTypeEarthquake,
	IncidentTypeWeather,
	IncidentTypeAccident,
	IncidentTypeHazmat,
	IncidentTypeMedical,
	IncidentTypeOther,
}

func (t IncidentType) Valid() bool {
	return slices.Contains(IncidentTypes, t)
}

type ResourceType string

const (
	ResourceTypeShelter          ResourceType = "shelter"
	ResourceTypeHospital         ResourceType = "hospital"
	ResourceTypeFireStation      ResourceType = "fire_station"
	ResourceTypePoliceStation    ResourceType = "police_station"
	ResourceTypeEmergencyContact ResourceType = "emergency_contact"
)

var ResourceTypes = []ResourceType{
	ResourceTypeShelter,
	ResourceTypeHospital,
	ResourceTypeFireStation,
	ResourceTypePoliceStation,
	ResourceTypeEmergencyContact,
}

func (t ResourceType) Valid() bool {
	return slices.Contains(ResourceTypes, t)
}

// ValidationError describes an inbound record that fails field checks.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
