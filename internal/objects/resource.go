package objects

import (
	"encoding/json"
	"strings"
	"time"
)

// EmergencyResource is a row of emergency_resources.
type EmergencyResource struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Type             ResourceType    `json:"type"`
	Address          string          `json:"address"`
	Phone            *string         `json:"phone,omitempty"`
	Email            *string         `json:"email,omitempty"`
	Capacity         *int            `json:"capacity,omitempty"`
	CurrentOccupancy *int            `json:"current_occupancy,omitempty"`
	Available        *bool           `json:"available,omitempty"`
	Coordinates      json.RawMessage `json:"coordinates,omitempty"`
	AdditionalInfo   json.RawMessage `json:"additional_info,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (r EmergencyResource) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return invalid("name", "required")
	}

	if strings.TrimSpace(r.Address) == "" {
		return invalid("address", "required")
	}

	if !r.Type.Valid() {
		return invalid("type", "unknown resource type %q", r.Type)
	}

	if r.Capacity != nil && *r.Capacity < 0 {
		return invalid("capacity", "must not be negative")
	}

	return nil
}

// HasSpace reports whether the resource is available and below capacity.
// Resources without a capacity are treated as having space when available.
func (r EmergencyResource) HasSpace() bool {
	if r.Available != nil && !*r.Available {
		return false
	}

	if r.Capacity == nil || r.CurrentOccupancy == nil {
		return true
	}

	return *r.CurrentOccupancy < *r.Capacity
}
