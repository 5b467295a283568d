package objects

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EvacuationRoute is a row of evacuation_routes.
type EvacuationRoute struct {
	ID                   string              `json:"id"`
	Name                 string              `json:"name"`
	FromLocation         string              `json:"from_location"`
	ToLocation           string              `json:"to_location"`
	DistanceKM           decimal.NullDecimal `json:"distance_km"`
	EstimatedTimeMinutes *int                `json:"estimated_time_minutes,omitempty"`
	DifficultyLevel      *string             `json:"difficulty_level,omitempty"`
	Capacity             *int                `json:"capacity,omitempty"`
	CurrentUsage         *int                `json:"current_usage,omitempty"`
	CurrentStatus        *string             `json:"current_status,omitempty"`
	AIOptimized          *bool               `json:"ai_optimized,omitempty"`
	RoutePoints          json.RawMessage     `json:"route_points,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

func (r EvacuationRoute) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return invalid("name", "required")
	}

	if strings.TrimSpace(r.FromLocation) == "" {
		return invalid("from_location", "required")
	}

	if strings.TrimSpace(r.ToLocation) == "" {
		return invalid("to_location", "required")
	}

	if r.DistanceKM.Valid && r.DistanceKM.Decimal.IsNegative() {
		return invalid("distance_km", "must not be negative")
	}

	if r.Capacity != nil && r.CurrentUsage != nil && *r.CurrentUsage > *r.Capacity {
		return invalid("current_usage", "exceeds capacity %d", *r.Capacity)
	}

	return nil
}

// Utilization is current usage over capacity, or zero when either is unknown.
func (r EvacuationRoute) Utilization() float64 {
	if r.Capacity == nil || r.CurrentUsage == nil || *r.Capacity <= 0 {
		return 0
	}

	return float64(*r.CurrentUsage) / float64(*r.Capacity)
}
