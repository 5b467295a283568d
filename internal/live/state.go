package live

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a cache's snapshot.
type Status int

const (
	StatusLoading Status = iota
	StatusReady
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "loading":
		*s = StatusLoading
	case "ready":
		*s = StatusReady
	case "error":
		*s = StatusError
	default:
		return fmt.Errorf("unknown status %q", text)
	}

	return nil
}

// State is a consistent view of a cache. Err is only set with StatusError.
type State[T any] struct {
	Snapshot  []T
	Status    Status
	Err       error
	UpdatedAt time.Time
}

// Message returns the error message of an errored state, or "".
func (s State[T]) Message() string {
	if s.Status != StatusError || s.Err == nil {
		return ""
	}

	return s.Err.Error()
}
