package store

import (
	"fmt"
)

// QueryError is returned when a topic query fails.
type QueryError struct {
	Topic string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s: %v", e.Topic, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// SubscriptionError is returned when a live subscription cannot be established.
type SubscriptionError struct {
	Topic string
	Err   error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscribe %s: %v", e.Topic, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

// WriteError is returned when a mutation is rejected or fails.
type WriteError struct {
	Topic string
	Op    Op
	Err   error
}

func (e *WriteError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("write %s: %v", e.Topic, e.Err)
	}

	return fmt.Sprintf("%s %s: %v", e.Op, e.Topic, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
