// Package store is the remote data store the live collections read from and write to.
//
// A Client answers ordered queries over a topic (one table of the dashboard), applies
// mutations, and delivers change notifications for a topic to a single callback per
// subscription. Notifications say that something changed, never what the new rows are;
// consumers are expected to re-query.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Op is the kind of mutation a write or change event describes.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

func (o Op) Valid() bool {
	switch o {
	case OpInsert, OpUpdate, OpUpsert, OpDelete:
		return true
	default:
		return false
	}
}

// Reserved record fields kept in sync with the row columns.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

var (
	ErrNotFound        = errors.New("store: record not found")
	ErrInvalidMutation = errors.New("store: invalid mutation")
	// ErrSubscriptionLost is reported by Subscription.Err when the transport dropped the subscription.
	ErrSubscriptionLost = errors.New("store: subscription lost")
)

// Record is one row of a topic. Payload is the full JSON document, including the
// reserved id and timestamp fields.
type Record struct {
	ID        string          `json:"id"`
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Query selects every record of Topic ordered by OrderBy.
type Query struct {
	Topic string `json:"topic"`

	// OrderBy is a reserved field or any top-level payload field. Empty means insertion order.
	OrderBy    string `json:"order_by,omitempty"`
	Descending bool   `json:"descending,omitempty"`

	// Limit caps the number of returned records, 0 means no limit.
	Limit int `json:"limit,omitempty"`
}

// Mutation is a single write against a topic.
type Mutation struct {
	Topic   string          `json:"topic"`
	Op      Op              `json:"op"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ChangeEvent tells subscribers that a topic changed.
type ChangeEvent struct {
	Topic string    `json:"topic"`
	Op    Op        `json:"op,omitempty"`
	ID    string    `json:"id,omitempty"`
	At    time.Time `json:"at"`
}

// ChangeFunc receives change events of one subscription.
type ChangeFunc func(ctx context.Context, ev ChangeEvent)

// Subscription is the token for one live subscription held by the store.
type Subscription interface {
	Topic() string

	// Done is closed once the subscription stops delivering events, either after
	// Unsubscribe or because the transport lost it.
	Done() <-chan struct{}

	// Err returns ErrSubscriptionLost when the subscription ended without Unsubscribe.
	Err() error
}

type Client interface {
	Query(ctx context.Context, q Query) ([]Record, error)
	Write(ctx context.Context, m Mutation) (Record, error)
	Subscribe(ctx context.Context, topic string, onChange ChangeFunc) (Subscription, error)
	Unsubscribe(ctx context.Context, sub Subscription) error
}
