package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/looplj/lifeline/internal/log"
	"github.com/looplj/lifeline/internal/pkg/db"
	"github.com/looplj/lifeline/internal/pkg/watcher"
	"github.com/looplj/lifeline/internal/pkg/xcontext"
	"github.com/looplj/lifeline/internal/pkg/xtime"
)

// publishTimeout bounds a change notification that outlives the write request.
const publishTimeout = 5 * time.Second

// SQLStore keeps every topic in the generic records table and publishes a
// ChangeEvent on the topic after each committed write.
type SQLStore struct {
	db      *sql.DB
	dialect db.Dialect
	topics  *watcher.Topics[ChangeEvent]

	now func() time.Time
}

var _ Client = (*SQLStore)(nil)

// NewSQLStore creates a store over an open database. A nil topics set disables
// change notifications and Subscribe.
func NewSQLStore(sqlDB *sql.DB, dialect db.Dialect, topics *watcher.Topics[ChangeEvent]) *SQLStore {
	return &SQLStore{
		db:      sqlDB,
		dialect: dialect,
		topics:  topics,
		now:     xtime.UTCNow,
	}
}

// Migrate creates the records table when missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, db.CreateTableQuery(s.dialect)); err != nil {
		return fmt.Errorf("create records table: %w", err)
	}

	return nil
}

func (s *SQLStore) Query(ctx context.Context, q Query) ([]Record, error) {
	if q.Topic == "" {
		return nil, &QueryError{Err: errors.New("topic is required")}
	}

	columnOrder := q.OrderBy == "" || db.IsColumnOrder(q.OrderBy)

	limit := 0
	if columnOrder {
		limit = q.Limit
	}

	rows, err := s.db.QueryContext(ctx, db.BuildSelectQuery(s.dialect, q.OrderBy, q.Descending, limit), q.Topic)
	if err != nil {
		return nil, &QueryError{Topic: q.Topic, Err: err}
	}
	defer rows.Close()

	var records []Record

	for rows.Next() {
		rec, err := scanRecord(rows, q.Topic)
		if err != nil {
			return nil, &QueryError{Topic: q.Topic, Err: err}
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, &QueryError{Topic: q.Topic, Err: err}
	}

	if !columnOrder {
		sortByField(records, q.OrderBy, q.Descending)

		if q.Limit > 0 && len(records) > q.Limit {
			records = records[:q.Limit]
		}
	}

	if records == nil {
		records = []Record{}
	}

	return records, nil
}

func (s *SQLStore) Write(ctx context.Context, m Mutation) (Record, error) {
	if m.Topic == "" || !m.Op.Valid() {
		return Record{}, &WriteError{Topic: m.Topic, Op: m.Op, Err: ErrInvalidMutation}
	}

	var (
		rec Record
		err error
	)

	switch m.Op {
	case OpInsert:
		rec, err = s.insert(ctx, s.db, m)
	case OpUpdate:
		rec, err = s.update(ctx, m, false)
	case OpUpsert:
		rec, err = s.update(ctx, m, true)
	case OpDelete:
		rec, err = s.delete(ctx, m)
	}

	if err != nil {
		return Record{}, &WriteError{Topic: m.Topic, Op: m.Op, Err: err}
	}

	s.publish(ctx, ChangeEvent{
		Topic: m.Topic,
		Op:    m.Op,
		ID:    rec.ID,
		At:    s.now().UTC(),
	})

	return rec, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLStore) insert(ctx context.Context, exec execer, m Mutation) (Record, error) {
	id := m.ID
	if id == "" {
		id = uuid.NewString()
	}

	now := s.timestamp()

	payload, err := stampPayload(m.Payload, id, now, now)
	if err != nil {
		return Record{}, err
	}

	if _, err := exec.ExecContext(ctx, db.InsertQuery(s.dialect),
		m.Topic, id, string(payload), now.UnixMilli(), now.UnixMilli()); err != nil {
		return Record{}, err
	}

	return Record{
		ID:        id,
		Topic:     m.Topic,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// update merges the mutation payload into the stored document. With upsert set, a
// missing row is inserted in the same transaction instead of failing.
func (s *SQLStore) update(ctx context.Context, m Mutation, upsert bool) (Record, error) {
	if m.ID == "" {
		return Record{}, fmt.Errorf("%w: id is required", ErrInvalidMutation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanRecord(tx.QueryRowContext(ctx, db.SelectOneQuery(s.dialect), m.Topic, m.ID), m.Topic)
	if errors.Is(err, sql.ErrNoRows) {
		if !upsert {
			return Record{}, ErrNotFound
		}

		rec, err := s.insert(ctx, tx, m)
		if err != nil {
			return Record{}, err
		}

		return rec, tx.Commit()
	}

	if err != nil {
		return Record{}, err
	}

	now := s.timestamp()

	merged, err := mergePayload(current.Payload, m.Payload)
	if err != nil {
		return Record{}, err
	}

	merged, err = stampPayload(merged, current.ID, current.CreatedAt, now)
	if err != nil {
		return Record{}, err
	}

	if _, err := tx.ExecContext(ctx, db.UpdateQuery(s.dialect),
		string(merged), now.UnixMilli(), m.Topic, m.ID); err != nil {
		return Record{}, err
	}

	if err := tx.Commit(); err != nil {
		return Record{}, err
	}

	current.Payload = merged
	current.UpdatedAt = now

	return current, nil
}

func (s *SQLStore) delete(ctx context.Context, m Mutation) (Record, error) {
	if m.ID == "" {
		return Record{}, fmt.Errorf("%w: id is required", ErrInvalidMutation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanRecord(tx.QueryRowContext(ctx, db.SelectOneQuery(s.dialect), m.Topic, m.ID), m.Topic)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}

	if err != nil {
		return Record{}, err
	}

	if _, err := tx.ExecContext(ctx, db.DeleteQuery(s.dialect), m.Topic, m.ID); err != nil {
		return Record{}, err
	}

	return current, tx.Commit()
}

func (s *SQLStore) publish(ctx context.Context, ev ChangeEvent) {
	if s.topics == nil {
		return
	}

	ctx, cancel := xcontext.DetachWithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := s.topics.Notify(ctx, ev.Topic, ev); err != nil {
		log.Warn(ctx, "failed to publish change event",
			log.String("topic", ev.Topic),
			log.String("op", string(ev.Op)),
			log.Cause(err))
	}
}

func (s *SQLStore) timestamp() time.Time {
	return xtime.Millis(s.now())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner, topic string) (Record, error) {
	var (
		rec       Record
		payload   string
		createdAt int64
		updatedAt int64
	)

	if err := row.Scan(&rec.ID, &payload, &createdAt, &updatedAt); err != nil {
		return Record{}, err
	}

	rec.Topic = topic
	rec.Payload = []byte(payload)
	rec.CreatedAt = xtime.FromUnixMilli(createdAt)
	rec.UpdatedAt = xtime.FromUnixMilli(updatedAt)

	return rec, nil
}

// sortByField orders records by a top-level payload field. Records missing the
// field sort first in ascending order; ties keep their current order.
func sortByField(records []Record, field string, descending bool) {
	path := escapePath(field)

	keys := make([]gjson.Result, len(records))
	for i, rec := range records {
		keys[i] = gjson.GetBytes(rec.Payload, path)
	}

	idx := make([]int, len(records))
	for i := range idx {
		idx[i] = i
	}

	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		if descending {
			return kb.Less(ka, true)
		}

		return ka.Less(kb, true)
	})

	sorted := make([]Record, len(records))
	for i, j := range idx {
		sorted[i] = records[j]
	}

	copy(records, sorted)
}
