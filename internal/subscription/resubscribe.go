package subscription

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v5"

	"github.com/looplj/lifeline/internal/log"
	"github.com/looplj/lifeline/internal/metrics"
	"github.com/looplj/lifeline/internal/pkg/xtime"
	"github.com/looplj/lifeline/internal/store"
)

var errTopicReleased = errors.New("subscription: topic released")

// resubscribe retries a lost topic with exponential backoff until it is live again,
// released, or the manager closes. After a successful retry the handles receive a
// synthetic change event so they re-read whatever they missed while the topic was lost.
func (m *Manager) resubscribe(entry *topicEntry) {
	defer m.wg.Done()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.opts.ResubscribeInitialInterval
	b.MaxInterval = m.opts.ResubscribeMaxInterval

	opts := []backoff.RetryOption{backoff.WithBackOff(b)}
	if m.opts.ResubscribeMaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(m.opts.ResubscribeMaxElapsed))
	}

	attempts := 0

	gen, err := backoff.Retry(m.ctx, func() (uint64, error) {
		m.mu.Lock()
		defer m.mu.Unlock()

		if m.closed || m.topics[entry.topic] != entry {
			return 0, backoff.Permanent(errTopicReleased)
		}

		// A Register call got there first.
		if entry.sub != nil {
			return 0, nil
		}

		attempts++

		metrics.RecordResubscribe(m.ctx, entry.topic)

		if err := m.subscribeLocked(m.ctx, entry); err != nil {
			log.Warn(m.ctx, "resubscribe attempt failed",
				log.String("topic", entry.topic),
				log.Int("attempt", attempts),
				log.Cause(err))

			return 0, err
		}

		return entry.gen, nil
	}, opts...)

	m.mu.Lock()
	entry.resubscribing = false
	m.mu.Unlock()

	switch {
	case errors.Is(err, errTopicReleased), errors.Is(err, context.Canceled):
		return
	case err != nil:
		log.Error(m.ctx, "giving up resubscribing, live updates paused until next register",
			log.String("topic", entry.topic),
			log.Int("attempts", attempts),
			log.Cause(err))

		return
	}

	if gen == 0 {
		return
	}

	log.Info(m.ctx, "subscription restored",
		log.String("topic", entry.topic),
		log.Int("attempts", attempts))

	m.dispatch(m.ctx, entry, gen, store.ChangeEvent{Topic: entry.topic, At: xtime.UTCNow()})
}
