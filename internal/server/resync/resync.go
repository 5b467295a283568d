// Package resync periodically re-reads the shared collections so a missed change
// notification cannot leave a snapshot stale for longer than one period.
package resync

import (
	"context"
	"time"

	"github.com/zhenzou/executors"
	"go.uber.org/fx"

	"github.com/looplj/lifeline/internal/collections"
	"github.com/looplj/lifeline/internal/live"
	"github.com/looplj/lifeline/internal/log"
)

type Config struct {
	// CRON schedules the resync. Empty disables it.
	CRON string `conf:"cron" yaml:"cron" json:"cron"`

	// Timeout bounds one resync of all collections. Defaults to 1m.
	Timeout time.Duration `conf:"timeout" yaml:"timeout" json:"timeout"`
}

const defaultTimeout = time.Minute

// Collections is the part of collections.Registry the worker refreshes.
type Collections interface {
	Names() []string
	Get(name string) (live.Collection, error)
}

type Worker struct {
	Collections Collections
	Executor    executors.ScheduledExecutor
	Config      Config
	CancelFunc  context.CancelFunc
}

type Params struct {
	fx.In

	Config   Config
	Registry *collections.Registry
	Executor executors.ScheduledExecutor
}

func NewWorker(params Params) *Worker {
	return &Worker{
		Collections: params.Registry,
		Executor:    params.Executor,
		Config:      params.Config,
	}
}

func (w *Worker) Start(ctx context.Context) error {
	if w.Config.CRON == "" {
		log.Info(ctx, "resync worker disabled")
		return nil
	}

	cancelFunc, err := w.Executor.ScheduleFuncAtCronRate(w.run, executors.CRONRule{Expr: w.Config.CRON})
	if err != nil {
		return err
	}

	w.CancelFunc = cancelFunc

	log.Info(ctx, "resync worker started", log.String("cron", w.Config.CRON))

	return nil
}

// Stop cancels the schedule. The executor itself is shut down by its owner.
func (w *Worker) Stop(ctx context.Context) error {
	if w.CancelFunc != nil {
		w.CancelFunc()
		w.CancelFunc = nil
	}

	return nil
}

func (w *Worker) run(ctx context.Context) {
	timeout := w.Config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	w.Resync(ctx)
}

// Resync refreshes every collection and returns the names that failed.
func (w *Worker) Resync(ctx context.Context) []string {
	start := time.Now()

	var failed []string

	for _, name := range w.Collections.Names() {
		coll, err := w.Collections.Get(name)
		if err != nil {
			log.Warn(ctx, "resync skipped collection", log.String("collection", name), log.Cause(err))
			failed = append(failed, name)

			continue
		}

		if err := coll.Refresh(ctx); err != nil {
			log.Error(ctx, "resync refresh failed", log.String("collection", name), log.Cause(err))
			failed = append(failed, name)
		}
	}

	log.Debug(ctx, "resync finished",
		log.Duration("elapsed", time.Since(start)),
		log.Strings("failed", failed))

	return failed
}
