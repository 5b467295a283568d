package dependencies

import (
	"context"
	"fmt"

	"github.com/zhenzou/executors"

	"github.com/looplj/lifeline/internal/log"
)

type ErrorHandler struct{}

func (h *ErrorHandler) CatchError(runnable executors.Runnable, err error) {
	log.Error(context.Background(), "scheduled task failed",
		log.String("runnable", fmt.Sprintf("%T", runnable)),
		log.Cause(err))
}

type RejectionHandler struct{}

func (h *RejectionHandler) RejectExecution(runnable executors.Runnable, e executors.Executor) error {
	log.Warn(context.Background(), "scheduled task rejected, previous run still busy",
		log.String("runnable", fmt.Sprintf("%T", runnable)))

	return nil
}

// NewExecutors returns the scheduler shared by background workers.
func NewExecutors() executors.ScheduledExecutor {
	return executors.NewPoolScheduleExecutor(
		executors.WithMaxConcurrent(4),
		executors.WithMaxBlockingTasks(16),
		executors.WithErrorHandler(&ErrorHandler{}),
		executors.WithRejectionHandler(&RejectionHandler{}),
	)
}
