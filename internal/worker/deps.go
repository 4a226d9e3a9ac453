package worker

import (
	"context"
	"time"

	"captionflow/internal/pkg/logger"
	"captionflow/internal/worker/queue"
	"captionflow/internal/worker/stages"
)

// JobQueue is the part of the queue the runtime drives.
type JobQueue interface {
	Reserve(ctx context.Context, topic string, timeout time.Duration) (*queue.Envelope, error)
	Ack(ctx context.Context, env *queue.Envelope) error
	Retry(ctx context.Context, env *queue.Envelope) error
}

// StatusRecorder receives lifecycle updates for the workflow ledger.
type StatusRecorder interface {
	MarkRunning(ctx context.Context, id, stage string) error
	MarkFailed(ctx context.Context, id, stage, cause string) error
}

type Deps struct {
	Queue  JobQueue
	Stages []stages.Stage
	Ledger StatusRecorder

	// Concurrency is the number of consumers per topic; missing topics get 1.
	Concurrency map[string]int
	// MaxAttempts bounds redelivery of retryable failures.
	MaxAttempts    int
	StageTimeout   time.Duration
	ReserveTimeout time.Duration

	Log *logger.Logger
}

const (
	defaultMaxAttempts    = 3
	defaultReserveTimeout = 5 * time.Second
)

func (d Deps) concurrency(topic string) int {
	if n := d.Concurrency[topic]; n > 0 {
		return n
	}
	return 1
}
