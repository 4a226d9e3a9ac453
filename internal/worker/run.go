package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"captionflow/internal/ledger"
	apperrors "captionflow/internal/pkg/errors"
	"captionflow/internal/pkg/logger"
	"captionflow/internal/worker/queue"
	"captionflow/internal/worker/stages"
)

// Worker consumes every stage topic and applies the retry policy to the
// errors stages return.
type Worker struct {
	d   Deps
	log *logger.Logger
}

func New(d Deps) *Worker {
	if d.Log == nil {
		d.Log = logger.NewDefault()
	}
	if d.Ledger == nil {
		d.Ledger = ledger.Nop{}
	}
	if d.MaxAttempts <= 0 {
		d.MaxAttempts = defaultMaxAttempts
	}
	if d.ReserveTimeout <= 0 {
		d.ReserveTimeout = defaultReserveTimeout
	}
	return &Worker{d: d, log: d.Log.WithComponent("worker")}
}

// Run blocks until ctx is cancelled and every consumer has returned.
func Run(ctx context.Context, d Deps) error {
	return New(d).Run(ctx)
}

func (w *Worker) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, st := range w.d.Stages {
		n := w.d.concurrency(st.Topic())
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.consume(ctx, st)
			}()
		}
		w.log.Info("consuming topic", "topic", st.Topic(), "concurrency", n)
	}

	wg.Wait()
	w.log.Info("worker stopped")
	return ctx.Err()
}

func (w *Worker) consume(ctx context.Context, st stages.Stage) {
	log := w.log.WithStage(st.Topic())
	for {
		if ctx.Err() != nil {
			return
		}

		env, err := w.d.Queue.Reserve(ctx, st.Topic(), w.d.ReserveTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("queue reserve error, retrying", "error", err.Error())
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if env == nil {
			continue
		}

		w.Process(ctx, st, env)
	}
}

// Process runs one reserved envelope through st and always acknowledges
// it. Retryable failures are re-enqueued first as a new attempt.
func (w *Worker) Process(ctx context.Context, st stages.Stage, env *queue.Envelope) {
	var p stages.Payload
	decodeErr := env.Decode(&p)

	jobCtx := logger.ContextWithJobID(ctx, env.ID)
	jobCtx = logger.ContextWithWorkflow(jobCtx, p.WorkflowID, st.Topic())
	jobLog := w.log.FromContext(jobCtx).WithFields(map[string]any{"attempt": env.Attempt})

	// Acks and ledger writes must land even while shutting down.
	bg := context.WithoutCancel(ctx)
	defer func() {
		if err := w.d.Queue.Ack(bg, env); err != nil {
			jobLog.Warn("ack failed", "error", err.Error())
		}
	}()

	if decodeErr != nil {
		w.fail(bg, jobLog, p.WorkflowID, st.Topic(), decodeErr, 0)
		return
	}

	if err := w.d.Ledger.MarkRunning(bg, p.WorkflowID, st.Topic()); err != nil && !errors.Is(err, ledger.ErrWorkflowNotFound) {
		jobLog.Warn("ledger update failed", "error", err.Error())
	}

	stageCtx := jobCtx
	if w.d.StageTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(jobCtx, w.d.StageTimeout)
		defer cancel()
	}

	jobLog.Info("processing job")
	start := time.Now()

	err := st.Handle(stageCtx, p)
	elapsed := time.Since(start)
	if err == nil {
		jobLog.Info("job completed", "duration_ms", elapsed.Milliseconds())
		return
	}

	if apperrors.IsRetryable(err) && env.Attempt < w.d.MaxAttempts && ctx.Err() == nil {
		rerr := w.d.Queue.Retry(bg, env)
		if rerr == nil {
			jobLog.WithError(err).Warn("job failed, retrying",
				"duration_ms", elapsed.Milliseconds(),
				"next_attempt", env.Attempt+1,
			)
			return
		}
		jobLog.Warn("retry enqueue failed", "error", rerr.Error())
	}

	w.fail(bg, jobLog, p.WorkflowID, st.Topic(), err, elapsed)
}

// fail logs one structured failure line and records it in the ledger.
// Nothing downstream is enqueued.
func (w *Worker) fail(ctx context.Context, log *logger.Logger, workflowID, topic string, err error, elapsed time.Duration) {
	message := err.Error()
	var ae *apperrors.Error
	if apperrors.As(err, &ae) {
		message = ae.Message
	}

	log.WithError(err).Error("job failed",
		"message", message,
		"duration_ms", elapsed.Milliseconds(),
	)

	if workflowID == "" {
		return
	}
	if lerr := w.d.Ledger.MarkFailed(ctx, workflowID, topic, message); lerr != nil && !errors.Is(lerr, ledger.ErrWorkflowNotFound) {
		log.Warn("ledger update failed", "error", lerr.Error())
	}
}
