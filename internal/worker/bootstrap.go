package worker

import (
	"context"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	apperrors "captionflow/internal/pkg/errors"
	"captionflow/internal/pkg/logger"
)

// LockFile is taken by the worker that owns the pipeline on this host.
const LockFile = ".captionflow.lock"

type TopicPurger interface {
	Purge(ctx context.Context, topics ...string) error
}

type ContextPurger interface {
	Purge(ctx context.Context) (int, error)
}

// Bootstrap resets all pipeline state at worker start: every topic is
// emptied and every workflow context is deleted. Jobs do not survive a
// restart.
type Bootstrap struct {
	Queue  TopicPurger
	Store  ContextPurger
	Topics []string
	Log    *logger.Logger
}

// Run is idempotent.
func (b Bootstrap) Run(ctx context.Context) error {
	log := b.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("bootstrap")

	if err := b.Queue.Purge(ctx, b.Topics...); err != nil {
		return err
	}
	n, err := b.Store.Purge(ctx)
	if err != nil {
		return err
	}

	log.Info("pipeline state reset", "topics", len(b.Topics), "context_keys", n)
	return nil
}

// AcquireLock takes the exclusive pipeline lock in mediaDir. A second
// worker on the same media directory gets FAILED_PRECONDITION instead of
// wiping a live pipeline.
func AcquireLock(mediaDir string) (*flock.Flock, error) {
	const op = "worker.lock"
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		return nil, apperrors.Wrap(err, op, "create media dir")
	}
	lock := flock.New(filepath.Join(mediaDir, LockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, apperrors.Wrap(err, op, "acquire pipeline lock")
	}
	if !locked {
		return nil, apperrors.PreconditionFailed("another worker owns this media directory").
			WithField("lock", lock.Path())
	}
	return lock, nil
}
