// Package dispatch turns a normalized ingestion request into the first job
// of a pipeline.
package dispatch

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"captionflow/internal/ledger"
	"captionflow/internal/media"
	"captionflow/internal/models"
	apperrors "captionflow/internal/pkg/errors"
	"captionflow/internal/pkg/logger"
	"captionflow/internal/worker/stages"
)

// Source is one ingested file: either hosted at URL, or uploaded to the
// media directory as ID+Extension. For hosted files ID is the caller's own
// identifier and only travels in logs.
type Source struct {
	ID        string
	URL       string
	Extension string
}

func (s Source) ref() media.FileReference {
	if s.URL != "" {
		return media.Remote(s.URL, s.Extension)
	}
	return media.Local(s.ID, s.Extension)
}

// JobInput is what the ingestion API produces from either request shape.
type JobInput struct {
	WorkflowID string
	Pipeline   string
	Video      Source
	Audio      *Source
	Dimensions *media.VideoDimensions
	WebhookURL string
}

// Dispatch is a routed job: the topic to enqueue and its payload.
type Dispatch struct {
	Topic   string
	Payload stages.Payload
}

// Route picks the entry stage of the requested pipeline and builds its
// payload. A workflow id is generated when the input has none.
func Route(in JobInput) (Dispatch, error) {
	pl, err := stages.ParsePipeline(in.Pipeline)
	if err != nil {
		return Dispatch{}, err
	}

	pair := media.MediaPair{Video: in.Video.ref(), Dimensions: in.Dimensions}
	if in.Audio != nil {
		a := in.Audio.ref()
		pair.Audio = &a
	}
	if err := pair.Validate(); err != nil {
		return Dispatch{}, err
	}

	wf := in.WorkflowID
	if wf == "" {
		wf = uuid.NewString()
	}

	return Dispatch{
		Topic: pl.Entry(),
		Payload: stages.Payload{
			WorkflowID: wf,
			Pipeline:   pl,
			Media:      pair,
			WebhookURL: in.WebhookURL,
		},
	}, nil
}

type Recorder interface {
	Create(ctx context.Context, w *models.Workflow) error
	MarkFailed(ctx context.Context, id, stage, cause string) error
}

type Dispatcher struct {
	queue  stages.Enqueuer
	ledger Recorder
	log    *logger.Logger
}

func New(q stages.Enqueuer, rec Recorder, log *logger.Logger) *Dispatcher {
	if rec == nil {
		rec = ledger.Nop{}
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Dispatcher{queue: q, ledger: rec, log: log.WithComponent("dispatch")}
}

// Result identifies an accepted job.
type Result struct {
	JobID      string `json:"jobId"`
	WorkflowID string `json:"workflowId"`
	Topic      string `json:"topic"`
}

// Submit routes in, records the workflow as queued and enqueues its entry
// stage.
func (d *Dispatcher) Submit(ctx context.Context, in JobInput) (Result, error) {
	const op = "dispatch.submit"

	job, err := Route(in)
	if err != nil {
		return Result{}, err
	}
	wf := job.Payload.WorkflowID

	err = d.ledger.Create(ctx, &models.Workflow{
		ID:       wf,
		Pipeline: string(job.Payload.Pipeline),
		Status:   models.StatusQueued,
		Stage:    job.Topic,
	})
	if errors.Is(err, ledger.ErrWorkflowExists) {
		return Result{}, apperrors.Conflict("workflow already exists").WithField("workflowId", wf)
	}
	if err != nil {
		return Result{}, apperrors.WrapWithCode(err, apperrors.CodeUnavailable, op, "record workflow")
	}

	jobID, err := d.queue.Enqueue(ctx, job.Topic, job.Payload)
	if err != nil {
		if lerr := d.ledger.MarkFailed(context.WithoutCancel(ctx), wf, job.Topic, "enqueue failed"); lerr != nil {
			d.log.Warn("ledger update failed", "workflow_id", wf, "error", lerr.Error())
		}
		return Result{}, err
	}

	attrs := []any{
		"workflow_id", wf,
		"job_id", jobID,
		"topic", job.Topic,
		"video", job.Payload.Media.Video.String(),
		"video_id", in.Video.ID,
	}
	if in.Audio != nil && in.Audio.ID != "" {
		attrs = append(attrs, "audio_id", in.Audio.ID)
	}
	d.log.FromContext(ctx).Info("workflow dispatched", attrs...)
	return Result{JobID: jobID, WorkflowID: wf, Topic: job.Topic}, nil
}
