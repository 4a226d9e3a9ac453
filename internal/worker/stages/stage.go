// Package stages implements the pipeline's stage workers. Each stage
// consumes one queue topic, performs one transformation, records its
// artifact in the workflow context and enqueues the next stage of the
// payload's pipeline.
package stages

import (
	"context"

	"captionflow/internal/assethost"
	"captionflow/internal/contextstore"
	"captionflow/internal/ledger"
	"captionflow/internal/media"
	"captionflow/internal/models"
	apperrors "captionflow/internal/pkg/errors"
	"captionflow/internal/pkg/logger"
	"captionflow/internal/worker/transcriber"
	"captionflow/internal/worker/webhook"
)

// Payload is the message carried on every topic.
type Payload struct {
	WorkflowID string          `json:"workflowId"`
	Pipeline   Pipeline        `json:"pipeline"`
	Media      media.MediaPair `json:"media"`
	WebhookURL string          `json:"webhookUrl,omitempty"`
}

type Stage interface {
	Topic() string
	Handle(ctx context.Context, p Payload) error
}

// Runner runs ffmpeg with an argument vector.
type Runner interface {
	Run(ctx context.Context, args []string) error
}

type ContextStore interface {
	GetMany(ctx context.Context, workflowID string, stages ...contextstore.StageKey) ([]media.Entry, error)
	Set(ctx context.Context, workflowID string, stage contextstore.StageKey, entry media.Entry) error
	Clear(ctx context.Context, workflowID string) error
}

type Enqueuer interface {
	Enqueue(ctx context.Context, topic string, payload any) (string, error)
}

type Completer interface {
	Complete(ctx context.Context, id string, out models.Outputs) error
}

type Transcriber interface {
	Transcribe(ctx context.Context, wavPath string) (transcriber.Transcript, error)
}

type Uploader interface {
	Upload(ctx context.Context, localPath string, opts assethost.UploadOptions) (assethost.UploadResult, error)
}

type Notifier interface {
	Notify(ctx context.Context, target string, n webhook.Notification) error
}

type Deps struct {
	Resolver    *media.Resolver
	FFmpeg      Runner
	Store       ContextStore
	Queue       Enqueuer
	Ledger      Completer
	Transcriber Transcriber
	Host        Uploader
	Webhook     Notifier
	// DefaultWebhookURL is notified when a payload carries no webhook.
	DefaultWebhookURL string
	// UploadFolder defaults to assethost.DefaultFolder.
	UploadFolder string
	Log          *logger.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Log == nil {
		d.Log = logger.NewDefault()
	}
	if d.Ledger == nil {
		d.Ledger = ledger.Nop{}
	}
	if d.UploadFolder == "" {
		d.UploadFolder = assethost.DefaultFolder
	}
	return d
}

// All returns every stage wired with d.
func All(d Deps) []Stage {
	return []Stage{
		NewCompress(d),
		NewExtractAudio(d),
		NewTranscribe(d),
		NewBurnIn(d),
		NewPublish(d),
	}
}

// forward enqueues next onto the topic after from in the payload's
// pipeline. It is a no-op for terminal stages.
func forward(ctx context.Context, q Enqueuer, from string, next Payload) (string, error) {
	topic, ok := next.Pipeline.Next(from)
	if !ok {
		return "", nil
	}
	if _, err := q.Enqueue(ctx, topic, next); err != nil {
		return "", err
	}
	return topic, nil
}

// record writes the stage's artifact under its own context key.
func record(ctx context.Context, s ContextStore, workflowID, topic, path string, ft media.FileType) error {
	key, _ := StageKey(topic)
	return s.Set(ctx, workflowID, key, media.Entry{FilePath: path, ExtensionFile: ft})
}

// Validate rejects payloads no stage can act on.
func (p *Payload) Validate() error {
	if p.WorkflowID == "" {
		return apperrors.ValidationField("workflowId", "required")
	}
	pl, err := ParsePipeline(string(p.Pipeline))
	if err != nil {
		return err
	}
	p.Pipeline = pl
	return p.Media.Validate()
}
