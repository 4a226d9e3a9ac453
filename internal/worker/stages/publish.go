package stages

import (
	"context"

	"golang.org/x/sync/errgroup"

	"captionflow/internal/assethost"
	"captionflow/internal/contextstore"
	"captionflow/internal/media"
	"captionflow/internal/models"
	apperrors "captionflow/internal/pkg/errors"
	"captionflow/internal/pkg/logger"
	"captionflow/internal/worker/webhook"
)

// published lists the context keys publication reads, in upload order.
var published = []contextstore.StageKey{
	contextstore.KeyCompress,
	contextstore.KeyExtractAudio,
	contextstore.KeySubtitles,
}

// Publish uploads the workflow's artifacts to the asset host and notifies
// the webhook with their public URLs.
type Publish struct {
	d   Deps
	log *logger.Logger
}

func NewPublish(d Deps) *Publish {
	d = d.withDefaults()
	return &Publish{d: d, log: d.Log.WithComponent("stage.publish")}
}

func (s *Publish) Topic() string { return TopicPublish }

func (s *Publish) Handle(ctx context.Context, p Payload) error {
	const op = "stages.publish"
	log := s.log.FromContext(ctx)

	if p.WorkflowID == "" {
		return apperrors.ValidationField("workflowId", "required")
	}

	// 1. One batched read of everything earlier stages recorded.
	entries, err := s.d.Store.GetMany(ctx, p.WorkflowID, published...)
	if err != nil {
		return err
	}

	// 2. Upload present entries concurrently.
	results, err := s.upload(ctx, entries)
	if err != nil {
		return err
	}
	video, audio, subtitles := results[0], results[1], results[2]

	// 3. Video and subtitles are required; audio is optional.
	var missing []string
	if video == nil || video.Format != string(media.FileMP4) {
		missing = append(missing, "video")
	}
	if subtitles == nil || subtitles.ResourceKind != "raw" {
		missing = append(missing, "subtitles")
	}
	if len(missing) > 0 {
		e := apperrors.UploadIncomplete(missing...)
		e.Op = op
		return e
	}

	// 4. Published artifacts, and the srt written beside the captions, are
	// no longer needed locally.
	var local []string
	for _, entry := range entries {
		if !entry.IsEmpty() {
			local = append(local, entry.FilePath)
		}
	}
	local = append(local, media.SidecarPath(entries[2].FilePath, ".srt"))
	for _, path := range local {
		if err := media.RemoveFile(path); err != nil {
			log.Warn("failed to remove published artifact", "path", path, "error", err.Error())
		}
	}

	n := webhook.Notification{
		VideoURL:     video.SecureURL,
		SubtitlesURL: subtitles.SecureURL,
	}
	if audio != nil {
		n.AudioURL = audio.SecureURL
	}

	// 5. Notify once. The local files are gone, so a failure here is final.
	target := p.WebhookURL
	if target == "" {
		target = s.d.DefaultWebhookURL
	}
	if target == "" {
		log.Info("no webhook configured, skipping notification")
	} else if err := s.d.Webhook.Notify(ctx, target, n); err != nil {
		if apperrors.IsRetryable(err) {
			return apperrors.WrapWithCode(err, apperrors.CodeWebhookRejected, op, "UNABLE TO CALL WEBHOOK")
		}
		return err
	}

	if err := s.d.Store.Clear(ctx, p.WorkflowID); err != nil {
		log.Warn("failed to clear workflow context", "error", err.Error())
	}
	out := models.Outputs{VideoURL: n.VideoURL, AudioURL: n.AudioURL, SubtitlesURL: n.SubtitlesURL}
	if err := s.d.Ledger.Complete(ctx, p.WorkflowID, out); err != nil {
		log.Warn("failed to record completion", "error", err.Error())
	}

	log.Info("workflow published", "video_url", n.VideoURL, "subtitles_url", n.SubtitlesURL)
	return nil
}

// upload returns one result per entry, nil where the entry is empty.
func (s *Publish) upload(ctx context.Context, entries []media.Entry) ([]*assethost.UploadResult, error) {
	results := make([]*assethost.UploadResult, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(entries))
	for i, entry := range entries {
		if entry.IsEmpty() {
			continue
		}
		g.Go(func() error {
			res, err := s.d.Host.Upload(gctx, entry.FilePath, assethost.UploadOptions{
				Folder:       s.d.UploadFolder,
				ResourceKind: entry.ExtensionFile.ResourceKind(),
			})
			if err != nil {
				return err
			}
			results[i] = &res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
