package stages

import (
	"context"

	"captionflow/internal/ffmpeg"
	"captionflow/internal/media"
	"captionflow/internal/models"
	apperrors "captionflow/internal/pkg/errors"
	"captionflow/internal/pkg/logger"
	"captionflow/internal/process"
)

// BurnIn renders the srt sidecar of the workflow's wav onto the video.
// It is the last stage of the burn-in pipeline.
type BurnIn struct {
	d   Deps
	log *logger.Logger
}

func NewBurnIn(d Deps) *BurnIn {
	d = d.withDefaults()
	return &BurnIn{d: d, log: d.Log.WithComponent("stage.burn_in")}
}

func (s *BurnIn) Topic() string { return TopicBurnIn }

func (s *BurnIn) Handle(ctx context.Context, p Payload) error {
	const op = "stages.burn_in"
	log := s.log.FromContext(ctx)

	if err := p.Validate(); err != nil {
		return err
	}
	if p.Media.Audio == nil || p.Media.Audio.Kind() != media.KindLocal {
		return apperrors.PreconditionFailed("burn-in requires the transcribed wav reference").
			WithField("workflow_id", p.WorkflowID)
	}

	srtPath, err := s.d.Resolver.Sidecar(*p.Media.Audio, ".srt")
	if err != nil {
		return err
	}
	if err := s.d.Resolver.Require(srtPath); err != nil {
		return err
	}
	video, err := s.d.Resolver.Source(p.Media.Video)
	if err != nil {
		return err
	}

	_, outPath := s.d.Resolver.NewOutput(".mp4")
	filter := ffmpeg.BurnInFilter(srtPath, p.Media.Dimensions)

	log.Info("burning subtitles", "subtitles", srtPath, "output", outPath)
	if err := s.d.FFmpeg.Run(ctx, ffmpeg.BurnIn(video, filter, outPath)); err != nil {
		return process.Coded(op, err)
	}

	// Only the rendered video stays in the workflow context.
	if err := s.d.Store.Clear(ctx, p.WorkflowID); err != nil {
		return err
	}
	if err := record(ctx, s.d.Store, p.WorkflowID, TopicBurnIn, outPath, media.FileMP4); err != nil {
		return err
	}
	s.removeIntermediates(log, p.Media, srtPath)

	if err := s.d.Ledger.Complete(ctx, p.WorkflowID, models.Outputs{OutputPath: outPath}); err != nil {
		log.Warn("failed to record completion", "error", err.Error())
	}

	log.Info("subtitles burned", "output", outPath)
	return nil
}

// removeIntermediates deletes the consumed local video, the wav and both
// caption sidecars.
func (s *BurnIn) removeIntermediates(log *logger.Logger, pair media.MediaPair, srtPath string) {
	paths := []string{srtPath, media.SidecarPath(srtPath, ".json")}
	for _, ref := range []media.FileReference{pair.Video, *pair.Audio} {
		if ref.Kind() != media.KindLocal {
			continue
		}
		if p, err := s.d.Resolver.Path(ref); err == nil {
			paths = append(paths, p)
		}
	}
	for _, p := range paths {
		if err := media.RemoveFile(p); err != nil {
			log.Warn("failed to remove intermediate", "path", p, "error", err.Error())
		}
	}
}
