package stages

import (
	"context"

	"captionflow/internal/ffmpeg"
	"captionflow/internal/media"
	"captionflow/internal/pkg/logger"
	"captionflow/internal/process"
)

// Compress re-encodes the video, crops it to the requested dimensions and
// muxes the companion audio track when one was supplied.
type Compress struct {
	d   Deps
	log *logger.Logger
}

func NewCompress(d Deps) *Compress {
	d = d.withDefaults()
	return &Compress{d: d, log: d.Log.WithComponent("stage.compress")}
}

func (s *Compress) Topic() string { return TopicCompress }

func (s *Compress) Handle(ctx context.Context, p Payload) error {
	const op = "stages.compress"
	log := s.log.FromContext(ctx)

	if err := p.Validate(); err != nil {
		return err
	}

	// 1. Resolve inputs; a missing local file stops here.
	src, err := s.d.Resolver.ResolvePair(p.Media)
	if err != nil {
		return err
	}

	// 2. Encode
	outRef, outPath := s.d.Resolver.NewOutput(".mp4")
	args := ffmpeg.CompressAndMux(ffmpeg.CompressInput{
		Video:      src.Video,
		Audio:      src.Audio,
		Dimensions: p.Media.Dimensions,
	}, outPath)

	log.Info("compressing video", "with_audio", src.Audio != "", "output", outPath)
	if err := s.d.FFmpeg.Run(ctx, args); err != nil {
		return process.Coded(op, err)
	}

	// 3. Record and hand the mp4 to audio extraction.
	if err := record(ctx, s.d.Store, p.WorkflowID, TopicCompress, outPath, media.FileMP4); err != nil {
		return err
	}
	next := Payload{
		WorkflowID: p.WorkflowID,
		Pipeline:   p.Pipeline,
		WebhookURL: p.WebhookURL,
		Media: media.MediaPair{
			Video:      outRef,
			Dimensions: p.Media.Dimensions,
		},
	}
	topic, err := forward(ctx, s.d.Queue, TopicCompress, next)
	if err != nil {
		return err
	}

	// 4. The inputs were consumed by the encode.
	s.removeInputs(log, p.Media)

	log.Info("video compressed", "output", outPath, "next", topic)
	return nil
}

func (s *Compress) removeInputs(log *logger.Logger, pair media.MediaPair) {
	refs := []media.FileReference{pair.Video}
	if pair.Audio != nil {
		refs = append(refs, *pair.Audio)
	}
	for _, ref := range refs {
		if err := s.d.Resolver.Remove(ref); err != nil {
			log.Warn("failed to remove consumed input", "ref", ref.String(), "error", err.Error())
		}
	}
}
