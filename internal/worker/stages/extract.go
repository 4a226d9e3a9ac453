package stages

import (
	"context"

	"captionflow/internal/ffmpeg"
	"captionflow/internal/media"
	"captionflow/internal/pkg/logger"
	"captionflow/internal/process"
)

// ExtractAudio writes a mono 16 kHz wav of the video's audio track for the
// transcriber.
type ExtractAudio struct {
	d   Deps
	log *logger.Logger
}

func NewExtractAudio(d Deps) *ExtractAudio {
	d = d.withDefaults()
	return &ExtractAudio{d: d, log: d.Log.WithComponent("stage.extract_audio")}
}

func (s *ExtractAudio) Topic() string { return TopicExtractAudio }

func (s *ExtractAudio) Handle(ctx context.Context, p Payload) error {
	const op = "stages.extract_audio"
	log := s.log.FromContext(ctx)

	if err := p.Validate(); err != nil {
		return err
	}

	src, err := s.d.Resolver.Source(p.Media.Video)
	if err != nil {
		return err
	}

	wavRef, wavPath := s.d.Resolver.NewOutput(".wav")
	log.Info("extracting audio", "source", src, "output", wavPath)
	if err := s.d.FFmpeg.Run(ctx, ffmpeg.ExtractAudio(src, wavPath)); err != nil {
		return process.Coded(op, err)
	}

	if err := record(ctx, s.d.Store, p.WorkflowID, TopicExtractAudio, wavPath, media.FileWAV); err != nil {
		return err
	}

	// The video travels on unchanged so later stages can still locate it.
	next := p
	next.Media.Audio = &wavRef
	topic, err := forward(ctx, s.d.Queue, TopicExtractAudio, next)
	if err != nil {
		return err
	}

	log.Info("audio extracted", "output", wavPath, "next", topic)
	return nil
}
