package stages

import (
	"context"

	"captionflow/internal/media"
	apperrors "captionflow/internal/pkg/errors"
	"captionflow/internal/pkg/logger"
	"captionflow/internal/worker/transcriber"
)

// Transcribe turns the extracted wav into captions. It writes two sidecars
// next to the wav: <id>.json (the published captions) and <id>.srt (used
// by burn-in).
type Transcribe struct {
	d   Deps
	log *logger.Logger
}

func NewTranscribe(d Deps) *Transcribe {
	d = d.withDefaults()
	return &Transcribe{d: d, log: d.Log.WithComponent("stage.transcribe")}
}

func (s *Transcribe) Topic() string { return TopicTranscribe }

func (s *Transcribe) Handle(ctx context.Context, p Payload) error {
	const op = "stages.transcribe"
	log := s.log.FromContext(ctx)

	if err := p.Validate(); err != nil {
		return err
	}
	if p.Media.Audio == nil || p.Media.Audio.Kind() != media.KindLocal {
		return apperrors.PreconditionFailed("transcription requires a local wav").
			WithField("workflow_id", p.WorkflowID)
	}

	wavPath, err := s.d.Resolver.Source(*p.Media.Audio)
	if err != nil {
		return err
	}
	jsonPath, err := s.d.Resolver.Sidecar(*p.Media.Audio, ".json")
	if err != nil {
		return err
	}
	srtPath, err := s.d.Resolver.Sidecar(*p.Media.Audio, ".srt")
	if err != nil {
		return err
	}

	log.Info("transcribing audio", "source", wavPath)
	transcript, err := s.d.Transcriber.Transcribe(ctx, wavPath)
	if err != nil {
		return err
	}
	captions := transcriber.ToCaptions(transcript)

	if err := transcriber.WriteCaptionsJSON(jsonPath, captions); err != nil {
		return apperrors.Wrap(err, op, "write captions")
	}
	if err := transcriber.WriteSRT(srtPath, captions); err != nil {
		return apperrors.Wrap(err, op, "write srt")
	}

	if err := record(ctx, s.d.Store, p.WorkflowID, TopicTranscribe, jsonPath, media.FileJSON); err != nil {
		return err
	}
	topic, err := forward(ctx, s.d.Queue, TopicTranscribe, p)
	if err != nil {
		return err
	}

	log.Info("subtitles generated", "captions", len(captions), "output", jsonPath, "next", topic)
	return nil
}
