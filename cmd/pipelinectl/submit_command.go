package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"captionflow/internal/dispatch"
	"captionflow/internal/media"
)

type submitOptions struct {
	workflowID string
	pipeline   string
	videoURL   string
	videoExt   string
	videoID    string
	videoFile  string
	audioURL   string
	audioExt   string
	audioFile  string
	width      int
	height     int
	webhookURL string
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var opts submitOptions

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Dispatch a video to the pipeline",
		Example: `  pipelinectl submit --video-url https://cdn.example/v.mp4 --video-ext .mp4
  pipelinectl submit --video-file ./clip.mov --audio-file ./voice.mp3 --pipeline burn-in`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			in, err := opts.input(cfg.Paths.MediaDir)
			if err != nil {
				return err
			}

			q, err := ctx.queue(cmd.Context())
			if err != nil {
				return err
			}
			led, err := ctx.workflowLedger(cmd.Context())
			if err != nil {
				return err
			}

			res, err := dispatch.New(q, led, ctx.logger()).Submit(cmd.Context(), in)
			if err != nil {
				return err
			}
			if ctx.json() {
				return writeJSON(cmd, res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued workflow %s on %s (job %s)\n", res.WorkflowID, res.Topic, res.JobID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.workflowID, "workflow-id", "", "Workflow id (generated when empty)")
	f.StringVar(&opts.pipeline, "pipeline", "", "Pipeline: publish or burn-in")
	f.StringVar(&opts.videoURL, "video-url", "", "Hosted video URL")
	f.StringVar(&opts.videoExt, "video-ext", "", "Extension of the hosted video")
	f.StringVar(&opts.videoID, "video-id", "", "Caller id of the hosted video")
	f.StringVar(&opts.videoFile, "video-file", "", "Local video to copy into the media directory")
	f.StringVar(&opts.audioURL, "audio-url", "", "Hosted companion audio URL")
	f.StringVar(&opts.audioExt, "audio-ext", "", "Extension of the hosted audio")
	f.StringVar(&opts.audioFile, "audio-file", "", "Local companion audio to copy into the media directory")
	f.IntVar(&opts.width, "width", 0, "Target video width")
	f.IntVar(&opts.height, "height", 0, "Target video height")
	f.StringVar(&opts.webhookURL, "webhook", "", "Webhook notified after publication")
	cmd.MarkFlagsMutuallyExclusive("video-url", "video-file")
	cmd.MarkFlagsOneRequired("video-url", "video-file")
	cmd.MarkFlagsMutuallyExclusive("audio-url", "audio-file")
	cmd.MarkFlagsRequiredTogether("width", "height")

	return cmd
}

func (o submitOptions) input(mediaDir string) (dispatch.JobInput, error) {
	in := dispatch.JobInput{
		WorkflowID: o.workflowID,
		Pipeline:   o.pipeline,
		WebhookURL: o.webhookURL,
	}
	if o.width != 0 || o.height != 0 {
		in.Dimensions = &media.VideoDimensions{Width: o.width, Height: o.height}
	}

	switch {
	case o.videoURL != "":
		if o.videoExt == "" {
			return in, errors.New("--video-ext is required with --video-url")
		}
		in.Video = dispatch.Source{ID: o.videoID, URL: o.videoURL, Extension: o.videoExt}
	default:
		src, err := importFile(mediaDir, o.videoFile)
		if err != nil {
			return in, err
		}
		in.Video = src
	}

	switch {
	case o.audioURL != "":
		if o.audioExt == "" {
			return in, errors.New("--audio-ext is required with --audio-url")
		}
		in.Audio = &dispatch.Source{URL: o.audioURL, Extension: o.audioExt}
	case o.audioFile != "":
		src, err := importFile(mediaDir, o.audioFile)
		if err != nil {
			return in, err
		}
		in.Audio = &src
	}
	return in, nil
}

// importFile copies path into mediaDir under a fresh id, the same layout
// the ingestion API uses for uploads.
func importFile(mediaDir, path string) (dispatch.Source, error) {
	ext := media.NormalizeExtension(filepath.Ext(path))
	if ext == "" {
		return dispatch.Source{}, fmt.Errorf("%s has no extension", path)
	}
	src, err := os.Open(path)
	if err != nil {
		return dispatch.Source{}, err
	}
	defer src.Close()

	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		return dispatch.Source{}, err
	}
	id := uuid.NewString()
	dst, err := os.Create(filepath.Join(mediaDir, id+ext))
	if err != nil {
		return dispatch.Source{}, err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return dispatch.Source{}, fmt.Errorf("copy %s: %w", path, err)
	}
	if err := dst.Close(); err != nil {
		return dispatch.Source{}, err
	}
	return dispatch.Source{ID: id, Extension: ext}, nil
}
