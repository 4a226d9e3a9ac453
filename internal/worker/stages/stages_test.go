package stages

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"captionflow/internal/assethost"
	"captionflow/internal/contextstore"
	"captionflow/internal/media"
	"captionflow/internal/models"
	apperrors "captionflow/internal/pkg/errors"
	"captionflow/internal/pkg/logger"
	"captionflow/internal/worker/transcriber"
	"captionflow/internal/worker/webhook"
)

// fakeFFmpeg records every argv and creates the output file (last arg).
type fakeFFmpeg struct {
	calls [][]string
	err   error
}

func (f *fakeFFmpeg) Run(_ context.Context, args []string) error {
	f.calls = append(f.calls, args)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(args[len(args)-1], []byte("out"), 0o644)
}

type enqueued struct {
	topic   string
	payload Payload
}

type fakeQueue struct {
	jobs []enqueued
}

func (q *fakeQueue) Enqueue(_ context.Context, topic string, payload any) (string, error) {
	q.jobs = append(q.jobs, enqueued{topic: topic, payload: payload.(Payload)})
	return "job-" + topic, nil
}

type fakeLedger struct {
	mu      sync.Mutex
	outputs map[string]models.Outputs
}

func (l *fakeLedger) Complete(_ context.Context, id string, out models.Outputs) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.outputs == nil {
		l.outputs = map[string]models.Outputs{}
	}
	l.outputs[id] = out
	return nil
}

type fakeTranscriber struct {
	transcript transcriber.Transcript
	called     string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, wav string) (transcriber.Transcript, error) {
	f.called = wav
	return f.transcript, nil
}

type fakeHost struct {
	skipExt string
	err     error
}

func (h *fakeHost) Upload(_ context.Context, path string, opts assethost.UploadOptions) (assethost.UploadResult, error) {
	if h.err != nil {
		return assethost.UploadResult{}, h.err
	}
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == h.skipExt {
		return assethost.UploadResult{SecureURL: "https://cdn/x", Format: "bin", ResourceKind: "video"}, nil
	}
	return assethost.UploadResult{
		SecureURL:    "https://cdn/" + opts.Folder + "/" + filepath.Base(path),
		Format:       ext,
		ResourceKind: opts.ResourceKind,
	}, nil
}

type fakeNotifier struct {
	calls  []webhook.Notification
	target string
	err    error
}

func (n *fakeNotifier) Notify(_ context.Context, target string, note webhook.Notification) error {
	n.target = target
	n.calls = append(n.calls, note)
	return n.err
}

type harness struct {
	dir      string
	store    *contextstore.Store
	ffmpeg   *fakeFFmpeg
	queue    *fakeQueue
	ledger   *fakeLedger
	engine   *fakeTranscriber
	host     *fakeHost
	notifier *fakeNotifier
	deps     Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := &harness{
		dir:      t.TempDir(),
		store:    contextstore.New(rdb, "cf", 0),
		ffmpeg:   &fakeFFmpeg{},
		queue:    &fakeQueue{},
		ledger:   &fakeLedger{},
		engine:   &fakeTranscriber{},
		host:     &fakeHost{},
		notifier: &fakeNotifier{},
	}
	h.deps = Deps{
		Resolver:    media.NewResolver(h.dir),
		FFmpeg:      h.ffmpeg,
		Store:       h.store,
		Queue:       h.queue,
		Ledger:      h.ledger,
		Transcriber: h.engine,
		Host:        h.host,
		Webhook:     h.notifier,
		Log:         logger.Discard(),
	}
	return h
}

func (h *harness) touch(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(h.dir, name)
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func countFlag(args []string, flag string) int {
	n := 0
	for _, a := range args {
		if a == flag {
			n++
		}
	}
	return n
}

func TestCompressWithCompanionAudio(t *testing.T) {
	h := newHarness(t)
	videoPath := h.touch(t, "v1.mp4")
	audioPath := h.touch(t, "a1.mp3")
	audio := media.Local("a1", ".mp3")

	p := Payload{
		WorkflowID: "wf",
		Pipeline:   PipelinePublish,
		Media: media.MediaPair{
			Video:      media.Local("v1", ".mp4"),
			Audio:      &audio,
			Dimensions: &media.VideoDimensions{Width: 1080, Height: 1350},
		},
	}
	if err := NewCompress(h.deps).Handle(context.Background(), p); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	args := h.ffmpeg.calls[0]
	if countFlag(args, "-i") != 2 {
		t.Errorf("expected two inputs: %v", args)
	}
	if !slices.Contains(args, "0:v:0") || !slices.Contains(args, "1:a:0") {
		t.Errorf("missing stream mapping: %v", args)
	}
	if !slices.Contains(args, "crop=1080:1350") {
		t.Errorf("missing crop filter: %v", args)
	}

	if len(h.queue.jobs) != 1 || h.queue.jobs[0].topic != TopicExtractAudio {
		t.Fatalf("unexpected enqueued jobs %+v", h.queue.jobs)
	}
	next := h.queue.jobs[0].payload
	if next.Media.Audio != nil || next.Media.Video.Kind() != media.KindLocal || next.Media.Dimensions == nil {
		t.Errorf("unexpected next payload %+v", next)
	}

	entries, _ := h.store.GetMany(context.Background(), "wf", contextstore.KeyCompress)
	if entries[0].ExtensionFile != media.FileMP4 || entries[0].FilePath != args[len(args)-1] {
		t.Errorf("unexpected context entry %+v", entries[0])
	}

	for _, p := range []string{videoPath, audioPath} {
		if _, err := os.Stat(p); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected consumed input %s to be removed", p)
		}
	}
}

func TestCompressRemoteVideoOnly(t *testing.T) {
	h := newHarness(t)
	p := Payload{
		WorkflowID: "wf",
		Media:      media.MediaPair{Video: media.Remote("https://x/v.mp4", ".mp4")},
	}
	if err := NewCompress(h.deps).Handle(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	args := h.ffmpeg.calls[0]
	if countFlag(args, "-i") != 1 || countFlag(args, "-map") != 0 {
		t.Errorf("expected a single input without mapping: %v", args)
	}
	if args[2] != "https://x/v.mp4" {
		t.Errorf("expected remote url as input, got %q", args[2])
	}
}

func TestCompressProcessFailure(t *testing.T) {
	h := newHarness(t)
	h.touch(t, "v1.mp4")
	h.ffmpeg.err = errors.New("boom")

	p := Payload{WorkflowID: "wf", Media: media.MediaPair{Video: media.Local("v1", ".mp4")}}
	if err := NewCompress(h.deps).Handle(context.Background(), p); err == nil {
		t.Fatal("expected error")
	}
	if len(h.queue.jobs) != 0 {
		t.Error("nothing may be enqueued after a failed encode")
	}
	if _, err := os.Stat(filepath.Join(h.dir, "v1.mp4")); err != nil {
		t.Error("input must survive a failed encode")
	}
}

func TestExtractAudioMissingLocalFile(t *testing.T) {
	h := newHarness(t)
	p := Payload{WorkflowID: "wf", Media: media.MediaPair{Video: media.Local("ghost", ".mp4")}}

	err := NewExtractAudio(h.deps).Handle(context.Background(), p)
	if !apperrors.IsNotFound(err) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	if !strings.Contains(err.Error(), "FILE NOT FOUND") {
		t.Errorf("unexpected message %q", err.Error())
	}
	if len(h.ffmpeg.calls) != 0 || len(h.queue.jobs) != 0 {
		t.Error("no process and no downstream job expected")
	}
}

func TestExtractAudioForwardsWav(t *testing.T) {
	h := newHarness(t)
	h.touch(t, "v1.mp4")
	p := Payload{WorkflowID: "wf", Pipeline: PipelineBurnIn, Media: media.MediaPair{Video: media.Local("v1", ".mp4")}}

	if err := NewExtractAudio(h.deps).Handle(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	args := h.ffmpeg.calls[0]
	for _, want := range []string{"-vn", "pcm_s16le", "16000"} {
		if !slices.Contains(args, want) {
			t.Errorf("missing %q in %v", want, args)
		}
	}
	next := h.queue.jobs[0]
	if next.topic != TopicTranscribe {
		t.Errorf("topic = %s", next.topic)
	}
	if next.payload.Media.Audio == nil || next.payload.Media.Audio.Extension() != ".wav" {
		t.Errorf("expected wav audio ref, got %+v", next.payload.Media.Audio)
	}
	if next.payload.Media.Video != p.Media.Video {
		t.Error("video reference must travel unchanged")
	}
}

func TestTranscribeWritesSidecars(t *testing.T) {
	for _, tc := range []struct {
		pipeline Pipeline
		next     string
	}{
		{PipelinePublish, TopicPublish},
		{PipelineBurnIn, TopicBurnIn},
	} {
		t.Run(string(tc.pipeline), func(t *testing.T) {
			h := newHarness(t)
			wav := h.touch(t, "w1.wav")
			h.engine.transcript = transcriber.Transcript{Transcription: []transcriber.Segment{
				{Text: " Olá", Offsets: transcriber.Offsets{From: 0, To: 400}},
				{Text: " mundo", Offsets: transcriber.Offsets{From: 400, To: 900}},
			}}
			audio := media.Local("w1", ".wav")
			p := Payload{
				WorkflowID: "wf",
				Pipeline:   tc.pipeline,
				Media:      media.MediaPair{Video: media.Local("v1", ".mp4"), Audio: &audio},
			}

			if err := NewTranscribe(h.deps).Handle(context.Background(), p); err != nil {
				t.Fatal(err)
			}
			if h.engine.called != wav {
				t.Errorf("transcribed %q, want %q", h.engine.called, wav)
			}

			raw, err := os.ReadFile(filepath.Join(h.dir, "w1.json"))
			if err != nil {
				t.Fatal(err)
			}
			var captions []transcriber.Caption
			if err := json.Unmarshal(raw, &captions); err != nil {
				t.Fatal(err)
			}
			if len(captions) != 2 || captions[0].Text != "Olá" {
				t.Errorf("unexpected captions %+v", captions)
			}
			if _, err := os.Stat(filepath.Join(h.dir, "w1.srt")); err != nil {
				t.Error("expected srt sidecar")
			}
			if len(h.queue.jobs) != 1 || h.queue.jobs[0].topic != tc.next {
				t.Errorf("unexpected jobs %+v", h.queue.jobs)
			}
		})
	}
}

func TestTranscribeRequiresLocalWav(t *testing.T) {
	h := newHarness(t)
	p := Payload{WorkflowID: "wf", Media: media.MediaPair{Video: media.Local("v1", ".mp4")}}

	err := NewTranscribe(h.deps).Handle(context.Background(), p)
	if !apperrors.IsCode(err, apperrors.CodeFailedPrecond) {
		t.Fatalf("expected FAILED_PRECONDITION, got %v", err)
	}
	if h.engine.called != "" {
		t.Error("engine must not run")
	}
}

func TestBurnInMissingSubtitles(t *testing.T) {
	h := newHarness(t)
	h.touch(t, "v1.mp4")
	audio := media.Local("w1", ".wav")
	p := Payload{
		WorkflowID: "wf",
		Pipeline:   PipelineBurnIn,
		Media:      media.MediaPair{Video: media.Local("v1", ".mp4"), Audio: &audio},
	}

	err := NewBurnIn(h.deps).Handle(context.Background(), p)
	if !apperrors.IsNotFound(err) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	if len(h.ffmpeg.calls) != 0 {
		t.Error("ffmpeg must not run without subtitles")
	}
}

func TestBurnInRendersAndCompletes(t *testing.T) {
	h := newHarness(t)
	h.touch(t, "v1.mp4")
	h.touch(t, "w1.srt")
	audio := media.Local("w1", ".wav")
	p := Payload{
		WorkflowID: "wf",
		Pipeline:   PipelineBurnIn,
		Media: media.MediaPair{
			Video:      media.Local("v1", ".mp4"),
			Audio:      &audio,
			Dimensions: &media.VideoDimensions{Width: 720, Height: 1280},
		},
	}

	if err := NewBurnIn(h.deps).Handle(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	args := h.ffmpeg.calls[0]
	vf := args[slices.Index(args, "-vf")+1]
	if !strings.Contains(vf, "w1.srt") || !strings.HasSuffix(vf, ",scale=720:1280") {
		t.Errorf("unexpected filter %q", vf)
	}
	if !slices.Contains(args, "copy") {
		t.Errorf("audio must be copied: %v", args)
	}
	if got := h.ledger.outputs["wf"].OutputPath; got != args[len(args)-1] {
		t.Errorf("ledger output = %q", got)
	}
	if len(h.queue.jobs) != 0 {
		t.Error("burn-in is terminal")
	}

	for _, name := range []string{"v1.mp4", "w1.srt"} {
		if _, err := os.Stat(filepath.Join(h.dir, name)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected intermediate %s to be removed", name)
		}
	}
	snap, err := h.store.Snapshot(context.Background(), "wf")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap) != 1 || snap[contextstore.KeyBurnIn].FilePath != args[len(args)-1] {
		t.Errorf("expected only the rendered video in context, got %v", snap)
	}
}

func (h *harness) seedPublish(t *testing.T, withSubtitles bool) {
	t.Helper()
	ctx := context.Background()
	set := func(key contextstore.StageKey, name string, ft media.FileType) {
		if err := h.store.Set(ctx, "wf", key, media.Entry{FilePath: h.touch(t, name), ExtensionFile: ft}); err != nil {
			t.Fatal(err)
		}
	}
	set(contextstore.KeyCompress, "v.mp4", media.FileMP4)
	set(contextstore.KeyExtractAudio, "a.wav", media.FileWAV)
	if withSubtitles {
		set(contextstore.KeySubtitles, "a.json", media.FileJSON)
		h.touch(t, "a.srt")
	}
}

func TestPublishUploadsAndNotifies(t *testing.T) {
	h := newHarness(t)
	h.seedPublish(t, true)

	p := Payload{WorkflowID: "wf", Pipeline: PipelinePublish, WebhookURL: "https://hooks/x"}
	if err := NewPublish(h.deps).Handle(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	if len(h.notifier.calls) != 1 || h.notifier.target != "https://hooks/x" {
		t.Fatalf("unexpected webhook calls %+v", h.notifier.calls)
	}
	n := h.notifier.calls[0]
	if !strings.HasSuffix(n.VideoURL, "/bot/instagram/videos/v.mp4") ||
		!strings.HasSuffix(n.SubtitlesURL, "/a.json") ||
		!strings.HasSuffix(n.AudioURL, "/a.wav") {
		t.Errorf("unexpected notification %+v", n)
	}

	for _, name := range []string{"v.mp4", "a.wav", "a.json", "a.srt"} {
		if _, err := os.Stat(filepath.Join(h.dir, name)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected %s to be removed after publication", name)
		}
	}

	snap, err := h.store.Snapshot(context.Background(), "wf")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap) != 0 {
		t.Errorf("expected cleared context, got %v", snap)
	}
	if h.ledger.outputs["wf"].VideoURL != n.VideoURL {
		t.Error("ledger must record published urls")
	}
}

func TestPublishMissingSubtitles(t *testing.T) {
	h := newHarness(t)
	h.seedPublish(t, false)

	err := NewPublish(h.deps).Handle(context.Background(), Payload{WorkflowID: "wf", WebhookURL: "https://hooks/x"})
	if !apperrors.IsCode(err, apperrors.CodeUploadIncomplete) {
		t.Fatalf("expected UPLOAD_INCOMPLETE, got %v", err)
	}
	if len(h.notifier.calls) != 0 {
		t.Error("webhook must not be called")
	}
	if _, err := os.Stat(filepath.Join(h.dir, "v.mp4")); err != nil {
		t.Error("artifacts must remain when publication is incomplete")
	}
}

func TestPublishWrongVideoFormat(t *testing.T) {
	h := newHarness(t)
	h.seedPublish(t, true)
	h.host.skipExt = "mp4"

	err := NewPublish(h.deps).Handle(context.Background(), Payload{WorkflowID: "wf"})
	if !apperrors.IsCode(err, apperrors.CodeUploadIncomplete) {
		t.Fatalf("expected UPLOAD_INCOMPLETE, got %v", err)
	}
}

func TestPublishWebhookRejected(t *testing.T) {
	h := newHarness(t)
	h.seedPublish(t, true)
	h.notifier.err = apperrors.WebhookRejected(500)

	err := NewPublish(h.deps).Handle(context.Background(), Payload{WorkflowID: "wf", WebhookURL: "https://hooks/x"})
	if !apperrors.IsCode(err, apperrors.CodeWebhookRejected) {
		t.Fatalf("expected WEBHOOK_REJECTED, got %v", err)
	}
	if apperrors.IsRetryable(err) {
		t.Error("webhook failures are never retried")
	}
}

func TestPublishWebhookTransportFailureIsFinal(t *testing.T) {
	h := newHarness(t)
	h.seedPublish(t, true)
	h.notifier.err = apperrors.Unavailable("webhook")

	err := NewPublish(h.deps).Handle(context.Background(), Payload{WorkflowID: "wf", WebhookURL: "https://hooks/x"})
	if apperrors.IsRetryable(err) {
		t.Fatalf("expected a final error, got %v", err)
	}
}

func TestPublishUploadFailureKeepsFiles(t *testing.T) {
	h := newHarness(t)
	h.seedPublish(t, true)
	h.host.err = apperrors.Unavailable("asset host")

	err := NewPublish(h.deps).Handle(context.Background(), Payload{WorkflowID: "wf"})
	if !apperrors.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.dir, "a.json")); err != nil {
		t.Error("artifacts must remain for the retry")
	}
}

func TestPublishDefaultWebhook(t *testing.T) {
	h := newHarness(t)
	h.seedPublish(t, true)
	h.deps.DefaultWebhookURL = "https://default/hook"

	if err := NewPublish(h.deps).Handle(context.Background(), Payload{WorkflowID: "wf"}); err != nil {
		t.Fatal(err)
	}
	if h.notifier.target != "https://default/hook" {
		t.Errorf("target = %q", h.notifier.target)
	}
}

// runChain feeds each enqueued payload to the stage of its topic until the
// pipeline stops enqueueing, and returns the topics in the order they ran.
func (h *harness) runChain(t *testing.T, topic string, p Payload) []string {
	t.Helper()
	byTopic := map[string]Stage{}
	for _, st := range All(h.deps) {
		byTopic[st.Topic()] = st
	}

	var ran []string
	for next := 0; ; next++ {
		st, ok := byTopic[topic]
		if !ok {
			t.Fatalf("no stage for topic %q", topic)
		}
		if err := st.Handle(context.Background(), p); err != nil {
			t.Fatalf("%s: %v", topic, err)
		}
		ran = append(ran, topic)
		if next >= len(h.queue.jobs) {
			return ran
		}
		topic, p = h.queue.jobs[next].topic, h.queue.jobs[next].payload
	}
}

func TestRemoteVideoThroughPipeline(t *testing.T) {
	tests := []struct {
		pipeline Pipeline
		want     []string
	}{
		{PipelinePublish, []string{TopicCompress, TopicExtractAudio, TopicTranscribe, TopicPublish}},
		{PipelineBurnIn, []string{TopicExtractAudio, TopicTranscribe, TopicBurnIn}},
	}

	for _, tt := range tests {
		t.Run(string(tt.pipeline), func(t *testing.T) {
			h := newHarness(t)
			h.engine.transcript = transcriber.Transcript{Transcription: []transcriber.Segment{
				{Text: " Olá", Offsets: transcriber.Offsets{From: 0, To: 500}},
			}}
			p := Payload{
				WorkflowID: "wf",
				Pipeline:   tt.pipeline,
				Media:      media.MediaPair{Video: media.Remote("https://x/v.mp4", ".mp4")},
				WebhookURL: "https://hooks/x",
			}

			ran := h.runChain(t, tt.pipeline.Entry(), p)
			if !slices.Equal(ran, tt.want) {
				t.Fatalf("ran %v, want %v", ran, tt.want)
			}
			if len(h.ffmpeg.calls) != 2 {
				t.Errorf("ffmpeg calls = %d, want 2", len(h.ffmpeg.calls))
			}
			if h.ffmpeg.calls[0][2] != "https://x/v.mp4" {
				t.Errorf("first stage must read the remote video, got %v", h.ffmpeg.calls[0])
			}

			left, err := os.ReadDir(h.dir)
			if err != nil {
				t.Fatal(err)
			}
			snap, err := h.store.Snapshot(context.Background(), "wf")
			if err != nil {
				t.Fatal(err)
			}

			switch tt.pipeline {
			case PipelinePublish:
				if len(h.notifier.calls) != 1 {
					t.Fatalf("webhook calls = %d, want 1", len(h.notifier.calls))
				}
				n := h.notifier.calls[0]
				if !strings.HasSuffix(n.VideoURL, ".mp4") || !strings.HasSuffix(n.SubtitlesURL, ".json") {
					t.Errorf("unexpected notification %+v", n)
				}
				if len(left) != 0 {
					t.Errorf("expected empty media dir, found %d files", len(left))
				}
				if len(snap) != 0 {
					t.Errorf("expected cleared context, got %v", snap)
				}
			case PipelineBurnIn:
				if len(h.notifier.calls) != 0 {
					t.Error("burn-in never calls the webhook")
				}
				out := h.ledger.outputs["wf"].OutputPath
				if snap[contextstore.KeyBurnIn].FilePath != out || len(snap) != 1 {
					t.Errorf("unexpected context %v (output %q)", snap, out)
				}
				if len(left) != 1 || filepath.Join(h.dir, left[0].Name()) != out {
					t.Errorf("expected only the rendered video to remain, found %v", left)
				}
			}
		})
	}
}
