// Package transcriber drives whisper.cpp: it provisions the model once,
// runs whisper-cli on a wav file and converts the engine's JSON output into
// captions.
package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"captionflow/internal/media"
	"captionflow/internal/pkg/errors"
	"captionflow/internal/pkg/logger"
	"captionflow/internal/process"
)

const (
	DefaultModel    = "medium"
	DefaultLanguage = "pt"
	DefaultModelURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"
)

// Config selects the whisper binary and model.
type Config struct {
	Binary   string
	ModelDir string
	Model    string
	Language string
	// ModelURL is the base URL models are downloaded from.
	ModelURL string
}

// Runner runs the whisper binary.
type Runner interface {
	Run(ctx context.Context, args []string) error
}

// Engine is safe for concurrent use.
type Engine struct {
	cfg      Config
	runner   Runner
	client   *http.Client
	log      *logger.Logger
	lookPath func(string) (string, error)

	mu    sync.Mutex
	ready bool
}

// NewEngine returns an engine that runs whisper through runner.
func NewEngine(cfg Config, runner Runner, log *logger.Logger) *Engine {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.ModelURL == "" {
		cfg.ModelURL = DefaultModelURL
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Engine{
		cfg:      cfg,
		runner:   runner,
		client:   &http.Client{Timeout: 30 * time.Minute},
		log:      log.WithComponent("transcriber"),
		lookPath: exec.LookPath,
	}
}

// WithHTTPClient replaces the client used for model downloads.
func (e *Engine) WithHTTPClient(c *http.Client) *Engine {
	e.client = c
	return e
}

// ModelPath is where the ggml model file lives.
func (e *Engine) ModelPath() string {
	return filepath.Join(e.cfg.ModelDir, "ggml-"+e.cfg.Model+".bin")
}

// Provision makes sure the binary is installed and the model is on disk.
// It does the work at most once per process; a failed attempt is retried
// on the next call. Concurrent workers on the same host serialize on a
// file lock in the model directory.
func (e *Engine) Provision(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ready {
		return nil
	}

	if err := e.checkBinary(); err != nil {
		return err
	}

	if err := os.MkdirAll(e.cfg.ModelDir, 0o755); err != nil {
		return errors.Wrap(err, "transcriber.provision", "create model dir")
	}

	lock := flock.New(filepath.Join(e.cfg.ModelDir, ".provision.lock"))
	locked, err := lock.TryLockContext(ctx, 500*time.Millisecond)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeTimeout, "transcriber.provision", "model lock not acquired")
	}
	if !locked {
		return errors.New(errors.CodeTimeout, "model lock not acquired")
	}
	defer func() { _ = lock.Unlock() }()

	if _, err := os.Stat(e.ModelPath()); err != nil {
		if err := e.download(ctx); err != nil {
			return err
		}
	}

	e.ready = true
	return nil
}

func (e *Engine) checkBinary() error {
	bin := e.cfg.Binary
	if strings.ContainsRune(bin, os.PathSeparator) {
		if _, err := os.Stat(bin); err != nil {
			return errors.PreconditionFailed("whisper binary not found").WithField("binary", bin)
		}
		return nil
	}
	if _, err := e.lookPath(bin); err != nil {
		return errors.PreconditionFailed("whisper binary not found in PATH").WithField("binary", bin)
	}
	return nil
}

func (e *Engine) download(ctx context.Context) error {
	const op = "transcriber.download"
	url := strings.TrimRight(e.cfg.ModelURL, "/") + "/ggml-" + e.cfg.Model + ".bin"
	e.log.Info("downloading whisper model", "model", e.cfg.Model, "url", url)
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, op, "build request")
	}
	res, err := e.client.Do(req)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, op, "model download failed")
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return errors.Newf(errors.CodeUnavailable, "model download returned %d", res.StatusCode).
			WithField("url", url)
	}

	tmp, err := os.CreateTemp(e.cfg.ModelDir, ".ggml-*.part")
	if err != nil {
		return errors.Wrap(err, op, "create temp file")
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, res.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, op, "write model")
	}
	if err := os.Rename(tmp.Name(), e.ModelPath()); err != nil {
		return errors.Wrap(err, op, "install model")
	}

	e.log.Info("whisper model ready",
		"model", e.cfg.Model,
		"bytes", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Args is the whisper-cli argument vector for one transcription. Output is
// the full JSON format written to <outBase>.json, split on words, never
// translated.
func (e *Engine) Args(wavPath, outBase string) []string {
	return []string{
		"-m", e.ModelPath(),
		"-f", wavPath,
		"-l", e.cfg.Language,
		"--split-on-word",
		"--max-len", "1",
		"--output-json-full",
		"--output-file", outBase,
		"--no-prints",
	}
}

// Transcribe runs whisper on wavPath and returns its parsed output.
func (e *Engine) Transcribe(ctx context.Context, wavPath string) (Transcript, error) {
	const op = "transcriber.transcribe"
	if err := e.Provision(ctx); err != nil {
		return Transcript{}, err
	}

	outBase := media.SidecarPath(wavPath, "") + ".whisper"
	outPath := outBase + ".json"
	defer os.Remove(outPath)

	if err := e.runner.Run(ctx, e.Args(wavPath, outBase)); err != nil {
		return Transcript{}, process.Coded(op, err)
	}

	raw, err := os.ReadFile(outPath)
	if err != nil {
		return Transcript{}, errors.Wrap(err, op, "read whisper output")
	}
	var t Transcript
	if err := json.Unmarshal(raw, &t); err != nil {
		return Transcript{}, errors.Wrap(err, op, fmt.Sprintf("parse whisper output %s", filepath.Base(outPath)))
	}
	return t, nil
}
