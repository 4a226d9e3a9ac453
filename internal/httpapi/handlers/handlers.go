package handlers

import (
	"context"
	"net/http"

	"github.com/redis/go-redis/v9"

	"captionflow/internal/contextstore"
	"captionflow/internal/dispatch"
	"captionflow/internal/media"
	"captionflow/internal/models"
	apperrors "captionflow/internal/pkg/errors"
	"captionflow/internal/pkg/logger"
	"captionflow/internal/pkg/middleware"
)

// Submitter accepts a normalized job. *dispatch.Dispatcher implements it.
type Submitter interface {
	Submit(ctx context.Context, in dispatch.JobInput) (dispatch.Result, error)
}

// WorkflowReader is the read side of the workflow ledger.
type WorkflowReader interface {
	Get(ctx context.Context, id string) (*models.Workflow, error)
	List(ctx context.Context, limit int) ([]models.Workflow, error)
	Ping(ctx context.Context) error
}

// ContextReader exposes the stage entries of a workflow.
type ContextReader interface {
	Snapshot(ctx context.Context, workflowID string) (map[contextstore.StageKey]media.Entry, error)
}

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Provider() string
	Ping(ctx context.Context) error
}

type Deps struct {
	Dispatcher Submitter
	Ledger     WorkflowReader
	Context    ContextReader
	RDB        redis.Cmdable
	Storage    Pinger
	MediaDir   string
	Log        *logger.Logger
}

type Handler struct {
	dispatcher Submitter
	ledger     WorkflowReader
	context    ContextReader
	rdb        redis.Cmdable
	storage    Pinger
	mediaDir   string
	log        *logger.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Handler{
		dispatcher: d.Dispatcher,
		ledger:     d.Ledger,
		context:    d.Context,
		rdb:        d.RDB,
		storage:    d.Storage,
		mediaDir:   d.MediaDir,
		log:        log,
	}
}

// Wrap adapts an error-returning handler, writing the coded error envelope.
func (h *Handler) Wrap(fn middleware.ErrorHandlerFunc) http.HandlerFunc {
	return middleware.WrapHandler(h.log, fn)
}

// fieldErrors collects request validation failures so a single 400 can name
// every offending field.
type fieldErrors struct {
	fields   []string
	messages []string
}

func (f *fieldErrors) add(field, message string) {
	f.fields = append(f.fields, field)
	f.messages = append(f.messages, message)
}

func (f *fieldErrors) empty() bool { return len(f.fields) == 0 }

func (f *fieldErrors) err() error {
	e := apperrors.Validation(f.messages[0]).WithField("fields", f.fields)
	if len(f.messages) > 1 {
		e = e.WithField("messages", f.messages)
	}
	return e
}

// asFieldError turns a single-field validation error from dispatch into the
// fields list shape the API answers with.
func asFieldError(err error) error {
	if !apperrors.IsValidation(err) {
		return err
	}
	fields := apperrors.GetFields(err)
	if _, ok := fields["fields"]; ok {
		return err
	}
	var e *apperrors.Error
	if !apperrors.As(err, &e) {
		return err
	}
	names := []string{}
	if f, ok := fields["field"].(string); ok && f != "" {
		names = append(names, f)
	}
	return apperrors.Validation(e.Message).WithField("fields", names)
}
