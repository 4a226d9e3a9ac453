// Package logger wraps log/slog with the attribute conventions used across
// captionflow: every line carries the service name, and stage work carries
// job, workflow and stage identifiers so a single workflow can be followed
// across the API and the workers.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	apperrors "captionflow/internal/pkg/errors"
)

type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"
	// JobIDKey is the context key for queue job IDs.
	JobIDKey contextKey = "job_id"
	// WorkflowIDKey is the context key for workflow IDs.
	WorkflowIDKey contextKey = "workflow_id"
	// StageKey is the context key for the stage topic being processed.
	StageKey contextKey = "stage"
)

// Logger wraps slog.Logger.
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// Format is the output format (json, text).
	Format string
	// Output defaults to os.Stdout.
	Output io.Writer
	// AddSource adds source file and line to logs.
	AddSource bool
	// ServiceName identifies the emitting binary.
	ServiceName string
}

// DefaultConfig reads LOG_LEVEL, LOG_FORMAT, LOG_SOURCE and SERVICE_NAME.
func DefaultConfig() Config {
	return Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Format:      getEnv("LOG_FORMAT", "json"),
		Output:      os.Stdout,
		AddSource:   getEnv("LOG_SOURCE", "false") == "true",
		ServiceName: getEnv("SERVICE_NAME", "captionflow"),
	}
}

// New creates a new Logger with the given configuration.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}

	if cfg.ServiceName != "" {
		handler = handler.WithAttrs([]slog.Attr{
			slog.String("service", cfg.ServiceName),
		})
	}

	return &Logger{Logger: slog.New(handler)}
}

// NewDefault creates a logger with default configuration.
func NewDefault() *Logger {
	return New(DefaultConfig())
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithRequestID returns a new logger with the request ID attached.
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.with(slog.String("request_id", requestID))
}

// WithJobID returns a new logger with the job ID attached.
func (l *Logger) WithJobID(jobID string) *Logger {
	return l.with(slog.String("job_id", jobID))
}

// WithWorkflowID returns a new logger with the workflow ID attached.
func (l *Logger) WithWorkflowID(workflowID string) *Logger {
	return l.with(slog.String("workflow_id", workflowID))
}

// WithStage returns a new logger with the stage topic attached.
func (l *Logger) WithStage(stage string) *Logger {
	return l.with(slog.String("stage", stage))
}

// WithComponent returns a new logger with the component name attached.
func (l *Logger) WithComponent(component string) *Logger {
	return l.with(slog.String("component", component))
}

// WithError attaches err and, for coded errors, its code and op.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	args := []any{slog.String("error", err.Error())}
	var ae *apperrors.Error
	if apperrors.As(err, &ae) {
		args = append(args, slog.String("code", string(ae.Code)))
		if ae.Op != "" {
			args = append(args, slog.String("op", ae.Op))
		}
	}
	return l.with(args...)
}

// WithFields returns a new logger with additional fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	attrs := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	return l.with(attrs...)
}

// FromContext returns a logger enriched with the identifiers stored in ctx.
func (l *Logger) FromContext(ctx context.Context) *Logger {
	result := l
	if v, ok := ctx.Value(RequestIDKey).(string); ok && v != "" {
		result = result.WithRequestID(v)
	}
	if v, ok := ctx.Value(JobIDKey).(string); ok && v != "" {
		result = result.WithJobID(v)
	}
	if v, ok := ctx.Value(WorkflowIDKey).(string); ok && v != "" {
		result = result.WithWorkflowID(v)
	}
	if v, ok := ctx.Value(StageKey).(string); ok && v != "" {
		result = result.WithStage(v)
	}
	return result
}

// LogError logs an error with its caller location.
func (l *Logger) LogError(ctx context.Context, msg string, err error, args ...any) {
	if err == nil {
		return
	}

	if _, file, line, ok := runtime.Caller(1); ok {
		args = append(args, "source", slog.GroupValue(
			slog.String("file", file),
			slog.Int("line", line),
		))
	}

	l.FromContext(ctx).WithError(err).Error(msg, args...)
}

// LogFatal logs a fatal error and exits.
func (l *Logger) LogFatal(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err.Error())
	}
	l.Error(msg, args...)
	os.Exit(1)
}

// ContextWithRequestID adds a request ID to the context.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// ContextWithJobID adds a job ID to the context.
func ContextWithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

// ContextWithWorkflow adds workflow and stage identifiers to the context.
func ContextWithWorkflow(ctx context.Context, workflowID, stage string) context.Context {
	ctx = context.WithValue(ctx, WorkflowIDKey, workflowID)
	return context.WithValue(ctx, StageKey, stage)
}

// ParseLevel converts a string level to slog.Level. Unknown values map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
