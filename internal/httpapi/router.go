package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"captionflow/internal/httpapi/handlers"
	"captionflow/internal/httpkit"
	"captionflow/internal/pkg/logger"
	"captionflow/internal/pkg/middleware"
)

type Deps struct {
	Handlers handlers.Deps

	CORSOrigins    []string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	// PublishedDir is served under /published when assets are hosted on
	// the local filesystem. Empty disables the route.
	PublishedDir string
	Log          *logger.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	if d.Handlers.Log == nil {
		d.Handlers.Log = log
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))

	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAgeSeconds:    600,
	}))

	h := handlers.New(d.Handlers)

	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		if d.RequestTimeout > 0 {
			r.Use(middleware.Timeout(d.RequestTimeout))
		}
		r.With(middleware.MaxBody(d.MaxBodyBytes)).Post("/video/process", h.Wrap(h.PostVideo))
		r.Get("/workflows", h.Wrap(h.ListWorkflows))
		r.Get("/workflows/{workflowId}", h.Wrap(h.GetWorkflow))
	})

	if d.PublishedDir != "" {
		fs := http.StripPrefix("/published/", http.FileServer(http.Dir(d.PublishedDir)))
		r.Get("/published/*", fs.ServeHTTP)
	}

	return r
}
