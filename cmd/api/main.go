package main

import (
	"context"
	"flag"
	"net/http"
	"time"

	"captionflow/internal/assethost"
	"captionflow/internal/config"
	"captionflow/internal/contextstore"
	"captionflow/internal/dispatch"
	"captionflow/internal/httpapi"
	"captionflow/internal/httpapi/handlers"
	"captionflow/internal/ledger"
	"captionflow/internal/pkg/logger"
	"captionflow/internal/pkg/shutdown"
	"captionflow/internal/storage"
	"captionflow/internal/worker/queue"
)

func main() {
	configPath := flag.String("config", "", "path to captionflow.toml")
	flag.Parse()

	cfg, cfgFile, err := config.Load(*configPath)
	if err != nil {
		logger.NewDefault().LogFatal("failed to load configuration", err)
	}

	log := cfg.Logger("captionflow-api")
	log.Info("starting captionflow API", "config", cfgFile, "media_dir", cfg.Paths.MediaDir)

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, config.DurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second))

	// Redis
	log.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	rdb := cfg.RedisClient()
	shutdownMgr.Register("redis", func(ctx context.Context) error {
		return rdb.Close()
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.LogFatal("failed to ping Redis", err)
	}
	log.Info("Redis connected")

	// Workflow ledger
	led, err := ledger.Open(ctx, cfg.Ledger)
	if err != nil {
		log.LogFatal("failed to open workflow ledger", err)
	}
	shutdownMgr.RegisterSimple("ledger", led.Close)
	log.Info("workflow ledger ready", "driver", cfg.Ledger.Driver)

	// Storage provider, only pinged here; the worker publishes.
	sp, err := storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}
	host := assethost.New(sp, log)
	log.Info("storage provider initialized", "provider", sp.Provider())

	q := queue.NewRedisQueue(rdb, cfg.Redis.Prefix)
	deps := httpapi.Deps{
		Handlers: handlers.Deps{
			Dispatcher: dispatch.New(q, led, log),
			Ledger:     led,
			Context:    contextstore.New(rdb, cfg.Redis.Prefix, cfg.ContextTTL()),
			RDB:        rdb,
			Storage:    host,
			MediaDir:   cfg.Paths.MediaDir,
		},
		CORSOrigins:    cfg.API.CORSOrigins,
		RequestTimeout: cfg.RequestTimeout(),
		MaxBodyBytes:   int64(cfg.API.MaxUploadMiB) << 20,
		Log:            log,
	}
	if cfg.Storage.Provider == "" || cfg.Storage.Provider == "localfs" {
		deps.PublishedDir = cfg.Storage.LocalRoot
	}

	server := &http.Server{
		Addr:              cfg.API.Bind,
		Handler:           httpapi.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	shutdownMgr.Wait()
}
