package main

import (
	"context"
	"errors"
	"flag"
	"time"

	"captionflow/internal/assethost"
	"captionflow/internal/config"
	"captionflow/internal/contextstore"
	"captionflow/internal/ledger"
	"captionflow/internal/media"
	"captionflow/internal/pkg/logger"
	"captionflow/internal/pkg/shutdown"
	"captionflow/internal/preflight"
	"captionflow/internal/process"
	"captionflow/internal/storage"
	"captionflow/internal/sweeper"
	"captionflow/internal/worker"
	"captionflow/internal/worker/queue"
	"captionflow/internal/worker/stages"
	"captionflow/internal/worker/transcriber"
	"captionflow/internal/worker/webhook"
)

func main() {
	configPath := flag.String("config", "", "path to captionflow.toml")
	flag.Parse()

	cfg, cfgFile, err := config.Load(*configPath)
	if err != nil {
		logger.NewDefault().LogFatal("failed to load configuration", err)
	}

	log := cfg.Logger("captionflow-worker")
	log.Info("starting captionflow worker", "config", cfgFile, "media_dir", cfg.Paths.MediaDir)

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, config.DurationEnv("SHUTDOWN_TIMEOUT", 60*time.Second))

	lock, err := worker.AcquireLock(cfg.Paths.MediaDir)
	if err != nil {
		log.LogFatal("failed to acquire pipeline lock", err)
	}
	shutdownMgr.Register("pipeline-lock", func(context.Context) error {
		return lock.Unlock()
	})

	if failed := preflight.Failed(preflight.New().RunAll(ctx, cfg)); len(failed) > 0 {
		log.LogFatal("preflight checks failed", errors.New(preflight.Summary(failed)))
	}

	// Redis
	rdb := cfg.RedisClient()
	shutdownMgr.Register("redis", func(ctx context.Context) error {
		return rdb.Close()
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.LogFatal("failed to ping Redis", err)
	}

	led, err := ledger.Open(ctx, cfg.Ledger)
	if err != nil {
		log.LogFatal("failed to open workflow ledger", err)
	}
	shutdownMgr.RegisterSimple("ledger", led.Close)

	sp, err := storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}
	log.Info("storage provider initialized", "provider", sp.Provider())

	q := queue.NewRedisQueue(rdb, cfg.Redis.Prefix)
	store := contextstore.New(rdb, cfg.Redis.Prefix, cfg.ContextTTL())

	if !cfg.Worker.SkipBootstrap {
		boot := worker.Bootstrap{Queue: q, Store: store, Topics: stages.AllTopics(), Log: log}
		if err := boot.Run(ctx); err != nil {
			log.LogFatal("bootstrap failed", err)
		}
	}

	engine := transcriber.NewEngine(transcriber.Config{
		Binary:   cfg.Tools.Whisper,
		ModelDir: cfg.Paths.ModelDir,
		Model:    cfg.Transcription.Model,
		Language: cfg.Transcription.Language,
		ModelURL: cfg.Transcription.ModelURL,
	}, process.Runner{Binary: cfg.Tools.Whisper, Log: log}, log)
	if err := engine.Provision(ctx); err != nil {
		log.LogFatal("failed to provision transcriber", err)
	}

	all := stages.All(stages.Deps{
		Resolver:          media.NewResolver(cfg.Paths.MediaDir),
		FFmpeg:            process.Runner{Binary: cfg.Tools.FFmpeg, Log: log},
		Store:             store,
		Queue:             q,
		Ledger:            led,
		Transcriber:       engine,
		Host:              assethost.New(sp, log),
		Webhook:           webhook.NewHTTPClient(cfg.WebhookTimeout()),
		DefaultWebhookURL: cfg.Webhook.DefaultURL,
		UploadFolder:      cfg.Publish.Folder,
		Log:               log,
	})

	if cfg.Sweeper.Enabled {
		sw := sweeper.New(cfg.Paths.MediaDir, cfg.SweeperMaxAge(), log)
		c, err := sw.Start(cfg.Sweeper.Schedule)
		if err != nil {
			log.LogFatal("failed to schedule sweeper", err)
		}
		shutdownMgr.Register("sweeper", func(ctx context.Context) error {
			select {
			case <-c.Stop().Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		err := worker.Run(runCtx, worker.Deps{
			Queue:        q,
			Stages:       all,
			Ledger:       led,
			Concurrency:  cfg.Worker.Concurrency,
			MaxAttempts:  cfg.Worker.MaxAttempts,
			StageTimeout: cfg.StageTimeout(),
			Log:          log,
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.LogError(ctx, "worker stopped", err)
		}
	}()
	shutdownMgr.Register("worker", func(ctx context.Context) error {
		cancel()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	log.Info("worker started", "topics", stages.AllTopics(), "max_attempts", cfg.Worker.MaxAttempts)

	stopped, release := context.WithCancel(ctx)
	go func() {
		<-done
		release()
	}()
	shutdownMgr.WaitWithContext(stopped)
}
