package config

import (
	"captionflow/internal/assethost"
	"captionflow/internal/ledger"
	"captionflow/internal/storage"
	"captionflow/internal/worker/transcriber"
)

const (
	defaultMediaDir        = "./media"
	defaultModelDir        = "./whisper-models"
	defaultRedisAddr       = "127.0.0.1:6379"
	defaultRedisPrefix     = "captionflow"
	defaultBind            = "0.0.0.0:8080"
	defaultMaxUploadMiB    = 512
	defaultRequestTimeout  = 120
	defaultFFmpeg          = "ffmpeg"
	defaultWhisper         = "whisper-cli"
	defaultStageTimeout    = 3600
	defaultMaxAttempts     = 3
	defaultWebhookTimeout  = 30
	defaultSweeperSchedule = "0 */30 * * * *"
	defaultSweeperMaxAge   = 24
	defaultMinFreeMiB      = 1024
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			MediaDir: defaultMediaDir,
			ModelDir: defaultModelDir,
		},
		Redis: Redis{
			Addr:   defaultRedisAddr,
			Prefix: defaultRedisPrefix,
		},
		API: API{
			Bind:               defaultBind,
			MaxUploadMiB:       defaultMaxUploadMiB,
			RequestTimeoutSecs: defaultRequestTimeout,
			CORSOrigins:        []string{"http://localhost:5173"},
		},
		Tools: Tools{
			FFmpeg:  defaultFFmpeg,
			Whisper: defaultWhisper,
		},
		Transcription: Transcription{
			Model:    transcriber.DefaultModel,
			Language: transcriber.DefaultLanguage,
			ModelURL: transcriber.DefaultModelURL,
		},
		Worker: Worker{
			StageTimeoutSeconds: defaultStageTimeout,
			MaxAttempts:         defaultMaxAttempts,
		},
		Webhook: Webhook{
			TimeoutSeconds: defaultWebhookTimeout,
		},
		Publish: Publish{
			Folder: assethost.DefaultFolder,
		},
		Storage: storage.Config{
			Provider:       "localfs",
			LocalRoot:      "./published",
			LocalPublicURL: "http://localhost:8080/published",
		},
		Ledger: ledger.Config{
			Driver: "sqlite",
		},
		Sweeper: Sweeper{
			Enabled:     true,
			Schedule:    defaultSweeperSchedule,
			MaxAgeHours: defaultSweeperMaxAge,
		},
		Preflight: Preflight{
			MinFreeMiB: defaultMinFreeMiB,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
	}
}
