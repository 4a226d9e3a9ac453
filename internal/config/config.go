// Package config loads captionflow settings. Sources are applied in order:
// built-in defaults, an optional TOML file (CAPTIONFLOW_CONFIG or
// ./captionflow.toml), a .env file, and finally environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"captionflow/internal/ledger"
	"captionflow/internal/storage"
)

type Paths struct {
	MediaDir string `toml:"media_dir"`
	ModelDir string `toml:"model_dir"`
}

type Redis struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
	// ContextTTLSeconds expires workflow context keys; 0 keeps them until
	// publication or the next bootstrap.
	ContextTTLSeconds int `toml:"context_ttl_seconds"`
}

type API struct {
	Bind               string   `toml:"bind"`
	MaxUploadMiB       int      `toml:"max_upload_mib"`
	RequestTimeoutSecs int      `toml:"request_timeout_seconds"`
	CORSOrigins        []string `toml:"cors_origins"`
}

type Tools struct {
	FFmpeg  string `toml:"ffmpeg"`
	Whisper string `toml:"whisper"`
}

type Transcription struct {
	Model    string `toml:"model"`
	Language string `toml:"language"`
	ModelURL string `toml:"model_url"`
}

type Worker struct {
	StageTimeoutSeconds int            `toml:"stage_timeout_seconds"`
	MaxAttempts         int            `toml:"max_attempts"`
	Concurrency         map[string]int `toml:"concurrency"`
	// SkipBootstrap keeps queued jobs and context across restarts.
	SkipBootstrap bool `toml:"skip_bootstrap"`
}

type Webhook struct {
	DefaultURL     string `toml:"default_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type Publish struct {
	Folder string `toml:"folder"`
}

type Sweeper struct {
	Enabled     bool   `toml:"enabled"`
	Schedule    string `toml:"schedule"`
	MaxAgeHours int    `toml:"max_age_hours"`
}

type Preflight struct {
	MinFreeMiB int `toml:"min_free_mib"`
}

type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Source bool   `toml:"source"`
}

type Config struct {
	Paths         Paths          `toml:"paths"`
	Redis         Redis          `toml:"redis"`
	API           API            `toml:"api"`
	Tools         Tools          `toml:"tools"`
	Transcription Transcription  `toml:"transcription"`
	Worker        Worker         `toml:"worker"`
	Webhook       Webhook        `toml:"webhook"`
	Publish       Publish        `toml:"publish"`
	Storage       storage.Config `toml:"storage"`
	Ledger        ledger.Config  `toml:"ledger"`
	Sweeper       Sweeper        `toml:"sweeper"`
	Preflight     Preflight      `toml:"preflight"`
	Logging       Logging        `toml:"logging"`
}

// Load builds the configuration. path overrides CAPTIONFLOW_CONFIG; a
// missing file is not an error. It returns the file actually read, or "".
func Load(path string) (*Config, string, error) {
	cfg := Default()

	// .env only fills variables the environment does not already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("load .env: %w", err)
	}

	resolved, exists, err := resolvePath(path)
	if err != nil {
		return nil, "", err
	}
	if exists {
		f, err := os.Open(resolved)
		if err != nil {
			return nil, "", fmt.Errorf("open config: %w", err)
		}
		defer f.Close()

		if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(&cfg); err != nil {
			return nil, "", fmt.Errorf("parse config %s: %w", resolved, err)
		}
	} else {
		resolved = ""
	}

	cfg.applyEnv()
	if err := cfg.normalize(); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, resolved, nil
}

func resolvePath(path string) (string, bool, error) {
	if path == "" {
		path = Env("CAPTIONFLOW_CONFIG", "captionflow.toml")
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return path, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %s is a directory", path)
	}
	return path, true, nil
}

// applyEnv lets the environment override every file setting.
func (c *Config) applyEnv() {
	c.Paths.MediaDir = Env("MEDIA_DIR", c.Paths.MediaDir)
	c.Paths.ModelDir = Env("WHISPER_MODEL_DIR", c.Paths.ModelDir)

	c.Redis.Addr = Env("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = Env("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = IntEnv("REDIS_DB", c.Redis.DB)
	c.Redis.Prefix = Env("REDIS_PREFIX", c.Redis.Prefix)
	c.Redis.ContextTTLSeconds = IntEnv("CONTEXT_TTL_SECONDS", c.Redis.ContextTTLSeconds)

	c.API.Bind = Env("HTTP_ADDR", c.API.Bind)
	c.API.MaxUploadMiB = IntEnv("MAX_UPLOAD_MIB", c.API.MaxUploadMiB)
	c.API.RequestTimeoutSecs = IntEnv("REQUEST_TIMEOUT_SECONDS", c.API.RequestTimeoutSecs)
	c.API.CORSOrigins = CSVEnv("CORS_ALLOWED_ORIGINS", c.API.CORSOrigins)

	c.Tools.FFmpeg = Env("FFMPEG_BIN", c.Tools.FFmpeg)
	c.Tools.Whisper = Env("WHISPER_BIN", c.Tools.Whisper)

	c.Transcription.Model = Env("WHISPER_MODEL", c.Transcription.Model)
	c.Transcription.Language = Env("WHISPER_LANGUAGE", c.Transcription.Language)
	c.Transcription.ModelURL = Env("WHISPER_MODEL_URL", c.Transcription.ModelURL)

	c.Worker.StageTimeoutSeconds = IntEnv("STAGE_TIMEOUT_SECONDS", c.Worker.StageTimeoutSeconds)
	c.Worker.MaxAttempts = IntEnv("MAX_ATTEMPTS", c.Worker.MaxAttempts)
	c.Worker.SkipBootstrap = BoolEnv("SKIP_BOOTSTRAP", c.Worker.SkipBootstrap)
	for topic, n := range CountsEnv("WORKER_CONCURRENCY") {
		if c.Worker.Concurrency == nil {
			c.Worker.Concurrency = map[string]int{}
		}
		c.Worker.Concurrency[topic] = n
	}

	c.Webhook.DefaultURL = Env("WEBHOOK_URL", c.Webhook.DefaultURL)
	c.Webhook.TimeoutSeconds = IntEnv("WEBHOOK_TIMEOUT_SECONDS", c.Webhook.TimeoutSeconds)
	c.Publish.Folder = Env("PUBLISH_FOLDER", c.Publish.Folder)

	c.Storage.Provider = Env("STORAGE_PROVIDER", c.Storage.Provider)
	c.Storage.LocalRoot = Env("STORAGE_LOCAL_ROOT", c.Storage.LocalRoot)
	c.Storage.LocalPublicURL = Env("STORAGE_PUBLIC_BASE_URL", c.Storage.LocalPublicURL)
	c.Storage.GDriveClientID = Env("GDRIVE_CLIENT_ID", c.Storage.GDriveClientID)
	c.Storage.GDriveClientSecret = Env("GDRIVE_CLIENT_SECRET", c.Storage.GDriveClientSecret)
	c.Storage.GDriveRefreshToken = Env("GDRIVE_REFRESH_TOKEN", c.Storage.GDriveRefreshToken)
	c.Storage.GDriveFolderID = Env("GDRIVE_FOLDER_ID", c.Storage.GDriveFolderID)
	c.Storage.S3Bucket = Env("S3_BUCKET", c.Storage.S3Bucket)
	c.Storage.S3Region = Env("AWS_REGION", c.Storage.S3Region)

	c.Ledger.Driver = Env("LEDGER_DRIVER", c.Ledger.Driver)
	c.Ledger.DSN = Env("DATABASE_URL", c.Ledger.DSN)

	c.Sweeper.Enabled = BoolEnv("SWEEPER_ENABLED", c.Sweeper.Enabled)
	c.Sweeper.Schedule = Env("SWEEPER_SCHEDULE", c.Sweeper.Schedule)
	c.Sweeper.MaxAgeHours = IntEnv("SWEEPER_MAX_AGE_HOURS", c.Sweeper.MaxAgeHours)

	c.Preflight.MinFreeMiB = IntEnv("MIN_FREE_MIB", c.Preflight.MinFreeMiB)

	c.Logging.Level = Env("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = Env("LOG_FORMAT", c.Logging.Format)
	c.Logging.Source = BoolEnv("LOG_SOURCE", c.Logging.Source)
}

func (c *Config) normalize() error {
	for _, p := range []*string{&c.Paths.MediaDir, &c.Paths.ModelDir, &c.Storage.LocalRoot} {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(filepath.Clean(*p))
		if err != nil {
			return fmt.Errorf("resolve path %q: %w", *p, err)
		}
		*p = abs
	}
	c.Storage.Provider = strings.ToLower(c.Storage.Provider)
	c.Ledger.Driver = strings.ToLower(c.Ledger.Driver)
	if c.Ledger.Driver == "sqlite" && c.Ledger.DSN == "" {
		// Dotfile so the sweeper leaves it alone.
		c.Ledger.DSN = filepath.Join(c.Paths.MediaDir, ".captionflow.db")
	}
	return nil
}

// StageTimeout is the per-job deadline, zero for none.
func (c *Config) StageTimeout() time.Duration {
	return time.Duration(c.Worker.StageTimeoutSeconds) * time.Second
}

func (c *Config) ContextTTL() time.Duration {
	return time.Duration(c.Redis.ContextTTLSeconds) * time.Second
}

func (c *Config) WebhookTimeout() time.Duration {
	return time.Duration(c.Webhook.TimeoutSeconds) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.API.RequestTimeoutSecs) * time.Second
}

func (c *Config) SweeperMaxAge() time.Duration {
	return time.Duration(c.Sweeper.MaxAgeHours) * time.Hour
}
