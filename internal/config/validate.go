package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateWorker(); err != nil {
		return err
	}
	if err := c.validateWebhook(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateLedger(); err != nil {
		return err
	}
	return c.validateSweeper()
}

func (c *Config) validatePaths() error {
	if c.Paths.MediaDir == "" {
		return errors.New("paths.media_dir must be set")
	}
	if c.Redis.Addr == "" {
		return errors.New("redis.addr must be set")
	}
	if c.Redis.Prefix == "" || strings.ContainsAny(c.Redis.Prefix, " *") {
		return fmt.Errorf("redis.prefix %q must be non-empty and contain no spaces or wildcards", c.Redis.Prefix)
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if c.Transcription.Model == "" {
		return errors.New("transcription.model must be set")
	}
	if c.Transcription.Language == "auto" {
		return nil
	}
	tag, err := language.Parse(c.Transcription.Language)
	if err != nil {
		return fmt.Errorf("transcription.language %q: %w", c.Transcription.Language, err)
	}
	// whisper takes bare ISO 639-1 codes.
	base, _ := tag.Base()
	c.Transcription.Language = base.String()
	return nil
}

func (c *Config) validateWorker() error {
	if c.Worker.MaxAttempts < 1 {
		return errors.New("worker.max_attempts must be at least 1")
	}
	if c.Worker.StageTimeoutSeconds < 0 {
		return errors.New("worker.stage_timeout_seconds must not be negative")
	}
	for topic, n := range c.Worker.Concurrency {
		if n < 1 {
			return fmt.Errorf("worker.concurrency.%s must be at least 1", topic)
		}
	}
	return nil
}

func (c *Config) validateWebhook() error {
	if c.Webhook.DefaultURL == "" {
		return nil
	}
	u, err := url.Parse(c.Webhook.DefaultURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("webhook.default_url %q must be an absolute http(s) URL", c.Webhook.DefaultURL)
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Provider {
	case "", "localfs":
		if c.Storage.LocalRoot == "" {
			return errors.New("storage.local_root is required for localfs")
		}
	case "gdrive":
		if c.Storage.GDriveClientID == "" || c.Storage.GDriveClientSecret == "" || c.Storage.GDriveRefreshToken == "" {
			return errors.New("storage.gdrive_client_id, gdrive_client_secret and gdrive_refresh_token are required for gdrive")
		}
	case "s3":
		if c.Storage.S3Bucket == "" || c.Storage.S3Region == "" {
			return errors.New("storage.s3_bucket and storage.s3_region are required for s3")
		}
	default:
		return fmt.Errorf("storage.provider %q must be one of localfs, gdrive, s3", c.Storage.Provider)
	}
	return nil
}

func (c *Config) validateLedger() error {
	switch c.Ledger.Driver {
	case "", "sqlite", "none":
		return nil
	case "postgres", "pgx":
		if c.Ledger.DSN == "" {
			return errors.New("ledger.dsn (DATABASE_URL) is required for postgres")
		}
		return nil
	default:
		return fmt.Errorf("ledger.driver %q must be one of sqlite, postgres, none", c.Ledger.Driver)
	}
}

func (c *Config) validateSweeper() error {
	if !c.Sweeper.Enabled {
		return nil
	}
	if c.Sweeper.MaxAgeHours < 1 {
		return errors.New("sweeper.max_age_hours must be at least 1")
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Sweeper.Schedule); err != nil {
		return fmt.Errorf("sweeper.schedule %q: %w", c.Sweeper.Schedule, err)
	}
	return nil
}
