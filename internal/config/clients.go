package config

import (
	"github.com/redis/go-redis/v9"

	"captionflow/internal/pkg/logger"
)

// RedisClient opens a client for the configured Redis. It does not dial.
func (c *Config) RedisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	})
}

// Logger builds the service logger from the logging section.
func (c *Config) Logger(service string) *logger.Logger {
	return logger.New(logger.Config{
		Level:       c.Logging.Level,
		Format:      c.Logging.Format,
		AddSource:   c.Logging.Source,
		ServiceName: service,
	})
}
