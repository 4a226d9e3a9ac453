package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"captionflow/internal/config"
	"captionflow/internal/contextstore"
	"captionflow/internal/ledger"
	"captionflow/internal/pkg/logger"
	"captionflow/internal/worker/queue"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	rdb    *redis.Client
	ledger ledger.Store
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{configFlag: configFlag, jsonFlag: jsonFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) json() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) logger() *logger.Logger {
	if c.config == nil {
		return logger.Discard()
	}
	// Command output owns stdout; only warnings reach stderr.
	return logger.New(logger.Config{
		Level:       "warn",
		Format:      c.config.Logging.Format,
		Output:      os.Stderr,
		ServiceName: "pipelinectl",
	})
}

func (c *commandContext) redis(ctx context.Context) (*redis.Client, error) {
	if c.rdb != nil {
		return c.rdb, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	rdb := cfg.RedisClient()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", cfg.Redis.Addr, err)
	}
	c.rdb = rdb
	return rdb, nil
}

func (c *commandContext) queue(ctx context.Context) (*queue.RedisQueue, error) {
	rdb, err := c.redis(ctx)
	if err != nil {
		return nil, err
	}
	return queue.NewRedisQueue(rdb, c.config.Redis.Prefix), nil
}

func (c *commandContext) contextStore(ctx context.Context) (*contextstore.Store, error) {
	rdb, err := c.redis(ctx)
	if err != nil {
		return nil, err
	}
	return contextstore.New(rdb, c.config.Redis.Prefix, c.config.ContextTTL()), nil
}

func (c *commandContext) workflowLedger(ctx context.Context) (ledger.Store, error) {
	if c.ledger != nil {
		return c.ledger, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	l, err := ledger.Open(ctx, cfg.Ledger)
	if err != nil {
		return nil, fmt.Errorf("open workflow ledger: %w", err)
	}
	c.ledger = l
	return l, nil
}

func (c *commandContext) close() {
	if c.rdb != nil {
		_ = c.rdb.Close()
		c.rdb = nil
	}
	if c.ledger != nil {
		c.ledger.Close()
		c.ledger = nil
	}
}
