package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"mqfile/internal/config"
	"mqfile/internal/logging"
	"mqfile/internal/msgq"
)

type commandContext struct {
	configFlag *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	return logger, nil
}

// openQueue creates or attaches to the configured queue.
func (c *commandContext) openQueue() (queueHandle, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	q, err := openQueueFunc(cfg.Queue.Key, cfg.QueuePermissions())
	if err != nil {
		return nil, wrapQueueError(err, cfg.Queue.Key)
	}
	return q, nil
}

// attachQueue binds to the configured queue only when it already exists.
func (c *commandContext) attachQueue() (queueHandle, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return attachQueueFunc(cfg.Queue.Key)
}

func wrapQueueError(err error, key int) error {
	if errors.Is(err, msgq.ErrQueueUnavailable) {
		return fmt.Errorf("open queue %#x: %w; check ipcs -q and the queue permissions", key, err)
	}
	return fmt.Errorf("open queue %#x: %w", key, err)
}

func expandFlagPath(value string) (string, error) {
	path, err := config.ExpandPath(strings.TrimSpace(value))
	if err != nil {
		return "", fmt.Errorf("expand path %q: %w", value, err)
	}
	return path, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
