package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeQueue(); err != nil {
		return err
	}
	if err := c.normalizeServer(); err != nil {
		return err
	}
	if err := c.normalizeHistory(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeQueue() error {
	if value, ok := os.LookupEnv("MQFILE_QUEUE_KEY"); ok && strings.TrimSpace(value) != "" {
		key, err := strconv.ParseInt(strings.TrimSpace(value), 0, 32)
		if err != nil {
			return fmt.Errorf("MQFILE_QUEUE_KEY: %w", err)
		}
		c.Queue.Key = int(key)
	}
	if c.Queue.Permissions == 0 {
		c.Queue.Permissions = defaultQueuePermissions
	}
	if c.Queue.PollIntervalMS <= 0 {
		c.Queue.PollIntervalMS = defaultPollIntervalMS
	}
	if c.Queue.MaxPollIntervalMS <= 0 {
		c.Queue.MaxPollIntervalMS = defaultMaxPollIntervalMS
	}
	return nil
}

func (c *Config) normalizeServer() error {
	var err error
	if strings.TrimSpace(c.Server.StateDir) == "" {
		c.Server.StateDir = defaultStateDir
	}
	if c.Server.StateDir, err = expandPath(c.Server.StateDir); err != nil {
		return fmt.Errorf("server.state_dir: %w", err)
	}
	c.Server.Root = strings.TrimSpace(c.Server.Root)
	if c.Server.Root, err = expandPath(c.Server.Root); err != nil {
		return fmt.Errorf("server.root: %w", err)
	}
	if c.Server.MaxTransfers <= 0 {
		c.Server.MaxTransfers = defaultMaxTransfers
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		c.Server.ShutdownTimeoutSeconds = defaultShutdownTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizeHistory() error {
	path := strings.TrimSpace(c.History.Path)
	if path == "" {
		path = filepath.Join(c.Server.StateDir, defaultHistoryFile)
	}
	expanded, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	c.History.Path = expanded
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.File = strings.TrimSpace(c.Logging.File)
	if c.Logging.File != "" {
		if expanded, err := expandPath(c.Logging.File); err == nil {
			c.Logging.File = expanded
		}
	}
}
