package config

import (
	"errors"
	"fmt"

	"mqfile/internal/wire"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateClient(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateQueue() error {
	if c.Queue.Key <= 0 {
		return errors.New("queue.key must be a positive integer (IPC_PRIVATE is not shareable)")
	}
	if c.Queue.Permissions < 0 || c.Queue.Permissions > 0o777 {
		return fmt.Errorf("queue.permissions must be between 0 and 0777, got %#o", c.Queue.Permissions)
	}
	if c.Queue.Permissions&0o600 != 0o600 {
		return errors.New("queue.permissions must grant the owner read and write")
	}
	if c.Queue.MaxPollIntervalMS < c.Queue.PollIntervalMS {
		return errors.New("queue.max_poll_interval_ms must be >= queue.poll_interval_ms")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.MaxTransfers > 256 {
		return errors.New("server.max_transfers must be at most 256")
	}
	return nil
}

func (c *Config) validateClient() error {
	if c.Client.DefaultPriority < wire.MinPriority || c.Client.DefaultPriority > wire.MaxPriority {
		return fmt.Errorf("client.default_priority must be between %d and %d", wire.MinPriority, wire.MaxPriority)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
