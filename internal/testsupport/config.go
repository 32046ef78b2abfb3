package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"mqfile/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The served root is <base>/files and exists on return.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Server.StateDir = filepath.Join(base, "state")
	cfgVal.Server.Root = filepath.Join(base, "files")
	cfgVal.History.Path = filepath.Join(base, "state", "history.db")
	cfgVal.Queue.PollIntervalMS = 1
	cfgVal.Queue.MaxPollIntervalMS = 5
	cfgVal.Server.ShutdownTimeoutSeconds = 2

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}

	if root := builder.cfg.Server.Root; root != "" {
		if err := os.MkdirAll(root, 0o755); err != nil {
			t.Fatalf("mkdir root: %v", err)
		}
	}
	return builder.cfg
}

// WithMaxTransfers overrides server concurrency.
func WithMaxTransfers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.MaxTransfers = n
	}
}

// WithoutHistory disables the transfer ledger.
func WithoutHistory() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.History.Enabled = false
	}
}

// WithQueueKey sets the queue key, for tests against a kernel queue.
func WithQueueKey(key int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.Key = key
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Server.StateDir)
}
