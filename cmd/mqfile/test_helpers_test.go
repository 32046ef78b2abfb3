package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mqfile/internal/config"
	"mqfile/internal/lifecycle"
	"mqfile/internal/logging"
	"mqfile/internal/msgq"
	"mqfile/internal/server"
	"mqfile/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	queue      *msgq.Memory
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.Logging.Level = "error"
	home := filepath.Join(testsupport.BaseDir(cfg), "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", home)
	t.Setenv("MQFILE_QUEUE_KEY", "")

	configPath := filepath.Join(testsupport.BaseDir(cfg), "mqfile.toml")
	writeTestConfig(t, configPath, cfg)

	queue := msgq.NewMemory(0)
	t.Cleanup(setQueueForTests(queue))

	return &cliTestEnv{cfg: cfg, configPath: configPath, queue: queue}
}

// setQueueForTests routes every open and attach to q and returns a restore
// function.
func setQueueForTests(q queueHandle) func() {
	prevOpen, prevAttach := openQueueFunc, attachQueueFunc
	openQueueFunc = func(int, uint32) (queueHandle, error) { return q, nil }
	attachQueueFunc = func(int) (queueHandle, error) { return q, nil }
	return func() {
		openQueueFunc = prevOpen
		attachQueueFunc = prevAttach
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, env *cliTestEnv, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	var flags []string
	if env != nil {
		flags = []string{"--config", env.configPath}
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// startServer runs a server on the environment's queue until the returned
// function is called.
func (env *cliTestEnv) startServer(t *testing.T) func() {
	t.Helper()
	ctrl := lifecycle.New(context.Background())
	srv, err := server.New(env.queue, ctrl, server.Options{
		Root:            env.cfg.Server.Root,
		MaxTransfers:    2,
		PollInterval:    time.Millisecond,
		MaxPollInterval: 5 * time.Millisecond,
		ShutdownTimeout: 2 * time.Second,
		Logger:          logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		done <- srv.Run(context.Background())
	}()
	return func() {
		ctrl.Quiesce(lifecycle.ErrShutdownRequested)
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("server run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("server did not stop")
		}
		ctrl.Terminate()
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
