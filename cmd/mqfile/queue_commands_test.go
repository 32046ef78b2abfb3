package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"mqfile/internal/msgq"
	"mqfile/internal/wire"
)

func holdServerLock(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir lock dir: %v", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("lock %s: ok=%v err=%v", path, ok, err)
	}
	t.Cleanup(func() { _ = lock.Unlock() })
}

func enqueueRequest(t *testing.T, q *msgq.Memory, name string) {
	t.Helper()
	msg, err := wire.EncodeRequest(wire.Request{Filename: name, Priority: 1, Requester: 4242})
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	if err := q.Send(context.Background(), msg); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func TestQueueStatusReportsBacklogWithoutServer(t *testing.T) {
	env := setupCLITestEnv(t)
	enqueueRequest(t, env.queue, "notes.txt")

	out, _, err := runCLI(t, env, "", "queue", "status")
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "present, 1 message(s) waiting")
	requireContains(t, out, "not running")
	requireContains(t, out, "[WARN]")
	requireContains(t, out, "Messages")
}

func TestQueueStatusDetectsRunningServer(t *testing.T) {
	env := setupCLITestEnv(t)
	holdServerLock(t, env.cfg.LockPath())

	out, _, err := runCLI(t, env, "", "queue", "status")
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "[OK] running")
	if strings.Contains(out, "[WARN]") {
		t.Fatalf("unexpected warning in %q", out)
	}
}

func TestQueueStatusAfterRemoval(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := env.queue.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}

	out, _, err := runCLI(t, env, "", "queue", "status")
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "not present")
	if strings.Contains(out, "Messages") {
		t.Fatalf("expected no stats table, got %q", out)
	}
}

func TestQueueRemove(t *testing.T) {
	env := setupCLITestEnv(t)
	enqueueRequest(t, env.queue, "notes.txt")

	out, _, err := runCLI(t, env, "", "queue", "remove")
	if err != nil {
		t.Fatalf("queue remove: %v", err)
	}
	requireContains(t, out, "[OK] removed")
	if _, err := env.queue.Receive(msgq.ServerAddress); err == nil {
		t.Fatal("queue still delivers messages after removal")
	}

	out, _, err = runCLI(t, env, "", "queue", "remove")
	if err != nil {
		t.Fatalf("second queue remove: %v", err)
	}
	requireContains(t, out, "already removed")
}

func TestQueueRemoveRefusesWhileServerRuns(t *testing.T) {
	env := setupCLITestEnv(t)
	holdServerLock(t, env.cfg.LockPath())

	if _, _, err := runCLI(t, env, "", "queue", "remove"); err == nil {
		t.Fatal("expected refusal while the lock is held")
	}
	if _, err := env.queue.Stat(); err != nil {
		t.Fatalf("queue should survive a refused remove: %v", err)
	}

	if _, _, err := runCLI(t, env, "", "queue", "remove", "--force"); err != nil {
		t.Fatalf("queue remove --force: %v", err)
	}
	if _, err := env.queue.Stat(); err == nil {
		t.Fatal("expected queue to be gone after --force")
	}
}

func TestFormatEvent(t *testing.T) {
	if got := formatEvent(time.Time{}, 12); got != "never" {
		t.Fatalf("zero time = %q", got)
	}
	got := formatEvent(time.Now().Add(-time.Minute), 77)
	if !strings.HasSuffix(got, "by pid 77") {
		t.Fatalf("expected pid suffix, got %q", got)
	}
	if strings.Contains(formatEvent(time.Now(), 0), "pid") {
		t.Fatal("pid 0 should be omitted")
	}
}
