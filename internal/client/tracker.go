package client

import (
	"context"
	"sync"
)

// tracker counts transfers a session expects to end with a final message.
// The wire format carries no transfer id, so a final closes the oldest entry.
// Transfers forwarded here open with a forward header and are never counted.
type tracker struct {
	mu      sync.Mutex
	names   []string
	changed chan struct{}
}

func newTracker() *tracker {
	return &tracker{changed: make(chan struct{})}
}

func (t *tracker) Add(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.names = append(t.names, name)
	t.notifyLocked()
}

// Cancel drops the newest entry named name, undoing an Add whose send failed.
func (t *tracker) Cancel(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.names) - 1; i >= 0; i-- {
		if t.names[i] == name {
			t.names = append(t.names[:i], t.names[i+1:]...)
			t.notifyLocked()
			return
		}
	}
}

// Complete closes the oldest entry. ok is false when nothing was outstanding.
func (t *tracker) Complete() (name string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.names) == 0 {
		return "", false
	}
	name = t.names[0]
	t.names = t.names[1:]
	t.notifyLocked()
	return name, true
}

// Oldest returns the entry the next final will close.
func (t *tracker) Oldest() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.names) == 0 {
		return "", false
	}
	return t.names[0], true
}

func (t *tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.names)
}

// Wait returns once nothing is outstanding.
func (t *tracker) Wait(ctx context.Context) error {
	for {
		t.mu.Lock()
		empty := len(t.names) == 0
		changed := t.changed
		t.mu.Unlock()
		if empty {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (t *tracker) notifyLocked() {
	close(t.changed)
	t.changed = make(chan struct{})
}
