package msgq

import (
	"context"
	"sync"
)

// DefaultMemoryCapacity matches the default Linux per-queue byte limit (MSGMNB).
const DefaultMemoryCapacity = 16384

// Memory is an in-process queue with the same contract as SysV: FIFO per
// type, a byte capacity that blocks senders, and Destroy closing the queue
// for every holder.
type Memory struct {
	mu       sync.Mutex
	queues   map[Address][]Message
	count    uint64
	bytes    int
	capacity int
	removed  bool
	space    chan struct{}
}

var _ Transport = (*Memory)(nil)

// NewMemory returns an empty queue holding at most capacity payload bytes.
// A non-positive capacity selects DefaultMemoryCapacity; capacities below
// MaxPayload are raised so every valid message fits on an empty queue.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	if capacity < MaxPayload {
		capacity = MaxPayload
	}
	return &Memory{
		queues:   make(map[Address][]Message),
		capacity: capacity,
		space:    make(chan struct{}),
	}
}

// Send enqueues msg, waiting for space while the queue is full.
func (m *Memory) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload := append([]byte(nil), msg.Payload...)
	for {
		m.mu.Lock()
		if m.removed {
			m.mu.Unlock()
			return ErrQueueClosed
		}
		if m.bytes+len(payload) <= m.capacity {
			m.queues[msg.Type] = append(m.queues[msg.Type], Message{Type: msg.Type, Payload: payload})
			m.bytes += len(payload)
			m.count++
			m.mu.Unlock()
			return nil
		}
		wait := m.space
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// Receive dequeues the oldest message of type to without blocking.
func (m *Memory) Receive(to Address) (Message, error) {
	if !to.Valid() {
		return Message{}, ErrInvalidAddress
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removed {
		return Message{}, ErrQueueClosed
	}
	pending := m.queues[to]
	if len(pending) == 0 {
		return Message{}, ErrNoMessage
	}
	msg := pending[0]
	if len(pending) == 1 {
		delete(m.queues, to)
	} else {
		m.queues[to] = pending[1:]
	}
	m.bytes -= len(msg.Payload)
	m.count--
	m.wakeSenders()
	return msg, nil
}

// Destroy removes the queue and wakes blocked senders.
func (m *Memory) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removed {
		return ErrQueueAlreadyRemoved
	}
	m.removed = true
	m.queues = nil
	m.bytes = 0
	m.count = 0
	m.wakeSenders()
	return nil
}

// Close is a no-op: in-process holders share one queue.
func (m *Memory) Close() error {
	return nil
}

// Stat reports the queue occupancy.
func (m *Memory) Stat() (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removed {
		return Stats{}, ErrQueueClosed
	}
	return Stats{
		Messages: m.count,
		Bytes:    uint64(m.bytes),
		MaxBytes: uint64(m.capacity),
	}, nil
}

// Pending returns the number of queued messages of type to.
func (m *Memory) Pending(to Address) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[to])
}

func (m *Memory) wakeSenders() {
	close(m.space)
	m.space = make(chan struct{})
}
