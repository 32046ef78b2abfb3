package msgq

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MaxPayload is the largest payload a single message may carry.
const MaxPayload = 256

// ServerAddress is the message type reserved for requests bound to the server.
const ServerAddress Address = 100

const (
	// DefaultKey is the System V key shared by every mqfile process ("mqf1").
	DefaultKey = 0x6d716631
	// DefaultPermissions are the permission bits applied when the queue is created.
	DefaultPermissions = 0o644
)

var (
	// ErrQueueUnavailable reports that the shared queue could not be created or attached.
	ErrQueueUnavailable = errors.New("msgq: queue unavailable")
	// ErrQueueClosed reports that the queue was removed or the handle closed.
	ErrQueueClosed = errors.New("msgq: queue closed")
	// ErrNoMessage reports that no message of the requested type is queued.
	ErrNoMessage = errors.New("msgq: no message")
	// ErrQueueAlreadyRemoved reports a Destroy on a queue that no longer exists.
	ErrQueueAlreadyRemoved = errors.New("msgq: queue already removed")
	// ErrPayloadTooLarge reports a payload exceeding MaxPayload.
	ErrPayloadTooLarge = errors.New("msgq: payload too large")
	// ErrInvalidAddress reports a message type below 1.
	ErrInvalidAddress = errors.New("msgq: invalid address")
)

// Address is the message type used to route a message to its reader.
type Address int64

// ClientAddress returns the address of the client with the given process id.
func ClientAddress(pid int) Address {
	return Address(pid)
}

// IsServer reports whether the address is the server's well-known address.
func (a Address) IsServer() bool {
	return a == ServerAddress
}

// Valid reports whether the address can be used as a message type.
func (a Address) Valid() bool {
	return a >= 1
}

func (a Address) String() string {
	if a.IsServer() {
		return "server"
	}
	return fmt.Sprintf("pid:%d", int64(a))
}

// Message is the unit exchanged on the queue. An empty payload is the final
// sentinel of a transfer.
type Message struct {
	Type    Address
	Payload []byte
}

// IsFinal reports whether the message terminates a transfer.
func (m Message) IsFinal() bool {
	return len(m.Payload) == 0
}

// Validate checks the message against the queue limits.
func (m Message) Validate() error {
	if !m.Type.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidAddress, int64(m.Type))
	}
	if len(m.Payload) > MaxPayload {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(m.Payload), MaxPayload)
	}
	return nil
}

// Transport is the queue contract shared by the client and the server.
type Transport interface {
	// Send enqueues msg, blocking while the queue is full.
	Send(ctx context.Context, msg Message) error
	// Receive dequeues the oldest message of the given type without blocking.
	Receive(to Address) (Message, error)
	// Destroy removes the queue for every attached process.
	Destroy() error
	// Close releases the local handle and leaves the queue in place.
	Close() error
}

// SendFinal enqueues the empty sentinel that terminates a transfer to addr.
func SendFinal(ctx context.Context, t Transport, to Address) error {
	return t.Send(ctx, Message{Type: to})
}

// Stats summarizes the queue state reported by the kernel.
type Stats struct {
	ID          int
	Key         int32
	Messages    uint64
	Bytes       uint64
	MaxBytes    uint64
	LastSendPID int
	LastRecvPID int
	LastSend    time.Time
	LastReceive time.Time
	LastChange  time.Time
	Permissions uint32
	OwnerUID    uint32
}

const (
	sendBackoffInitial = time.Millisecond
	sendBackoffMax     = 50 * time.Millisecond
)

// retryFull calls attempt until it stops reporting a full queue, sleeping
// with bounded exponential back-off between attempts.
func retryFull(ctx context.Context, attempt func() (full bool, err error)) error {
	delay := sendBackoffInitial
	for {
		full, err := attempt()
		if err != nil || !full {
			return err
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = nextSendBackoff(delay)
	}
}

// nextSendBackoff doubles d, capped at sendBackoffMax.
func nextSendBackoff(d time.Duration) time.Duration {
	return min(d*2, sendBackoffMax)
}
