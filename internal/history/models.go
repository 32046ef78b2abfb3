package history

import (
	"errors"
	"time"
)

// Status is the outcome of a transfer.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusNotFound  Status = "not_found"
	StatusRejected  Status = "rejected"
	StatusAborted   Status = "aborted"
)

// Statuses lists every status in display order.
func Statuses() []Status {
	return []Status{StatusActive, StatusCompleted, StatusNotFound, StatusRejected, StatusAborted}
}

// Terminal reports whether the status closes a transfer.
func (s Status) Terminal() bool {
	return s != StatusActive
}

// ErrTransferNotFound is returned when no row matches a transfer id.
var ErrTransferNotFound = errors.New("transfer not found")

// Transfer is one request served by the server.
type Transfer struct {
	ID          string
	Requester   int64
	Destination int64
	Filename    string
	Priority    int
	Status      Status
	Chunks      int
	Bytes       int64
	Error       string
	Digest      string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Duration is the time between accepting and finishing the transfer.
func (t Transfer) Duration() time.Duration {
	if t.FinishedAt.IsZero() || t.StartedAt.IsZero() {
		return 0
	}
	return t.FinishedAt.Sub(t.StartedAt)
}

// Outcome summarises how a transfer ended.
type Outcome struct {
	Status Status
	Chunks int
	Bytes  int64
	Error  string
	// Digest is the hex BLAKE3 hash of the bytes sent, set when the whole
	// file went out.
	Digest string
}
