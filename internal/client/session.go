package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"mqfile/internal/logging"
	"mqfile/internal/msgq"
	"mqfile/internal/wire"
)

// ErrInvalidRequest reports a request rejected before it reached the queue.
var ErrInvalidRequest = wire.ErrInvalidRequest

// ErrAddressCollision reports a client whose pid equals the server address.
var ErrAddressCollision = errors.New("client pid collides with the server address")

// SessionOptions configures a Session.
type SessionOptions struct {
	// PID is the client's address. Defaults to os.Getpid().
	PID             int
	DefaultPriority int
	Logger          *slog.Logger
}

// Session submits requests on behalf of one client process.
type Session struct {
	transport       msgq.Transport
	pid             int
	defaultPriority int
	pending         *tracker
	logger          *slog.Logger
}

// NewSession binds a session to transport.
func NewSession(transport msgq.Transport, opts SessionOptions) (*Session, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: no transport", msgq.ErrQueueUnavailable)
	}
	pid := opts.PID
	if pid == 0 {
		pid = os.Getpid()
	}
	if pid < 0 {
		return nil, fmt.Errorf("invalid client pid %d", pid)
	}
	if msgq.ClientAddress(pid).IsServer() {
		return nil, fmt.Errorf("%w: pid %d", ErrAddressCollision, pid)
	}
	priority := opts.DefaultPriority
	if priority == 0 {
		priority = wire.DefaultPriority
	}
	return &Session{
		transport:       transport,
		pid:             pid,
		defaultPriority: priority,
		pending:         newTracker(),
		logger:          logging.NewComponentLogger(opts.Logger, "client"),
	}, nil
}

// Address is where responses for this session arrive.
func (s *Session) Address() msgq.Address {
	return msgq.ClientAddress(s.pid)
}

// PID returns the requester pid stamped on every request.
func (s *Session) PID() int {
	return s.pid
}

// Outstanding returns how many transfers are expected back.
func (s *Session) Outstanding() int {
	return s.pending.Len()
}

// Wait blocks until no transfer is outstanding or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	return s.pending.Wait(ctx)
}

// SubmitRequest sends a request for filename to the server. A zero priority
// uses the session default; a zero target returns the file to this client.
func (s *Session) SubmitRequest(ctx context.Context, filename string, priority, target int) error {
	filename = strings.TrimSpace(filename)
	if priority == 0 {
		priority = s.defaultPriority
	}
	req := wire.Request{
		Filename:  filename,
		Priority:  priority,
		Requester: s.pid,
		Target:    target,
	}
	msg, err := wire.EncodeRequest(req)
	if err != nil {
		return err
	}

	// Counted before sending so a fast final can never find the tracker empty.
	returning := !req.Forwarded()
	if returning {
		s.pending.Add(filename)
	}
	if err := s.transport.Send(ctx, msg); err != nil {
		if returning {
			s.pending.Cancel(filename)
		}
		if errors.Is(err, msgq.ErrQueueClosed) {
			return fmt.Errorf("%w: %v", msgq.ErrQueueUnavailable, err)
		}
		return fmt.Errorf("submit %q: %w", filename, err)
	}

	s.logger.Debug("request submitted",
		logging.String(logging.FieldFilename, filename),
		logging.Int("priority", priority),
		logging.Int64(logging.FieldDestination, int64(req.Destination())),
	)
	return nil
}
