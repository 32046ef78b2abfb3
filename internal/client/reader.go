package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"mqfile/internal/lifecycle"
	"mqfile/internal/logging"
	"mqfile/internal/msgq"
	"mqfile/internal/wire"
)

// ErrServerGone reports that the shared queue was removed under the client.
var ErrServerGone = errors.New("server removed the queue")

const (
	defaultPollInterval    = 10 * time.Millisecond
	defaultMaxPollInterval = 200 * time.Millisecond

	ansiReset = "\x1b[0m"
	ansiRed   = "\x1b[31m"
)

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	// Output receives data chunks. Defaults to os.Stdout.
	Output io.Writer
	// ErrorOutput receives error chunks. Defaults to os.Stderr.
	ErrorOutput io.Writer
	// Colorize highlights error chunks. Use ShouldColorize to detect terminals.
	Colorize        bool
	PollInterval    time.Duration
	MaxPollInterval time.Duration
	Logger          *slog.Logger
}

// Reader drains responses addressed to one session.
type Reader struct {
	transport msgq.Transport
	session   *Session
	ctrl      *lifecycle.Controller

	out      io.Writer
	errOut   io.Writer
	colorize bool

	pollInterval    time.Duration
	maxPollInterval time.Duration
	logger          *slog.Logger

	// forwarding is set between a forward header and its final.
	forwarding    bool
	forwardedFrom int
}

// NewReader builds a reader for session's address.
func NewReader(transport msgq.Transport, session *Session, ctrl *lifecycle.Controller, opts ReaderOptions) *Reader {
	r := &Reader{
		transport:       transport,
		session:         session,
		ctrl:            ctrl,
		out:             opts.Output,
		errOut:          opts.ErrorOutput,
		colorize:        opts.Colorize,
		pollInterval:    opts.PollInterval,
		maxPollInterval: opts.MaxPollInterval,
		logger:          logging.NewComponentLogger(opts.Logger, "reader"),
	}
	if r.out == nil {
		r.out = os.Stdout
	}
	if r.errOut == nil {
		r.errOut = os.Stderr
	}
	if r.pollInterval <= 0 {
		r.pollInterval = defaultPollInterval
	}
	if r.maxPollInterval < r.pollInterval {
		r.maxPollInterval = max(defaultMaxPollInterval, r.pollInterval)
	}
	return r
}

// Run polls until the controller leaves Running, ctx is cancelled, or the
// queue disappears. A message already dequeued is always written in full
// before Run observes shutdown.
func (r *Reader) Run(ctx context.Context) error {
	addr := r.session.Address()
	delay := r.pollInterval
	defer r.flush()

	for {
		if !r.ctrl.Running() || ctx.Err() != nil {
			return nil
		}

		msg, err := r.transport.Receive(addr)
		switch {
		case errors.Is(err, msgq.ErrNoMessage):
			r.flush()
			if !r.sleep(ctx, delay) {
				return nil
			}
			delay = min(delay*2, r.maxPollInterval)
			continue
		case errors.Is(err, msgq.ErrQueueClosed):
			r.logger.Info("queue removed, reader stopping",
				logging.Int("outstanding", r.session.Outstanding()))
			return fmt.Errorf("%w: %d transfer(s) incomplete", ErrServerGone, r.session.Outstanding())
		case err != nil:
			return fmt.Errorf("receive: %w", err)
		}

		delay = r.pollInterval
		if err := r.handle(msg); err != nil {
			return err
		}
	}
}

func (r *Reader) handle(msg msgq.Message) error {
	resp, err := wire.DecodeResponse(msg)
	if err != nil {
		logging.WarnWithContext(r.logger, "dropping undecodable response", "response_decode",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that client and server versions match"),
			logging.String(logging.FieldImpact, "one chunk of output is missing"),
		)
		return nil
	}

	switch resp.Kind {
	case wire.KindData:
		if _, err := r.out.Write(resp.Data); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	case wire.KindError:
		r.writeError(string(resp.Data))
	case wire.KindForward:
		pid, err := resp.Requester()
		if err != nil {
			r.logger.Debug("forward header without requester", logging.Error(err))
		}
		r.forwarding = true
		r.forwardedFrom = pid
		r.logger.Debug("receiving forwarded transfer", logging.Int(logging.FieldRequester, pid))
	case wire.KindFinal:
		r.flush()
		if r.forwarding {
			r.forwarding = false
			r.logger.Debug("forwarded transfer complete", logging.Int(logging.FieldRequester, r.forwardedFrom))
			return nil
		}
		if name, ok := r.session.pending.Complete(); ok {
			r.logger.Debug("transfer complete",
				logging.String(logging.FieldFilename, name),
				logging.Int("outstanding", r.session.Outstanding()))
		} else {
			logging.WarnWithContext(r.logger, "final with no outstanding request", "unexpected_final",
				logging.String(logging.FieldErrorHint, "another process may be reading or writing this client's messages"),
				logging.String(logging.FieldImpact, "none; the final is ignored"),
			)
		}
	}
	return nil
}

func (r *Reader) writeError(text string) {
	line := "mqfile: " + text
	if r.colorize {
		line = ansiRed + line + ansiReset
	}
	fmt.Fprintln(r.errOut, line)
}

func (r *Reader) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-r.ctrl.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

func (r *Reader) flush() {
	if f, ok := r.out.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			r.logger.Debug("flush output failed", logging.Error(err))
		}
	}
}

// ShouldColorize reports whether w is a terminal.
func ShouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
