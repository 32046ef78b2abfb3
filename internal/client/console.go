package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"mqfile/internal/lifecycle"
	"mqfile/internal/logging"
)

// errInputClosed is the quiesce cause after end of input drained every transfer.
var errInputClosed = errors.New("input closed")

// Console runs an interactive client session.
type Console struct {
	Session    *Session
	Reader     *Reader
	Controller *lifecycle.Controller
	// Input supplies directives, one per line.
	Input io.Reader
	// Diagnostics receives messages about rejected directives.
	Diagnostics io.Writer
	// Output is flushed when the session ends.
	Output interface{ Flush() error }
	Logger *slog.Logger
}

// Run submits first (when it names a file), then accepts directives until
// quit, end of input, a signal, or removal of the queue. It never removes the
// shared queue.
func (c *Console) Run(ctx context.Context, first Directive) error {
	logger := logging.NewComponentLogger(c.Logger, "console")
	defer c.finish()

	// Sends parked on a full queue give up once shutdown starts.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopCancel := context.AfterFunc(c.Controller.Context(), cancel)
	defer stopCancel()

	if first.Filename != "" {
		if err := c.Session.SubmitRequest(ctx, first.Filename, first.Priority, first.Target); err != nil {
			return c.settle(err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.Reader.Run(gctx)
	})
	g.Go(func() error {
		return c.commandLoop(gctx, logger)
	})
	err := g.Wait()

	if sig, ok := c.Controller.Signal(); ok {
		logger.Info("interrupted", logging.String("signal", sig.String()),
			logging.Int("outstanding", c.Session.Outstanding()))
	}
	return c.settle(err)
}

// settle reports a send abandoned because of shutdown as a clean exit.
func (c *Console) settle(err error) error {
	if errors.Is(err, context.Canceled) && !c.Controller.Running() {
		return nil
	}
	return err
}

func (c *Console) commandLoop(ctx context.Context, logger *slog.Logger) error {
	lines := make(chan string)
	scanDone := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		scanner := bufio.NewScanner(c.Input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
		scanDone <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.Controller.Done():
			return nil
		case err := <-scanDone:
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			return c.drain(ctx, logger)
		case line := <-lines:
			d, ok, err := ParseDirective(line)
			if err != nil {
				c.diagnose(err)
				continue
			}
			if !ok {
				continue
			}
			if d.Quit {
				logger.Debug("quit requested", logging.Int("outstanding", c.Session.Outstanding()))
				c.Controller.Quiesce(lifecycle.ErrShutdownRequested)
				return nil
			}
			if err := c.Session.SubmitRequest(ctx, d.Filename, d.Priority, d.Target); err != nil {
				if errors.Is(err, ErrInvalidRequest) {
					c.diagnose(err)
					continue
				}
				return err
			}
		}
	}
}

// drain waits for outstanding transfers after end of input.
func (c *Console) drain(ctx context.Context, logger *slog.Logger) error {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.Controller.Context(), cancel)
	defer stop()

	if n := c.Session.Outstanding(); n > 0 {
		logger.Debug("end of input, waiting for transfers", logging.Int("outstanding", n))
	}
	if err := c.Session.Wait(waitCtx); err != nil {
		return nil
	}
	c.Controller.Quiesce(errInputClosed)
	return nil
}

func (c *Console) diagnose(err error) {
	if c.Diagnostics != nil {
		fmt.Fprintf(c.Diagnostics, "mqfile: %v\n", err)
	}
}

func (c *Console) finish() {
	if c.Output != nil {
		_ = c.Output.Flush()
	}
	c.Controller.StopWatching()
}
