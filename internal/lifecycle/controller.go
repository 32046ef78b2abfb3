package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

// State is a position in the shutdown state machine.
type State int32

const (
	// Running accepts and performs work.
	Running State = iota
	// Quiescing stops taking new work and drains what is in flight.
	Quiescing
	// Terminated is final.
	Terminated
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Quiescing:
		return "quiescing"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrShutdownRequested is the cause recorded when shutdown is requested
// without a more specific reason.
var ErrShutdownRequested = errors.New("shutdown requested")

// SignalError records the signal that started shutdown.
type SignalError struct {
	Signal os.Signal
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("received %s", e.Signal)
}

// Is lets errors.Is match SignalError against ErrShutdownRequested.
func (e *SignalError) Is(target error) bool {
	return target == ErrShutdownRequested
}

// DefaultSignals are the signals that start shutdown.
var DefaultSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// Controller owns the shutdown state shared by the components of one process.
type Controller struct {
	state atomic.Int32

	ctx        context.Context
	cancel     context.CancelCauseFunc
	stopParent func() bool

	mu       sync.Mutex
	watching []os.Signal
	stopSig  chan struct{}
	sigCh    chan os.Signal
	watchWG  sync.WaitGroup
}

// New returns a Running controller. Cancelling parent starts quiescing.
func New(parent context.Context) *Controller {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	c := &Controller{ctx: ctx, cancel: cancel}
	c.stopParent = context.AfterFunc(parent, func() {
		cause := context.Cause(parent)
		if cause == nil {
			cause = ErrShutdownRequested
		}
		c.Quiesce(cause)
	})
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Running reports whether new work may start.
func (c *Controller) Running() bool {
	return c.State() == Running
}

// Quiesce moves Running to Quiescing and reports whether this call made the
// transition. Later calls are no-ops.
func (c *Controller) Quiesce(cause error) bool {
	if !c.state.CompareAndSwap(int32(Running), int32(Quiescing)) {
		return false
	}
	if cause == nil {
		cause = ErrShutdownRequested
	}
	c.cancel(cause)
	return true
}

// Terminate marks cleanup as finished. It implies Quiesce.
func (c *Controller) Terminate() {
	c.Quiesce(ErrShutdownRequested)
	c.state.Store(int32(Terminated))
	c.StopWatching()
	if c.stopParent != nil {
		c.stopParent()
	}
}

// Done is closed once the controller leaves Running.
func (c *Controller) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Context is cancelled once the controller leaves Running.
func (c *Controller) Context() context.Context {
	return c.ctx
}

// Cause returns why shutdown started, or nil while Running.
func (c *Controller) Cause() error {
	return context.Cause(c.ctx)
}

// Signal returns the signal that started shutdown, if any.
func (c *Controller) Signal() (os.Signal, bool) {
	var sigErr *SignalError
	if errors.As(c.Cause(), &sigErr) {
		return sigErr.Signal, true
	}
	return nil, false
}

// resetSignals restores default signal dispositions.
var resetSignals = signal.Reset

// Watch routes the given signals (DefaultSignals when none are given) into
// Quiesce until StopWatching is called.
func (c *Controller) Watch(signals ...os.Signal) {
	if len(signals) == 0 {
		signals = DefaultSignals
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sigCh != nil {
		return
	}
	c.watching = append([]os.Signal(nil), signals...)
	c.sigCh = make(chan os.Signal, 1)
	c.stopSig = make(chan struct{})
	signal.Notify(c.sigCh, c.watching...)

	sigCh, stop, watching := c.sigCh, c.stopSig, c.watching
	c.watchWG.Add(1)
	go func() {
		defer c.watchWG.Done()
		select {
		case sig := <-sigCh:
			// A repeated signal takes the default action and ends the process.
			resetSignals(watching...)
			c.Quiesce(&SignalError{Signal: sig})
		case <-stop:
		}
	}()
}

// StopWatching restores the default disposition of the watched signals.
func (c *Controller) StopWatching() {
	c.mu.Lock()
	if c.sigCh == nil {
		c.mu.Unlock()
		return
	}
	signal.Stop(c.sigCh)
	signal.Reset(c.watching...)
	close(c.stopSig)
	c.sigCh = nil
	c.stopSig = nil
	c.watching = nil
	c.mu.Unlock()
	c.watchWG.Wait()
}
