package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mqfile/internal/history"
	"mqfile/internal/lifecycle"
	"mqfile/internal/logging"
	"mqfile/internal/msgq"
	"mqfile/internal/wire"
)

var (
	// ErrFileNotFound reports a requested file that cannot be served.
	ErrFileNotFound = errors.New("file not found")
	// ErrAlreadyRunning reports another server holding the lock file.
	ErrAlreadyRunning = errors.New("another mqfile server is already running")
	// ErrQueueRemoved reports the queue disappearing while the server ran.
	ErrQueueRemoved = errors.New("queue removed while serving")
)

const (
	defaultMaxTransfers    = 4
	defaultPollInterval    = 10 * time.Millisecond
	defaultMaxPollInterval = 200 * time.Millisecond
	defaultShutdownTimeout = 10 * time.Second

	shutdownMessage    = "server shutting down"
	interruptedMessage = "transfer interrupted: server shutting down"
)

// Recorder receives transfer history. *history.Store satisfies it.
type Recorder interface {
	Begin(ctx context.Context, t history.Transfer) error
	Finish(ctx context.Context, id string, out history.Outcome) error
}

// Options configures a Server.
type Options struct {
	// Root confines requests to a directory. Empty opens names as given.
	Root            string
	MaxTransfers    int
	PollInterval    time.Duration
	MaxPollInterval time.Duration
	// ShutdownTimeout bounds how long shutdown keeps sending finals and
	// waiting for clients to collect them.
	ShutdownTimeout time.Duration
	// LockPath, when set, is held for the lifetime of Run.
	LockPath string
	History  Recorder
	Logger   *slog.Logger
	// TargetAlive reports whether a forwarding target exists. Defaults to a
	// signal-0 probe.
	TargetAlive func(pid int) bool
}

// Server answers file requests arriving on a transport.
type Server struct {
	transport msgq.Transport
	ctrl      *lifecycle.Controller
	opts      Options
	root      *os.Root
	sched     *scheduler
	logger    *slog.Logger
}

// New validates opts and binds a server to transport.
func New(transport msgq.Transport, ctrl *lifecycle.Controller, opts Options) (*Server, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: no transport", msgq.ErrQueueUnavailable)
	}
	if ctrl == nil {
		return nil, errors.New("server: nil controller")
	}
	if opts.MaxTransfers <= 0 {
		opts.MaxTransfers = defaultMaxTransfers
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.MaxPollInterval < opts.PollInterval {
		opts.MaxPollInterval = max(defaultMaxPollInterval, opts.PollInterval)
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	if opts.TargetAlive == nil {
		opts.TargetAlive = processExists
	}

	s := &Server{
		transport: transport,
		ctrl:      ctrl,
		opts:      opts,
		sched:     newScheduler(),
		logger:    logging.NewComponentLogger(opts.Logger, "server"),
	}
	if root := strings.TrimSpace(opts.Root); root != "" {
		r, err := os.OpenRoot(root)
		if err != nil {
			return nil, fmt.Errorf("open root %q: %w", root, err)
		}
		s.root = r
	}
	return s, nil
}

// Counts reports queued and active transfers.
func (s *Server) Counts() (pending, active int) {
	return s.sched.counts()
}

// Run serves until the controller leaves Running or ctx is cancelled, then
// drains and removes the queue. A nil return means a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	if s.root != nil {
		defer s.root.Close()
	}

	if s.opts.LockPath != "" {
		lock := flock.New(s.opts.LockPath)
		ok, lockErr := lock.TryLock()
		if lockErr != nil {
			return fmt.Errorf("acquire lock: %w", lockErr)
		}
		if !ok {
			return fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, s.opts.LockPath)
		}
		defer func() {
			if unlockErr := lock.Unlock(); unlockErr != nil {
				s.logger.Warn("failed to release server lock", logging.Error(unlockErr))
			}
		}()
	}

	s.recoverHistory(ctx)

	stopParent := context.AfterFunc(ctx, func() { s.ctrl.Quiesce(context.Cause(ctx)) })
	defer stopParent()

	// Sends outlive the controller context; shutdown arms a deadline instead.
	sendCtx, cancelSend := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelSend()
	var (
		timerMu    sync.Mutex
		drainTimer *time.Timer
		finished   bool
	)
	stopArm := context.AfterFunc(s.ctrl.Context(), func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if !finished {
			drainTimer = time.AfterFunc(s.opts.ShutdownTimeout, cancelSend)
		}
	})
	defer func() {
		stopArm()
		timerMu.Lock()
		finished = true
		if drainTimer != nil {
			drainTimer.Stop()
		}
		timerMu.Unlock()
	}()

	s.logger.Info("server started",
		logging.Int("max_transfers", s.opts.MaxTransfers),
		logging.String("root", s.opts.Root),
	)

	var g errgroup.Group
	for i := 0; i < s.opts.MaxTransfers; i++ {
		g.Go(func() error {
			s.work(sendCtx)
			return nil
		})
	}

	dispatchErr := s.dispatch(sendCtx)
	if dispatchErr != nil {
		logging.ErrorWithContext(s.logger, "request dispatch stopped", "dispatch_failed",
			logging.Error(dispatchErr),
			logging.String(logging.FieldErrorHint, "the queue was removed or became unreadable; check ipcs -q"),
			logging.String(logging.FieldImpact, "in-flight transfers end without further chunks"),
		)
		s.ctrl.Quiesce(dispatchErr)
	}

	s.logger.Info("server stopping", logging.Any("cause", s.ctrl.Cause()))
	s.sched.close()
	_ = g.Wait()

	s.refusePending(sendCtx)
	if dispatchErr == nil {
		s.refuseBacklog(sendCtx)
		s.linger(sendCtx)
	}

	if destroyErr := s.transport.Destroy(); destroyErr != nil {
		if errors.Is(destroyErr, msgq.ErrQueueAlreadyRemoved) {
			logging.WarnWithContext(s.logger, "queue already removed", "queue_destroy",
				logging.String(logging.FieldErrorHint, "another process removed the queue first"),
				logging.String(logging.FieldImpact, "none; the queue is gone"),
			)
		} else if dispatchErr == nil {
			return fmt.Errorf("remove queue: %w", destroyErr)
		}
	}
	s.logger.Info("server stopped")
	return dispatchErr
}

// dispatch accepts requests until shutdown. It returns an error only when the
// queue stops working underneath it.
func (s *Server) dispatch(ctx context.Context) error {
	delay := s.opts.PollInterval
	for s.ctrl.Running() {
		msg, err := s.transport.Receive(msgq.ServerAddress)
		switch {
		case errors.Is(err, msgq.ErrNoMessage):
			if !s.sleep(delay) {
				return nil
			}
			delay = min(delay*2, s.opts.MaxPollInterval)
			continue
		case errors.Is(err, msgq.ErrQueueClosed):
			return fmt.Errorf("%w: %w", ErrQueueRemoved, err)
		case err != nil:
			return fmt.Errorf("receive request: %w", err)
		}
		delay = s.opts.PollInterval
		s.accept(ctx, msg)
	}
	return nil
}

func (s *Server) accept(ctx context.Context, msg msgq.Message) {
	req, err := wire.DecodeRequest(msg)
	if err != nil {
		// No trustworthy reply address exists for an undecodable request.
		logging.WarnWithContext(s.logger, "dropping malformed request", "request_decode",
			logging.Error(err),
			logging.Int("payload_bytes", len(msg.Payload)),
			logging.String(logging.FieldErrorHint, "check the client version"),
			logging.String(logging.FieldImpact, "the sender receives no response"),
		)
		return
	}

	j := &job{
		id:       uuid.NewString(),
		req:      req,
		dest:     req.Destination(),
		accepted: time.Now(),
	}
	if req.Forwarded() && !s.opts.TargetAlive(req.Target) {
		j.dest = msgq.ClientAddress(req.Requester)
		j.reject = fmt.Sprintf("target client %d not found", req.Target)
	}

	s.record(ctx, j)
	if !s.sched.push(j) {
		s.refuse(ctx, j, shutdownMessage, history.StatusAborted)
		return
	}
	s.transferLogger(j).Debug("request accepted", logging.Int("priority", req.Priority))
}

// work serves jobs with ctx until shutdown starts; no job starts afterwards.
func (s *Server) work(ctx context.Context) {
	for {
		j, ok := s.sched.next(s.ctrl.Context())
		if !ok {
			return
		}
		s.serve(ctx, j)
		s.sched.done(j)
	}
}

// refusePending answers accepted requests that never started.
func (s *Server) refusePending(ctx context.Context) {
	for _, j := range s.sched.drain() {
		s.refuse(ctx, j, shutdownMessage, history.StatusAborted)
	}
}

// refuseBacklog answers requests still in the queue when accepting stopped.
func (s *Server) refuseBacklog(ctx context.Context) {
	for ctx.Err() == nil {
		msg, err := s.transport.Receive(msgq.ServerAddress)
		if err != nil {
			return
		}
		req, err := wire.DecodeRequest(msg)
		if err != nil {
			continue
		}
		j := &job{id: uuid.NewString(), req: req, dest: msgq.ClientAddress(req.Requester), accepted: time.Now()}
		s.record(ctx, j)
		s.refuse(ctx, j, shutdownMessage, history.StatusAborted)
	}
}

// linger gives clients until the drain deadline to collect their messages.
func (s *Server) linger(ctx context.Context) {
	statter, ok := s.transport.(interface{ Stat() (msgq.Stats, error) })
	if !ok {
		return
	}
	delay := s.opts.PollInterval
	for {
		st, err := statter.Stat()
		if err != nil || st.Messages == 0 {
			return
		}
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("clients left messages unread at shutdown", logging.Uint64("messages", st.Messages))
			return
		}
		delay = min(delay*2, s.opts.MaxPollInterval)
	}
}

func (s *Server) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.ctrl.Done():
		return false
	}
}

func (s *Server) recoverHistory(ctx context.Context) {
	recoverer, ok := s.opts.History.(interface {
		Recover(context.Context) (int64, error)
	})
	if !ok {
		return
	}
	n, err := recoverer.Recover(ctx)
	if err != nil {
		logging.WarnWithContext(s.logger, "history recovery failed", "history_recover",
			logging.Error(err),
			logging.String(logging.FieldImpact, "interrupted transfers stay marked active"),
		)
		return
	}
	if n > 0 {
		s.logger.Info("marked interrupted transfers aborted", logging.Int64("count", n))
	}
}

func (s *Server) transferLogger(j *job) *slog.Logger {
	ctx := logging.WithTransferID(context.Background(), j.id)
	ctx = logging.WithRequester(ctx, int64(j.req.Requester))
	return logging.WithContext(ctx, s.logger).With(
		logging.String(logging.FieldFilename, j.req.Filename),
		logging.Int64(logging.FieldDestination, int64(j.dest)),
	)
}
