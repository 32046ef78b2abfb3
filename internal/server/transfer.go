package server

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/zeebo/blake3"

	"mqfile/internal/history"
	"mqfile/internal/logging"
	"mqfile/internal/wire"
)

// OpenFile resolves name inside the configured root, or as given when no root
// is configured. Every failure wraps ErrFileNotFound.
func (s *Server) OpenFile(name string) (*os.File, error) {
	var (
		f   *os.File
		err error
	)
	if s.root != nil {
		f, err = s.root.Open(name)
	} else {
		f, err = os.Open(name)
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, ErrFileNotFound)
		}
		// Escapes from the root and permission problems read the same to clients.
		return nil, fmt.Errorf("%s: %w (%v)", name, ErrFileNotFound, unwrapPathError(err))
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w (%v)", name, ErrFileNotFound, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s: %w (is a directory)", name, ErrFileNotFound)
	}
	return f, nil
}

func unwrapPathError(err error) error {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err
	}
	return err
}

// serve runs one transfer to completion, always ending with a final message
// unless the queue itself fails.
func (s *Server) serve(ctx context.Context, j *job) {
	if j.reject != "" {
		s.refuse(ctx, j, j.reject, history.StatusRejected)
		return
	}
	logger := s.transferLogger(j)

	f, err := s.OpenFile(j.req.Filename)
	if err != nil {
		logger.Info("request for unavailable file", logging.Error(err))
		s.refuse(ctx, j, err.Error(), history.StatusNotFound)
		return
	}
	defer f.Close()

	out := history.Outcome{Status: history.StatusCompleted}
	if err := s.announce(ctx, j); err != nil {
		s.abandon(ctx, j, out, err)
		return
	}
	chunker := wire.NewChunker(f)
	digest := blake3.New()
	for {
		chunk, readErr := chunker.Next()
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			out.Status = history.StatusAborted
			out.Error = fmt.Sprintf("%s: read failed: %v", j.req.Filename, readErr)
			s.sendError(ctx, j, out.Error)
			break
		}
		msg, err := wire.DataChunk(j.dest, chunk)
		if err != nil {
			out.Status = history.StatusAborted
			out.Error = err.Error()
			break
		}
		if err := s.transport.Send(ctx, msg); err != nil {
			s.abandon(ctx, j, out, err)
			return
		}
		out.Chunks++
		out.Bytes += int64(len(chunk))
		_, _ = digest.Write(chunk)

		if !s.ctrl.Running() {
			out.Status = history.StatusAborted
			out.Error = interruptedMessage
			s.sendError(ctx, j, interruptedMessage)
			break
		}
	}
	if out.Status == history.StatusCompleted {
		out.Digest = hex.EncodeToString(digest.Sum(nil))
	}

	if err := s.transport.Send(ctx, wire.FinalMessage(j.dest)); err != nil {
		s.abandon(ctx, j, out, err)
		return
	}
	s.finish(ctx, j, out)
	logger.Info("transfer finished",
		logging.String("status", string(out.Status)),
		logging.Int("chunks", out.Chunks),
		logging.Int64("bytes", out.Bytes),
		logging.Duration("elapsed", time.Since(j.accepted)),
	)
}

// refuse answers j with one error chunk and the final.
func (s *Server) refuse(ctx context.Context, j *job, text string, status history.Status) {
	out := history.Outcome{Status: status, Error: text}
	if err := s.announce(ctx, j); err != nil {
		s.abandon(ctx, j, out, err)
		return
	}
	if err := s.sendError(ctx, j, text); err != nil {
		s.abandon(ctx, j, out, err)
		return
	}
	if err := s.transport.Send(ctx, wire.FinalMessage(j.dest)); err != nil {
		s.abandon(ctx, j, out, err)
		return
	}
	s.finish(ctx, j, out)
	s.transferLogger(j).Debug("request refused", logging.String("reason", text))
}

// announce opens the transfer of a forwarded request with a forward header,
// so the receiving client does not count its final against its own requests.
// The header goes out even when the answer falls back to the requester.
func (s *Server) announce(ctx context.Context, j *job) error {
	if !j.req.Forwarded() {
		return nil
	}
	return s.transport.Send(ctx, wire.ForwardHeader(j.dest, j.req.Requester))
}

func (s *Server) sendError(ctx context.Context, j *job, text string) error {
	return s.transport.Send(ctx, wire.ErrorChunk(j.dest, text))
}

// abandon records a transfer whose final could not be delivered.
func (s *Server) abandon(ctx context.Context, j *job, out history.Outcome, err error) {
	out.Status = history.StatusAborted
	out.Error = fmt.Sprintf("send failed: %v", err)
	s.finish(ctx, j, out)
	logging.WarnWithContext(s.transferLogger(j), "transfer abandoned without final message", "transfer_abandoned",
		logging.Error(err),
		logging.Int("chunks", out.Chunks),
		logging.String(logging.FieldErrorHint, "the client stopped reading or the queue was removed"),
		logging.String(logging.FieldImpact, "the client may wait for a final that never arrives"),
	)
}

func (s *Server) record(ctx context.Context, j *job) {
	if s.opts.History == nil {
		return
	}
	err := s.opts.History.Begin(context.WithoutCancel(ctx), history.Transfer{
		ID:          j.id,
		Requester:   int64(j.req.Requester),
		Destination: int64(j.dest),
		Filename:    j.req.Filename,
		Priority:    j.req.Priority,
		StartedAt:   j.accepted,
	})
	if err != nil {
		s.transferLogger(j).Debug("history begin failed", logging.Error(err))
	}
}

func (s *Server) finish(ctx context.Context, j *job, out history.Outcome) {
	if s.opts.History == nil {
		return
	}
	if err := s.opts.History.Finish(context.WithoutCancel(ctx), j.id, out); err != nil {
		s.transferLogger(j).Debug("history finish failed", logging.Error(err))
	}
}
