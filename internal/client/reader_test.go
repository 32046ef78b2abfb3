package client_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"mqfile/internal/client"
	"mqfile/internal/lifecycle"
	"mqfile/internal/msgq"
	"mqfile/internal/wire"
)

func mustSend(t *testing.T, mem *msgq.Memory, msg msgq.Message) {
	t.Helper()
	if err := mem.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func sendFile(t *testing.T, mem *msgq.Memory, to msgq.Address, data []byte) {
	t.Helper()
	chunker := wire.NewChunker(bytes.NewReader(data))
	for {
		chunk, err := chunker.Next()
		if err != nil {
			break
		}
		msg, err := wire.DataChunk(to, chunk)
		if err != nil {
			t.Fatalf("DataChunk: %v", err)
		}
		mustSend(t, mem, msg)
	}
	mustSend(t, mem, wire.FinalMessage(to))
}

func newReader(mem *msgq.Memory, session *client.Session, ctrl *lifecycle.Controller, out, errOut *bytes.Buffer) *client.Reader {
	return client.NewReader(mem, session, ctrl, client.ReaderOptions{
		Output:          out,
		ErrorOutput:     errOut,
		PollInterval:    time.Millisecond,
		MaxPollInterval: 4 * time.Millisecond,
	})
}

func runReader(reader *client.Reader) <-chan error {
	done := make(chan error, 1)
	go func() { done <- reader.Run(context.Background()) }()
	return done
}

func TestReaderReassemblesAndClosesSession(t *testing.T) {
	defer goleak.VerifyNone(t)

	mem := msgq.NewMemory(1 << 20)
	session := newSession(t, mem)
	ctrl := lifecycle.New(context.Background())
	defer ctrl.Terminate()

	if err := session.SubmitRequest(context.Background(), "notes.txt", 0, 0); err != nil {
		t.Fatalf("SubmitRequest: %v", err)
	}
	content := []byte(strings.Repeat("0123456789", 64))[:wire.ChunkCapacity*5/2]
	sendFile(t, mem, session.Address(), content)

	var out, errOut bytes.Buffer
	done := runReader(newReader(mem, session, ctrl, &out, &errOut))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := session.Wait(ctx); err != nil {
		t.Fatalf("transfer did not complete: %v", err)
	}
	ctrl.Quiesce(nil)
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !bytes.Equal(out.Bytes(), content) {
		t.Fatalf("reassembled %d bytes, want %d", out.Len(), len(content))
	}
	if errOut.Len() != 0 {
		t.Fatalf("unexpected error output %q", errOut.String())
	}
}

func TestReaderWritesErrorChunksToErrorOutput(t *testing.T) {
	defer goleak.VerifyNone(t)

	mem := msgq.NewMemory(0)
	session := newSession(t, mem)
	ctrl := lifecycle.New(context.Background())
	defer ctrl.Terminate()

	if err := session.SubmitRequest(context.Background(), "missing.txt", 0, 0); err != nil {
		t.Fatalf("SubmitRequest: %v", err)
	}
	mustSend(t, mem, wire.ErrorChunk(session.Address(), "missing.txt: file not found"))
	mustSend(t, mem, wire.FinalMessage(session.Address()))

	var out, errOut bytes.Buffer
	done := runReader(newReader(mem, session, ctrl, &out, &errOut))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := session.Wait(ctx); err != nil {
		t.Fatalf("transfer did not complete: %v", err)
	}
	ctrl.Quiesce(nil)
	<-done

	if out.Len() != 0 {
		t.Fatalf("error must not reach stdout, got %q", out.String())
	}
	if got := errOut.String(); got != "mqfile: missing.txt: file not found\n" {
		t.Fatalf("unexpected error output %q", got)
	}
}

func TestReaderStopsWithServerGoneWhenQueueRemoved(t *testing.T) {
	defer goleak.VerifyNone(t)

	mem := msgq.NewMemory(0)
	session := newSession(t, mem)
	ctrl := lifecycle.New(context.Background())
	defer ctrl.Terminate()

	if err := session.SubmitRequest(context.Background(), "slow.txt", 0, 0); err != nil {
		t.Fatalf("SubmitRequest: %v", err)
	}
	var out, errOut bytes.Buffer
	done := runReader(newReader(mem, session, ctrl, &out, &errOut))

	time.Sleep(10 * time.Millisecond)
	if err := mem.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, client.ErrServerGone) {
			t.Fatalf("expected ErrServerGone, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reader did not stop after queue removal")
	}
}

func TestReaderDoesNotDequeueAfterShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	mem := msgq.NewMemory(0)
	session := newSession(t, mem)
	ctrl := lifecycle.New(context.Background())
	defer ctrl.Terminate()

	msg, err := wire.DataChunk(session.Address(), []byte("late"))
	if err != nil {
		t.Fatalf("DataChunk: %v", err)
	}
	mustSend(t, mem, msg)
	ctrl.Quiesce(nil)

	var out, errOut bytes.Buffer
	if err := newReader(mem, session, ctrl, &out, &errOut).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("reader consumed a message after shutdown: %q", out.String())
	}
	if mem.Pending(session.Address()) != 1 {
		t.Fatalf("expected message to remain queued, pending=%d", mem.Pending(session.Address()))
	}
}

func TestReaderIgnoresOtherAddresses(t *testing.T) {
	defer goleak.VerifyNone(t)

	mem := msgq.NewMemory(0)
	session := newSession(t, mem)
	ctrl := lifecycle.New(context.Background())
	defer ctrl.Terminate()

	other := msgq.ClientAddress(testPID + 1)
	foreign, _ := wire.DataChunk(other, []byte("not yours"))
	mustSend(t, mem, foreign)
	mustSend(t, mem, wire.FinalMessage(other))

	if err := session.SubmitRequest(context.Background(), "mine.txt", 0, 0); err != nil {
		t.Fatalf("SubmitRequest: %v", err)
	}
	sendFile(t, mem, session.Address(), []byte("yours"))

	var out, errOut bytes.Buffer
	done := runReader(newReader(mem, session, ctrl, &out, &errOut))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := session.Wait(ctx); err != nil {
		t.Fatalf("transfer did not complete: %v", err)
	}
	ctrl.Quiesce(nil)
	<-done

	if out.String() != "yours" {
		t.Fatalf("unexpected output %q", out.String())
	}
	if mem.Pending(other) != 2 {
		t.Fatalf("foreign messages were consumed, pending=%d", mem.Pending(other))
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if client.ShouldColorize(&bytes.Buffer{}) {
		t.Fatal("buffers are never terminals")
	}
}
