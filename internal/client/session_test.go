package client_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mqfile/internal/client"
	"mqfile/internal/msgq"
	"mqfile/internal/wire"
)

const testPID = 4242

func newSession(t *testing.T, mem *msgq.Memory) *client.Session {
	t.Helper()
	session, err := client.NewSession(mem, client.SessionOptions{PID: testPID})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return session
}

func TestSubmitRequestReachesServerAddress(t *testing.T) {
	mem := msgq.NewMemory(0)
	session := newSession(t, mem)

	if err := session.SubmitRequest(context.Background(), "  notes.txt ", 0, 0); err != nil {
		t.Fatalf("SubmitRequest: %v", err)
	}
	if session.Outstanding() != 1 {
		t.Fatalf("expected 1 outstanding transfer, got %d", session.Outstanding())
	}

	msg, err := mem.Receive(msgq.ServerAddress)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	req, err := wire.DecodeRequest(msg)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if req.Filename != "notes.txt" || req.Priority != wire.DefaultPriority || req.Requester != testPID || req.Target != 0 {
		t.Fatalf("unexpected request: %+v", req)
	}
	if session.Address() != msgq.ClientAddress(testPID) {
		t.Fatalf("unexpected address %s", session.Address())
	}
}

func TestSubmitRequestRejectsInvalidInput(t *testing.T) {
	mem := msgq.NewMemory(0)
	session := newSession(t, mem)
	ctx := context.Background()

	cases := []struct {
		name     string
		filename string
		priority int
		target   int
	}{
		{"empty filename", "   ", 0, 0},
		{"priority too high", "a.txt", 11, 0},
		{"negative priority", "a.txt", -1, 0},
		{"target is server", "a.txt", 1, int(msgq.ServerAddress)},
		{"negative target", "a.txt", 1, -5},
		{"filename too long", strings.Repeat("x", wire.MaxFilenameLength+1), 1, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := session.SubmitRequest(ctx, tc.filename, tc.priority, tc.target)
			if !errors.Is(err, client.ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
	if mem.Pending(msgq.ServerAddress) != 0 {
		t.Fatal("invalid requests must not reach the queue")
	}
	if session.Outstanding() != 0 {
		t.Fatalf("invalid requests must not be tracked, got %d", session.Outstanding())
	}
}

func TestForwardedRequestIsNotTracked(t *testing.T) {
	mem := msgq.NewMemory(0)
	session := newSession(t, mem)

	if err := session.SubmitRequest(context.Background(), "a.txt", 5, 777); err != nil {
		t.Fatalf("SubmitRequest: %v", err)
	}
	if session.Outstanding() != 0 {
		t.Fatalf("forwarded request should not be outstanding, got %d", session.Outstanding())
	}
	if err := session.SubmitRequest(context.Background(), "b.txt", 5, testPID); err != nil {
		t.Fatalf("SubmitRequest: %v", err)
	}
	if session.Outstanding() != 1 {
		t.Fatalf("self-targeted request should be outstanding, got %d", session.Outstanding())
	}
}

func TestSubmitAfterQueueRemoved(t *testing.T) {
	mem := msgq.NewMemory(0)
	session := newSession(t, mem)
	if err := mem.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	err := session.SubmitRequest(context.Background(), "a.txt", 0, 0)
	if !errors.Is(err, msgq.ErrQueueUnavailable) {
		t.Fatalf("expected ErrQueueUnavailable, got %v", err)
	}
	if session.Outstanding() != 0 {
		t.Fatalf("failed send must not stay outstanding, got %d", session.Outstanding())
	}
}

func TestNewSessionRefusesServerAddress(t *testing.T) {
	_, err := client.NewSession(msgq.NewMemory(0), client.SessionOptions{PID: int(msgq.ServerAddress)})
	if !errors.Is(err, client.ErrAddressCollision) {
		t.Fatalf("expected ErrAddressCollision, got %v", err)
	}
}

func TestParseDirective(t *testing.T) {
	cases := []struct {
		line    string
		want    client.Directive
		ok      bool
		wantErr bool
	}{
		{line: "", ok: false},
		{line: "   ", ok: false},
		{line: "quit", want: client.Directive{Quit: true}, ok: true},
		{line: " QUIT ", want: client.Directive{Quit: true}, ok: true},
		{line: "notes.txt", want: client.Directive{Filename: "notes.txt"}, ok: true},
		{line: "notes.txt 4", want: client.Directive{Filename: "notes.txt", Priority: 4}, ok: true},
		{line: "notes.txt 4 991", want: client.Directive{Filename: "notes.txt", Priority: 4, Target: 991}, ok: true},
		{line: "notes.txt high", wantErr: true},
		{line: "notes.txt 0", wantErr: true},
		{line: "notes.txt 1 pid", wantErr: true},
		{line: "notes.txt 1 2 3", wantErr: true},
	}
	for _, tc := range cases {
		got, ok, err := client.ParseDirective(tc.line)
		if tc.wantErr {
			if !errors.Is(err, client.ErrInvalidRequest) {
				t.Fatalf("%q: expected ErrInvalidRequest, got %v", tc.line, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: unexpected error %v", tc.line, err)
		}
		if ok != tc.ok || got != tc.want {
			t.Fatalf("%q: got %+v ok=%v want %+v ok=%v", tc.line, got, ok, tc.want, tc.ok)
		}
	}
}
