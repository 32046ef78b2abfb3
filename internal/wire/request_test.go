package wire_test

import (
	"errors"
	"strings"
	"testing"

	"mqfile/internal/msgq"
	"mqfile/internal/wire"
)

func TestEncodeDecodeRequest(t *testing.T) {
	req := wire.Request{Filename: "notes.txt", Priority: 3, Requester: 4242, Target: 5151}
	msg, err := wire.EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	if msg.Type != msgq.ServerAddress {
		t.Fatalf("request addressed to %v, want server", msg.Type)
	}
	if len(msg.Payload) > msgq.MaxPayload {
		t.Fatalf("payload %d exceeds max", len(msg.Payload))
	}

	got, err := wire.DecodeRequest(msg)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if got != req {
		t.Fatalf("decoded %+v, want %+v", got, req)
	}
	if got.Destination() != 5151 || !got.Forwarded() {
		t.Fatalf("expected forwarding to target, got destination %v", got.Destination())
	}
}

func TestRequestDestinationDefaultsToRequester(t *testing.T) {
	req := wire.Request{Filename: "a", Priority: wire.DefaultPriority, Requester: 777}
	if req.Destination() != 777 || req.Forwarded() {
		t.Fatalf("unexpected destination %v", req.Destination())
	}
}

func TestLongestFilenameFitsOneMessage(t *testing.T) {
	req := wire.Request{
		Filename:  strings.Repeat("n", wire.MaxFilenameLength),
		Priority:  wire.MaxPriority,
		Requester: 1 << 30,
		Target:    1 << 30,
	}
	if _, err := wire.EncodeRequest(req); err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
}

func TestRequestValidation(t *testing.T) {
	base := wire.Request{Filename: "file.txt", Priority: wire.DefaultPriority, Requester: 1234}
	tests := []struct {
		name   string
		mutate func(*wire.Request)
	}{
		{"empty filename", func(r *wire.Request) { r.Filename = "  " }},
		{"long filename", func(r *wire.Request) { r.Filename = strings.Repeat("x", wire.MaxFilenameLength+1) }},
		{"nul filename", func(r *wire.Request) { r.Filename = "a\x00b" }},
		{"priority low", func(r *wire.Request) { r.Priority = 0 }},
		{"priority high", func(r *wire.Request) { r.Priority = wire.MaxPriority + 1 }},
		{"requester missing", func(r *wire.Request) { r.Requester = 0 }},
		{"requester is server", func(r *wire.Request) { r.Requester = int(msgq.ServerAddress) }},
		{"negative target", func(r *wire.Request) { r.Target = -1 }},
		{"target is server", func(r *wire.Request) { r.Target = int(msgq.ServerAddress) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			if _, err := wire.EncodeRequest(req); !errors.Is(err, wire.ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestDecodeRequestRejectsGarbage(t *testing.T) {
	for _, payload := range [][]byte{nil, []byte("not cbor at all"), {0xa1, 0x01}} {
		if _, err := wire.DecodeRequest(msgq.Message{Type: msgq.ServerAddress, Payload: payload}); !errors.Is(err, wire.ErrInvalidRequest) {
			t.Fatalf("payload %q: expected ErrInvalidRequest, got %v", payload, err)
		}
	}
}
