package wire

import (
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	"mqfile/internal/msgq"
)

// ChunkCapacity is the number of file bytes one data chunk carries.
const ChunkCapacity = msgq.MaxPayload - 1

// Kind tags the payload of a response message.
type Kind byte

const (
	// KindFinal marks the empty sentinel; it never appears on the wire.
	KindFinal Kind = 0
	// KindData carries file bytes.
	KindData Kind = 'D'
	// KindError carries a human-readable failure description.
	KindError Kind = 'E'
	// KindForward opens a transfer the receiving client did not request
	// itself. Its data is the requester pid in decimal.
	KindForward Kind = 'F'
)

func (k Kind) String() string {
	switch k {
	case KindFinal:
		return "final"
	case KindData:
		return "data"
	case KindError:
		return "error"
	case KindForward:
		return "forward"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

// Response is a decoded response message.
type Response struct {
	Kind Kind
	Data []byte
}

// Final reports whether r terminates its transfer.
func (r Response) Final() bool {
	return r.Kind == KindFinal
}

// Requester returns the pid carried by a forward header.
func (r Response) Requester() (int, error) {
	if r.Kind != KindForward {
		return 0, fmt.Errorf("%s response carries no requester", r.Kind)
	}
	pid, err := strconv.Atoi(string(r.Data))
	if err != nil {
		return 0, fmt.Errorf("forward header: %w", err)
	}
	return pid, nil
}

// DataChunk builds a data chunk for to. data must not exceed ChunkCapacity.
func DataChunk(to msgq.Address, data []byte) (msgq.Message, error) {
	if len(data) > ChunkCapacity {
		return msgq.Message{}, fmt.Errorf("chunk of %d bytes exceeds capacity %d", len(data), ChunkCapacity)
	}
	if len(data) == 0 {
		return msgq.Message{}, fmt.Errorf("empty data chunk would read as the final sentinel")
	}
	payload := make([]byte, 1+len(data))
	payload[0] = byte(KindData)
	copy(payload[1:], data)
	return msgq.Message{Type: to, Payload: payload}, nil
}

// ErrorChunk builds an error chunk for to, truncating text to fit.
func ErrorChunk(to msgq.Address, text string) msgq.Message {
	if text == "" {
		text = "unknown error"
	}
	if len(text) > ChunkCapacity {
		cut := ChunkCapacity
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	payload := make([]byte, 1+len(text))
	payload[0] = byte(KindError)
	copy(payload[1:], text)
	return msgq.Message{Type: to, Payload: payload}
}

// ForwardHeader announces to that the next transfer answers requester's
// request, not one of its own.
func ForwardHeader(to msgq.Address, requester int) msgq.Message {
	pid := strconv.Itoa(requester)
	payload := make([]byte, 1+len(pid))
	payload[0] = byte(KindForward)
	copy(payload[1:], pid)
	return msgq.Message{Type: to, Payload: payload}
}

// FinalMessage builds the empty sentinel for to.
func FinalMessage(to msgq.Address) msgq.Message {
	return msgq.Message{Type: to}
}

// DecodeResponse interprets a message received by a client.
func DecodeResponse(msg msgq.Message) (Response, error) {
	if msg.IsFinal() {
		return Response{Kind: KindFinal}, nil
	}
	kind := Kind(msg.Payload[0])
	switch kind {
	case KindData, KindError, KindForward:
		data := make([]byte, len(msg.Payload)-1)
		copy(data, msg.Payload[1:])
		return Response{Kind: kind, Data: data}, nil
	default:
		return Response{}, fmt.Errorf("unknown response kind %#x", byte(kind))
	}
}

// Chunker splits a stream into ChunkCapacity-sized pieces.
type Chunker struct {
	r   io.Reader
	buf [ChunkCapacity]byte
	eof bool
}

// NewChunker reads chunks from r.
func NewChunker(r io.Reader) *Chunker {
	return &Chunker{r: r}
}

// Next returns the next chunk, or io.EOF once the stream is exhausted. The
// returned slice is only valid until the following call.
func (c *Chunker) Next() ([]byte, error) {
	if c.eof {
		return nil, io.EOF
	}
	n, err := io.ReadFull(c.r, c.buf[:])
	switch err {
	case nil:
		return c.buf[:n], nil
	case io.ErrUnexpectedEOF:
		c.eof = true
		return c.buf[:n], nil
	case io.EOF:
		c.eof = true
		return nil, io.EOF
	default:
		return nil, err
	}
}
