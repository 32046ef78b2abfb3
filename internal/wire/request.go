package wire

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"mqfile/internal/msgq"
)

const (
	// DefaultPriority is applied when a request omits its priority.
	DefaultPriority = 1
	// MinPriority is the lowest accepted priority.
	MinPriority = 1
	// MaxPriority is the highest accepted priority.
	MaxPriority = 10
	// MaxFilenameLength bounds the filename so an encoded request fits one message.
	MaxFilenameLength = 200
)

// ErrInvalidRequest reports a request that must not be sent.
var ErrInvalidRequest = errors.New("invalid request")

// Request asks the server for the contents of a file.
type Request struct {
	Filename  string `cbor:"1,keyasint"`
	Priority  int    `cbor:"2,keyasint"`
	Requester int    `cbor:"3,keyasint"`
	// Target, when non-zero, is the pid the response is forwarded to
	// instead of the requester.
	Target int `cbor:"4,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("wire: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		MaxArrayElements: 16,
		MaxMapPairs:      16,
	}.DecMode()
	if err != nil {
		panic("wire: CBOR decoder initialization failed: " + err.Error())
	}
}

// Destination returns the address the response to r must be sent to.
func (r Request) Destination() msgq.Address {
	if r.Target > 0 {
		return msgq.ClientAddress(r.Target)
	}
	return msgq.ClientAddress(r.Requester)
}

// Forwarded reports whether the response goes to a third process.
func (r Request) Forwarded() bool {
	return r.Target > 0 && r.Target != r.Requester
}

// Validate checks r against the protocol limits.
func (r Request) Validate() error {
	name := strings.TrimSpace(r.Filename)
	switch {
	case name == "":
		return fmt.Errorf("%w: filename is required", ErrInvalidRequest)
	case len(r.Filename) > MaxFilenameLength:
		return fmt.Errorf("%w: filename longer than %d bytes", ErrInvalidRequest, MaxFilenameLength)
	case strings.ContainsRune(r.Filename, 0):
		return fmt.Errorf("%w: filename contains NUL", ErrInvalidRequest)
	case r.Priority < MinPriority || r.Priority > MaxPriority:
		return fmt.Errorf("%w: priority %d outside %d-%d", ErrInvalidRequest, r.Priority, MinPriority, MaxPriority)
	case r.Requester <= 0 || msgq.ClientAddress(r.Requester).IsServer():
		return fmt.Errorf("%w: requester pid %d cannot receive responses", ErrInvalidRequest, r.Requester)
	case r.Target < 0 || (r.Target > 0 && msgq.ClientAddress(r.Target).IsServer()):
		return fmt.Errorf("%w: target pid %d cannot receive responses", ErrInvalidRequest, r.Target)
	}
	return nil
}

// EncodeRequest validates r and packs it into a message for the server.
func EncodeRequest(r Request) (msgq.Message, error) {
	if err := r.Validate(); err != nil {
		return msgq.Message{}, err
	}
	data, err := encMode.Marshal(r)
	if err != nil {
		return msgq.Message{}, fmt.Errorf("encode request: %w", err)
	}
	if len(data) > msgq.MaxPayload {
		return msgq.Message{}, fmt.Errorf("%w: encoded request is %d bytes (max %d)", ErrInvalidRequest, len(data), msgq.MaxPayload)
	}
	return msgq.Message{Type: msgq.ServerAddress, Payload: data}, nil
}

// DecodeRequest unpacks and validates a request message.
func DecodeRequest(msg msgq.Message) (Request, error) {
	if msg.IsFinal() {
		return Request{}, fmt.Errorf("%w: empty payload", ErrInvalidRequest)
	}
	var r Request
	if err := decMode.Unmarshal(msg.Payload, &r); err != nil {
		return Request{}, fmt.Errorf("%w: decode: %v", ErrInvalidRequest, err)
	}
	if err := r.Validate(); err != nil {
		return Request{}, err
	}
	return r, nil
}
