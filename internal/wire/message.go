package wire

import (
	"errors"
	"fmt"
)

// ErrInvalidMessage is returned when a message fails validation.
var ErrInvalidMessage = errors.New("wire: invalid message")

// Op is a node operation.
type Op uint8

// Node operations.
const (
	OpOpen  Op = 1
	OpRead  Op = 2
	OpWrite Op = 3
	OpClose Op = 4
)

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case OpOpen:
		return "open"
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpClose:
		return "close"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// IsValid reports whether o is a known operation.
func (o Op) IsValid() bool {
	return o >= OpOpen && o <= OpClose
}

// Request is a client call on a node.
//
// Open uses Path and Flags. Read, Write and Close use FD. Read asks for up
// to Len bytes. Write declares Len bytes and supplies them in Data; Data
// shorter than Len is treated as an inaccessible buffer.
type Request struct {
	ID    uint32 `cbor:"1,keyasint"`
	Op    Op     `cbor:"2,keyasint"`
	FD    int32  `cbor:"3,keyasint,omitempty"`
	Path  string `cbor:"4,keyasint,omitempty"`
	Flags int32  `cbor:"5,keyasint,omitempty"`
	Len   uint32 `cbor:"6,keyasint,omitempty"`
	Data  []byte `cbor:"7,keyasint,omitempty"`
}

// Validate checks the fields the operation needs.
func (r *Request) Validate() error {
	if r.ID == 0 {
		return fmt.Errorf("%w: id 0 is reserved", ErrInvalidMessage)
	}
	if !r.Op.IsValid() {
		return fmt.Errorf("%w: operation %d", ErrInvalidMessage, r.Op)
	}
	if r.Op == OpOpen && r.Path == "" {
		return fmt.Errorf("%w: open without path", ErrInvalidMessage)
	}
	if r.Op != OpOpen && r.FD <= 0 {
		return fmt.Errorf("%w: %s without fd", ErrInvalidMessage, r.Op)
	}
	return nil
}

// Response answers the Request with the same ID.
//
// Errno is zero on success. N is the byte count moved by Read or Write. FD
// is set by a successful Open. Data carries the bytes of a Read.
type Response struct {
	ID    uint32 `cbor:"1,keyasint"`
	Errno Errno  `cbor:"2,keyasint"`
	N     int32  `cbor:"3,keyasint,omitempty"`
	FD    int32  `cbor:"4,keyasint,omitempty"`
	Data  []byte `cbor:"5,keyasint,omitempty"`
}

// Err returns the response's error, or nil on success.
func (r *Response) Err() error {
	return r.Errno.Err()
}
