package register

import (
	"encoding/binary"
	"fmt"
)

// Width is the serialized size of the register in bytes.
const Width = 4

// PageSize bounds the text interface in both directions.
const PageSize = 4096

// Buffer is a caller-owned transfer area.
//
// It models the copy across a privilege boundary: a transfer may fail
// independently of the logical operation, in which case the implementation
// returns an error and the store reports ErrFault.
type Buffer interface {
	// Len is the size the caller declared for the transfer.
	Len() int

	// CopyOut copies src from the store into the caller's area.
	CopyOut(src []byte) error

	// CopyIn fills dst from the caller's area.
	CopyIn(dst []byte) error
}

// Bytes is a Buffer backed by a plain slice. Transfers never fault as long
// as they fit, which the store guarantees by checking Len first.
type Bytes []byte

// Len implements Buffer.
func (b Bytes) Len() int { return len(b) }

// CopyOut implements Buffer.
func (b Bytes) CopyOut(src []byte) error {
	if len(src) > len(b) {
		return fmt.Errorf("%w: copy of %d bytes into %d", ErrFault, len(src), len(b))
	}
	copy(b, src)
	return nil
}

// CopyIn implements Buffer.
func (b Bytes) CopyIn(dst []byte) error {
	if len(dst) > len(b) {
		return fmt.Errorf("%w: copy of %d bytes from %d", ErrFault, len(dst), len(b))
	}
	copy(dst, b)
	return nil
}

// Encode returns the native-endian wire form of v.
func Encode(v int32) []byte {
	b := make([]byte, Width)
	binary.NativeEndian.PutUint32(b, uint32(v))
	return b
}

// Decode parses the native-endian wire form produced by Encode.
func Decode(b []byte) (int32, error) {
	if len(b) != Width {
		return 0, fmt.Errorf("register: decode %d bytes, want %d", len(b), Width)
	}
	return int32(binary.NativeEndian.Uint32(b)), nil
}
