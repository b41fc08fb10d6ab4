package register

import "errors"

// Domain errors for the register package.
//
// Size mismatches are deliberately absent: a wrong-sized transfer returns
// zero bytes with a nil error.
var (
	// ErrInterrupted is returned when the semaphore wait is cancelled before
	// acquisition. The caller may retry.
	ErrInterrupted = errors.New("register: interrupted")

	// ErrFault is returned when a caller-supplied buffer cannot be accessed.
	// It indicates a caller bug and is not retryable.
	ErrFault = errors.New("register: bad address")

	// ErrClosed is returned for I/O on a handle that has been closed.
	ErrClosed = errors.New("register: handle closed")
)
