package hal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"golang.org/x/sys/unix"

	"github.com/nerrad567/hello-hal/internal/driver"
	"github.com/nerrad567/hello-hal/internal/register"
	"github.com/nerrad567/hello-hal/internal/wire"
)

// Domain errors for the hal package.
var (
	// ErrDeviceUnavailable is matched by every *OpenError.
	ErrDeviceUnavailable = errors.New("hal: device unavailable")

	// ErrInvalidArgument is returned for an absent destination.
	ErrInvalidArgument = errors.New("hal: invalid argument")

	// ErrShortTransfer is returned in strict mode when fewer than
	// register.Width bytes moved.
	ErrShortTransfer = errors.New("hal: short transfer")

	// ErrInterrupted is returned when the device wait was interrupted.
	ErrInterrupted = errors.New("hal: interrupted")

	// ErrFault is returned when the device rejected the transfer buffer.
	ErrFault = errors.New("hal: bad address")

	// ErrClosed is returned for calls on a closed Device.
	ErrClosed = errors.New("hal: device closed")

	// ErrIO wraps any other failure of the underlying connection.
	ErrIO = errors.New("hal: i/o error")
)

// OpenError reports a failed open_device.
type OpenError struct {
	Path  string
	Errno unix.Errno
	Err   error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("hal: open %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *OpenError) Unwrap() error { return e.Err }

// Is reports whether target is ErrDeviceUnavailable.
func (e *OpenError) Is(target error) bool {
	return target == ErrDeviceUnavailable
}

// errnoOf extracts the OS error number carried by err, falling back to the
// errno the node protocol would use.
func errnoOf(err error) unix.Errno {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return unix.EINVAL
	case errors.Is(err, ErrClosed):
		return unix.EBADF
	case errors.Is(err, ErrInterrupted):
		return unix.EINTR
	case errors.Is(err, ErrFault):
		return unix.EFAULT
	}
	return unix.Errno(wire.ErrnoOf(err))
}

// classify maps a connection error to the package error classes.
func classify(err error) error {
	switch {
	case errors.Is(err, register.ErrInterrupted),
		errors.Is(err, unix.EINTR),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	case errors.Is(err, register.ErrFault), errors.Is(err, unix.EFAULT):
		return fmt.Errorf("%w: %w", ErrFault, err)
	case errors.Is(err, register.ErrClosed),
		errors.Is(err, driver.ErrBadHandle),
		errors.Is(err, unix.EBADF),
		errors.Is(err, fs.ErrClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	default:
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
}
