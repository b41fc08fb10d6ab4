package wire

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/nerrad567/hello-hal/internal/driver"
	"github.com/nerrad567/hello-hal/internal/register"
)

// Errno is a unix error number carried in a Response.
type Errno uint16

// Errors a node operation can report.
const (
	OK     Errno = 0
	EINTR  Errno = Errno(unix.EINTR)
	EFAULT Errno = Errno(unix.EFAULT)
	EACCES Errno = Errno(unix.EACCES)
	ENOENT Errno = Errno(unix.ENOENT)
	ENOMEM Errno = Errno(unix.ENOMEM)
	EBADF  Errno = Errno(unix.EBADF)
	EINVAL Errno = Errno(unix.EINVAL)
	EIO    Errno = Errno(unix.EIO)
)

// String returns the errno name.
func (e Errno) String() string {
	if e == OK {
		return "ok"
	}
	return unix.ErrnoName(unix.Errno(e))
}

// ErrnoOf maps an error from the driver or register to the errno a
// device file would report. nil maps to OK and anything unrecognised to EIO.
func ErrnoOf(err error) Errno {
	if err == nil {
		return OK
	}

	var errno unix.Errno
	switch {
	case errors.Is(err, register.ErrInterrupted),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return EINTR
	case errors.Is(err, register.ErrFault):
		return EFAULT
	case errors.Is(err, driver.ErrPermission):
		return EACCES
	case errors.Is(err, driver.ErrNoDevice):
		return ENOENT
	case errors.Is(err, driver.ErrBadHandle), errors.Is(err, register.ErrClosed):
		return EBADF
	case errors.Is(err, ErrInvalidMessage):
		return EINVAL
	case errors.As(err, &errno):
		return Errno(errno)
	default:
		return EIO
	}
}

// Err converts e back into an error. The result matches both the
// unix.Errno and, where one exists, the package sentinel it came from.
func (e Errno) Err() error {
	var sentinel error
	switch e {
	case OK:
		return nil
	case EINTR:
		sentinel = register.ErrInterrupted
	case EFAULT:
		sentinel = register.ErrFault
	case EACCES:
		sentinel = driver.ErrPermission
	case ENOENT:
		sentinel = driver.ErrNoDevice
	case EBADF:
		sentinel = driver.ErrBadHandle
	default:
		return unix.Errno(e)
	}
	return fmt.Errorf("%w: %w", sentinel, unix.Errno(e))
}
