package hal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/nerrad567/hello-hal/internal/driver"
	"github.com/nerrad567/hello-hal/internal/register"
)

// Conn is an open read/write session on a device node.
type Conn interface {
	ReadContext(ctx context.Context, p []byte) (int, error)
	WriteContext(ctx context.Context, p []byte) (int, error)
	Close() error
}

// Opener opens a device node for reading and writing.
type Opener interface {
	Open(ctx context.Context, path string) (Conn, error)
}

// FileOpener opens a real device file with os.OpenFile.
type FileOpener struct{}

// Open implements Opener.
func (FileOpener) Open(ctx context.Context, path string) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return fileConn{f}, nil
}

// fileConn adapts an *os.File. The context is only checked before each call;
// the device itself decides how long a transfer blocks.
type fileConn struct {
	f *os.File
}

func (c fileConn) ReadContext(ctx context.Context, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := c.f.Read(p)
	if errors.Is(err, io.EOF) {
		return 0, nil
	}
	return n, err
}

func (c fileConn) WriteContext(ctx context.Context, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.f.Write(p)
}

func (c fileConn) Close() error { return c.f.Close() }

// LocalOpener opens nodes of an in-process driver as Caller.
type LocalOpener struct {
	Namespace *driver.Namespace
	Caller    driver.Caller
}

// Open implements Opener.
func (o LocalOpener) Open(_ context.Context, path string) (Conn, error) {
	if o.Namespace == nil {
		return nil, fmt.Errorf("local opener: %w", driver.ErrNoDevice)
	}
	node, err := o.Namespace.Lookup(path)
	if err != nil {
		return nil, err
	}
	f, err := node.Open(o.Caller, os.O_RDWR)
	if err != nil {
		return nil, err
	}
	return localConn{f}, nil
}

type localConn struct {
	f driver.File
}

func (c localConn) ReadContext(ctx context.Context, p []byte) (int, error) {
	return c.f.Read(ctx, register.Bytes(p))
}

func (c localConn) WriteContext(ctx context.Context, p []byte) (int, error) {
	return c.f.Write(ctx, register.Bytes(p))
}

func (c localConn) Close() error { return c.f.Close() }
