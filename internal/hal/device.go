package hal

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/hello-hal/internal/register"
)

// Device is an open session on the register device.
//
// Thread Safety: calls are serialised per Device; open several Devices for
// concurrent access.
type Device struct {
	module *Module
	path   string

	mu     sync.Mutex
	conn   Conn
	closed bool
}

// Path returns the node the device was opened on.
func (d *Device) Path() string { return d.path }

// SetVal writes v to the register.
//
// A short write is logged and, unless the module is strict, not reported.
func (d *Device) SetVal(ctx context.Context, v int32) error {
	log := d.module.logger()
	log.Info("setting value", "op", "set_val", "value", v)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return d.fail("set_val", fmt.Errorf("%w: %s", ErrClosed, d.path))
	}

	n, err := d.conn.WriteContext(ctx, register.Encode(v))
	if err != nil {
		return d.fail("set_val", classify(err))
	}

	log.Info("value written", "op", "set_val", "result", n)
	if n != register.Width {
		return d.short("set_val", n)
	}
	return nil
}

// ReadVal reads the register into dst. dst is left unchanged unless a full
// register width was read.
func (d *Device) ReadVal(ctx context.Context, dst *int32) error {
	log := d.module.logger()
	log.Debug("getting value", "op", "get_val")

	if dst == nil {
		return d.fail("get_val", fmt.Errorf("%w: nil destination", ErrInvalidArgument))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return d.fail("get_val", fmt.Errorf("%w: %s", ErrClosed, d.path))
	}

	buf := make([]byte, register.Width)
	n, err := d.conn.ReadContext(ctx, buf)
	if err != nil {
		return d.fail("get_val", classify(err))
	}

	log.Info("value read", "op", "get_val", "result", n)
	if n != register.Width {
		return d.short("get_val", n)
	}

	v, err := register.Decode(buf)
	if err != nil {
		return d.fail("get_val", fmt.Errorf("%w: %w", ErrIO, err))
	}
	*dst = v
	log.Info("got value", "op", "get_val", "value", v)
	return nil
}

// GetVal returns the register value. On a tolerated short read it returns
// 0 and nil.
func (d *Device) GetVal(ctx context.Context) (int32, error) {
	var v int32
	if err := d.ReadVal(ctx, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// Close closes the underlying connection. It always returns nil and may be
// called more than once.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	log := d.module.logger()
	if err := d.conn.Close(); err != nil {
		log.Warn("closing device", "op", "close_device", "path", d.path, "error", err)
	}
	log.Info("device closed", "op", "close_device", "path", d.path)
	return nil
}

func (d *Device) fail(op string, err error) error {
	d.module.logger().Error("device operation failed",
		"op", op,
		"path", d.path,
		"code", int(errnoOf(err)),
		"error", err,
	)
	return err
}

func (d *Device) short(op string, n int) error {
	log := d.module.logger()
	if !d.module.Options.Strict {
		log.Warn("short transfer", "op", op, "result", n, "want", register.Width)
		return nil
	}
	return d.fail(op, fmt.Errorf("%w: %d of %d bytes", ErrShortTransfer, n, register.Width))
}
