package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/nerrad567/hello-hal/internal/driver"
	"github.com/nerrad567/hello-hal/internal/register"
	"github.com/nerrad567/hello-hal/internal/wire"
)

// maxTransfer bounds a single read.
const maxTransfer = register.PageSize

// session is one client connection and its descriptor table.
type session struct {
	id     string
	srv    *Server
	conn   *net.UnixConn
	caller driver.Caller

	reader *wire.FrameReader
	writer *wire.FrameWriter

	// fds is touched only by the serve goroutine.
	fds    map[int32]driver.File
	nextFD int32

	shutdownOnce sync.Once
}

func newSession(srv *Server, conn *net.UnixConn, caller driver.Caller) *session {
	id := uuid.NewString()
	caller.Session = id
	return &session{
		id:     id,
		srv:    srv,
		conn:   conn,
		caller: caller,
		reader: wire.NewFrameReader(conn),
		writer: wire.NewFrameWriter(conn),
		fds:    make(map[int32]driver.File),
		nextFD: 1,
	}
}

// shutdown stops reading so serve returns after the request in flight has
// been answered.
func (c *session) shutdown() {
	c.shutdownOnce.Do(func() {
		c.conn.CloseRead() //nolint:errcheck // best effort
	})
}

func (c *session) serve(ctx context.Context) {
	log := c.srv.getLogger()
	log.Debug("session started",
		"session", c.id,
		"uid", c.caller.UID,
		"pid", c.caller.PID,
	)

	defer func() {
		c.closeAll()
		c.conn.Close() //nolint:errcheck // session over
		log.Debug("session ended", "session", c.id)
	}()

	for {
		frame, err := c.reader.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Warn("session read failed", "session", c.id, "error", err)
			}
			return
		}

		req, err := wire.DecodeRequest(frame)
		if err != nil {
			log.Warn("bad request", "session", c.id, "error", err)
			// No usable id to answer; drop the connection.
			return
		}

		resp := c.handle(ctx, req)

		data, err := wire.EncodeResponse(resp)
		if err != nil {
			log.Error("encoding response", "session", c.id, "error", err)
			return
		}
		if err := c.writer.WriteFrame(data); err != nil {
			log.Debug("session write failed", "session", c.id, "error", err)
			return
		}
	}
}

func (c *session) handle(ctx context.Context, req *wire.Request) *wire.Response {
	resp := &wire.Response{ID: req.ID}

	var err error
	switch req.Op {
	case wire.OpOpen:
		resp.FD, err = c.open(req.Path, int(req.Flags))
	case wire.OpRead:
		resp.Data, err = c.read(ctx, req.FD, req.Len)
		resp.N = int32(len(resp.Data))
	case wire.OpWrite:
		var n int
		n, err = c.write(ctx, req.FD, req.Len, req.Data)
		resp.N = int32(n)
	case wire.OpClose:
		err = c.close(req.FD)
	}

	if err != nil {
		resp.Errno = wire.ErrnoOf(err)
		resp.N = 0
		resp.Data = nil
		c.srv.getLogger().Debug("request failed",
			"session", c.id,
			"op", req.Op.String(),
			"fd", req.FD,
			"code", int(resp.Errno),
			"error", err,
		)
	}
	return resp
}

func (c *session) open(path string, flags int) (int32, error) {
	node, err := c.srv.ns.Lookup(path)
	if err != nil {
		return 0, err
	}

	if !c.srv.reserve() {
		return 0, fmt.Errorf("open %s: %d files open: %w", path, c.srv.cfg.MaxOpenFiles, unix.ENOMEM)
	}

	f, err := node.Open(c.caller, flags)
	if err != nil {
		c.srv.release()
		return 0, err
	}

	fd := c.nextFD
	c.nextFD++
	c.fds[fd] = f
	return fd, nil
}

func (c *session) file(fd int32) (driver.File, error) {
	f, ok := c.fds[fd]
	if !ok {
		return nil, fmt.Errorf("%w: fd %d", driver.ErrBadHandle, fd)
	}
	return f, nil
}

func (c *session) read(ctx context.Context, fd int32, n uint32) ([]byte, error) {
	f, err := c.file(fd)
	if err != nil {
		return nil, err
	}
	if n > maxTransfer {
		n = maxTransfer
	}

	buf := make(register.Bytes, n)
	got, err := f.Read(ctx, buf)
	if err != nil {
		return nil, err
	}
	return buf[:got], nil
}

func (c *session) write(ctx context.Context, fd int32, n uint32, data []byte) (int, error) {
	f, err := c.file(fd)
	if err != nil {
		return 0, err
	}
	return f.Write(ctx, &clientBuffer{declared: int(n), data: data})
}

func (c *session) close(fd int32) error {
	f, err := c.file(fd)
	if err != nil {
		return err
	}
	delete(c.fds, fd)
	c.srv.release()
	return f.Close()
}

func (c *session) closeAll() {
	for fd, f := range c.fds {
		f.Close() //nolint:errcheck // always nil
		delete(c.fds, fd)
		c.srv.release()
	}
}

// clientBuffer is a write payload whose declared length may exceed the
// bytes the client actually sent. Copying past what was sent faults.
type clientBuffer struct {
	declared int
	data     []byte
}

func (b *clientBuffer) Len() int { return b.declared }

func (b *clientBuffer) CopyOut([]byte) error {
	return errors.New("write buffer is not writable")
}

func (b *clientBuffer) CopyIn(dst []byte) error {
	if len(dst) > len(b.data) {
		return fmt.Errorf("%d of %d declared bytes supplied", len(b.data), b.declared)
	}
	copy(dst, b.data)
	return nil
}
