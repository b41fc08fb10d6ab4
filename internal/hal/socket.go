package hal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/nerrad567/hello-hal/internal/wire"
)

// DefaultSocket is where hellod listens unless configured otherwise.
const DefaultSocket = "/run/hellod/hellod.sock"

// errConnBroken marks a socket session that lost request/response sync.
var errConnBroken = errors.New("hal: connection broken")

// SocketOpener reaches nodes served by hellod over its unix socket.
type SocketOpener struct {
	// Socket is the server socket path. Empty means DefaultSocket.
	Socket string
}

// Open implements Opener. Each Open dials a new connection, so every
// Device is its own session on the server.
func (o SocketOpener) Open(ctx context.Context, path string) (Conn, error) {
	sock := o.Socket
	if sock == "" {
		sock = DefaultSocket
	}

	var d net.Dialer
	nc, err := d.DialContext(ctx, "unix", sock)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", sock, err)
	}

	c := &socketConn{
		conn:   nc,
		reader: wire.NewFrameReader(nc),
		writer: wire.NewFrameWriter(nc),
	}

	resp, err := c.call(ctx, &wire.Request{Op: wire.OpOpen, Path: path, Flags: int32(os.O_RDWR)})
	if err != nil {
		nc.Close() //nolint:errcheck // open failed
		return nil, err
	}
	c.fd = resp.FD
	return c, nil
}

// socketConn is one session with one open descriptor on the server.
type socketConn struct {
	mu     sync.Mutex
	conn   net.Conn
	reader *wire.FrameReader
	writer *wire.FrameWriter
	fd     int32
	nextID uint32
	broken bool
}

func (c *socketConn) ReadContext(ctx context.Context, p []byte) (int, error) {
	resp, err := c.call(ctx, &wire.Request{Op: wire.OpRead, FD: c.fd, Len: uint32(len(p))})
	if err != nil {
		return 0, err
	}
	return copy(p, resp.Data), nil
}

func (c *socketConn) WriteContext(ctx context.Context, p []byte) (int, error) {
	resp, err := c.call(ctx, &wire.Request{Op: wire.OpWrite, FD: c.fd, Len: uint32(len(p)), Data: p})
	if err != nil {
		return 0, err
	}
	return int(resp.N), nil
}

// Close releases the descriptor on the server and hangs up.
func (c *socketConn) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, _ = c.call(ctx, &wire.Request{Op: wire.OpClose, FD: c.fd})
	return c.conn.Close()
}

// call sends req and waits for its response. Cancelling ctx aborts the wait
// and leaves the connection unusable, since the answer may still arrive.
func (c *socketConn) call(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken {
		return nil, errConnBroken
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.nextID++
	req.ID = c.nextID

	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Now()) //nolint:errcheck // unblocks I/O
	})
	defer stop()

	resp, err := c.roundTrip(req)
	if err != nil {
		c.broken = true
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *socketConn) roundTrip(req *wire.Request) (*wire.Response, error) {
	data, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, err
	}
	if err := c.writer.WriteFrame(data); err != nil {
		return nil, err
	}

	frame, err := c.reader.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	resp, err := wire.DecodeResponse(frame)
	if err != nil {
		return nil, err
	}
	if resp.ID != req.ID {
		return nil, fmt.Errorf("%w: response id %d for request %d", errConnBroken, resp.ID, req.ID)
	}
	return resp, nil
}
