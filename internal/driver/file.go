package driver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/hello-hal/internal/register"
)

// File is an open session on a node.
//
// Read and Write move data through a register.Buffer so the caller controls
// the transfer and can make it fail. Close always succeeds and may be
// called more than once.
type File interface {
	Node() *Node
	Read(ctx context.Context, buf register.Buffer) (int, error)
	Write(ctx context.Context, buf register.Buffer) (int, error)
	Close() error
}

// fileBase carries what every open file shares.
type fileBase struct {
	node     *Node
	caller   Caller
	readable bool
	writable bool
	closed   atomic.Bool
}

func (f *fileBase) Node() *Node { return f.node }

func (f *fileBase) checkRead() error {
	if f.closed.Load() || !f.readable {
		return ErrBadHandle
	}
	return nil
}

func (f *fileBase) checkWrite() error {
	if f.closed.Load() || !f.writable {
		return ErrBadHandle
	}
	return nil
}

func (f *fileBase) emit(c register.Commit) {
	f.node.drv.notify(Event{
		Device: f.node.drv.Name(),
		Node:   f.node.path,
		Kind:   f.node.kind,
		Value:  c.Value,
		Seq:    c.Seq,
		Caller: f.caller,
		At:     c.At,
	})
}

// charFile is a session on the binary interface.
type charFile struct {
	fileBase
	handle *register.Handle
}

func (f *charFile) Read(ctx context.Context, buf register.Buffer) (int, error) {
	if err := f.checkRead(); err != nil {
		return 0, err
	}
	return f.handle.Read(ctx, buf)
}

func (f *charFile) Write(ctx context.Context, buf register.Buffer) (int, error) {
	if err := f.checkWrite(); err != nil {
		return 0, err
	}

	n, c, err := f.handle.WriteCommit(ctx, buf)
	if err != nil || n == 0 {
		return n, err
	}

	f.emit(c)
	return n, nil
}

func (f *charFile) Close() error {
	f.closed.Store(true)
	return f.handle.Close()
}

// textFile is a session on the text interface, used by both proc and
// attribute nodes.
//
// The first read of a session snapshots Show into a page and later reads
// continue from the session offset, returning zero at the end.
type textFile struct {
	fileBase
	store *register.Store

	mu   sync.Mutex
	page []byte
	off  int
}

func (f *textFile) Read(ctx context.Context, buf register.Buffer) (int, error) {
	if err := f.checkRead(); err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.off == 0 {
		text, err := f.store.Show(ctx)
		if err != nil {
			return 0, err
		}
		f.page = []byte(text)
	}

	if f.off >= len(f.page) {
		return 0, nil
	}

	chunk := f.page[f.off:]
	if len(chunk) > buf.Len() {
		chunk = chunk[:buf.Len()]
	}
	if err := buf.CopyOut(chunk); err != nil {
		return 0, fmt.Errorf("%w: %w", register.ErrFault, err)
	}
	f.off += len(chunk)
	return len(chunk), nil
}

func (f *textFile) Write(ctx context.Context, buf register.Buffer) (int, error) {
	if err := f.checkWrite(); err != nil {
		return 0, err
	}

	// Attributes silently keep one page minus a terminator; proc rejects
	// anything over a page.
	n := buf.Len()
	switch {
	case f.node.kind == KindAttr && n >= register.PageSize:
		n = register.PageSize - 1
	case n > register.PageSize:
		return 0, fmt.Errorf("%w: %d bytes exceeds page", register.ErrFault, n)
	}

	page := make([]byte, n)
	if err := buf.CopyIn(page); err != nil {
		return 0, fmt.Errorf("%w: %w", register.ErrFault, err)
	}

	consumed, c, err := f.store.StoreTextCommit(ctx, page)
	if err != nil {
		return 0, err
	}

	f.emit(c)
	return consumed, nil
}

func (f *textFile) Close() error {
	f.closed.Store(true)
	return nil
}
