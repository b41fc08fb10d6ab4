package register

import (
	"context"
	"sync/atomic"
)

// Handle is one open session on a Store.
//
// Several handles may be open at once; they share nothing but the store and
// all serialize through its semaphore.
type Handle struct {
	store  *Store
	closed atomic.Bool
}

// Store returns the backing store.
func (h *Handle) Store() *Store {
	return h.store
}

// Read performs a binary read through this session.
func (h *Handle) Read(ctx context.Context, buf Buffer) (int, error) {
	if h.closed.Load() {
		return 0, ErrClosed
	}
	return h.store.Read(ctx, buf)
}

// Write performs a binary write through this session.
func (h *Handle) Write(ctx context.Context, buf Buffer) (int, error) {
	if h.closed.Load() {
		return 0, ErrClosed
	}
	return h.store.Write(ctx, buf)
}

// WriteCommit performs a binary write and reports the assignment made.
func (h *Handle) WriteCommit(ctx context.Context, buf Buffer) (int, Commit, error) {
	if h.closed.Load() {
		return 0, Commit{}, ErrClosed
	}
	return h.store.WriteCommit(ctx, buf)
}

// Close ends the session. There is no per-session state to release, so it
// always succeeds, including on a handle that is already closed.
func (h *Handle) Close() error {
	h.closed.Store(true)
	return nil
}
