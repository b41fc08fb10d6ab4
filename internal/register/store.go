package register

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

// Store owns the register value and the semaphore that serializes access.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Readers and writers exclude each other; the semaphore has a single permit.
type Store struct {
	sem *semaphore.Weighted
	val int32
	seq uint64    // assignments so far; guarded by sem
	at  time.Time // time of the last assignment; guarded by sem
}

// Commit describes one register assignment, captured while the semaphore
// was held. Seq orders commits of one store the way they took the lock.
type Commit struct {
	Value int32
	Seq   uint64
	At    time.Time
}

// New creates a store with the register set to zero and the semaphore
// available.
func New() *Store {
	return &Store{
		sem: semaphore.NewWeighted(1),
		val: 0,
	}
}

// lock acquires the single permit. A context that is already done, or that
// is cancelled while waiting, yields ErrInterrupted without holding the
// permit.
func (s *Store) lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	return nil
}

func (s *Store) unlock() {
	s.sem.Release(1)
}

// Read copies the register's binary form into buf.
//
// Returns:
//   - Width, nil on success
//   - 0, nil if buf is shorter than Width (register untouched)
//   - 0, ErrFault if the transfer into buf fails
//   - 0, ErrInterrupted if ctx ends before the semaphore is acquired
func (s *Store) Read(ctx context.Context, buf Buffer) (int, error) {
	if err := s.lock(ctx); err != nil {
		return 0, err
	}
	defer s.unlock()

	if buf.Len() < Width {
		return 0, nil
	}

	if err := buf.CopyOut(Encode(s.val)); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrFault, err)
	}
	return Width, nil
}

// Write replaces the register with the binary value held in buf.
//
// The transfer is staged in a scratch word, so a failed copy never leaves a
// partially written register.
//
// Returns:
//   - Width, nil on success
//   - 0, nil if buf.Len() differs from Width (register untouched)
//   - 0, ErrFault if the transfer from buf fails
//   - 0, ErrInterrupted if ctx ends before the semaphore is acquired
func (s *Store) Write(ctx context.Context, buf Buffer) (int, error) {
	n, _, err := s.WriteCommit(ctx, buf)
	return n, err
}

// WriteCommit is Write that also reports the assignment it made. The
// Commit is zero when nothing was assigned.
func (s *Store) WriteCommit(ctx context.Context, buf Buffer) (int, Commit, error) {
	if err := s.lock(ctx); err != nil {
		return 0, Commit{}, err
	}
	defer s.unlock()

	if buf.Len() != Width {
		return 0, Commit{}, nil
	}

	var scratch [Width]byte
	if err := buf.CopyIn(scratch[:]); err != nil {
		return 0, Commit{}, fmt.Errorf("%w: %w", ErrFault, err)
	}
	v, err := Decode(scratch[:])
	if err != nil {
		return 0, Commit{}, err
	}
	return Width, s.assign(v), nil
}

// assign sets the register. The caller holds the semaphore. Commit times
// strictly increase even if the wall clock steps back.
func (s *Store) assign(v int32) Commit {
	s.val = v
	s.seq++
	now := time.Now().UTC()
	if !now.After(s.at) {
		now = s.at.Add(time.Nanosecond)
	}
	s.at = now
	return Commit{Value: v, Seq: s.seq, At: now}
}

// Snapshot returns the current value with the sequence number of the
// assignment that produced it. Before the first assignment Seq is 0 and
// At is zero.
func (s *Store) Snapshot(ctx context.Context) (Commit, error) {
	if err := s.lock(ctx); err != nil {
		return Commit{}, err
	}
	c := Commit{Value: s.val, Seq: s.seq, At: s.at}
	s.unlock()
	return c, nil
}

// Value returns the current register value. It takes the semaphore like
// every other accessor.
func (s *Store) Value(ctx context.Context) (int32, error) {
	if err := s.lock(ctx); err != nil {
		return 0, err
	}
	v := s.val
	s.unlock()
	return v, nil
}

// Open starts a session on the store. It never fails; the handle holds
// nothing but a back-reference.
func (s *Store) Open() *Handle {
	return &Handle{store: s}
}
