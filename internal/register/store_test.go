package register

import (
	"cmp"
	"context"
	"errors"
	"math"
	"slices"
	"sync"
	"testing"
	"time"
)

// faultBuffer declares a length but fails every transfer.
type faultBuffer struct {
	n int
}

func (f faultBuffer) Len() int             { return f.n }
func (f faultBuffer) CopyOut([]byte) error { return errors.New("unmapped") }
func (f faultBuffer) CopyIn([]byte) error  { return errors.New("unmapped") }

func mustValue(t *testing.T, s *Store) int32 {
	t.Helper()
	v, err := s.Value(context.Background())
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	return v
}

func TestNew_InitialZero(t *testing.T) {
	s := New()

	buf := make(Bytes, Width)
	n, err := s.Read(context.Background(), buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if n != Width {
		t.Fatalf("Read() n = %d, want %d", n, Width)
	}

	v, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if v != 0 {
		t.Errorf("initial value = %d, want 0", v)
	}
}

func TestStore_RoundTrip(t *testing.T) {
	values := []int32{0, 1, -1, 42, -7, math.MaxInt32, math.MinInt32}

	s := New()
	ctx := context.Background()

	for _, want := range values {
		n, err := s.Write(ctx, Bytes(Encode(want)))
		if err != nil {
			t.Fatalf("Write(%d) error = %v", want, err)
		}
		if n != Width {
			t.Fatalf("Write(%d) n = %d, want %d", want, n, Width)
		}

		buf := make(Bytes, Width)
		if _, err := s.Read(ctx, buf); err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		got, _ := Decode(buf)
		if got != want {
			t.Errorf("round trip = %d, want %d", got, want)
		}
	}
}

func TestStore_ReadShortBuffer(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.Write(ctx, Bytes(Encode(99))); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	for size := 0; size < Width; size++ {
		buf := make(Bytes, size)
		n, err := s.Read(ctx, buf)
		if err != nil {
			t.Errorf("Read(len=%d) error = %v, want nil", size, err)
		}
		if n != 0 {
			t.Errorf("Read(len=%d) n = %d, want 0", size, n)
		}
	}

	if v := mustValue(t, s); v != 99 {
		t.Errorf("value after short reads = %d, want 99", v)
	}
}

func TestStore_ReadLongBuffer(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.Write(ctx, Bytes(Encode(5))); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	buf := make(Bytes, 16)
	n, err := s.Read(ctx, buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if n != Width {
		t.Errorf("Read(len=16) n = %d, want %d", n, Width)
	}
	if v, _ := Decode(buf[:Width]); v != 5 {
		t.Errorf("Read(len=16) value = %d, want 5", v)
	}
}

func TestStore_WriteWrongSize(t *testing.T) {
	tests := []struct {
		name string
		buf  Bytes
	}{
		{name: "empty", buf: Bytes{}},
		{name: "short", buf: Bytes{1, 2, 3}},
		{name: "long", buf: Bytes{1, 2, 3, 4, 5}},
		{name: "eight bytes", buf: make(Bytes, 8)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			ctx := context.Background()
			if _, err := s.Write(ctx, Bytes(Encode(17))); err != nil {
				t.Fatalf("Write() error = %v", err)
			}

			n, err := s.Write(ctx, tt.buf)
			if err != nil {
				t.Errorf("Write() error = %v, want nil", err)
			}
			if n != 0 {
				t.Errorf("Write() n = %d, want 0", n)
			}
			if v := mustValue(t, s); v != 17 {
				t.Errorf("value = %d, want 17", v)
			}
		})
	}
}

func TestStore_Fault(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.Write(ctx, Bytes(Encode(3))); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if n, err := s.Read(ctx, faultBuffer{n: Width}); !errors.Is(err, ErrFault) || n != 0 {
		t.Errorf("Read(fault) = %d, %v; want 0, ErrFault", n, err)
	}
	if n, err := s.Write(ctx, faultBuffer{n: Width}); !errors.Is(err, ErrFault) || n != 0 {
		t.Errorf("Write(fault) = %d, %v; want 0, ErrFault", n, err)
	}
	if v := mustValue(t, s); v != 3 {
		t.Errorf("value after fault = %d, want 3", v)
	}

	// The semaphore must have been released on the fault path.
	if _, err := s.Write(ctx, Bytes(Encode(4))); err != nil {
		t.Fatalf("Write() after fault error = %v", err)
	}
	if v := mustValue(t, s); v != 4 {
		t.Errorf("value = %d, want 4", v)
	}
}

func TestStore_WrongSizeFaultBufferNotTouched(t *testing.T) {
	s := New()
	n, err := s.Read(context.Background(), faultBuffer{n: 2})
	if err != nil || n != 0 {
		t.Errorf("Read(short fault buffer) = %d, %v; want 0, nil", n, err)
	}
}

func TestStore_Interrupted(t *testing.T) {
	s := New()
	if _, err := s.Write(context.Background(), Bytes(Encode(11))); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	// Hold the permit so the next caller blocks.
	if err := s.lock(context.Background()); err != nil {
		t.Fatalf("lock() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Write(ctx, Bytes(Encode(12)))
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("Write() returned %v while the semaphore was held", err)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrInterrupted) {
			t.Errorf("Write() error = %v, want ErrInterrupted", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Write() did not return after cancellation")
	}

	s.unlock()

	if v := mustValue(t, s); v != 11 {
		t.Errorf("value after interruption = %d, want 11", v)
	}
}

func TestStore_InterruptedBeforeCall(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Read(ctx, make(Bytes, Width)); !errors.Is(err, ErrInterrupted) {
		t.Errorf("Read() error = %v, want ErrInterrupted", err)
	}
	if _, err := s.Show(ctx); !errors.Is(err, ErrInterrupted) {
		t.Errorf("Show() error = %v, want ErrInterrupted", err)
	}
	if _, err := s.StoreText(ctx, []byte("5")); !errors.Is(err, ErrInterrupted) {
		t.Errorf("StoreText() error = %v, want ErrInterrupted", err)
	}
	if v := mustValue(t, s); v != 0 {
		t.Errorf("value = %d, want 0", v)
	}
}

func TestStore_BlockedReaderResumes(t *testing.T) {
	s := New()
	if err := s.lock(context.Background()); err != nil {
		t.Fatalf("lock() error = %v", err)
	}

	done := make(chan int32, 1)
	go func() {
		buf := make(Bytes, Width)
		if _, err := s.Read(context.Background(), buf); err != nil {
			done <- -1
			return
		}
		v, _ := Decode(buf)
		done <- v
	}()

	// Mutate while holding the permit, as a writer would.
	s.val = 77
	time.Sleep(20 * time.Millisecond)
	s.unlock()

	select {
	case v := <-done:
		if v != 77 {
			t.Errorf("blocked reader saw %d, want 77", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reader never acquired the semaphore")
	}
}

func TestStore_ConcurrentWritersNoTornValue(t *testing.T) {
	const (
		a          int32 = 0x11111111
		b          int32 = -0x22222223
		iterations       = 500
	)

	s := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, v := range []int32{a, b} {
		wg.Add(1)
		go func(v int32) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				if _, err := s.Write(ctx, Bytes(Encode(v))); err != nil {
					t.Errorf("Write() error = %v", err)
					return
				}
			}
		}(v)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			got, err := s.Value(ctx)
			if err != nil {
				t.Errorf("Value() error = %v", err)
				return
			}
			if got != 0 && got != a && got != b {
				t.Errorf("observed torn value %#x", got)
				return
			}
		}
	}()

	wg.Wait()

	if got := mustValue(t, s); got != a && got != b {
		t.Errorf("final value = %#x, want %#x or %#x", got, a, b)
	}
}

func TestHandle_CloseIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()

	h := s.Open()
	if _, err := h.Write(ctx, Bytes(Encode(8))); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	if _, err := h.Read(ctx, make(Bytes, Width)); !errors.Is(err, ErrClosed) {
		t.Errorf("Read() on closed handle error = %v, want ErrClosed", err)
	}

	// A fresh session still works and sees the earlier write.
	h2 := s.Open()
	defer h2.Close()

	buf := make(Bytes, Width)
	if _, err := h2.Read(ctx, buf); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if v, _ := Decode(buf); v != 8 {
		t.Errorf("value = %d, want 8", v)
	}
	if _, err := h2.Write(ctx, Bytes(Encode(9))); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if v := mustValue(t, s); v != 9 {
		t.Errorf("value = %d, want 9", v)
	}
}

func TestDecode_WrongLength(t *testing.T) {
	if _, err := Decode([]byte{1, 2}); err == nil {
		t.Error("Decode() expected error for 2 bytes")
	}
}

func TestStore_CommitSequence(t *testing.T) {
	s := New()
	ctx := context.Background()

	if c, err := s.Snapshot(ctx); err != nil || c.Seq != 0 || c.Value != 0 {
		t.Fatalf("Snapshot() = %+v, %v; want seq 0", c, err)
	}

	n, c1, err := s.WriteCommit(ctx, Bytes(Encode(5)))
	if err != nil || n != Width || c1.Value != 5 || c1.Seq != 1 || c1.At.IsZero() {
		t.Fatalf("WriteCommit() = %d, %+v, %v", n, c1, err)
	}

	n, c2, err := s.StoreTextCommit(ctx, []byte("-9 tail"))
	if err != nil || n != 7 || c2.Value != -9 || c2.Seq != 2 {
		t.Fatalf("StoreTextCommit() = %d, %+v, %v", n, c2, err)
	}
	if !c2.At.After(c1.At) {
		t.Errorf("commit times not increasing: %v then %v", c1.At, c2.At)
	}

	// Rejected transfers assign nothing.
	if _, c, _ := s.WriteCommit(ctx, make(Bytes, Width+1)); c != (Commit{}) {
		t.Errorf("wrong-size WriteCommit() commit = %+v, want zero", c)
	}
	if _, c, err := s.WriteCommit(ctx, faultBuffer{n: Width}); !errors.Is(err, ErrFault) || c != (Commit{}) {
		t.Errorf("faulting WriteCommit() = %+v, %v", c, err)
	}

	snap, err := s.Snapshot(ctx)
	if err != nil || snap.Seq != 2 || snap.Value != -9 || !snap.At.Equal(c2.At) {
		t.Errorf("Snapshot() = %+v, %v; want -9 at seq 2 from %v", snap, err, c2.At)
	}
}

func TestStore_CommitSeqFollowsLockOrder(t *testing.T) {
	s := New()
	ctx := context.Background()

	const writers = 16
	commits := make([]Commit, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, commits[i], _ = s.WriteCommit(ctx, Bytes(Encode(int32(i))))
		}()
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	var last Commit
	for _, c := range commits {
		if c.Seq < 1 || c.Seq > writers || seen[c.Seq] {
			t.Fatalf("commit seq %d duplicated or out of range", c.Seq)
		}
		seen[c.Seq] = true
		if c.Seq > last.Seq {
			last = c
		}
	}
	if got := mustValue(t, s); got != last.Value {
		t.Errorf("register = %d, want value of highest seq commit %d", got, last.Value)
	}

	slices.SortFunc(commits, func(a, b Commit) int { return cmp.Compare(a.Seq, b.Seq) })
	for i := 1; i < len(commits); i++ {
		if !commits[i].At.After(commits[i-1].At) {
			t.Errorf("seq %d at %v not after seq %d at %v",
				commits[i].Seq, commits[i].At, commits[i-1].Seq, commits[i-1].At)
		}
	}
}

func TestHandle_WriteCommitClosed(t *testing.T) {
	h := New().Open()
	h.Close() //nolint:errcheck // always nil

	if _, _, err := h.WriteCommit(context.Background(), Bytes(Encode(1))); !errors.Is(err, ErrClosed) {
		t.Errorf("WriteCommit() on closed handle error = %v, want ErrClosed", err)
	}
}
