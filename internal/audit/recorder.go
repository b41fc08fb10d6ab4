package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/hello-hal/internal/driver"
)

// DefaultQueueSize is the number of entries buffered ahead of SQLite.
const DefaultQueueSize = 256

// Values written for register events.
const (
	ActionWrite        = "write"
	EntityTypeRegister = "register"
)

// Logger defines the logging interface used by the recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder writes driver events to a Repository from a single goroutine.
//
// Record never blocks the writer: when the queue is full the entry is
// dropped and a warning logged.
type Recorder struct {
	repo   Repository
	logger Logger
	queue  chan *Entry

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	closed  atomic.Bool
	dropped atomic.Uint64
}

// NewRecorder creates a recorder. A queueSize of zero or less means
// DefaultQueueSize.
func NewRecorder(repo Repository, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Recorder{
		repo:   repo,
		logger: noopLogger{},
		queue:  make(chan *Entry, queueSize),
	}
}

// SetLogger sets the logger for dropped entries and write failures.
// Call it before Watch.
func (r *Recorder) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	r.logger = l
}

// Watch records every event of d.
func (r *Recorder) Watch(d *driver.Driver) {
	d.Subscribe(r.Record)
}

// Dropped returns how many entries were lost to a full queue.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Record queues the entry for ev. It is a driver event subscriber.
func (r *Recorder) Record(ev driver.Event) {
	if r.closed.Load() {
		return
	}

	entry := EntryFromEvent(ev)
	select {
	case r.queue <- entry:
	default:
		r.dropped.Add(1)
		r.logger.Warn("audit queue full, dropping entry",
			"device", ev.Device,
			"node", ev.Node,
		)
	}
}

// EntryFromEvent converts a register event into its audit row.
func EntryFromEvent(ev driver.Event) *Entry {
	details := map[string]any{
		"value": ev.Value,
		"node":  ev.Node,
	}
	if ev.Seq != 0 {
		details["seq"] = ev.Seq
	}
	if ev.Caller.Session != "" {
		details["session"] = ev.Caller.Session
	}
	if ev.Caller.PID != 0 {
		details["pid"] = ev.Caller.PID
	}
	return &Entry{
		Action:     ActionWrite,
		EntityType: EntityTypeRegister,
		EntityID:   ev.Device,
		UserID:     fmt.Sprintf("uid:%d", ev.Caller.UID),
		Source:     ev.Kind.String(),
		Details:    details,
		CreatedAt:  ev.At,
	}
}

// Start launches the writer goroutine.
func (r *Recorder) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.drain(ctx, r.done)
}

// Close stops accepting events, writes what is already queued and waits
// for the writer to exit.
func (r *Recorder) Close() error {
	r.closed.Store(true)

	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if done == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (r *Recorder) drain(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case entry := <-r.queue:
			r.write(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-r.queue:
					r.write(entry)
				default:
					return
				}
			}
		}
	}
}

// write stores one entry. It runs detached from the recorder context so
// queued entries still land during shutdown.
func (r *Recorder) write(entry *Entry) {
	if err := r.repo.Create(context.Background(), entry); err != nil {
		r.logger.Error("audit log write failed",
			"action", entry.Action,
			"entity_id", entry.EntityID,
			"error", err,
		)
	}
}
