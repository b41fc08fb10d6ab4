package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/hello-hal/internal/driver"
	"github.com/nerrad567/hello-hal/internal/infrastructure/mqtt"
	"github.com/nerrad567/hello-hal/internal/register"
)

// DefaultQueueSize is the number of pending state publishes kept.
const DefaultQueueSize = 64

// commandSession tags events caused by MQTT commands.
const commandSession = "mqtt"

var (
	// ErrNotRunning is returned when a command arrives outside Start/Stop.
	ErrNotRunning = errors.New("bridge: not running")

	// ErrAlreadyRunning is returned by a second Start.
	ErrAlreadyRunning = errors.New("bridge: already running")

	// ErrForeignTopic is returned for a command addressed to another device.
	ErrForeignTopic = errors.New("bridge: command topic is not for this device")
)

// MQTTClient is the part of the MQTT client the bridge uses.
// *mqtt.Client satisfies it.
type MQTTClient interface {
	PublishRetained(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	QoS() byte
}

// Logger defines the logging interface used by the bridge.
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

// Config tunes a Bridge.
type Config struct {
	// QueueSize bounds pending publishes. Zero means DefaultQueueSize.
	QueueSize int
}

// Bridge connects one driver to one MQTT client.
type Bridge struct {
	drv    *driver.Driver
	client MQTTClient
	logger Logger
	topics mqtt.Topics

	queue   chan state
	queueMu sync.Mutex
	dropped atomic.Uint64

	// lastSeq is the newest commit published; owned by whoever is
	// publishing (Start, then publishLoop).
	lastSeq uint64

	mu     sync.Mutex
	wg     sync.WaitGroup
	active atomic.Pointer[run]
	hooked bool
}

// state is a register value and the commit sequence that produced it.
type state struct {
	value int32
	seq   uint64
}

// run is one Start..Stop period.
type run struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a bridge for drv. It does nothing until Start.
func New(drv *driver.Driver, client MQTTClient, cfg Config) *Bridge {
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Bridge{
		drv:    drv,
		client: client,
		logger: noopLogger{},
		queue:  make(chan state, size),
	}
}

// SetLogger sets the logger for publish and command failures.
func (b *Bridge) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	b.logger = l
}

// StateTopic returns the topic the bridge publishes on.
func (b *Bridge) StateTopic() string { return b.topics.RegisterState(b.drv.Name()) }

// CommandTopic returns the topic the bridge listens on.
func (b *Bridge) CommandTopic() string { return b.topics.RegisterCommand(b.drv.Name()) }

// Dropped returns how many pending publishes were discarded on overflow.
func (b *Bridge) Dropped() uint64 { return b.dropped.Load() }

// Start subscribes to the command topic, publishes the current value and
// begins forwarding driver events.
//
// Parameters:
//   - ctx: Parent context; cancelling it stops the publisher
//
// Returns:
//   - error: If already running, the device is detached, or the
//     subscription or initial read fails
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.active.Load() != nil {
		return ErrAlreadyRunning
	}
	store := b.drv.Store()
	if store == nil {
		return fmt.Errorf("bridge: %w", driver.ErrNoDevice)
	}

	r := &run{}
	r.ctx, r.cancel = context.WithCancel(ctx)

	if !b.hooked {
		// The driver keeps subscribers for its lifetime; events outside
		// Start..Stop are ignored in onEvent.
		b.drv.Subscribe(b.onEvent)
		b.hooked = true
	}

	// Go live before the snapshot so no commit after it is missed; queued
	// events at or below the snapshot are skipped by publishLoop.
	b.active.Store(r)
	fail := func(err error) error {
		b.active.Store(nil)
		r.cancel()
		b.drain()
		return err
	}

	snap, err := store.Snapshot(r.ctx)
	if err != nil {
		return fail(fmt.Errorf("reading initial value: %w", err))
	}
	if err := b.client.Subscribe(b.CommandTopic(), b.client.QoS(), b.handleCommand); err != nil {
		return fail(fmt.Errorf("subscribing to commands: %w", err))
	}

	b.lastSeq = snap.Seq
	b.publish(snap.Value)

	b.wg.Add(1)
	go b.publishLoop(r.ctx)

	b.logger.Info("mqtt bridge started",
		"state_topic", b.StateTopic(),
		"command_topic", b.CommandTopic(),
	)
	return nil
}

// Stop unsubscribes and waits for the publisher to exit. Pending
// publishes are discarded. Stop is idempotent.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	r := b.active.Swap(nil)
	if r == nil {
		return
	}
	if err := b.client.Unsubscribe(b.CommandTopic()); err != nil {
		b.logger.Warn("mqtt bridge unsubscribe failed", "error", err)
	}
	r.cancel()
	b.wg.Wait()
	b.drain()
	b.logger.Info("mqtt bridge stopped", "dropped", b.Dropped())
}

func (b *Bridge) onEvent(ev driver.Event) {
	if b.active.Load() == nil {
		return
	}
	b.enqueue(state{value: ev.Value, seq: ev.Seq})
}

// enqueue adds v without blocking, evicting the oldest pending value when
// the queue is full.
func (b *Bridge) enqueue(v state) {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()

	for {
		select {
		case b.queue <- v:
			return
		default:
		}
		select {
		case <-b.queue:
			b.dropped.Add(1)
		default:
		}
	}
}

// drain discards pending publishes.
func (b *Bridge) drain() {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	for {
		select {
		case <-b.queue:
		default:
			return
		}
	}
}

// Pending returns the number of queued publishes.
func (b *Bridge) Pending() int { return len(b.queue) }

func (b *Bridge) publishLoop(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-b.queue:
			b.forward(v)
		}
	}
}

// forward publishes v unless a newer commit has already been published.
// Events reach the bridge after the register is unlocked, so a slow
// subscriber can let a later write overtake an earlier one.
func (b *Bridge) forward(v state) {
	if v.seq <= b.lastSeq {
		b.logger.Debug("mqtt state skipped, newer value already published",
			"value", v.value,
			"seq", v.seq,
			"published_seq", b.lastSeq,
		)
		return
	}
	b.lastSeq = v.seq
	b.publish(v.value)
}

func (b *Bridge) publish(v int32) {
	payload := strconv.AppendInt(nil, int64(v), 10)
	if err := b.client.PublishRetained(b.StateTopic(), payload); err != nil {
		b.logger.Warn("mqtt state publish failed",
			"topic", b.StateTopic(),
			"value", v,
			"error", err,
		)
		return
	}
	b.logger.Debug("mqtt state published", "topic", b.StateTopic(), "value", v)
}

// handleCommand writes payload to the class attribute as the device owner.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	r := b.active.Load()
	if r == nil {
		return ErrNotRunning
	}
	if dev, ok := b.topics.DeviceFromTopic(topic); !ok || dev != b.drv.Name() {
		return fmt.Errorf("%w: %q", ErrForeignTopic, topic)
	}

	cfg := b.drv.Config()
	node, err := b.drv.Namespace().Lookup(cfg.AttrPath())
	if err != nil {
		return fmt.Errorf("command: %w", err)
	}

	f, err := node.Open(driver.Caller{UID: cfg.UID, GID: cfg.GID, Session: commandSession}, os.O_WRONLY)
	if err != nil {
		return fmt.Errorf("command: %w", err)
	}
	defer f.Close() //nolint:errcheck // always nil

	if _, err := f.Write(r.ctx, register.Bytes(payload)); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	return nil
}
