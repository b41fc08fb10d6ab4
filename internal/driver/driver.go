package driver

import (
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/hello-hal/internal/register"
)

// Default device settings.
const (
	DefaultName       = "hello"
	DefaultDevDir     = "/dev"
	DefaultProcDir    = "/proc"
	DefaultClassDir   = "/sys/class"
	DefaultDeviceMode = fs.FileMode(0o666)
	DefaultProcMode   = fs.FileMode(0o644)
	DefaultAttrMode   = fs.FileMode(0o644)
)

// attrName is the attribute file under the class device directory.
const attrName = "val"

// Config describes where and how a device is exposed.
type Config struct {
	Name     string
	DevDir   string
	ProcDir  string
	ClassDir string

	DeviceMode fs.FileMode
	ProcMode   fs.FileMode
	AttrMode   fs.FileMode

	// UID and GID own every node of the device.
	UID uint32
	GID uint32

	// Logger receives lifecycle and open messages. Nil means discard.
	Logger Logger
}

// DefaultConfig returns the stock "hello" device layout.
func DefaultConfig() Config {
	return Config{
		Name:       DefaultName,
		DevDir:     DefaultDevDir,
		ProcDir:    DefaultProcDir,
		ClassDir:   DefaultClassDir,
		DeviceMode: DefaultDeviceMode,
		ProcMode:   DefaultProcMode,
		AttrMode:   DefaultAttrMode,
	}
}

// Validate checks the configuration for unusable values.
func (c Config) Validate() error {
	if c.Name == "" || strings.ContainsRune(c.Name, '/') {
		return fmt.Errorf("%w: name %q", ErrInvalidConfig, c.Name)
	}
	for _, dir := range []string{c.DevDir, c.ProcDir, c.ClassDir} {
		if !path.IsAbs(dir) {
			return fmt.Errorf("%w: directory %q must be absolute", ErrInvalidConfig, dir)
		}
	}
	for _, m := range []fs.FileMode{c.DeviceMode, c.ProcMode, c.AttrMode} {
		if m&^fs.ModePerm != 0 {
			return fmt.Errorf("%w: mode %#o has non-permission bits", ErrInvalidConfig, m)
		}
	}
	return nil
}

// DevicePath returns the character node path.
func (c Config) DevicePath() string { return path.Join(c.DevDir, c.Name) }

// ProcPath returns the proc node path.
func (c Config) ProcPath() string { return path.Join(c.ProcDir, c.Name) }

// ClassPath returns the class directory.
func (c Config) ClassPath() string { return path.Join(c.ClassDir, c.Name) }

// ClassDevicePath returns the device entry inside the class directory.
func (c Config) ClassDevicePath() string { return path.Join(c.ClassPath(), c.Name) }

// AttrPath returns the class attribute path.
func (c Config) AttrPath() string { return path.Join(c.ClassDevicePath(), attrName) }

// Event reports a successful register mutation.
//
// Subscribers are called after the register is unlocked, so events from
// concurrent writers may arrive out of order. Seq and At are taken under
// the lock; a higher Seq is always the later write.
type Event struct {
	Device string
	Node   string
	Kind   Kind
	Value  int32
	Seq    uint64
	Caller Caller
	At     time.Time
}

// Logger defines the logging interface used by the driver.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Driver is one attached register device.
type Driver struct {
	cfg    Config
	ns     *Namespace
	store  *register.Store

	loggerMu sync.RWMutex
	logger   Logger

	mu       sync.RWMutex
	nodes    []*Node
	undo     []func()
	subs     []func(Event)
	detached bool
}

// step is one reversible piece of Attach.
type step struct {
	name string
	do   func() error
	undo func()
}

// Attach creates the register and exposes it in ns.
//
// Registration runs in a fixed order: character node, class directory,
// class device entry, class attribute, proc entry. If any step fails, every completed step is
// undone in reverse order and the returned error wraps both ErrSetup and
// the cause.
func Attach(ns *Namespace, cfg Config) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}

	d := &Driver{
		cfg:    cfg,
		ns:     ns,
		logger: cfg.Logger,
	}
	if d.logger == nil {
		d.logger = noopLogger{}
	}

	steps := []step{
		{
			name: "store",
			do:   func() error { d.store = register.New(); return nil },
			undo: func() { d.store = nil },
		},
		d.nodeStep(cfg.DevicePath(), KindChar, cfg.DeviceMode),
		{
			name: "class",
			do:   func() error { return ns.registerClass(cfg.ClassPath()) },
			undo: func() { ns.unregisterClass(cfg.ClassPath()) },
		},
		{
			name: "device",
			do:   func() error { return ns.registerDevice(cfg.ClassDevicePath()) },
			undo: func() { ns.unregisterDevice(cfg.ClassDevicePath()) },
		},
		d.nodeStep(cfg.AttrPath(), KindAttr, cfg.AttrMode),
		d.nodeStep(cfg.ProcPath(), KindProc, cfg.ProcMode),
	}

	for _, s := range steps {
		if err := s.do(); err != nil {
			d.unwind()
			d.getLogger().Error("device setup failed",
				"device", cfg.Name,
				"step", s.name,
				"error", err,
			)
			return nil, fmt.Errorf("%w: %s: %w", ErrSetup, s.name, err)
		}
		d.undo = append(d.undo, s.undo)
	}

	d.getLogger().Info("device attached",
		"device", cfg.Name,
		"dev", cfg.DevicePath(),
		"proc", cfg.ProcPath(),
		"attr", cfg.AttrPath(),
	)
	return d, nil
}

func (d *Driver) nodeStep(p string, kind Kind, mode fs.FileMode) step {
	n := &Node{
		path: p,
		kind: kind,
		mode: mode,
		uid:  d.cfg.UID,
		gid:  d.cfg.GID,
		drv:  d,
	}
	return step{
		name: kind.String(),
		do: func() error {
			if err := d.ns.register(n); err != nil {
				return err
			}
			d.nodes = append(d.nodes, n)
			return nil
		},
		undo: func() {
			d.ns.unregister(n.path)
			d.nodes = d.nodes[:len(d.nodes)-1]
		},
	}
}

// Detach removes the device's nodes in reverse registration order and
// drops the register. Files that are still open keep working against the
// old register until closed. Safe to call more than once.
func (d *Driver) Detach() {
	d.mu.Lock()
	if d.detached {
		d.mu.Unlock()
		return
	}
	d.detached = true
	d.unwind()
	d.mu.Unlock()

	d.getLogger().Info("device detached", "device", d.cfg.Name)
}

// Name returns the device name.
func (d *Driver) Name() string { return d.cfg.Name }

// Config returns the configuration the device was attached with.
func (d *Driver) Config() Config { return d.cfg }

// Namespace returns the namespace the device is registered in.
func (d *Driver) Namespace() *Namespace { return d.ns }

// Store returns the device register, or nil once detached.
func (d *Driver) Store() *register.Store {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.store
}

// Attached reports whether the device is still registered.
func (d *Driver) Attached() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return !d.detached
}

// Nodes describes the device's nodes in registration order.
func (d *Driver) Nodes() []NodeInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	infos := make([]NodeInfo, 0, len(d.nodes))
	for _, n := range d.nodes {
		infos = append(infos, n.Info())
	}
	return infos
}

// Subscribe registers fn to receive every Event. fn runs synchronously on
// the goroutine that mutated the register, after the register has been
// unlocked, so it must not block for long.
func (d *Driver) Subscribe(fn func(Event)) {
	d.mu.Lock()
	d.subs = append(d.subs, fn)
	d.mu.Unlock()
}

// SetLogger replaces the driver logger. It may be called while nodes
// are in use.
func (d *Driver) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	d.loggerMu.Lock()
	d.logger = l
	d.loggerMu.Unlock()
}

func (d *Driver) getLogger() Logger {
	d.loggerMu.RLock()
	defer d.loggerMu.RUnlock()
	return d.logger
}

// unwind undoes completed attach steps, newest first.
func (d *Driver) unwind() {
	for i := len(d.undo) - 1; i >= 0; i-- {
		d.undo[i]()
	}
	d.undo = nil
}

// openStore returns the register for a new file, or ErrNoDevice once the
// device has been detached.
func (d *Driver) openStore() (*register.Store, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.detached || d.store == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoDevice, d.cfg.Name)
	}
	return d.store, nil
}

func (d *Driver) notify(ev Event) {
	d.mu.RLock()
	subs := d.subs
	d.mu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}
