package hal

import (
	"context"
	"errors"
	"fmt"
)

// Module identity.
const (
	ModuleID           = "hello"
	ModuleName         = "Hello"
	ModuleAuthor       = "momxmo"
	ModuleVersionMajor = 1
	ModuleVersionMinor = 0

	// DefaultDevicePath is the well-known character node.
	DefaultDevicePath = "/dev/hello"
)

// Logger defines the logging interface used by the stub.
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

// Options tune a Module.
type Options struct {
	// Strict turns short reads and writes into ErrShortTransfer.
	Strict bool

	// Logger receives every operation and failure. Nil means discard.
	Logger Logger
}

// Module describes the register device and how to reach it.
type Module struct {
	ID           string
	Name         string
	Author       string
	VersionMajor int
	VersionMinor int

	// DevicePath is the node opened by Open.
	DevicePath string

	Opener  Opener
	Options Options
}

// NewModule returns the stock hello module reaching the device through
// opener. A nil opener means FileOpener.
func NewModule(opener Opener, opts Options) *Module {
	if opener == nil {
		opener = FileOpener{}
	}
	return &Module{
		ID:           ModuleID,
		Name:         ModuleName,
		Author:       ModuleAuthor,
		VersionMajor: ModuleVersionMajor,
		VersionMinor: ModuleVersionMinor,
		DevicePath:   DefaultDevicePath,
		Opener:       opener,
		Options:      opts,
	}
}

func (m *Module) logger() Logger {
	if m.Options.Logger == nil {
		return noopLogger{}
	}
	return m.Options.Logger
}

// Open opens the device node for reading and writing. It blocks until the
// opener returns.
//
// Returns:
//   - *Device: open session
//   - error: *OpenError (matching ErrDeviceUnavailable) carrying the errno
func (m *Module) Open(ctx context.Context) (*Device, error) {
	log := m.logger()
	path := m.DevicePath
	if path == "" {
		path = DefaultDevicePath
	}
	opener := m.Opener
	if opener == nil {
		opener = FileOpener{}
	}

	log.Debug("opening device", "op", "open_device", "path", path)

	conn, err := opener.Open(ctx, path)
	if err != nil {
		errno := errnoOf(err)
		log.Error("failed to open device",
			"op", "open_device",
			"path", path,
			"code", int(errno),
			"error", err,
		)
		return nil, &OpenError{Path: path, Errno: errno, Err: err}
	}

	log.Info("device opened", "op", "open_device", "path", path)
	return &Device{module: m, path: path, conn: conn}, nil
}

// String returns the module identity.
func (m *Module) String() string {
	return fmt.Sprintf("%s %d.%d (%s) by %s", m.Name, m.VersionMajor, m.VersionMinor, m.ID, m.Author)
}

// IsUnavailable reports whether err is an open failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrDeviceUnavailable)
}
