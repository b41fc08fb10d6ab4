package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/hello-hal/internal/driver"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultSocketMode   = fs.FileMode(0o666)
	DefaultMaxOpenFiles = 1024
)

// Server lifecycle errors.
var (
	// ErrNotStarted is returned by operations that need a running server.
	ErrNotStarted = errors.New("server: not started")

	// ErrAlreadyStarted is returned by Start on a running server.
	ErrAlreadyStarted = errors.New("server: already started")
)

// Config holds node server settings.
type Config struct {
	// Socket is the unix socket path to listen on.
	Socket string

	// SocketMode is applied to the socket file after listening. Access to
	// individual nodes is still checked against each node's mode.
	SocketMode fs.FileMode

	// MaxOpenFiles bounds open descriptors across all sessions. Opening
	// beyond it fails with ENOMEM.
	MaxOpenFiles int
}

// Logger defines the logging interface used by the server.
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

// Server accepts node protocol connections on a unix socket.
//
// Thread Safety: All methods are safe for concurrent use.
type Server struct {
	cfg    Config
	ns     *driver.Namespace

	loggerMu sync.RWMutex
	logger   Logger

	// peer resolves connection credentials; replaced in tests.
	peer func(net.Conn) (driver.Caller, error)

	mu       sync.Mutex
	listener *net.UnixListener
	sessions map[*session]struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	openFiles atomic.Int64
}

// New creates a server for ns. The server is not listening until Start.
func New(ns *driver.Namespace, cfg Config) *Server {
	if cfg.SocketMode == 0 {
		cfg.SocketMode = DefaultSocketMode
	}
	if cfg.MaxOpenFiles <= 0 {
		cfg.MaxOpenFiles = DefaultMaxOpenFiles
	}
	return &Server{
		cfg:      cfg,
		ns:       ns,
		logger:   noopLogger{},
		peer:     peerCaller,
		sessions: make(map[*session]struct{}),
	}
}

// SetLogger sets the logger for the server. It may be called while the
// server is running; sessions accepted afterwards use the new logger.
func (s *Server) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

func (s *Server) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

// Start listens on the configured socket and serves connections in the
// background until Close. A stale socket file left by an earlier run is
// removed first.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return ErrAlreadyStarted
	}
	if s.cfg.Socket == "" {
		return fmt.Errorf("server: socket path is required")
	}

	if err := os.Remove(s.cfg.Socket); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing stale socket: %w", err)
	}

	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: s.cfg.Socket, Net: "unix"})
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Socket, err)
	}
	if err := os.Chmod(s.cfg.Socket, s.cfg.SocketMode); err != nil {
		ln.Close() //nolint:errcheck // already failing
		return fmt.Errorf("setting socket mode: %w", err)
	}

	s.listener = ln
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.acceptLoop(ln)

	s.getLogger().Info("node server listening",
		"socket", s.cfg.Socket,
		"max_open_files", s.cfg.MaxOpenFiles,
	)
	return nil
}

// Close stops accepting, interrupts requests blocked on a register, and
// waits for every session to finish. Safe to call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.listener == nil {
		s.mu.Unlock()
		return nil
	}
	ln := s.listener
	s.listener = nil
	s.cancel()
	ln.Close() //nolint:errcheck // shutdown
	for sess := range s.sessions {
		sess.shutdown()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.getLogger().Info("node server stopped", "socket", s.cfg.Socket)
	return nil
}

// Addr returns the socket path.
func (s *Server) Addr() string { return s.cfg.Socket }

// OpenFiles returns the number of descriptors open across all sessions.
func (s *Server) OpenFiles() int { return int(s.openFiles.Load()) }

// Sessions returns the number of connected sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) acceptLoop(ln *net.UnixListener) {
	defer s.wg.Done()

	for {
		conn, err := ln.AcceptUnix()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.getLogger().Warn("accept failed", "error", err)
			continue
		}

		caller, err := s.peer(conn)
		if err != nil {
			s.getLogger().Warn("rejecting connection", "error", err)
			conn.Close() //nolint:errcheck // rejected
			continue
		}

		sess := newSession(s, conn, caller)

		s.mu.Lock()
		if s.listener == nil {
			s.mu.Unlock()
			conn.Close() //nolint:errcheck // shutting down
			return
		}
		s.sessions[sess] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.wg.Done()
			sess.serve(s.ctx)

			s.mu.Lock()
			delete(s.sessions, sess)
			s.mu.Unlock()
		}()
	}
}

// reserve claims a descriptor slot, failing once MaxOpenFiles are in use.
func (s *Server) reserve() bool {
	for {
		n := s.openFiles.Load()
		if n >= int64(s.cfg.MaxOpenFiles) {
			return false
		}
		if s.openFiles.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (s *Server) release() {
	s.openFiles.Add(-1)
}
