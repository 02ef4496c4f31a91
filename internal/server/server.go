// Package server accepts TCP connections and answers each with one static file.
//
// A Server binds its socket in Start, runs an accept loop in its own
// goroutine and hands every accepted connection to a fresh goroutine. Each
// connection carries exactly one request and is closed after the response.
// Stop ends the accept loop and waits, up to a grace period, for requests
// already being handled.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"github.com/f4ah6o/minihttpd/internal/config"
	"github.com/f4ah6o/minihttpd/internal/mime"
)

var (
	// ErrAlreadyRunning is returned by Start on a server that is not stopped.
	ErrAlreadyRunning = errors.New("server already running")
	// ErrNotRunning is returned by Stop on a server that is not running.
	ErrNotRunning = errors.New("server not running")
	// ErrShutdownTimeout is returned by Stop when requests were still in
	// flight after the grace period. They are left to finish on their own.
	ErrShutdownTimeout = errors.New("shutdown grace period expired with requests in flight")
)

// acceptRetryDelay throttles the loop after an accept error that is neither
// a poll timeout nor a closed listener, e.g. running out of descriptors.
const acceptRetryDelay = 10 * time.Millisecond

// BindError reports a failure to bind the listening socket.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// Server serves files under a content root. The zero value is not usable;
// create one with New or Start.
type Server struct {
	cfg  config.Config
	root string
	fsys fs.FS
	mime *mime.Table
	log  *slog.Logger

	state stateValue

	mu       sync.Mutex // serializes Start and Stop
	ln       net.Listener
	loopDone chan struct{}
	// handlers is replaced on every Start so a drain left running by a
	// timed-out Stop never shares a WaitGroup with the next run.
	handlers *sync.WaitGroup
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithFS replaces the filesystem files are read from. Names passed to it are
// relative to the content root. The default is an os.Root opened on the
// root directory, which refuses symlinks that lead outside it.
func WithFS(fsys fs.FS) Option {
	return func(s *Server) { s.fsys = fsys }
}

// WithMimeTable replaces the table built from the config's MimeTypes.
func WithMimeTable(t *mime.Table) Option {
	return func(s *Server) { s.mime = t }
}

// New validates cfg and prepares a stopped server.
func New(cfg config.Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	root, err := cfg.AbsRoot()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:  cfg,
		root: root,
		log:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fsys == nil {
		r, err := os.OpenRoot(root)
		if err != nil {
			return nil, fmt.Errorf("open content root: %w", err)
		}
		s.fsys = r.FS()
	}
	if s.mime == nil {
		s.mime = mime.New(cfg.MimeTypes)
	}
	return s, nil
}

// Start builds a server with New and starts it.
func Start(cfg config.Config, opts ...Option) (*Server, error) {
	s, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Start(); err != nil {
		return nil, err
	}
	return s, nil
}

// Start binds the listening socket and launches the accept loop.
// A bind failure is returned as a *BindError.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Load() != Stopped {
		return ErrAlreadyRunning
	}

	raw, err := listen(s.cfg.Address, s.cfg.Port, s.cfg.Backlog)
	if err != nil {
		return &BindError{Addr: s.cfg.Addr(), Err: err}
	}

	// Stop closes s.ln; with a cap that must be the LimitListener so an
	// Accept parked waiting for a free slot returns too. Deadlines still go
	// to the raw listener since LimitListener hides them.
	ln := raw
	if s.cfg.MaxConns > 0 {
		ln = netutil.LimitListener(raw, s.cfg.MaxConns)
	}
	dl, _ := raw.(deadliner)

	s.ln = ln
	s.loopDone = make(chan struct{})
	s.handlers = new(sync.WaitGroup)
	s.state.Store(Running)

	s.log.Info("listening", "addr", ln.Addr().String(), "root", s.root, "backlog", s.cfg.Backlog)
	go s.acceptLoop(ln, dl, s.handlers, s.loopDone)
	return nil
}

// Stop closes the listener and waits for in-flight requests until ctx is
// done or the configured grace period elapses, whichever comes first.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CompareAndSwap(Running, Stopping) {
		return ErrNotRunning
	}
	defer s.state.Store(Stopped)

	if err := s.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.Warn("close listener", "err", err)
	}
	<-s.loopDone

	handlers := s.handlers
	drained := make(chan struct{})
	go func() {
		handlers.Wait()
		close(drained)
	}()

	grace := time.NewTimer(s.cfg.ShutdownGrace.Std())
	defer grace.Stop()

	select {
	case <-drained:
		s.log.Info("stopped")
		return nil
	default:
	}
	select {
	case <-drained:
		s.log.Info("stopped")
		return nil
	case <-ctx.Done():
	case <-grace.C:
	}
	s.log.Warn("stopped with requests in flight")
	return ErrShutdownTimeout
}

// Addr returns the bound address, or nil when the server has never started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// State reports the current lifecycle phase.
func (s *Server) State() State {
	return s.state.Load()
}

type deadliner interface {
	SetDeadline(time.Time) error
}

func (s *Server) acceptLoop(ln net.Listener, dl deadliner, handlers *sync.WaitGroup, done chan<- struct{}) {
	defer close(done)

	poll := s.cfg.AcceptPoll.Std()

	for s.state.Load() == Running {
		if dl != nil {
			dl.SetDeadline(time.Now().Add(poll))
		}

		rwc, err := ln.Accept()
		if err != nil {
			if s.state.Load() != Running || errors.Is(err, net.ErrClosed) {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			s.log.Warn("accept failed", "err", err)
			time.Sleep(acceptRetryDelay)
			continue
		}

		handlers.Add(1)
		go func() {
			defer handlers.Done()
			s.serveConn(rwc)
		}()
	}
}
