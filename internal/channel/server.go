// Package channel accepts TCP connections, parses the requests arriving on
// them and hands each one to the dispatcher as a task.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jzx17/taskserve/pkg/config"
	"github.com/jzx17/taskserve/pkg/retry"
	"github.com/jzx17/taskserve/pkg/task"
	"github.com/jzx17/taskserve/pkg/types"
)

const defaultAcceptDelay = 5 * time.Millisecond

// ServerConfig contains configuration for the server
type ServerConfig struct {
	// Adjustments are the server settings (optional, defaults apply)
	Adjustments *config.Adjustments

	// Application receives every parsed request
	Application task.Application

	// Dispatcher services the tasks
	Dispatcher types.WorkerPool

	// Logger (optional)
	Logger *zap.Logger

	// Clock for accept backoff and task start times (optional)
	Clock types.Clock

	// AcceptBackoff paces retries after temporary accept failures
	// (optional, 5ms doubling up to 1s)
	AcceptBackoff retry.BackoffStrategy
}

// Server owns a listener and the connections accepted from it. It
// implements task.Server.
type Server struct {
	adj        *config.Adjustments
	app        task.Application
	dispatcher types.WorkerPool
	logger     *zap.Logger
	clock      types.Clock
	backoff    retry.BackoffStrategy

	mu    sync.Mutex
	port  int
	name  string
	conns map[*Conn]struct{}
}

// NewServer creates a server; call Serve to start accepting
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Application == nil {
		return nil, fmt.Errorf("application cannot be nil")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}

	adj := cfg.Adjustments
	if adj == nil {
		adj = config.DefaultAdjustments()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	backoff := cfg.AcceptBackoff
	if backoff == nil {
		backoff = retry.NewExponentialBackoff(defaultAcceptDelay)
	}

	return &Server{
		adj:        adj,
		app:        cfg.Application,
		dispatcher: cfg.Dispatcher,
		logger:     logger.Named("server"),
		clock:      types.OrRealClock(cfg.Clock),
		backoff:    backoff,
		port:       adj.Port,
		name:       serverName(adj.Host),
		conns:      make(map[*Conn]struct{}),
	}, nil
}

// Application returns the downstream application
func (s *Server) Application() task.Application { return s.app }

// EffectivePort returns the port the listener is bound to
func (s *Server) EffectivePort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// ServerName returns the host name reported to applications
func (s *Server) ServerName() string { return s.name }

// Adjustments returns the server settings
func (s *Server) Adjustments() *config.Adjustments { return s.adj }

// Logger returns the server logger
func (s *Server) Logger() *zap.Logger { return s.logger }

// Serve accepts connections from ln until ctx is done, then closes the
// listener, wakes idle connections and waits for every connection to
// finish its current request. It returns nil after a clean stop.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.mu.Lock()
		s.port = addr.Port
		s.mu.Unlock()
	}

	s.logger.Info("Serving",
		zap.String("addr", ln.Addr().String()),
		zap.String("ident", s.adj.Ident))

	var conns errgroup.Group
	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-stopped:
		}
		_ = ln.Close()
		s.wakeIdle()
	}()

	err := s.acceptLoop(ctx, ln, &conns)
	close(stopped)
	_ = conns.Wait()

	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, conns *errgroup.Group) error {
	attempt := 0
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return err
			}
			if !retry.IsTemporary(err) {
				s.logger.Error("Accept failed", zap.Error(err))
				return err
			}

			attempt++
			delay := s.backoff.NextDelay(attempt)
			s.logger.Warn("Accept error; retrying",
				zap.Error(err),
				zap.Duration("delay", delay))
			if err := retry.Sleep(ctx, s.clock, delay); err != nil {
				return err
			}
			continue
		}
		attempt = 0

		c := newConn(nc, s)
		if !s.track(c) {
			_ = nc.Close()
			return ctx.Err()
		}
		conns.Go(func() error {
			defer s.untrack(c)
			c.serve(ctx)
			return nil
		})
	}
}

func (s *Server) track(c *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

// wakeIdle stops accepting new connections and interrupts connections
// blocked reading their next request
func (s *Server) wakeIdle() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	for c := range conns {
		c.interruptRead()
	}
}

// NumConns returns the number of open connections
func (s *Server) NumConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func serverName(host string) string {
	if host != "" && host != "0.0.0.0" && host != "::" {
		return host
	}
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return "localhost"
}

// ListenAndServe listens on the configured address and serves until ctx is
// done
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.adj.ListenAddr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.adj.ListenAddr(), err)
	}
	return s.Serve(ctx, ln)
}
