package framing

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Handler handles accepted connections.
type Handler interface {
	// Handle is called in its own goroutine for each new connection.
	// The implementation owns the connection and must close it.
	Handle(ctx context.Context, conn net.Conn)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, conn net.Conn)

// Handle calls f(ctx, conn).
func (f HandlerFunc) Handle(ctx context.Context, conn net.Conn) {
	f(ctx, conn)
}

// Server accepts connections from a listener and dispatches them to a
// Handler.
type Server struct {
	listener        net.Listener
	logger          Logger
	shutdownTimeout time.Duration

	mu          sync.Mutex
	shutdown    bool
	shutdownNow chan struct{} // closed by Close to bypass the timeout
	closeOnce   sync.Once

	handlers sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// ServerLoggerOption sets the logger for the server.
func ServerLoggerOption(logger Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// ServerShutdownTimeoutOption sets the graceful shutdown timeout.
// When the context passed to Serve is canceled, the server stops accepting
// and waits up to this duration for running handlers to return.
// Default is 0 (do not wait).
func ServerShutdownTimeoutOption(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.shutdownTimeout = timeout
	}
}

// Listen creates a server listening on the given network address.
func Listen(network, addr string, opts ...ServerOption) (*Server, error) {
	listener, err := net.Listen(network, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s %s", network, addr)
	}
	return NewServer(listener, opts...), nil
}

// NewServer creates a server that accepts from listener.
func NewServer(listener net.Listener, opts ...ServerOption) *Server {
	s := &Server{
		listener:    listener,
		logger:      slog.Default(),
		shutdownNow: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Serve accepts connections and hands each one to handler with a context
// that is canceled when ctx is. It blocks until ctx is canceled, Close is
// called, or accepting fails.
//
// On cancellation the listener is closed at once, then Serve waits up to the
// shutdown timeout for handlers to return. Close skips the wait.
func (s *Server) Serve(ctx context.Context, handler Handler) error {
	s.logger.Info("server started", "addr", s.listener.Addr())

	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		// Unblock Accept
		_ = s.listener.Close()
	})
	defer stop()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			isShutdown := s.shutdown
			s.mu.Unlock()

			if isShutdown {
				s.drain()
				s.logger.Info("server stopped", "addr", s.listener.Addr())
				return ctx.Err()
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger.Error("accept error", "error", err)
			return err
		}

		s.logger.Debug("accepted connection", "remote_addr", conn.RemoteAddr())
		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}

		s.handlers.Add(1)
		go func() {
			defer s.handlers.Done()
			handler.Handle(ctx, conn)
		}()
	}
}

// drain waits for running handlers, at most for the shutdown timeout.
func (s *Server) drain() {
	if s.shutdownTimeout <= 0 {
		return
	}

	s.logger.Info("graceful shutdown initiated", "timeout", s.shutdownTimeout)

	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		s.logger.Warn("shutdown timeout expired with handlers running")
	case <-s.shutdownNow:
		s.logger.Debug("shutdown timeout bypassed via Close()")
	}
}

// Close stops the server by closing the listener. It also cuts short a
// graceful shutdown in progress. Running handlers are not interrupted.
func (s *Server) Close() error {
	s.closeOnce.Do(func() { close(s.shutdownNow) })

	s.mu.Lock()
	already := s.shutdown
	s.shutdown = true
	s.mu.Unlock()

	if already {
		return nil
	}
	return s.listener.Close()
}

// Addr returns the listener's network address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
