package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/muurk/orvibo-bridge/internal/events"
	"github.com/muurk/orvibo-bridge/internal/logging"
	"github.com/muurk/orvibo-bridge/internal/protocol"
	"github.com/muurk/orvibo-bridge/internal/session"
	"go.uber.org/zap"
)

// Config holds the server configuration
type Config struct {
	Host         string
	Port         int
	PreSharedKey string
	KeepAlive    time.Duration
	Nicknames    map[string]string // display names keyed by device UID
	LogPackets   bool              // log decrypted payloads at info level
}

// Server accepts device connections and bridges them to the event bus
type Server struct {
	config     *Config
	dispatcher *Dispatcher
	store      *session.Store
	bus        *events.Bus

	mu       sync.Mutex
	listener net.Listener
	closing  bool
	wg       sync.WaitGroup
}

// New creates a new Server instance. Events are published to bus.
func New(config *Config, bus *events.Bus) (*Server, error) {
	if config == nil {
		return nil, errors.New("server config is required")
	}
	if len(config.PreSharedKey) != protocol.KeySize {
		return nil, fmt.Errorf("pre-shared key must be %d bytes, got %d", protocol.KeySize, len(config.PreSharedKey))
	}
	if bus == nil {
		bus = events.NewBus()
	}

	return &Server{
		config:     config,
		dispatcher: NewDispatcher([]byte(config.PreSharedKey), config.Nicknames, config.LogPackets),
		store:      session.NewStore(),
		bus:        bus,
	}, nil
}

// Events returns the bus the server publishes to
func (s *Server) Events() *events.Bus {
	return s.bus
}

// Start listens on the configured address and serves until ctx is cancelled
// or the listener fails. Cancellation triggers a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))

	logging.Info("Starting Orvibo bridge",
		zap.String("addr", addr),
		zap.Duration("keepalive", s.config.KeepAlive),
		zap.Int("nicknames", len(s.config.Nicknames)),
		zap.Bool("log_packets", s.config.LogPackets),
	)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logging.Info("Shutdown requested, stopping server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Serve accepts connections on l until Shutdown. It returns nil after a
// shutdown and the accept error otherwise.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = l.Close()
		return nil
	}
	s.listener = l
	s.mu.Unlock()

	logging.Info("Server listening for connections", zap.String("addr", l.Addr().String()))

	var tempDelay time.Duration
	for {
		nc, err := l.Accept()
		if err != nil {
			if s.isClosing() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else if tempDelay *= 2; tempDelay > time.Second {
					tempDelay = time.Second
				}
				logging.Warn("Accept error, retrying", zap.Duration("delay", tempDelay), zap.Error(err))
				time.Sleep(tempDelay)
				continue
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		tempDelay = 0

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(nc)
		}()
	}
}

// Addr returns the listener address, or nil before Serve
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")

	s.mu.Lock()
	s.closing = true
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logging.Error("Error closing listener", zap.Error(err))
		}
	}
	s.mu.Unlock()

	for _, sess := range s.store.Sessions() {
		logging.Info("Closing active connection",
			zap.String("conn_id", sess.ConnectionID),
			zap.String("remote_addr", sess.RemoteAddr),
			zap.String("uid", sess.UID),
			zap.String("phase", sess.Phase()),
		)
	}
	for _, c := range s.store.Conns() {
		_ = c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All connections closed gracefully")
		return nil
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
		return ctx.Err()
	}
}

// ActiveConnections returns the number of live device connections
func (s *Server) ActiveConnections() int {
	return s.store.Len()
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}
