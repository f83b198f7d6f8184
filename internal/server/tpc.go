package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/connection"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/protocol"
)

const readBufferSize = 4096

// ThreadPerConnection runs one goroutine per connection performing blocking reads.
type ThreadPerConnection struct {
	*broker
	opts Options
	sem  chan struct{}

	mu       sync.Mutex
	ln       net.Listener
	shutdown atomic.Bool
	wg       sync.WaitGroup
}

func NewThreadPerConnection(registry *connection.Registry, deps protocol.Dependencies, opts Options) *ThreadPerConnection {
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = 10000
	}
	return &ThreadPerConnection{
		broker: newBroker(registry, deps),
		opts:   opts,
		sem:    make(chan struct{}, opts.MaxConnections),
	}
}

func (s *ThreadPerConnection) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown is called, then returns ErrServerClosed.
func (s *ThreadPerConnection) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.shutdown.Load() {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	s.ln = ln
	s.mu.Unlock()

	logger.InfoF("STOMP Server (thread-per-connection) Listen On %s", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.shutdown.Load() || errors.Is(err, net.ErrClosed) {
				return ErrServerClosed
			}
			logger.ErrorF("Accept connection error: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		logger.DebugF("Accepted new connection from %s", conn.RemoteAddr().String())

		s.sem <- struct{}{}
		s.mu.Lock()
		if s.shutdown.Load() {
			s.mu.Unlock()
			<-s.sem
			_ = conn.Close()
			return ErrServerClosed
		}
		s.wg.Add(1)
		s.mu.Unlock()
		go func(c net.Conn) {
			defer func() {
				<-s.sem
				s.wg.Done()
			}()
			s.handleConnection(c)
		}(conn)
	}
}

func (s *ThreadPerConnection) handleConnection(conn net.Conn) {
	sess := s.open(func(connID int64) connection.Transport {
		return connection.NewConnTransport(conn, connID, s.opts.WriteTimeout)
	})
	connID := sess.connID
	defer sess.engine.Close()

	logger.DebugF("[%d] Connection opened from %s", connID, conn.RemoteAddr().String())
	// registered after Shutdown took its snapshot of live connections
	if s.shutdown.Load() {
		return
	}

	buf := make([]byte, readBufferSize)
	for {
		if s.opts.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		}
		n, err := conn.Read(buf)
		if n > 0 && sess.feed(buf[:n]) {
			logger.DebugF("[%d] Session terminated by protocol", connID)
			return
		}
		if err != nil {
			connection.HandleReadError(connID, err)
			return
		}
	}
}

// Shutdown stops accepting, disconnects every live connection and waits for the handlers to exit.
func (s *ThreadPerConnection) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown.Store(true)
	ln := s.ln
	s.mu.Unlock()

	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.WarnF("Server close error: %v", err)
		}
	}
	s.disconnectAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("STOMP Server stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
