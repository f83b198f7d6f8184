// Package server drives connections from socket bytes through the codec into protocol engines.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/connection"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/protocol"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/stomp"
)

var ErrServerClosed = errors.New("server: closed")

type Options struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxConnections int
	// Workers is the number of reactor event loops. Zero uses one per CPU.
	Workers int
}

// Server is implemented by both execution strategies.
type Server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

const (
	ModeThreadPerConnection = "tpc"
	ModeReactor             = "reactor"
)

// New builds the server for mode. deps.Registry is replaced by registry.
func New(mode string, registry *connection.Registry, deps protocol.Dependencies, opts Options) (Server, error) {
	switch mode {
	case ModeThreadPerConnection:
		return NewThreadPerConnection(registry, deps, opts), nil
	case ModeReactor:
		return NewReactor(registry, deps, opts), nil
	}
	return nil, fmt.Errorf("unknown server mode %q", mode)
}

// broker holds what both strategies share: the registry and the engine dependencies.
type broker struct {
	registry *connection.Registry
	deps     protocol.Dependencies
	nextID   atomic.Int64
}

func newBroker(registry *connection.Registry, deps protocol.Dependencies) *broker {
	deps.Registry = registry
	if deps.MessageIDs == nil {
		deps.MessageIDs = &protocol.MessageIDs{}
	}
	return &broker{registry: registry, deps: deps}
}

// open assigns a connection id, registers the transport built for it and returns the
// connection's codec/engine pair.
func (b *broker) open(newTransport func(connID int64) connection.Transport) *session {
	connID := b.nextID.Add(1)
	b.registry.Connect(connID, newTransport(connID))
	return &session{
		connID:  connID,
		decoder: stomp.NewDecoder(),
		engine:  protocol.NewEngine(connID, b.deps),
	}
}

// disconnectAll tears down every live connection.
func (b *broker) disconnectAll() {
	for _, connID := range b.registry.Connections() {
		b.registry.Disconnect(connID)
	}
}

// session is the per-connection codec/engine pair. It is never used by two goroutines at once.
type session struct {
	connID     int64
	decoder    *stomp.Decoder
	engine     *protocol.Engine
	lastActive atomic.Int64
}

// feed decodes data and processes every completed frame in order. Bytes after a
// terminating frame are discarded. It reports whether the engine terminated.
func (s *session) feed(data []byte) bool {
	s.lastActive.Store(time.Now().UnixNano())
	s.decoder.Decode(data, func(frame stomp.Frame) bool {
		s.engine.Process(frame)
		return !s.engine.ShouldTerminate()
	})
	return s.engine.ShouldTerminate()
}

func (s *session) idle(now time.Time, timeout time.Duration) bool {
	return timeout > 0 && now.Sub(time.Unix(0, s.lastActive.Load())) > timeout
}
