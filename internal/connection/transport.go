package connection

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/stomp"
)

// ErrTransportClosed is returned when sending on a closed transport.
var ErrTransportClosed = errors.New("transport is closed")

// Transport delivers whole frames to one connection.
//
// Send must be safe for concurrent use and must never interleave two frames. Close must be
// idempotent.
type Transport interface {
	Send(frame stomp.Frame) error
	Close() error
}

// ConnTransport writes frames to a net.Conn under a per-connection write lock.
type ConnTransport struct {
	conn         net.Conn
	connID       int64
	writeTimeout time.Duration

	mu     sync.Mutex
	closed atomic.Bool
}

// NewConnTransport wraps conn. A zero writeTimeout disables write deadlines.
func NewConnTransport(conn net.Conn, connID int64, writeTimeout time.Duration) *ConnTransport {
	return &ConnTransport{conn: conn, connID: connID, writeTimeout: writeTimeout}
}

// Send encodes frame and writes all of its bytes before releasing the lock.
func (t *ConnTransport) Send(frame stomp.Frame) error {
	data := frame.Encode()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		return ErrTransportClosed
	}
	if t.writeTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	return send(t.conn, data, t.connID)
}

// Close closes the underlying connection once. It does not wait for the write lock, so a
// write blocked on a slow peer is interrupted.
func (t *ConnTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	return t.conn.Close()
}

func send(conn net.Conn, data []byte, connID int64) error {
	total := 0
	for total < len(data) {
		n, err := conn.Write(data[total:])
		if err != nil {
			logger.ErrorF("[%d] Fail to send data, details: %v", connID, err)
			return err
		}
		total += n
	}
	logger.DebugF("[%d] Send %d bytes to client", connID, total)
	return nil
}
