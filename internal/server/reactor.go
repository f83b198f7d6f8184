package server

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/connection"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/protocol"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/stomp"
	"github.com/panjf2000/gnet/v2"
)

// Reactor multiplexes connections over gnet event loops. gnet never runs two callbacks
// for the same connection concurrently, so a session is only touched by its own loop.
type Reactor struct {
	gnet.BuiltinEventEngine
	*broker
	opts Options

	engine   gnet.Engine
	booted   chan struct{}
	bootOnce sync.Once
	sessions sync.Map
	stopped  atomic.Bool
}

func NewReactor(registry *connection.Registry, deps protocol.Dependencies, opts Options) *Reactor {
	return &Reactor{
		broker: newBroker(registry, deps),
		opts:   opts,
		booted: make(chan struct{}),
	}
}

func (r *Reactor) ListenAndServe() error {
	if r.stopped.Load() {
		return ErrServerClosed
	}
	options := []gnet.Option{
		gnet.WithMulticore(r.opts.Workers == 0),
		gnet.WithTCPNoDelay(gnet.TCPNoDelay),
		gnet.WithLogger(gnetLogger{}),
		gnet.WithTicker(r.opts.ReadTimeout > 0),
	}
	if r.opts.Workers > 0 {
		options = append(options, gnet.WithNumEventLoop(r.opts.Workers))
	}
	err := gnet.Run(r, "tcp://"+r.opts.Addr, options...)
	if r.stopped.Load() {
		return ErrServerClosed
	}
	return err
}

// Ready is closed once the event loops accept connections.
func (r *Reactor) Ready() <-chan struct{} {
	return r.booted
}

func (r *Reactor) OnBoot(eng gnet.Engine) gnet.Action {
	r.engine = eng
	defer r.bootOnce.Do(func() { close(r.booted) })
	// Shutdown ran between ListenAndServe and boot
	if r.stopped.Load() {
		return gnet.Shutdown
	}
	logger.InfoF("STOMP Server (reactor) Listen On %s", r.opts.Addr)
	return gnet.None
}

func (r *Reactor) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	if r.stopped.Load() {
		return nil, gnet.Close
	}
	sess := r.open(func(int64) connection.Transport {
		return &gnetTransport{conn: c}
	})
	sess.lastActive.Store(time.Now().UnixNano())
	c.SetContext(sess)
	r.sessions.Store(sess.connID, sess)
	logger.DebugF("[%d] Connection opened from %s", sess.connID, c.RemoteAddr().String())
	return nil, gnet.None
}

func (r *Reactor) OnTraffic(c gnet.Conn) gnet.Action {
	sess, ok := c.Context().(*session)
	if !ok {
		return gnet.Close
	}
	buf, err := c.Next(-1)
	if err != nil {
		logger.ErrorF("[%d] Error occured while reading frame, details: %v", sess.connID, err)
		return gnet.Close
	}
	// the transport close is queued behind any pending replies, so the connection is not
	// closed here even when the session terminated
	if sess.feed(buf) {
		logger.DebugF("[%d] Session terminated by protocol", sess.connID)
	}
	return gnet.None
}

func (r *Reactor) OnClose(c gnet.Conn, err error) gnet.Action {
	sess, ok := c.Context().(*session)
	if !ok {
		return gnet.None
	}
	if err != nil {
		connection.HandleReadError(sess.connID, err)
	}
	sess.engine.Close()
	r.sessions.Delete(sess.connID)
	logger.DebugF("[%d] Connection closed", sess.connID)
	return gnet.None
}

// OnTick closes connections idle for longer than the read timeout.
func (r *Reactor) OnTick() (time.Duration, gnet.Action) {
	now := time.Now()
	r.sessions.Range(func(_, value any) bool {
		sess := value.(*session)
		if sess.idle(now, r.opts.ReadTimeout) {
			logger.WarnF("[%d] Reading timeout", sess.connID)
			r.registry.Disconnect(sess.connID)
		}
		return true
	})
	delay := r.opts.ReadTimeout / 2
	if delay < 100*time.Millisecond {
		delay = 100 * time.Millisecond
	}
	return delay, gnet.None
}

// Shutdown disconnects every live connection and stops the event loops. Called before the
// loops boot, it makes ListenAndServe return ErrServerClosed without serving.
func (r *Reactor) Shutdown(ctx context.Context) error {
	if !r.stopped.CompareAndSwap(false, true) {
		return nil
	}
	select {
	case <-r.booted:
	default:
		return nil
	}
	r.disconnectAll()
	if err := r.engine.Stop(ctx); err != nil {
		return fmt.Errorf("stopping event loops: %w", err)
	}
	logger.Info("STOMP Server stopped")
	return nil
}

// gnetTransport queues frames on the connection's event loop. AsyncWrite is
// processed before the low priority close, so replies sent before Close are flushed.
type gnetTransport struct {
	conn   gnet.Conn
	closed atomic.Bool
}

func (t *gnetTransport) Send(frame stomp.Frame) error {
	if t.closed.Load() {
		return connection.ErrTransportClosed
	}
	return t.conn.AsyncWrite(frame.Encode(), nil)
}

func (t *gnetTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	return t.conn.CloseWithCallback(nil)
}

// gnetLogger routes gnet's own logging through the broker logger.
type gnetLogger struct{}

func (gnetLogger) Debugf(format string, args ...any) { logger.DebugF(format, args...) }
func (gnetLogger) Infof(format string, args ...any)  { logger.InfoF(format, args...) }
func (gnetLogger) Warnf(format string, args ...any)  { logger.WarnF(format, args...) }
func (gnetLogger) Errorf(format string, args ...any) { logger.ErrorF(format, args...) }
func (gnetLogger) Fatalf(format string, args ...any) { logger.FatalF(format, args...) }
