package server

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/auth"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/connection"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/protocol"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/stomp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/crypto/bcrypt"
)

const ioTimeout = 3 * time.Second

type testClient struct {
	conn    net.Conn
	decoder *stomp.Decoder
	pending []stomp.Frame
}

func dial(t *testing.T, addr string) *testClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, ioTimeout)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testClient{conn: conn, decoder: stomp.NewDecoder()}
}

func (c *testClient) send(t *testing.T, f stomp.Frame) {
	t.Helper()
	_, err := c.conn.Write(stomp.Encode(f))
	require.NoError(t, err)
}

// next returns the next frame from the server, or an error when the connection ends first.
func (c *testClient) next() (stomp.Frame, error) {
	buf := make([]byte, 1024)
	for len(c.pending) == 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(ioTimeout))
		n, err := c.conn.Read(buf)
		c.decoder.Decode(buf[:n], func(f stomp.Frame) bool {
			c.pending = append(c.pending, f)
			return true
		})
		if err != nil && len(c.pending) == 0 {
			return stomp.Frame{}, err
		}
	}
	f := c.pending[0]
	c.pending = c.pending[1:]
	return f, nil
}

func (c *testClient) read(t *testing.T) stomp.Frame {
	t.Helper()
	f, err := c.next()
	require.NoError(t, err)
	return f
}

func (c *testClient) expectClosed(t *testing.T) {
	t.Helper()
	f, err := c.next()
	require.Error(t, err, "unexpected frame %v", f)
	assert.True(t, errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || isReset(err), "got %v", err)
}

func isReset(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && !opErr.Timeout()
}

func (c *testClient) login(t *testing.T, user string) {
	t.Helper()
	c.send(t, frame("CONNECT", "login", user, "passcode", "pw"))
	require.Equal(t, "CONNECTED", c.read(t).Command)
}

func frame(command string, kv ...string) stomp.Frame {
	headers := stomp.Headers{}
	for i := 0; i+1 < len(kv); i += 2 {
		headers[kv[i]] = kv[i+1]
	}
	return stomp.Frame{Command: command, Headers: headers}
}

type fixture struct {
	addr     string
	registry *connection.Registry
	server   Server
	served   chan error
}

func newDeps() protocol.Dependencies {
	return protocol.Dependencies{
		Auth: auth.NewAuthenticator(auth.NewMemoryUsers(), auth.Options{BcryptCost: bcrypt.MinCost}),
	}
}

func startThreadPerConnection(t *testing.T, opts Options) *fixture {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	registry := connection.NewRegistry(nil)
	srv := NewThreadPerConnection(registry, newDeps(), opts)
	f := &fixture{addr: ln.Addr().String(), registry: registry, server: srv, served: make(chan error, 1)}
	go func() { f.served <- srv.Serve(ln) }()
	return f
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func startReactor(t *testing.T, opts Options) *fixture {
	t.Helper()
	opts.Addr = freeAddr(t)
	opts.Workers = 2

	registry := connection.NewRegistry(nil)
	srv := NewReactor(registry, newDeps(), opts)
	f := &fixture{addr: opts.Addr, registry: registry, server: srv, served: make(chan error, 1)}
	go func() { f.served <- srv.ListenAndServe() }()

	select {
	case <-srv.Ready():
	case err := <-f.served:
		t.Fatalf("reactor failed to start: %v", err)
	case <-time.After(ioTimeout):
		t.Fatal("reactor did not boot")
	}
	return f
}

func (f *fixture) stop(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	require.NoError(t, f.server.Shutdown(ctx))
	select {
	case err := <-f.served:
		assert.ErrorIs(t, err, ErrServerClosed)
	case <-time.After(ioTimeout):
		t.Fatal("server did not return after shutdown")
	}
}

var strategies = []struct {
	name  string
	start func(t *testing.T, opts Options) *fixture
}{
	{ModeThreadPerConnection, startThreadPerConnection},
	{ModeReactor, startReactor},
}

func TestPublishSubscribe(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.name, func(t *testing.T) {
			f := strategy.start(t, Options{})
			defer f.stop(t)

			a := dial(t, f.addr)
			a.login(t, "a")
			a.send(t, frame("SUBSCRIBE", "destination", "/a", "id", "1", "receipt", "r1"))
			assert.Equal(t, stomp.Receipt("r1"), a.read(t))

			b := dial(t, f.addr)
			b.login(t, "b")
			b.send(t, frame("SUBSCRIBE", "destination", "/a", "id", "7", "receipt", "r2"))
			assert.Equal(t, stomp.Receipt("r2"), b.read(t))

			send := frame("SEND", "destination", "/a", "receipt", "r3")
			send.Body = "hi\nthere"
			a.send(t, send)

			msgA := a.read(t)
			assert.Equal(t, "MESSAGE", msgA.Command)
			assert.Equal(t, "1", msgA.Headers[stomp.HeaderSubscription])
			assert.Equal(t, "hi\nthere", msgA.Body)
			assert.Equal(t, stomp.Receipt("r3"), a.read(t))

			msgB := b.read(t)
			assert.Equal(t, "7", msgB.Headers[stomp.HeaderSubscription])
			assert.Equal(t, msgA.Headers[stomp.HeaderMessageID], msgB.Headers[stomp.HeaderMessageID])
			assert.Equal(t, "/a", msgB.Headers[stomp.HeaderDestination])
		})
	}
}

func TestByteAtATimeDelivery(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.name, func(t *testing.T) {
			f := strategy.start(t, Options{})
			defer f.stop(t)

			c := dial(t, f.addr)
			for _, b := range stomp.Encode(frame("CONNECT", "login", "slow", "passcode", "pw", "receipt", "x")) {
				_, err := c.conn.Write([]byte{b})
				require.NoError(t, err)
			}
			assert.Equal(t, "CONNECTED", c.read(t).Command)
			assert.Equal(t, stomp.Receipt("x"), c.read(t))
		})
	}
}

func TestDisconnectClosesSocket(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.name, func(t *testing.T) {
			f := strategy.start(t, Options{})
			defer f.stop(t)

			c := dial(t, f.addr)
			c.login(t, "u")
			c.send(t, frame("DISCONNECT", "receipt", "9"))
			assert.Equal(t, stomp.Receipt("9"), c.read(t))
			c.expectClosed(t)

			require.Eventually(t, func() bool { return len(f.registry.Connections()) == 0 }, ioTimeout, 10*time.Millisecond)

			// the user was logged out and may connect again
			again := dial(t, f.addr)
			again.login(t, "u")
		})
	}
}

func TestErrorClosesSocket(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.name, func(t *testing.T) {
			f := strategy.start(t, Options{})
			defer f.stop(t)

			c := dial(t, f.addr)
			c.login(t, "u")
			c.send(t, frame("SEND", "destination", "/b", "receipt", "5"))
			errFrame := c.read(t)
			assert.Equal(t, "ERROR", errFrame.Command)
			assert.Equal(t, "5", errFrame.Headers[stomp.HeaderReceiptID])
			c.expectClosed(t)
		})
	}
}

func TestAbruptCloseReleasesSession(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.name, func(t *testing.T) {
			f := strategy.start(t, Options{})
			defer f.stop(t)

			c := dial(t, f.addr)
			c.login(t, "u")
			c.send(t, frame("SUBSCRIBE", "destination", "/a", "id", "1", "receipt", "s"))
			c.read(t)
			require.NoError(t, c.conn.Close())

			require.Eventually(t, func() bool {
				return len(f.registry.Connections()) == 0 && len(f.registry.ChannelSubscribers("/a")) == 0
			}, ioTimeout, 10*time.Millisecond)

			again := dial(t, f.addr)
			again.login(t, "u")
		})
	}
}

func TestIdleTimeout(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.name, func(t *testing.T) {
			f := strategy.start(t, Options{ReadTimeout: 150 * time.Millisecond})
			defer f.stop(t)

			c := dial(t, f.addr)
			c.login(t, "idle")
			c.expectClosed(t)
		})
	}
}

func TestShutdownDisconnectsClients(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.name, func(t *testing.T) {
			f := strategy.start(t, Options{})

			c := dial(t, f.addr)
			c.login(t, "u")
			f.stop(t)
			c.expectClosed(t)
			assert.Empty(t, f.registry.Connections())
		})
	}
}

func TestShutdownBeforeServe(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()

	t.Run(ModeReactor, func(t *testing.T) {
		addr := freeAddr(t)
		srv := NewReactor(connection.NewRegistry(nil), newDeps(), Options{Addr: addr, Workers: 1})
		require.NoError(t, srv.Shutdown(ctx))

		served := make(chan error, 1)
		go func() { served <- srv.ListenAndServe() }()
		select {
		case err := <-served:
			assert.ErrorIs(t, err, ErrServerClosed)
		case <-time.After(ioTimeout):
			t.Fatal("ListenAndServe kept running after Shutdown")
		}

		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			_ = conn.Close()
		}
		assert.Error(t, err, "nothing may listen after Shutdown")
	})

	t.Run(ModeThreadPerConnection, func(t *testing.T) {
		srv := NewThreadPerConnection(connection.NewRegistry(nil), newDeps(), Options{})
		require.NoError(t, srv.Shutdown(ctx))

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		assert.ErrorIs(t, srv.Serve(ln), ErrServerClosed)
	})
}

func TestThreadPerConnectionLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := startThreadPerConnection(t, Options{MaxConnections: 4})
	for i := 0; i < 3; i++ {
		c := dial(t, f.addr)
		c.login(t, "user"+string(rune('a'+i)))
	}
	f.stop(t)
}

func TestNewRejectsUnknownMode(t *testing.T) {
	_, err := New("fork", connection.NewRegistry(nil), newDeps(), Options{})
	assert.Error(t, err)

	srv, err := New(ModeReactor, connection.NewRegistry(nil), newDeps(), Options{})
	require.NoError(t, err)
	assert.IsType(t, &Reactor{}, srv)
}
