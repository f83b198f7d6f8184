// Package protocol interprets decoded frames for one connection.
package protocol

import (
	"sync"
	"time"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/auth"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/connection"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/metrics"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/stomp"
)

type State int

const (
	Unauthenticated State = iota
	Authenticated
	Terminated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "UNAUTHENTICATED"
	case Authenticated:
		return "AUTHENTICATED"
	case Terminated:
		return "TERMINATED"
	}
	return "UNKNOWN"
}

// Registry is the part of connection.Registry an engine needs.
type Registry interface {
	Subscribe(connID int64, channel, subscriptionID string) bool
	Unsubscribe(connID int64, subscriptionID string) (string, bool)
	ChannelSubscribers(channel string) connection.Subscribers
	Send(connID int64, frame stomp.Frame) bool
	Disconnect(connID int64)
}

// ReportTracker records game-event reports published by a user.
type ReportTracker interface {
	TrackReport(username, channel string) error
}

// Dependencies are shared by every engine of a server.
type Dependencies struct {
	Registry   Registry
	Auth       auth.Store
	MessageIDs *MessageIDs
	Reports    ReportTracker
	Metrics    *metrics.Metrics
}

// Engine is not safe for concurrent use; the connection handler feeds it one frame at a time.
type Engine struct {
	connID int64
	deps   Dependencies

	state         State
	username      string
	subscriptions map[string]string

	closeOnce sync.Once
}

func NewEngine(connID int64, deps Dependencies) *Engine {
	if deps.MessageIDs == nil {
		deps.MessageIDs = &MessageIDs{}
	}
	return &Engine{
		connID:        connID,
		deps:          deps,
		state:         Unauthenticated,
		subscriptions: make(map[string]string),
	}
}

func (e *Engine) State() State {
	return e.state
}

func (e *Engine) Username() string {
	return e.username
}

func (e *Engine) ShouldTerminate() bool {
	return e.state == Terminated
}

// Process applies one decoded frame. Frames arriving after termination are ignored.
func (e *Engine) Process(frame stomp.Frame) {
	if e.state == Terminated {
		return
	}
	startTime := time.Now()
	kind := frame.Kind()
	defer e.deps.Metrics.FrameProcessed(kind.String(), startTime)

	logger.DebugF("[%d] Received %s frame", e.connID, kind)

	var err error
	switch {
	case frame.Command == "":
		err = newError("Malformed frame", "%v", stomp.ErrEmptyCommand)
	case e.state == Unauthenticated && kind != stomp.CONNECT:
		err = newError("Must connect first", "%s is not allowed before CONNECT", frame.Command)
	default:
		err = e.dispatch(kind, frame)
	}
	if err != nil {
		e.fail(frame, err)
	}
}

func (e *Engine) dispatch(kind stomp.Command, frame stomp.Frame) error {
	switch kind {
	case stomp.CONNECT:
		return e.handleConnect(frame)
	case stomp.SEND:
		return e.handleSend(frame)
	case stomp.SUBSCRIBE:
		return e.handleSubscribe(frame)
	case stomp.UNSUBSCRIBE:
		return e.handleUnsubscribe(frame)
	case stomp.DISCONNECT:
		return e.handleDisconnect(frame)
	default:
		return newError("Unknown command", "Unknown command: %s", frame.Command)
	}
}

func (e *Engine) reply(frame stomp.Frame) {
	if !e.deps.Registry.Send(e.connID, frame) {
		logger.DebugF("[%d] Dropping %s reply, connection is gone", e.connID, frame.Command)
	}
}

func (e *Engine) receipt(frame stomp.Frame) {
	if id, ok := frame.Header(stomp.HeaderReceipt); ok {
		e.reply(stomp.Receipt(id))
	}
}

// fail emits exactly one ERROR frame and terminates the connection.
func (e *Engine) fail(frame stomp.Frame, err error) {
	pe := asProtocolError(err)
	receiptID, _ := frame.Header(stomp.HeaderReceipt)

	logger.WarnF("[%d] Protocol error: %s (%s)", e.connID, pe.message, pe.detail)
	e.deps.Metrics.ProtocolError(pe.message)
	e.reply(stomp.Error(pe.message, receiptID, pe.detail))
	e.terminate()
}

func (e *Engine) terminate() {
	e.state = Terminated
	e.Close()
}

// Close logs the session out and tears the connection down through the registry. Only the
// first call has any effect; handlers call it when the transport goes away.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.state = Terminated
		if e.username != "" {
			e.deps.Auth.Logout(e.connID)
		}
		e.deps.Registry.Disconnect(e.connID)
		logger.DebugF("[%d] Session terminated", e.connID)
	})
}
