package protocol

import (
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/stomp"
)

// handleSubscribe rejects a reused subscription id and a second subscription to the same channel.
func (e *Engine) handleSubscribe(frame stomp.Frame) error {
	destination, hasDestination := frame.Header(stomp.HeaderDestination)
	id, hasID := frame.Header(stomp.HeaderID)
	if !hasDestination || !hasID {
		return newError("Missing destination or id header", "SUBSCRIBE requires both %s and %s", stomp.HeaderDestination, stomp.HeaderID)
	}
	if channel, ok := e.subscriptions[id]; ok {
		return newError("Subscription id already in use", "Subscription id %s is already bound to %s", id, channel)
	}
	if e.subscribedTo(destination) {
		return newError("Already subscribed to channel", "Already subscribed to %s", destination)
	}

	if !e.deps.Registry.Subscribe(e.connID, destination, id) {
		return newError("Connection closed", "Connection %d is no longer registered", e.connID)
	}
	e.subscriptions[id] = destination
	logger.DebugF("[%d] Subscribed %s to %s", e.connID, id, destination)

	e.receipt(frame)
	return nil
}

func (e *Engine) handleUnsubscribe(frame stomp.Frame) error {
	id, ok := frame.Header(stomp.HeaderID)
	if !ok {
		return newError("Missing id header", "UNSUBSCRIBE requires an %s header", stomp.HeaderID)
	}
	if _, ok := e.subscriptions[id]; !ok {
		return newError("Invalid subscription id", "Invalid subscription id: %s", id)
	}

	delete(e.subscriptions, id)
	channel, _ := e.deps.Registry.Unsubscribe(e.connID, id)
	logger.DebugF("[%d] Unsubscribed %s from %s", e.connID, id, channel)

	e.receipt(frame)
	return nil
}
