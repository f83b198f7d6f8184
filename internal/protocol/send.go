package protocol

import (
	"strings"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/stomp"
)

func (e *Engine) handleSend(frame stomp.Frame) error {
	destination, ok := frame.Header(stomp.HeaderDestination)
	if !ok {
		return newError("Missing destination header", "SEND requires a %s header", stomp.HeaderDestination)
	}
	if !e.subscribedTo(destination) {
		return newError("Cannot send to channel not subscribed to", "Cannot send to channel not subscribed to: %s", destination)
	}

	e.trackReport(destination, frame.Body)

	messageID := e.deps.MessageIDs.Next()
	subscribers := e.deps.Registry.ChannelSubscribers(destination)
	delivered := 0
	for connID, subscriptionID := range subscribers {
		if e.deps.Registry.Send(connID, stomp.Message(messageID, destination, subscriptionID, frame.Body)) {
			delivered++
		}
	}
	e.deps.Metrics.MessagePublished(delivered)
	logger.DebugF("[%d] Message %d published to %s, delivered to %d of %d subscribers",
		e.connID, messageID, destination, delivered, len(subscribers))

	e.receipt(frame)
	return nil
}

func (e *Engine) subscribedTo(channel string) bool {
	for _, subscribed := range e.subscriptions {
		if subscribed == channel {
			return true
		}
	}
	return false
}

// trackReport records bodies that look like game-event reports. Failures are only logged.
func (e *Engine) trackReport(destination, body string) {
	if e.deps.Reports == nil || !isReport(body) {
		return
	}
	channel := strings.TrimPrefix(destination, "/")
	if err := e.deps.Reports.TrackReport(e.username, channel); err != nil {
		logger.WarnF("[%d] Failed to track report of %s on %s: %v", e.connID, e.username, channel, err)
	}
}

func isReport(body string) bool {
	return strings.Contains(body, "user:") && strings.Contains(body, "event name:")
}
