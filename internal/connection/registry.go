// Package connection implements the broker's shared subscription registry and the transports
// frames are delivered through.
package connection

import (
	"sync"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/stomp"
)

// Subscribers maps a connection id to the subscription id it uses for one channel.
type Subscribers map[int64]string

// Observer receives registry size changes. Implementations must be cheap and non-blocking.
type Observer interface {
	ConnectionsChanged(delta int)
	SubscriptionsChanged(delta int)
}

type client struct {
	transport Transport
	// subscription id -> channel
	subscriptions map[string]string
}

// Registry is the single source of truth for channel membership.
//
// It keeps two indices, channel -> connection -> subscription id and
// connection -> subscription id -> channel, and every mutation updates both under one lock.
// A connection holds at most one subscription per channel.
type Registry struct {
	mu       sync.RWMutex
	clients  map[int64]*client
	channels map[string]Subscribers
	observer Observer
}

// NewRegistry creates an empty registry. observer may be nil.
func NewRegistry(observer Observer) *Registry {
	return &Registry{
		clients:  make(map[int64]*client),
		channels: make(map[string]Subscribers),
		observer: observer,
	}
}

// Connect registers a live connection with no subscriptions. Re-registering an id replaces
// its transport and keeps its subscriptions.
func (r *Registry) Connect(connID int64, transport Transport) {
	r.mu.Lock()
	c, ok := r.clients[connID]
	if ok {
		c.transport = transport
	} else {
		r.clients[connID] = &client{transport: transport, subscriptions: make(map[string]string)}
	}
	r.mu.Unlock()

	if !ok {
		r.connectionsChanged(1)
	}
	logger.DebugF("[%d] Registered connection", connID)
}

// Subscribe binds subscriptionID of connID to channel.
//
// An id already bound to another channel is moved, and a previous subscription of connID to the
// same channel under another id is replaced, so both indices stay consistent. Unknown
// connections are ignored and false is returned.
func (r *Registry) Subscribe(connID int64, channel, subscriptionID string) bool {
	r.mu.Lock()
	c, ok := r.clients[connID]
	if !ok {
		r.mu.Unlock()
		return false
	}

	delta := 1
	if old, found := c.subscriptions[subscriptionID]; found {
		r.removeLocked(connID, c, subscriptionID, old)
		delta--
	}
	if subscribers, found := r.channels[channel]; found {
		if oldID, found := subscribers[connID]; found {
			r.removeLocked(connID, c, oldID, channel)
			delta--
		}
	}

	subscribers, found := r.channels[channel]
	if !found {
		subscribers = make(Subscribers)
		r.channels[channel] = subscribers
	}
	subscribers[connID] = subscriptionID
	c.subscriptions[subscriptionID] = channel
	r.mu.Unlock()

	r.subscriptionsChanged(delta)
	return true
}

// Unsubscribe removes subscriptionID of connID from both indices and returns the channel it was
// bound to. Unknown ids are a no-op.
func (r *Registry) Unsubscribe(connID int64, subscriptionID string) (string, bool) {
	r.mu.Lock()
	c, ok := r.clients[connID]
	if !ok {
		r.mu.Unlock()
		return "", false
	}
	channel, ok := c.subscriptions[subscriptionID]
	if ok {
		r.removeLocked(connID, c, subscriptionID, channel)
	}
	r.mu.Unlock()

	if ok {
		r.subscriptionsChanged(-1)
	}
	return channel, ok
}

func (r *Registry) removeLocked(connID int64, c *client, subscriptionID, channel string) {
	delete(c.subscriptions, subscriptionID)
	if subscribers, ok := r.channels[channel]; ok {
		delete(subscribers, connID)
		if len(subscribers) == 0 {
			delete(r.channels, channel)
		}
	}
}

// ChannelSubscribers returns a snapshot of the subscribers of channel.
func (r *Registry) ChannelSubscribers(channel string) Subscribers {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subscribers := r.channels[channel]
	snapshot := make(Subscribers, len(subscribers))
	for connID, subscriptionID := range subscribers {
		snapshot[connID] = subscriptionID
	}
	return snapshot
}

// IsSubscribed reports whether connID currently subscribes to channel.
func (r *Registry) IsSubscribed(connID int64, channel string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.channels[channel][connID]
	return ok
}

// Subscriptions returns a snapshot of connID's subscription id -> channel bindings.
func (r *Registry) Subscriptions(connID int64) map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[connID]
	if !ok {
		return nil
	}
	snapshot := make(map[string]string, len(c.subscriptions))
	for id, channel := range c.subscriptions {
		snapshot[id] = channel
	}
	return snapshot
}

// Channels returns the number of channels with at least one subscriber.
func (r *Registry) Channels() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// Connections returns the ids of all live connections.
func (r *Registry) Connections() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int64, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}

// Send delivers frame to connID. It returns false when the connection is already gone.
// Write failures are logged; the connection's own handler observes them on its next read.
func (r *Registry) Send(connID int64, frame stomp.Frame) bool {
	r.mu.RLock()
	c, ok := r.clients[connID]
	var transport Transport
	if ok {
		transport = c.transport
	}
	r.mu.RUnlock()

	if !ok {
		logger.DebugF("[%d] Dropping %s frame for closed connection", connID, frame.Command)
		return false
	}
	if err := transport.Send(frame); err != nil {
		logger.WarnF("[%d] Fail to deliver %s frame, details: %v", connID, frame.Command, err)
	}
	return true
}

// Disconnect removes every subscription of connID, forgets the connection and closes its
// transport. Calling it again for the same id does nothing.
func (r *Registry) Disconnect(connID int64) {
	r.mu.Lock()
	c, ok := r.clients[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	removed := len(c.subscriptions)
	for subscriptionID, channel := range c.subscriptions {
		r.removeLocked(connID, c, subscriptionID, channel)
	}
	delete(r.clients, connID)
	r.mu.Unlock()

	r.subscriptionsChanged(-removed)
	r.connectionsChanged(-1)

	if err := c.transport.Close(); err != nil && !IsNetClosedError(err) {
		logger.WarnF("[%d] Error occured while closing connection, details: %v", connID, err)
	}
	logger.DebugF("[%d] Connection removed from registry", connID)
}

func (r *Registry) connectionsChanged(delta int) {
	if r.observer != nil && delta != 0 {
		r.observer.ConnectionsChanged(delta)
	}
}

func (r *Registry) subscriptionsChanged(delta int) {
	if r.observer != nil && delta != 0 {
		r.observer.SubscriptionsChanged(delta)
	}
}
