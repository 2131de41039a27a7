package pushsub

import (
	"context"
	"sync"

	"github.com/fasthttp/websocket"
)

// ServerClient keeps one websocket to the push server alive, replays subscription
// intent after every reconnect and queues intent-bearing messages while the
// transport is down.
//
// Every field below mu is guarded by it. Handlers and event listeners are always
// called with mu released.
type ServerClient struct {
	logger  Logger
	factory ConnectionFactory
	opts    options
	metrics *Metrics

	keepAlive    *keepAlive
	eventEmitter *EventEmitterCallback[EventType, EventType]

	mu sync.Mutex
	// ctx bounds every connection; set by Open.
	ctx        context.Context
	cancel     context.CancelFunc
	stopParent func() bool

	conn       Connection
	generation uint64
	state      ConnectionState
	everOpened bool
	terminated bool

	attempts         int
	reconnectTimer   Timer
	keepAliveStarted bool

	registry *registry
	queue    outboundQueue
}

// NewClient builds a client that obtains a fresh transport handle from factory
// for every connection attempt.
func NewClient(logger Logger, factory ConnectionFactory, opts ...Option) *ServerClient {
	o := newOptions(opts)
	c := &ServerClient{
		logger:       logger.WithField("component", "server_client"),
		factory:      factory,
		opts:         o,
		metrics:      o.metrics,
		eventEmitter: NewEventEmitter[EventType, EventType](),
		registry:     newRegistry(o.intentPolicy),
	}
	c.keepAlive = newKeepAlive(logger, o.clock, o.keepAliveInterval, c.SendMessage, o.keepAliveMessage)
	return c
}

// NewWebsocketClient builds a client over fasthttp/websocket. params is consulted
// before every dial.
func NewWebsocketClient(
	logger Logger,
	dialer *websocket.Dialer,
	params OpenConnectionParamsRepo,
	opts ...Option,
) *ServerClient {
	return NewClient(logger, NewWebsocketFactory(logger, dialer, params, ErrorAdapters{}), opts...)
}

// Open schedules the first connection attempt. It is idempotent while the client
// is alive and returns ErrTerminated after Cleanup.
func (c *ServerClient) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.terminated {
		return ErrTerminated
	}
	if c.ctx != nil {
		return nil
	}

	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.stopParent = context.AfterFunc(ctx, c.Cleanup)
	c.connectLocked()
	return nil
}

// AddServerSubscription records the subscribe message for sub's name, registers h
// under id and sends the message. While disconnected the message is queued; it is
// also replayed by every later open.
func (c *ServerClient) AddServerSubscription(sub Subscription, id HandlerID, h Handler) {
	name := sub.Name()
	frame, err := EncodeOutbound(Subscribe{Name: name})
	if err != nil {
		c.logger.Errorf("cannot encode subscribe for %s: %s", name, err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.terminated {
		return
	}
	c.registry.subscribe(name, frame, id, h)
	c.logger.Debugf("handler %s subscribed to %s", id, name)
	c.sendLocked(frame, false)
}

// RemoveServerSubscription unregisters id's handler for sub. Under IntentPerCall
// it always drops the name from the replayed intent and tells the server, even if
// other handlers for the name remain. The unsubscribe message is fire-and-forget:
// if it is lost during an outage it is never retried.
func (c *ServerClient) RemoveServerSubscription(sub Subscription, id HandlerID) {
	name := sub.Name()
	frame, err := EncodeOutbound(Unsubscribe{Name: name})
	if err != nil {
		c.logger.Errorf("cannot encode unsubscribe for %s: %s", name, err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.terminated {
		return
	}
	if !c.registry.unsubscribe(name, id) {
		c.logger.Debugf("handler %s left %s, other handlers keep it subscribed", id, name)
		return
	}
	c.logger.Debugf("handler %s unsubscribed from %s", id, name)
	c.sendLocked(frame, false)
}

// SendMessage is the single send path. With the transport open m is written
// immediately; otherwise it is queued, or dropped when noQueue is set.
// After Cleanup it does nothing.
func (c *ServerClient) SendMessage(m OutboundMessage, noQueue bool) {
	frame, err := EncodeOutbound(m)
	if err != nil {
		c.logger.Errorf("cannot encode %T: %s", m, err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.terminated {
		return
	}
	c.sendLocked(frame, noQueue)
}

// Cleanup stops both timers, closes the transport and forgets all queued
// messages, subscriptions and handlers. It is final and idempotent.
func (c *ServerClient) Cleanup() {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return
	}
	c.terminated = true
	c.state = StateTerminated

	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.queue.clear()
	c.metrics.QueueDepth.Set(0)
	c.registry.reset()
	if c.stopParent != nil {
		c.stopParent()
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	c.keepAlive.stop()
	c.logger.Infof("client terminated")

	c.eventEmitter.Emit(EventTerminate, EventTerminate)
	c.eventEmitter.Close()
}

// On registers a listener for a lifecycle event.
func (c *ServerClient) On(event EventType, handler EventHandler) {
	c.eventEmitter.On(event, callback[EventType](handler))
}

// State returns where the supervisor is in its connect/reconnect cycle.
func (c *ServerClient) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DesiredSubscriptions returns the names that will be replayed on the next open,
// in the order they were first subscribed.
func (c *ServerClient) DesiredSubscriptions() []SubscriptionName {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.names()
}

// QueueLen is the number of messages waiting for an open transport.
func (c *ServerClient) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.len()
}

// sendLocked writes frame to the open transport or falls back to the queue.
func (c *ServerClient) sendLocked(frame []byte, noQueue bool) {
	if c.state == StateOpen && c.conn != nil {
		err := c.conn.Write(NewDataMessage(frame))
		if err == nil {
			return
		}
		c.logger.Warnf("write on open transport failed: %s", err)
	}

	if noQueue {
		c.metrics.DroppedMessages.Inc()
		c.logger.Debugf("transport not ready, dropping %s", frame)
		return
	}
	c.queue.enqueue(frame)
	c.metrics.QueueDepth.Set(float64(c.queue.len()))
}
