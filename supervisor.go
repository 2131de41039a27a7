package pushsub

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// connectLocked schedules the next call to open unless one is already pending.
func (c *ServerClient) connectLocked() {
	if c.terminated || c.reconnectTimer != nil {
		return
	}

	ttw := c.opts.backoff(c.attempts)
	c.attempts++
	c.metrics.ConnectAttempts.Inc()
	c.logger.Infof("connection attempt #%d in %s", c.attempts, ttw)

	c.reconnectTimer = c.opts.clock.AfterFunc(ttw, c.open)
}

// open replaces the transport handle with a fresh one and starts its pump.
func (c *ServerClient) open() {
	c.mu.Lock()
	c.reconnectTimer = nil
	if c.terminated {
		c.mu.Unlock()
		return
	}

	if c.conn != nil {
		c.conn.Close()
	}

	c.generation++
	generation := c.generation
	recv := make(chan Message, recvBufferSize)
	conn := c.factory(c.ctx, recv)
	c.conn = conn
	c.state = StateConnecting

	if !c.keepAliveStarted {
		c.keepAliveStarted = true
		c.keepAlive.start(c.ctx)
	}

	ctx := c.ctx
	logger := c.logger.
		WithField("conn_id", uuid.NewString()).
		WithField("generation", generation)
	c.mu.Unlock()

	go func() {
		if err := conn.Open(ctx); err != nil {
			c.logDialError(logger, err)
			conn.Close()
			c.handleClose(generation, logger, err)
			return
		}
		c.handleOpen(generation, logger)
		c.pump(ctx, generation, conn, recv, logger)
	}()
}

// pump feeds inbound frames to dispatch until the handle closes or the client stops.
// Frames of one handle are handled sequentially, which keeps per-stream order.
func (c *ServerClient) pump(ctx context.Context, generation uint64, conn Connection, recv <-chan Message, logger Logger) {
	closeC := conn.CloseChan()
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-recv:
			c.handleFrame(conn, m, logger)
		case <-closeC:
			// Frames read before the close are still owed to handlers.
			for drained := false; !drained; {
				select {
				case m := <-recv:
					c.handleFrame(conn, m, logger)
				default:
					drained = true
				}
			}
			c.handleClose(generation, logger, conn.CloseErr())
			return
		}
	}
}

// handleOpen resets the backoff, replays subscription intent and flushes the
// queue, in that order and without releasing mu in between, so no other message
// can reach the server before the replay.
func (c *ServerClient) handleOpen(generation uint64, logger Logger) {
	c.mu.Lock()
	if c.terminated || generation != c.generation {
		c.mu.Unlock()
		return
	}

	event := EventReconnect
	if !c.everOpened {
		event = EventConnect
	}
	c.everOpened = true
	c.attempts = 0
	c.state = StateOpen
	c.metrics.Opens.Inc()

	replayed := c.replayLocked()
	flushed := c.flushLocked()
	logger.Infof("connection open, replayed %d subscriptions, flushed %d messages", replayed, flushed)
	c.mu.Unlock()

	c.eventEmitter.Emit(event, event)
}

// handleClose treats clean and failed closes alike: reconnect.
func (c *ServerClient) handleClose(generation uint64, logger Logger, reason error) {
	c.mu.Lock()
	if c.terminated || generation != c.generation {
		c.mu.Unlock()
		return
	}

	c.state = StateClosed
	c.metrics.Closes.Inc()
	logger.Infof("connection closed: %v", reason)
	c.connectLocked()
	c.mu.Unlock()

	c.eventEmitter.Emit(EventClose, EventClose)
}

func (c *ServerClient) replayLocked() int {
	frames := c.registry.replay()
	for i, frame := range frames {
		if err := c.conn.Write(NewDataMessage(frame)); err != nil {
			// The close that follows schedules another open, which replays again.
			c.logger.Warnf("replay interrupted after %d of %d: %s", i, len(frames), err)
			return i
		}
		c.metrics.ReplayedIntents.Inc()
	}
	return len(frames)
}

func (c *ServerClient) flushLocked() int {
	pending := c.queue.drain()
	defer func() {
		c.metrics.QueueDepth.Set(float64(c.queue.len()))
	}()

	for i, frame := range pending {
		if err := c.conn.Write(NewDataMessage(frame)); err != nil {
			c.logger.Warnf("flush interrupted after %d of %d: %s", i, len(pending), err)
			c.queue.requeueFront(pending[i:])
			return i
		}
		c.metrics.FlushedMessages.Inc()
	}
	return len(pending)
}

func (c *ServerClient) handleFrame(conn Connection, m Message, logger Logger) {
	switch {
	case m.Type().IsPing():
		if err := conn.Write(NewPongMessage(m.Data())); err != nil {
			logger.Debugf("cannot answer ping: %s", err)
		}
	case m.Type().IsPong():
	case m.Type().IsClose():
		// The transport ends the handle right after; only the reason is worth keeping.
		if cf, ok := m.(CloseFrame); ok {
			logger.Infof("server closing connection: code %d, reason %q", cf.Code(), cf.Reason())
		}
	case m.Type().IsData():
		c.dispatch(m.Data(), logger)
	}
}

// dispatch decodes raw once and hands it to every handler registered for its
// subscription name, in registration order. A handler removed, or the client
// cleaned up, while earlier handlers run is skipped.
func (c *ServerClient) dispatch(raw []byte, logger Logger) {
	msg, err := DecodeServerMessage(raw)
	if err != nil {
		c.metrics.MalformedFrames.Inc()
		logger.Warnf("dropping frame: %s", err)
		return
	}

	c.mu.Lock()
	entries := c.registry.handlersFor(msg.Name)
	c.mu.Unlock()

	if len(entries) == 0 {
		c.metrics.FramesDiscarded.Inc()
		logger.Debugf("no handlers for %q, discarding frame", msg.Name)
		return
	}

	c.metrics.FramesDispatched.Inc()
	for _, entry := range entries {
		c.invoke(entry, msg, logger)
	}
}

func (c *ServerClient) invoke(entry handlerEntry, msg ServerMessage, logger Logger) {
	c.mu.Lock()
	live := !c.terminated && c.registry.registered(msg.Name, entry)
	c.mu.Unlock()
	if !live {
		logger.Debugf("handler %s for %s was removed, skipping", entry.id, msg.Name)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.metrics.HandlerFailures.Inc()
			logger.Errorf("handler %s for %s panicked: %v", entry.id, msg.Name, r)
		}
	}()

	if err := entry.fn(msg); err != nil {
		c.metrics.HandlerFailures.Inc()
		logger.Warnf("handler %s for %s failed: %s", entry.id, msg.Name, err)
	}
}

func (c *ServerClient) logDialError(logger Logger, err error) {
	var unrecoverable *ErrUnrecoverableConnection
	switch {
	case errors.As(err, &unrecoverable):
		logger.Errorf("server refused connection, retrying anyway: %s", err)
	case errors.Is(err, ErrRateLimit):
		logger.Warnf("rate limited: %s", err)
	case errors.Is(err, ErrTerminated):
		logger.Debugf("dial aborted: %s", err)
	default:
		logger.Infof("cannot connect: %s", err)
	}
}
