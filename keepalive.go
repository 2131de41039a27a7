package pushsub

import (
	"context"
	"sync"
	"time"
)

type KeepAliveMessageFactory func() OutboundMessage

// keepAlive periodically hands a heartbeat to send with noQueue set, so a tick
// while disconnected is simply dropped.
type keepAlive struct {
	clock                   Clock
	interval                time.Duration
	keepAliveMessageFactory KeepAliveMessageFactory
	send                    func(m OutboundMessage, noQueue bool)
	logger                  Logger

	startOnce sync.Once
	stopOnce  sync.Once
	closeC    chan struct{}
}

// start creates the ticker and spawns the routine. Only the first call has an
// effect, and a non-positive interval disables the heartbeat.
func (k *keepAlive) start(ctx context.Context) {
	k.startOnce.Do(func() {
		if k.interval <= 0 {
			k.logger.Infof("keepalive disabled")
			return
		}
		ticker := k.clock.NewTicker(k.interval)
		go k.run(ctx, ticker)
	})
}

// stop ends the routine. It only executes once, subsequent calls have no effect.
func (k *keepAlive) stop() {
	k.stopOnce.Do(func() {
		close(k.closeC)
	})
}

func (k *keepAlive) run(ctx context.Context, ticker Ticker) {
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-k.closeC:
			return
		case <-ticker.C():
			k.send(k.keepAliveMessageFactory(), true)
		}
	}
}

func newKeepAlive(
	logger Logger,
	clock Clock,
	interval time.Duration,
	send func(m OutboundMessage, noQueue bool),
	keepAliveMessageFactory KeepAliveMessageFactory,
) *keepAlive {
	return &keepAlive{
		logger:                  logger.WithField("component", "keepalive"),
		clock:                   clock,
		interval:                interval,
		send:                    send,
		keepAliveMessageFactory: keepAliveMessageFactory,
		closeC:                  make(chan struct{}),
	}
}

// NewKeepAliveMessageFactory returns a factory that always produces m.
func NewKeepAliveMessageFactory(m OutboundMessage) KeepAliveMessageFactory {
	return func() OutboundMessage {
		return m
	}
}
