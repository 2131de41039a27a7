package pushsub

import (
	"context"
)

type (
	// Client is the surface the rest of an application uses to talk to the push
	// server. ServerClient is the implementation; the interface exists so
	// consumers can be tested without a socket.
	Client interface {
		// Open starts connecting in the background. Cancelling ctx is the same as Cleanup.
		Open(ctx context.Context) error
		// AddServerSubscription records the intent to receive sub and registers h under id.
		AddServerSubscription(sub Subscription, id HandlerID, h Handler)
		// RemoveServerSubscription unregisters id's handler for sub.
		RemoveServerSubscription(sub Subscription, id HandlerID)
		// SendMessage transmits m now, queues it until the transport opens, or
		// drops it when noQueue is set.
		SendMessage(m OutboundMessage, noQueue bool)
		// Cleanup shuts the client down for good.
		Cleanup()
	}

	// Handler receives the frames pushed for one subscription name. Returned
	// errors and panics are logged and do not affect other handlers.
	Handler func(msg ServerMessage) error

	EventHandler func(EventType)
)

var _ Client = (*ServerClient)(nil)
