package pushsub

import (
	"context"
)

type (
	CloseChan chan struct{}

	// Connection is a single transport handle. It is opened once, delivers every
	// inbound frame to the receive channel it was created with, and closes its
	// CloseChan when it dies for any reason.
	Connection interface {
		// Open dials the server. It returns once the transport is ready or failed.
		Open(ctx context.Context) error
		// Write hands m to the transport. It fails once the handle is closed.
		Write(m Message) error
		// Close releases the handle. It is idempotent.
		Close()
		// CloseErr explains why the handle closed, nil while it is alive.
		CloseErr() error
		CloseChan() CloseChan
	}

	// ConnectionFactory creates a fresh, unopened handle for every attempt.
	ConnectionFactory func(ctx context.Context, recvChan chan<- Message) Connection
)
