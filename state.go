package pushsub

// ConnectionState is the supervisor's view of the current transport handle.
type ConnectionState int32

const (
	// StateDisconnected means no connection attempt has been made yet.
	StateDisconnected ConnectionState = iota
	// StateConnecting means a transport handle exists and is dialing.
	StateConnecting
	// StateOpen means the transport is ready and sends go straight to the wire.
	StateOpen
	// StateClosed means the last handle closed and a reconnection is scheduled.
	StateClosed
	// StateTerminated means Cleanup was called. It is final.
	StateTerminated
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// EventType identifies a lifecycle event emitted by ServerClient.
type EventType uint8

const (
	// EventConnect fires the first time the transport opens.
	EventConnect EventType = iota + 1
	// EventReconnect fires on every later successful open.
	EventReconnect
	// EventClose fires when the current transport closes or fails to dial.
	EventClose
	// EventTerminate fires once, from Cleanup.
	EventTerminate
)

func (e EventType) String() string {
	switch e {
	case EventConnect:
		return "connect"
	case EventReconnect:
		return "reconnect"
	case EventClose:
		return "close"
	case EventTerminate:
		return "terminate"
	default:
		return "unknown"
	}
}
