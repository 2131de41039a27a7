package pushsub

import "fmt"

// MessageType is the websocket opcode of a frame, as defined by RFC 6455.
type MessageType byte

const (
	DataMessage   MessageType = 1
	BinaryMessage MessageType = 2
	CloseMessage  MessageType = 8
	PingMessage   MessageType = 9
	PongMessage   MessageType = 10
)

// IsData reports whether the frame carries application payload, text or binary.
func (t MessageType) IsData() bool {
	return t == DataMessage || t == BinaryMessage
}

func (t MessageType) IsPing() bool { return t == PingMessage }

func (t MessageType) IsPong() bool { return t == PongMessage }

func (t MessageType) IsClose() bool { return t == CloseMessage }

func (t MessageType) String() string {
	switch t {
	case DataMessage:
		return "text"
	case BinaryMessage:
		return "binary"
	case CloseMessage:
		return "close"
	case PingMessage:
		return "ping"
	case PongMessage:
		return "pong"
	default:
		return fmt.Sprintf("opcode(%d)", byte(t))
	}
}

// Message is a single frame moving between the supervisor and a Connection.
type Message interface {
	Type() MessageType
	Data() []byte
	String() string
}

// CloseFrame is the close handshake sent by the peer.
type CloseFrame interface {
	Message
	// Code is the RFC 6455 status code, e.g. 1001 when the server is going away.
	Code() int
	Reason() string
}

type frame struct {
	kind MessageType
	data []byte
}

func (f frame) Type() MessageType { return f.kind }

func (f frame) Data() []byte { return f.data }

func (f frame) String() string {
	return fmt.Sprintf("%s frame (%d bytes)", f.kind, len(f.data))
}

type closeFrame struct {
	frame
	code int
}

func (f closeFrame) Code() int { return f.code }

func (f closeFrame) Reason() string { return string(f.data) }

func (f closeFrame) String() string {
	return fmt.Sprintf("close frame %d %q", f.code, f.data)
}

func NewMessage(mt MessageType, data []byte) Message {
	return frame{kind: mt, data: data}
}

func NewDataMessage(data []byte) Message { return NewMessage(DataMessage, data) }

func NewBinaryMessage(data []byte) Message { return NewMessage(BinaryMessage, data) }

func NewPingMessage(data []byte) Message { return NewMessage(PingMessage, data) }

func NewPongMessage(data []byte) Message { return NewMessage(PongMessage, data) }

// NewCloseMessage builds the frame a Connection delivers when the peer starts
// the close handshake.
func NewCloseMessage(code int, reason []byte) CloseFrame {
	return closeFrame{frame: frame{kind: CloseMessage, data: reason}, code: code}
}
