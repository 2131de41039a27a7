package pushsub

import (
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// MessageKind tags the variants of OutboundMessage.
type MessageKind string

const (
	KindSubscribe   MessageKind = "subscribe"
	KindUnsubscribe MessageKind = "unsubscribe"
	KindPing        MessageKind = "ping"
	KindPush        MessageKind = "push"
)

type (
	// OutboundMessage is a client to server message. The set of implementations
	// is closed: Subscribe, Unsubscribe, Ping and Push.
	OutboundMessage interface {
		Kind() MessageKind
		outbound()
	}

	// Subscribe asks the server to start pushing a stream.
	Subscribe struct {
		Name SubscriptionName
	}

	// Unsubscribe asks the server to stop pushing a stream.
	Unsubscribe struct {
		Name SubscriptionName
	}

	// Ping is the application-level heartbeat.
	Ping struct{}

	// Push is any other application message. Data is encoded as the "data" field
	// and omitted when nil.
	Push struct {
		MessageType string
		Data        any
	}
)

func (Subscribe) Kind() MessageKind   { return KindSubscribe }
func (Unsubscribe) Kind() MessageKind { return KindUnsubscribe }
func (Ping) Kind() MessageKind        { return KindPing }
func (Push) Kind() MessageKind        { return KindPush }

func (Subscribe) outbound()   {}
func (Unsubscribe) outbound() {}
func (Ping) outbound()        {}
func (Push) outbound()        {}

type (
	wireMessage struct {
		MessageType string `json:"messageType"`
		Data        any    `json:"data,omitempty"`
	}

	wireSubscriptionData struct {
		SubscriptionName SubscriptionName `json:"subscriptionName"`
	}
)

// EncodeOutbound serializes m into a single text frame.
func EncodeOutbound(m OutboundMessage) ([]byte, error) {
	switch v := m.(type) {
	case Subscribe:
		return json.Marshal(wireMessage{
			MessageType: string(KindSubscribe),
			Data:        wireSubscriptionData{SubscriptionName: v.Name},
		})
	case Unsubscribe:
		return json.Marshal(wireMessage{
			MessageType: string(KindUnsubscribe),
			Data:        wireSubscriptionData{SubscriptionName: v.Name},
		})
	case Ping:
		return json.Marshal(wireMessage{MessageType: string(KindPing)})
	case Push:
		if v.MessageType == "" {
			return nil, errors.Wrap(ErrMalformedMessage, "push without messageType")
		}
		bts, err := json.Marshal(wireMessage{MessageType: v.MessageType, Data: v.Data})
		if err != nil {
			return nil, errors.Wrap(ErrMalformedMessage, err.Error())
		}
		return bts, nil
	default:
		return nil, errors.Wrapf(ErrUnknownMessage, "%T", m)
	}
}

// ServerMessage is one pushed frame as handed to subscription handlers.
type ServerMessage struct {
	// Name is the value of meta.subscriptionName.
	Name SubscriptionName
	// Data is the "data" member, or nil when the frame has none.
	Data json.RawMessage
	// Raw is the frame exactly as received.
	Raw json.RawMessage
}

// Decode unmarshals the whole frame into v.
func (m ServerMessage) Decode(v any) error {
	return json.Unmarshal(m.Raw, v)
}

// DecodeData unmarshals the "data" member into v.
func (m ServerMessage) DecodeData(v any) error {
	if len(m.Data) == 0 {
		return errors.Wrap(ErrMalformedMessage, "frame has no data")
	}
	return json.Unmarshal(m.Data, v)
}

// DecodeServerMessage parses a raw frame once and extracts the routing name.
// A frame without meta.subscriptionName decodes to an empty Name.
func DecodeServerMessage(raw []byte) (ServerMessage, error) {
	if !gjson.ValidBytes(raw) {
		return ServerMessage{}, errors.Wrap(ErrMalformedMessage, "invalid json")
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return ServerMessage{}, errors.Wrap(ErrMalformedMessage, "frame is not an object")
	}

	msg := ServerMessage{
		Name: SubscriptionName(doc.Get("meta.subscriptionName").String()),
		Raw:  json.RawMessage(raw),
	}
	if data := doc.Get("data"); data.Exists() {
		msg.Data = json.RawMessage(data.Raw)
	}
	return msg, nil
}
