package entity

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Inbound websocket control messages are tagged variants discriminated by
// "type". Unknown types are rejected explicitly, never ignored.
const (
	MessageTypeSubscribe    = "subscribe"
	MessageTypeUnsubscribe  = "unsubscribe"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeTick         = "tick"
	MessageTypeSubscription = "subscription"
	MessageTypeConnection   = "connection"
	MessageTypeError        = "error"
)

type ControlMessage struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol,omitempty"`
}

func ParseControlMessage(raw []byte) (ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ControlMessage{}, fmt.Errorf("invalid control message: %w", err)
	}

	switch msg.Type {
	case MessageTypeSubscribe, MessageTypeUnsubscribe:
		if msg.Symbol == "" {
			return ControlMessage{}, fmt.Errorf("%s message requires a symbol", msg.Type)
		}
		return msg, nil
	case MessageTypePing:
		return msg, nil
	case "":
		return ControlMessage{}, fmt.Errorf("control message missing type")
	default:
		return ControlMessage{}, fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

type TickEvent struct {
	Type string `json:"type"`
	Data Quote  `json:"data"`
}

func NewTickEvent(q Quote) TickEvent {
	return TickEvent{Type: MessageTypeTick, Data: q}
}

type SubscriptionEvent struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
	Status string `json:"status"`
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
