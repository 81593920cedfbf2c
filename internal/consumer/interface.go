package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// EventMessageSent is the only event type the consumer acts on.
const EventMessageSent = "message.sent"

// ErrSkipEvent is returned by DecodeMessageSent for events of another type.
var ErrSkipEvent = errors.New("not a message.sent event")

// MessageSentEvent is published by the chat pipeline once a message is stored.
// Ts is epoch milliseconds.
type MessageSentEvent struct {
	Type       string   `json:"type,omitempty"`
	Rid        string   `json:"rid"`
	Sender     string   `json:"sender"`
	Recipients []string `json:"recipients"`
	Text       string   `json:"text"`
	Ts         int64    `json:"ts"`
}

// DecodeMessageSent parses a Kafka message value. Events without a type are
// treated as message.sent.
func DecodeMessageSent(data []byte) (*MessageSentEvent, error) {
	var event MessageSentEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message event: %w", err)
	}
	if event.Type != "" && event.Type != EventMessageSent {
		return nil, ErrSkipEvent
	}
	return &event, nil
}

// MessageEventHandler processes a decoded message.sent event.
type MessageEventHandler interface {
	HandleMessageSent(ctx context.Context, event *MessageSentEvent) error
}

// MessageEventConsumer manages the Kafka consumer lifecycle.
type MessageEventConsumer interface {
	Start(ctx context.Context) error
	Close() error
}
