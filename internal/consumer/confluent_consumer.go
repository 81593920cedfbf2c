package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/weiawesome/wes-io-live/conversation-service/internal/metrics"
	pkglog "github.com/weiawesome/wes-io-live/conversation-service/pkg/log"
)

// ConfluentConsumer implements MessageEventConsumer using confluent-kafka-go.
type ConfluentConsumer struct {
	consumer *kafka.Consumer
	topic    string
	handler  MessageEventHandler
	doneCh   chan struct{}
}

// NewConfluentConsumer creates a new Kafka consumer for message events.
func NewConfluentConsumer(brokers, topic, groupID string, handler MessageEventHandler) (*ConfluentConsumer, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  brokers,
		"group.id":           groupID,
		"auto.offset.reset":  "latest",
		"enable.auto.commit": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	return &ConfluentConsumer{
		consumer: c,
		topic:    topic,
		handler:  handler,
		doneCh:   make(chan struct{}),
	}, nil
}

// Start subscribes to the topic and runs the consume loop until ctx is done.
func (cc *ConfluentConsumer) Start(ctx context.Context) error {
	if err := cc.consumer.Subscribe(cc.topic, nil); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", cc.topic, err)
	}

	l := pkglog.L()
	l.Info().Str("topic", cc.topic).Msg("kafka message consumer started")

	go cc.consumeLoop(ctx)

	return nil
}

func (cc *ConfluentConsumer) consumeLoop(ctx context.Context) {
	l := pkglog.L()
	defer close(cc.doneCh)

	for {
		select {
		case <-ctx.Done():
			l.Info().Msg("kafka message consumer shutting down")
			return
		default:
			msg, err := cc.consumer.ReadMessage(100 * time.Millisecond)
			if err != nil {
				var kerr kafka.Error
				if errors.As(err, &kerr) && kerr.Code() == kafka.ErrTimedOut {
					continue
				}
				l.Error().Err(err).Msg("kafka message consumer error")
				continue
			}

			process(context.WithoutCancel(ctx), cc.handler, msg.Value)
		}
	}
}

// process decodes one message value and hands it to h. Failures are logged
// and counted; the offset is committed regardless.
func process(ctx context.Context, h MessageEventHandler, value []byte) {
	l := pkglog.Ctx(ctx)

	event, err := DecodeMessageSent(value)
	if err != nil {
		if errors.Is(err, ErrSkipEvent) {
			return
		}
		metrics.MessageEventsTotal.WithLabelValues("invalid").Inc()
		l.Error().Err(err).Msg("failed to decode message event")
		return
	}

	ctx = pkglog.WithFields(ctx, pkglog.FieldRoomID, event.Rid)
	l = pkglog.Ctx(ctx)
	l.Debug().
		Str("sender", event.Sender).
		Int(pkglog.FieldCount, len(event.Recipients)).
		Int64("ts", event.Ts).
		Msg("received message event")

	if err := h.HandleMessageSent(ctx, event); err != nil {
		metrics.MessageEventsTotal.WithLabelValues("failed").Inc()
		l.Error().Err(err).Msg("failed to handle message event")
		return
	}
	metrics.MessageEventsTotal.WithLabelValues("ok").Inc()
}

// Close stops the consumer and releases resources.
// It waits for any in-flight message to complete before closing.
func (cc *ConfluentConsumer) Close() error {
	<-cc.doneCh
	if err := cc.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	return nil
}
