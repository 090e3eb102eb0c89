package recorder

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

// Compile-time check that the AMQP publisher satisfies the Publisher
// contract used by the Recorder.
var _ Publisher = (*AMQPPublisher)(nil)

// AMQPPublisher publishes click events to the RabbitMQ queue consumed by
// the analytics worker (hermes-clicks).
type AMQPPublisher struct {
	ch    *amqp091.Channel
	queue string
}

// NewAMQPPublisher declares the durable click queue and returns a publisher
// bound to it. Declaring on both ends makes producer and consumer startup
// order irrelevant.
func NewAMQPPublisher(ch *amqp091.Channel, queue string) (*AMQPPublisher, error) {
	if ch == nil {
		panic("recorder: amqp channel cannot be nil")
	}
	if queue == "" {
		return nil, fmt.Errorf("amqp queue name cannot be empty")
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	); err != nil {
		return nil, fmt.Errorf("failed to declare queue %q: %w", queue, err)
	}

	return &AMQPPublisher{ch: ch, queue: queue}, nil
}

// PublishClick sends one click event as a persistent JSON message.
func (p *AMQPPublisher) PublishClick(ctx context.Context, ev QueuedClick) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal click event: %w", err)
	}

	err = p.ch.PublishWithContext(ctx,
		"", p.queue, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish click event: %w", err)
	}

	return nil
}
