package worker

import (
	"context"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/skillstore/jobengine/shared/rabbitmq"
)

// NudgeConsumer listens for job-ready messages published by the API at
// enqueue time and wakes the worker's poll loop early. It is a latency
// optimization only: the database stays the single coordination
// substrate, and without RabbitMQ the worker simply polls.
type NudgeConsumer struct {
	logger *slog.Logger
	client *rabbitmq.Client
	worker *Worker
}

// NewNudgeConsumer creates a NudgeConsumer. client may come from an
// optional config section; callers skip construction entirely when
// RabbitMQ is not configured.
func NewNudgeConsumer(client *rabbitmq.Client, w *Worker, logger *slog.Logger) *NudgeConsumer {
	return &NudgeConsumer{
		logger: logger,
		client: client,
		worker: w,
	}
}

// Start consumes nudge messages until the context is canceled. Message
// content is irrelevant beyond logging: every delivery means "something
// was enqueued, poll now".
func (c *NudgeConsumer) Start(ctx context.Context, consumerTag string) error {
	deliveries, err := c.client.Consume(consumerTag)
	if err != nil {
		return err
	}

	go c.run(ctx, deliveries)
	return nil
}

func (c *NudgeConsumer) run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	c.logger.Info("Job-ready nudge consumer started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Nudge consumer stopped - context canceled")
			return

		case msg, ok := <-deliveries:
			if !ok {
				c.logger.Warn("Nudge consumer stopped - delivery channel closed")
				return
			}

			c.worker.Wake()

			if err := msg.Ack(false); err != nil {
				c.logger.Error("Failed to ACK nudge message",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
