package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kopichain/order-view-svc/internal/dal/interfaces/iinboxrepo"
	"github.com/kopichain/order-view-svc/internal/dal/rabbitmq"
	"github.com/kopichain/order-view-svc/internal/service/models/inbox"
	"github.com/spf13/viper"
	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

// purchaseEventDTO is the relayed Purchased event as published by the chain
// relay. Validation happens here, before the message reaches the inbox.
type purchaseEventDTO struct {
	ListingID   int64  `json:"listingId"   validate:"min=0"`
	EscrowID    int64  `json:"escrowId"    validate:"min=0"`
	TokenID     int64  `json:"tokenId"     validate:"min=0"`
	Buyer       string `json:"buyer"       validate:"required,eth_addr"`
	Quantity    int64  `json:"quantity"    validate:"required,gt=0"`
	BlockNumber uint64 `json:"blockNumber"`
	TxHash      string `json:"txHash"      validate:"required"`
}

// Consumer represents the RabbitMQ consumer transport. It validates relayed
// purchase events and parks them in the inbox table; the inbox worker does
// the actual projection.
type Consumer struct {
	client    *rabbitmq.Client
	inboxRepo iinboxrepo.IInboxRepository
	validate  *validator.Validate
	queue     amqp.Queue
	stop      chan struct{}
	done      chan struct{}
}

// NewConsumer creates a new Consumer.
func NewConsumer(client *rabbitmq.Client, inboxRepo iinboxrepo.IInboxRepository) *Consumer {
	queueName := viper.GetString("rabbitmq.queue")
	if queueName == "" {
		panic("rabbitmq.queue is not set in config")
	}

	queue, err := client.DeclareDurableQueue(queueName)
	if err != nil {
		panic(fmt.Sprintf("failed to declare relay queue %s: %v", queueName, err))
	}

	return &Consumer{
		client:    client,
		inboxRepo: inboxRepo,
		validate:  validator.New(),
		queue:     queue,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Run starts consuming messages from RabbitMQ.
func (c *Consumer) Run(ctx context.Context) error {
	consumerTag := viper.GetString("rabbitmq.consumer_tag")
	if consumerTag == "" {
		consumerTag = "order-view-svc"
	}

	msgs, err := c.client.Consume(rabbitmq.ConsumeConfig{
		Queue:     c.queue.Name,
		Consumer:  consumerTag,
		AutoAck:   false,
		Exclusive: viper.GetBool("rabbitmq.exclusive"),
		NoLocal:   viper.GetBool("rabbitmq.no_local"),
		NoWait:    viper.GetBool("rabbitmq.no_wait"),
	})
	if err != nil {
		return err
	}

	slog.Info("Consumer started", "queue", c.queue.Name, "consumer_tag", consumerTag)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(50)

	go func() {
		for {
			select {
			case <-c.stop:
				slog.Info("Stopping consumer")
				close(c.done)

				return
			case msg, ok := <-msgs:
				if !ok {
					slog.Info("Message channel closed")
					close(c.done)

					return
				}

				g.Go(func() error {
					return c.processMessage(gctx, msg)
				})
			}
		}
	}()

	<-c.done
	if err := g.Wait(); err != nil {
		slog.Error("Error processing messages", "error", err)
	}

	return nil
}

// processMessage validates a single relayed event and parks it in the inbox.
func (c *Consumer) processMessage(ctx context.Context, msg amqp.Delivery) error {
	ctx, span := otel.Tracer("order-view-svc").Start(ctx, "Consumer.processMessage")
	defer span.End()

	slog.Info("Received message", "delivery_tag", msg.DeliveryTag)

	var ev purchaseEventDTO
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		slog.Error("Failed to unmarshal purchase event", "error", err)
		// Reject the message without requeuing
		if err := msg.Nack(false, false); err != nil {
			slog.Error("Failed to nack message", "error", err)
		}

		return err
	}

	if err := c.validate.Struct(ev); err != nil {
		slog.Error("Rejecting invalid purchase event", "error", err, "tx", ev.TxHash)
		if err := msg.Nack(false, false); err != nil {
			slog.Error("Failed to nack message", "error", err)
		}

		return err
	}

	maxRetries := viper.GetInt("rabbitmq.max_retries")
	if maxRetries == 0 {
		maxRetries = 5
	}

	messageID := msg.MessageId
	if messageID == "" {
		// The relay publishes one message per log, so tx hash plus escrow
		// id identifies it.
		messageID = fmt.Sprintf("%s:%d", ev.TxHash, ev.EscrowID)
	}

	now := time.Now()
	err := c.inboxRepo.Insert(ctx, inbox.Message{
		MessageID:   messageID,
		QueueName:   c.queue.Name,
		Payload:     msg.Body,
		ContentType: msg.ContentType,
		MaxRetries:  maxRetries,
		CreatedAt:   now,
		UpdatedAt:   now,
		NextRetryAt: now,
		DeliveryTag: msg.DeliveryTag,
	})
	if err != nil {
		slog.Error("Failed to park event in inbox", "error", err, "tx", ev.TxHash)
		// Requeue the message for retry
		if err := msg.Nack(false, true); err != nil {
			slog.Error("Failed to nack message", "error", err)
		}

		return err
	}

	if err := msg.Ack(false); err != nil {
		slog.Error("Failed to ack message", "error", err)

		return err
	}

	slog.Info("Purchase event parked in inbox", "tx", ev.TxHash, "escrow_id", ev.EscrowID)

	return nil
}

// Shutdown gracefully shuts down the consumer.
func (c *Consumer) Shutdown() error {
	slog.Info("Shutting down consumer")
	close(c.stop)

	// Wait for processing to finish with timeout
	select {
	case <-c.done:
		slog.Info("Consumer stopped successfully")
	case <-time.After(10 * time.Second):
		slog.Warn("Consumer shutdown timeout")
	}

	return nil
}
