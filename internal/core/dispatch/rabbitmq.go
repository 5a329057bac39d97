package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Processor runs one ingestion job. Implemented by the ingest pipeline.
type Processor interface {
	Process(ctx context.Context, documentID, userID string) error
}

// RabbitPublisher enqueues ingestion jobs on a durable queue.
type RabbitPublisher struct {
	conn      *amqp.Connection
	queueName string
}

var _ Dispatcher = (*RabbitPublisher)(nil)

func NewRabbitPublisher(conn *amqp.Connection, queueName string) *RabbitPublisher {
	return &RabbitPublisher{conn: conn, queueName: queueName}
}

func (p *RabbitPublisher) Enqueue(ctx context.Context, job Job) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(p.queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue failed: %w", err)
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job payload failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish job failed: %w", err)
	}
	return nil
}

// RabbitConsumer pulls ingestion jobs off the queue and hands them to the
// pipeline. Acks only after Process returns; a processing error nacks
// without requeue since the pipeline already recorded the failure on the
// ledger and a manual retry re-enqueues explicitly.
type RabbitConsumer struct {
	conn      *amqp.Connection
	processor Processor
	queueName string
	workers   int
	log       *zap.SugaredLogger
}

func NewRabbitConsumer(conn *amqp.Connection, processor Processor, queueName string, workers int, log *zap.SugaredLogger) *RabbitConsumer {
	if workers <= 0 {
		workers = 1
	}
	return &RabbitConsumer{
		conn:      conn,
		processor: processor,
		queueName: queueName,
		workers:   workers,
		log:       log,
	}
}

// Start consumes until ctx is cancelled. Blocks; run it in a goroutine.
func (c *RabbitConsumer) Start(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel failed: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(c.queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare consumer queue failed: %w", err)
	}

	if err := ch.Qos(c.workers, 0, false); err != nil {
		return fmt.Errorf("set qos failed: %w", err)
	}

	deliveries, err := ch.Consume(c.queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume queue failed: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < c.workers; w++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case d, ok := <-deliveries:
					if !ok {
						return nil
					}
					c.handle(gctx, d)
				}
			}
		})
	}
	return g.Wait()
}

func (c *RabbitConsumer) handle(ctx context.Context, d amqp.Delivery) {
	var job Job
	if err := json.Unmarshal(d.Body, &job); err != nil {
		c.log.Errorw("decode job payload failed", "error", err)
		_ = d.Nack(false, false)
		return
	}
	if job.DocumentID == "" || job.UserID == "" {
		c.log.Errorw("job payload missing ids", "body", string(d.Body))
		_ = d.Nack(false, false)
		return
	}

	if err := c.processor.Process(ctx, job.DocumentID, job.UserID); err != nil {
		c.log.Errorw("ingestion job failed",
			"document_id", job.DocumentID, "user_id", job.UserID, "error", err)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}
