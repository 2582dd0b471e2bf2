package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrBadPayload marks a message that can never be processed, no
// matter how often it is redelivered.  Handlers wrap decode failures
// with it; the consumer rejects such deliveries without requeueing,
// while every other handler error is requeued for redelivery.  A
// dropped transient failure would lose the message for good, and for
// payment.approved that means a charged customer without a seat.
var ErrBadPayload = errors.New("bad payload")

// HandlerFunc processes one message body.  Wrap unrecoverable decode
// errors with ErrBadPayload; any other error causes the delivery to
// be requeued.
type HandlerFunc func(ctx context.Context, body []byte) error

// Consumer subscribes handler functions to durable queues.  It runs a
// reconnect loop with exponential backoff and keeps consuming until
// its context is cancelled.  Handler errors are logged and the message
// is nacked: back onto the queue for transient failures, rejected for
// good when wrapped in ErrBadPayload.
type Consumer struct {
	url      string
	logger   *zap.Logger
	handlers map[string]HandlerFunc
}

// NewConsumer returns a Consumer for the given AMQP URL.
func NewConsumer(url string, logger *zap.Logger) *Consumer {
	return &Consumer{url: url, logger: logger, handlers: map[string]HandlerFunc{}}
}

// Handle registers fn for the named queue.  Must be called before Run.
func (c *Consumer) Handle(queueName string, fn HandlerFunc) {
	c.handlers[queueName] = fn
}

// Run connects to the broker, declares every registered queue
// (durable, idempotent) and consumes until ctx is cancelled.  It only
// returns the context error; broker failures trigger a reconnect.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.logger.Warn("consumer dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("consume loop ended, reconnecting", zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

type delivery struct {
	queue string
	msg   amqp.Delivery
	ok    bool
}

// forward pumps msgs into deliveries until the source closes, then
// sends one closing sentinel.  Every send races the done channel:
// once the consume loop returns nobody receives from deliveries
// again, and without the escape path the goroutine would block on
// that send forever, leaking once per reconnect.
func forward(queueName string, msgs <-chan amqp.Delivery, deliveries chan<- delivery, done <-chan struct{}) {
	for m := range msgs {
		select {
		case deliveries <- delivery{queue: queueName, msg: m, ok: true}:
		case <-done:
			return
		}
	}
	select {
	case deliveries <- delivery{queue: queueName}:
	case <-done:
	}
}

// consume opens one channel per registered queue and funnels all
// deliveries through handleDelivery.  It returns when any channel
// dies or ctx is cancelled.
func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	deliveries := make(chan delivery)
	done := make(chan struct{})
	defer close(done)

	for queueName := range c.handlers {
		ch, err := conn.Channel()
		if err != nil {
			return fmt.Errorf("channel open: %w", err)
		}
		if err := ch.Qos(50, 0, false); err != nil {
			c.logger.Warn("set QoS failed", zap.Error(err))
		}
		if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", queueName, err)
		}
		msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", queueName, err)
		}
		go forward(queueName, msgs, deliveries, done)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d := <-deliveries:
			if !d.ok {
				return errors.New("deliveries channel closed")
			}
			c.handleDelivery(ctx, d.queue, d.msg)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, queueName string, msg amqp.Delivery) {
	fn := c.handlers[queueName]
	if err := fn(ctx, msg.Body); err != nil {
		// Poison payloads are rejected for good; everything else is a
		// transient failure and goes back on the queue for redelivery.
		requeue := !errors.Is(err, ErrBadPayload)
		c.logger.Error("handle message failed",
			zap.String("queue", queueName), zap.Bool("requeue", requeue), zap.Error(err))
		_ = msg.Nack(false, requeue)
		return
	}
	_ = msg.Ack(false)
}
