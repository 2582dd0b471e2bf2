package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher writes domain events to durable queues on the default
// exchange.  It is constructed once at startup and shared; the
// connection is opened lazily and re-opened after a broker failure.
// Messages are marked persistent so they survive broker restarts.
type Publisher struct {
	url    string
	logger *zap.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
}

// NewPublisher returns a Publisher for the given AMQP URL.  No
// connection is attempted until the first publish.
func NewPublisher(url string, logger *zap.Logger) *Publisher {
	return &Publisher{url: url, logger: logger, declared: map[string]bool{}}
}

// Close tears down the broker connection.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
}

// reset drops the channel and connection; callers must hold p.mu.
func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	p.declared = map[string]bool{}
}

// ensureChannel dials and opens a channel if needed, and declares the
// target queue once per connection.  Callers must hold p.mu.
func (p *Publisher) ensureChannel(queueName string) (*amqp.Channel, error) {
	if p.conn == nil || p.conn.IsClosed() {
		p.reset()
		conn, err := amqp.Dial(p.url)
		if err != nil {
			return nil, fmt.Errorf("dial broker: %w", err)
		}
		p.conn = conn
	}
	if p.ch == nil {
		ch, err := p.conn.Channel()
		if err != nil {
			return nil, fmt.Errorf("open channel: %w", err)
		}
		p.ch = ch
	}
	if !p.declared[queueName] {
		if _, err := p.ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("declare queue %s: %w", queueName, err)
		}
		p.declared[queueName] = true
	}
	return p.ch, nil
}

// publish marshals the event and sends it to queueName, retrying once
// on a fresh connection when the broker dropped the old one.
func (p *Publisher) publish(ctx context.Context, queueName string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for attempt := 0; attempt < 2; attempt++ {
		ch, err := p.ensureChannel(queueName)
		if err != nil {
			p.reset()
			p.logger.Warn("publisher connect failed", zap.String("queue", queueName), zap.Error(err))
			continue
		}
		if err = ch.PublishWithContext(ctx, "", queueName, false, false, pub); err != nil {
			p.reset()
			p.logger.Warn("publish failed, reconnecting", zap.String("queue", queueName), zap.Error(err))
			continue
		}
		return nil
	}
	return fmt.Errorf("publish to %s failed", queueName)
}

// PublishReservationCreated emits a reservation.created event.
func (p *Publisher) PublishReservationCreated(ctx context.Context, ev ReservationCreatedEvent) error {
	return p.publish(ctx, QueueReservationCreated, ev)
}

// PublishReservationExpired emits a reservation.expired event.
func (p *Publisher) PublishReservationExpired(ctx context.Context, ev ReservationExpiredEvent) error {
	return p.publish(ctx, QueueReservationExpired, ev)
}

// PublishSeatReleased emits a seat.released event.
func (p *Publisher) PublishSeatReleased(ctx context.Context, ev SeatReleasedEvent) error {
	return p.publish(ctx, QueueSeatReleased, ev)
}

// PublishReservationConflict emits a seat.reservation-conflict event.
func (p *Publisher) PublishReservationConflict(ctx context.Context, ev ReservationConflictEvent) error {
	return p.publish(ctx, QueueReservationConflict, ev)
}
