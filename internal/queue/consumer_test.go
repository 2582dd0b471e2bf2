package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeAcknowledger records the consumer's ack decision for one delivery.
type fakeAcknowledger struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAcknowledger) Ack(uint64, bool) error {
	f.acked = true
	return nil
}

func (f *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

func deliverTo(t *testing.T, fn HandlerFunc, body string) *fakeAcknowledger {
	t.Helper()
	c := NewConsumer("amqp://unused", zap.NewNop())
	c.Handle("q", fn)
	ack := &fakeAcknowledger{}
	c.handleDelivery(context.Background(), "q", amqp.Delivery{
		Acknowledger: ack,
		Body:         []byte(body),
	})
	return ack
}

func TestHandleDeliveryAcksOnSuccess(t *testing.T) {
	ack := deliverTo(t, func(context.Context, []byte) error { return nil }, "{}")
	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
}

func TestHandleDeliveryRequeuesTransientFailure(t *testing.T) {
	// A database outage must not consume the message: the payment
	// would be lost and the paid-for hold silently expire.
	ack := deliverTo(t, func(context.Context, []byte) error {
		return errors.New("db connection refused")
	}, "{}")
	require.True(t, ack.nacked)
	assert.True(t, ack.requeue, "transient failures must go back on the queue")
}

func TestHandleDeliveryDropsBadPayload(t *testing.T) {
	ack := deliverTo(t, func(context.Context, []byte) error {
		return fmt.Errorf("unmarshal: %w", ErrBadPayload)
	}, "{not json")
	require.True(t, ack.nacked)
	assert.False(t, ack.requeue, "poison messages must not spin the consumer")
}

func TestForwardStopsWhenConsumeLoopIsGone(t *testing.T) {
	msgs := make(chan amqp.Delivery, 1)
	deliveries := make(chan delivery)
	done := make(chan struct{})

	exited := make(chan struct{})
	go func() {
		forward("q", msgs, deliveries, done)
		close(exited)
	}()

	// A message arrives while nobody is receiving anymore, then the
	// consume loop tears down.  The forwarder must abandon the send
	// instead of blocking on it forever.
	msgs <- amqp.Delivery{}
	close(done)

	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("forwarder is stuck on a send after shutdown")
	}
}

func TestForwardSendsClosingSentinel(t *testing.T) {
	msgs := make(chan amqp.Delivery)
	deliveries := make(chan delivery, 1)
	done := make(chan struct{})
	defer close(done)

	go forward("q", msgs, deliveries, done)
	close(msgs)

	select {
	case d := <-deliveries:
		assert.False(t, d.ok, "a closed source must yield the sentinel")
		assert.Equal(t, "q", d.queue)
	case <-time.After(time.Second):
		t.Fatal("no sentinel after the source channel closed")
	}
}

func TestForwardAbandonsSentinelWhenShutDown(t *testing.T) {
	msgs := make(chan amqp.Delivery)
	deliveries := make(chan delivery) // unbuffered, never read
	done := make(chan struct{})

	exited := make(chan struct{})
	go func() {
		forward("q", msgs, deliveries, done)
		close(exited)
	}()

	close(msgs)
	close(done)

	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("forwarder is stuck sending the sentinel after shutdown")
	}
}
