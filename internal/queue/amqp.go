package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/unclebandit/voicedrop-backend/internal/logger"
)

// AMQPQueue publishes to and consumes from durable RabbitMQ queues named by topic.
type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  logger.Logger

	mu       sync.Mutex
	declared map[string]bool
}

func DialAMQP(url string, log logger.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	// one unacked dispatch per consumer; runs are long
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}
	return &AMQPQueue{conn: conn, ch: ch, log: log, declared: map[string]bool{}}, nil
}

func (q *AMQPQueue) declare(name string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.declared[name] {
		return nil
	}
	_, err := q.ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	q.declared[name] = true
	return nil
}

func (q *AMQPQueue) Publish(ctx context.Context, topic string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := q.declare(topic); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ch.Publish(
		"",
		topic,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// Subscribe consumes topic until ctx ends or the channel closes. Each
// delivery is settled according to the handler's result.
func (q *AMQPQueue) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if err := q.declare(topic); err != nil {
		return err
	}
	msgs, err := q.ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer on %s: %w", topic, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					q.log.Warn("consumer channel closed", map[string]interface{}{"topic": topic})
					return
				}
				err := handler(ctx, d.Body)
				q.settle(topic, d, err)
			}
		}
	}()
	return nil
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

type settlement int

const (
	settleAck settlement = iota
	settleRequeue
	settleDrop
)

// decide requeues a failed message once; permanent failures are acked so
// they never come back.
func decide(err error, redelivered bool) settlement {
	switch {
	case err == nil, IsPermanent(err):
		return settleAck
	case !redelivered:
		return settleRequeue
	default:
		return settleDrop
	}
}

func (q *AMQPQueue) settle(topic string, d amqp.Delivery, err error) {
	fields := map[string]interface{}{"topic": topic, "redelivered": d.Redelivered}
	if err != nil {
		fields["error"] = err
	}
	if serr := apply(d, decide(err, d.Redelivered)); serr != nil {
		fields["settle_error"] = serr
		q.log.Error("failed to settle delivery", fields)
		return
	}
	if err != nil {
		q.log.Warn("delivery failed", fields)
	}
}

func apply(d acknowledger, s settlement) error {
	switch s {
	case settleRequeue:
		return d.Nack(false, true)
	case settleDrop:
		return d.Nack(false, false)
	default:
		return d.Ack(false)
	}
}

func (q *AMQPQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}
