package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/unclebandit/voicedrop-backend/internal/logger"
)

const (
	DefaultDispatchQueue  = "campaign_dispatches"
	DefaultExecutionQueue = "dispatch_executions"
)

// Handler processes one message body. Returning a PermanentError drops the
// message; any other error makes it eligible for redelivery.
type Handler func(ctx context.Context, body []byte) error

type Publisher interface {
	Publish(ctx context.Context, topic string, body []byte) error
}

// Queue interface
type Queue interface {
	Publisher
	Subscribe(ctx context.Context, topic string, handler Handler) error
}

// PermanentError marks a message that will never succeed on redelivery.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// InMemoryQueue delivers to subscribers in-process with retry and backoff.
// It backs local runs without a broker and tests.
type InMemoryQueue struct {
	mu         sync.Mutex
	handlers   map[string][]Handler
	maxRetries int
	backoff    time.Duration
	log        logger.Logger
	wg         sync.WaitGroup
}

func NewInMemoryQueue(log logger.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]Handler),
		maxRetries: 3,
		backoff:    500 * time.Millisecond,
		log:        log,
	}
}

// WithBackoff overrides the base retry delay; attempt n waits n*d.
func (q *InMemoryQueue) WithBackoff(d time.Duration) *InMemoryQueue {
	q.backoff = d
	return q
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(ctx context.Context, topic string, body []byte) error {
	q.mu.Lock()
	handlers := append([]Handler(nil), q.handlers[topic]...)
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	payload := append([]byte(nil), body...)
	for _, h := range handlers {
		q.wg.Add(1)
		go func(h Handler) {
			defer q.wg.Done()
			q.process(context.WithoutCancel(ctx), topic, h, payload)
		}(h)
	}
	return nil
}

func (q *InMemoryQueue) process(ctx context.Context, topic string, h Handler, body []byte) {
	for attempt := 1; ; attempt++ {
		err := h(ctx, body)
		if err == nil {
			return
		}
		fields := map[string]interface{}{"topic": topic, "attempt": attempt, "error": err}
		if IsPermanent(err) || attempt > q.maxRetries {
			q.log.Error("message dropped", fields)
			return
		}
		q.log.Warn("message failed, retrying", fields)
		time.Sleep(time.Duration(attempt) * q.backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(_ context.Context, topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Drain waits for in-flight deliveries.
func (q *InMemoryQueue) Drain() {
	q.wg.Wait()
}
