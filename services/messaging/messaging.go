// Package messaging is the broker collaborator: publish/subscribe topics and
// point-to-point queues behind one Transport interface. Concrete broker
// adapters (AMQP, SQS, Redis) implement Transport outside this repository;
// the in-memory transport here backs tests and single-process hosts.
package messaging

import (
	"context"
	"fmt"
	"sync"
)

// Delivery is one received message. Ack confirms processing; Nack requeues.
type Delivery struct {
	Source string // topic or queue name
	Body   []byte

	ack  func() error
	nack func() error
}

// Ack confirms the delivery.
func (d *Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

// Nack signals processing failure.
func (d *Delivery) Nack() error {
	if d.nack == nil {
		return nil
	}
	return d.nack()
}

// Handler processes one delivery.
type Handler func(ctx context.Context, d *Delivery) error

// Transport is the narrow broker contract the runtime consumes.
type Transport interface {
	// Publish fans a message out to every subscriber of a topic.
	Publish(ctx context.Context, topic string, msg []byte) error
	// Send enqueues a message for exactly one consumer of a queue.
	Send(ctx context.Context, queue string, msg []byte) error
	// Consume delivers messages from a topic or queue to handler until ctx
	// is done.
	Consume(ctx context.Context, source string, handler Handler) error
}

// Memory is an in-process Transport. Published messages go to all current
// topic consumers; sent messages go to one queue consumer, round-robin.
type Memory struct {
	mu     sync.Mutex
	topics map[string][]chan *Delivery
	queues map[string]chan *Delivery

	// Published keeps a copy of everything published, for tests.
	published []record
}

type record struct {
	source string
	body   []byte
}

// NewMemory creates an in-process transport.
func NewMemory() *Memory {
	return &Memory{
		topics: make(map[string][]chan *Delivery),
		queues: make(map[string]chan *Delivery),
	}
}

// Publish implements Transport.
func (m *Memory) Publish(_ context.Context, topic string, msg []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.published = append(m.published, record{source: topic, body: msg})
	for _, ch := range m.topics[topic] {
		select {
		case ch <- &Delivery{Source: topic, Body: msg}:
		default:
			return fmt.Errorf("subscriber of topic %q is not keeping up", topic)
		}
	}
	return nil
}

// Send implements Transport.
func (m *Memory) Send(_ context.Context, queue string, msg []byte) error {
	m.mu.Lock()
	ch := m.queue(queue)
	m.published = append(m.published, record{source: queue, body: msg})
	m.mu.Unlock()

	select {
	case ch <- &Delivery{Source: queue, Body: msg}:
		return nil
	default:
		return fmt.Errorf("queue %q is full", queue)
	}
}

// Consume implements Transport. It blocks until ctx is done.
func (m *Memory) Consume(ctx context.Context, source string, handler Handler) error {
	m.mu.Lock()
	var ch chan *Delivery
	if _, ok := m.queues[source]; ok {
		ch = m.queue(source)
	} else {
		ch = make(chan *Delivery, 64)
		m.topics[source] = append(m.topics[source], ch)
	}
	m.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d := <-ch:
			if err := handler(ctx, d); err != nil {
				_ = d.Nack()
				continue
			}
			_ = d.Ack()
		}
	}
}

// queue returns the channel for a queue, creating it on first use. Caller
// holds m.mu.
func (m *Memory) queue(name string) chan *Delivery {
	if ch, ok := m.queues[name]; ok {
		return ch
	}
	ch := make(chan *Delivery, 1024)
	m.queues[name] = ch
	return ch
}

// Published returns the bodies published or sent to a source, oldest first.
func (m *Memory) Published(source string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out [][]byte
	for _, r := range m.published {
		if r.source == source {
			out = append(out, r.body)
		}
	}
	return out
}
