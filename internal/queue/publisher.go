package queue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher maintains one connection and channel to the broker and
// publishes persistent messages to named queues on the default
// exchange.  Channel access is serialized because AMQP channels are
// not safe for concurrent use; the outbox relay and the consumer's
// dead-letter path share one Publisher.
//
// AMQP closes the channel on any broker outage or channel-level error
// and it never becomes usable again, so a publish that fails tears the
// session down, redials and retries once before reporting the error.
// Without that, one transient blip would leave every later publish
// failing for the life of the process.
type Publisher struct {
	mu       sync.Mutex
	url      string
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
}

// NewPublisher dials the broker and opens a channel.
func NewPublisher(url string) (*Publisher, error) {
	p := &Publisher{url: url, declared: make(map[string]bool)}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

// connectLocked establishes a fresh connection and channel.  Queue
// declarations are channel-scoped state, so the declared set resets
// with the session.
func (p *Publisher) connectLocked() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	p.conn = conn
	p.ch = ch
	p.declared = make(map[string]bool)
	return nil
}

// closeLocked tears down the current session, tolerating one that is
// already gone.
func (p *Publisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Publish declares the queue (idempotent, durable) and publishes the
// body with the given headers.  Messages are marked persistent so they
// survive broker restarts.  On a publish error the session is rebuilt
// and the publish retried once; only the retry's failure reaches the
// caller.
func (p *Publisher) Publish(ctx context.Context, queueName string, body []byte, headers amqp.Table) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		if err := p.connectLocked(); err != nil {
			return err
		}
	}
	err := p.publishLocked(ctx, queueName, body, headers)
	if err == nil {
		return nil
	}

	log.Printf("[PUBLISH] error on %s, reconnecting: %v", queueName, err)
	p.closeLocked()
	if rerr := p.connectLocked(); rerr != nil {
		return fmt.Errorf("publish %s: %w (reconnect: %v)", queueName, err, rerr)
	}
	return p.publishLocked(ctx, queueName, body, headers)
}

func (p *Publisher) publishLocked(ctx context.Context, queueName string, body []byte, headers amqp.Table) error {
	if !p.declared[queueName] {
		if _, err := p.ch.QueueDeclare(
			queueName,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,   // args
		); err != nil {
			return fmt.Errorf("queue declare %s: %w", queueName, err)
		}
		p.declared[queueName] = true
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx,
		"",        // default exchange
		queueName, // routing key = queue name
		false,     // mandatory
		false,     // immediate
		pub,
	); err != nil {
		return fmt.Errorf("publish %s: %w", queueName, err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
}
