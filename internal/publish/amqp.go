package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"jsonjoin/internal/etl"
)

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// dialFunc opens a connection and a channel on it.
type dialFunc func(url string) (closer, channel, error)

type closer interface{ Close() error }

func dialAMQP(url string) (closer, channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

// Publisher is the amqp destination: it publishes every joined row as a
// persistent JSON message to a durable direct exchange. The connection is
// opened on first use and reused afterwards.
type Publisher struct {
	url        string
	exchange   string
	routingKey string
	dial       dialFunc

	mu   sync.Mutex
	conn closer
	ch   channel
}

// NewPublisher creates a publisher for url. routingKey is used when a
// job leaves its target empty.
func NewPublisher(url, exchange, routingKey string) *Publisher {
	return &Publisher{url: url, exchange: exchange, routingKey: routingKey, dial: dialAMQP}
}

// Write implements etl.Destination. target overrides the routing key.
func (p *Publisher) Write(ctx context.Context, target string, schema *etl.Schema, records []etl.Record, mode etl.SyncMode) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.connectLocked(); err != nil {
		return 0, err
	}

	key := target
	if key == "" {
		key = p.routingKey
	}

	for i, rec := range records {
		msg, err := EncodeRow(rec, i, len(records), mode)
		if err != nil {
			return i, err
		}
		if err := p.ch.PublishWithContext(ctx, p.exchange, key, false, false, msg); err != nil {
			// Drop the channel so the next write reconnects.
			p.closeLocked()
			log.Printf("action: amqp_publish | result: fail | exchange: %s | key: %s | error: %v", p.exchange, key, err)
			return i, fmt.Errorf("publish row %d: %w", i, err)
		}
	}

	log.Printf("action: amqp_publish | result: success | exchange: %s | key: %s | rows: %d", p.exchange, key, len(records))
	return len(records), nil
}

// EncodeRow builds the message for one joined row.
func EncodeRow(rec etl.Record, index, total int, mode etl.SyncMode) (amqp.Publishing, error) {
	body, err := json.Marshal(rec.Data)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode row %d: %w", index, err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers: amqp.Table{
			"x-row-index": int64(index),
			"x-row-count": int64(total),
			"x-sync-mode": string(mode),
		},
		Body: body,
	}, nil
}

func (p *Publisher) connectLocked() error {
	if p.ch != nil {
		return nil
	}
	if p.url == "" {
		return fmt.Errorf("amqp url is not configured")
	}
	conn, ch, err := p.dial(p.url)
	if err != nil {
		log.Printf("action: amqp_connect | result: fail | error: %v", err)
		return fmt.Errorf("connect amqp: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	p.conn, p.ch = conn, ch
	log.Printf("action: amqp_connect | result: success | exchange: %s", p.exchange)
	return nil
}

// Close releases the channel and connection, if open.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *Publisher) closeLocked() error {
	var err error
	if p.ch != nil {
		err = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
		p.conn = nil
	}
	return err
}
