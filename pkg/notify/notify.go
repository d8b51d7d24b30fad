// Package notify announces finished runs on an AMQP topic exchange.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/offlinefirst/mousedynamics/pkg/config"
	"github.com/offlinefirst/mousedynamics/pkg/runmanifest"
)

// EventType names the message published after an extraction run.
const EventType = "features.extracted"

// Event is the JSON message body.
type Event struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	RunID      string             `json:"run_id"`
	OccurredAt time.Time          `json:"occurred_at"`
	State      string             `json:"state"`
	Totals     runmanifest.Totals `json:"totals"`
	Table      string             `json:"table,omitempty"`
	Uploads    []string           `json:"uploads,omitempty"`
}

// NewEvent summarises a manifest.
func NewEvent(man runmanifest.Manifest, now time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       EventType,
		RunID:      man.RunID,
		OccurredAt: now.UTC(),
		State:      man.Status.State,
		Totals:     man.Totals,
		Table:      man.Paths.FeatureTable,
		Uploads:    man.Uploads,
	}
}

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends events to one exchange with a fixed routing key.
type Publisher struct {
	conn       *amqp.Connection
	channel    Channel
	exchange   string
	routingKey string
}

// Dial connects to the broker and declares the topic exchange.
func Dial(cfg config.NotifyConfig) (*Publisher, error) {
	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{Properties: amqp.Table{
		"connection_name": "mousedyn",
	}})
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	p, err := NewWithChannel(ch, cfg.Exchange, cfg.RoutingKey)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// NewWithChannel declares the exchange on an open channel.
func NewWithChannel(ch Channel, exchange, routingKey string) (*Publisher, error) {
	if routingKey == "" {
		routingKey = EventType
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("exchange declare: %w", err)
	}
	return &Publisher{channel: ch, exchange: exchange, routingKey: routingKey}, nil
}

// Publish sends ev as a persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = p.channel.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Type:         ev.Type,
		Timestamp:    ev.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	err := p.channel.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
