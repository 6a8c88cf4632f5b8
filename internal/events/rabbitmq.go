// Package events fans article mutations out to a message exchange so
// downstream consumers (archivers, full-text indexers) can follow the
// reading list without polling the cache. Optional: the daemon runs fine
// with no broker configured.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"readlater/internal/domain"
)

type Config struct {
	URL          string
	Exchange     string
	ExchangeType string // defaults to "topic"
	RoutingKey   string // prefix; the mutation action is appended per message
	QueueName    string
}

// RabbitMQ publishes one message per article mutation. Messages are routed
// as <prefix>.<action>, so consumers can bind to a single action (e.g.
// "articles.delete") or to the whole stream with "articles.*".
type RabbitMQ struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	prefix   string
	logger   *slog.Logger
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	if cfg.ExchangeType == "" {
		cfg.ExchangeType = "topic"
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	r := &RabbitMQ{
		conn:     conn,
		channel:  ch,
		exchange: cfg.Exchange,
		prefix:   cfg.RoutingKey,
		logger:   logger,
	}

	if err := r.declareTopology(cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_prefix", cfg.RoutingKey,
	)

	return r, nil
}

// declareTopology sets up a durable exchange and one durable queue bound
// to every action under the routing prefix.
func (r *RabbitMQ) declareTopology(cfg Config) error {
	err := r.channel.ExchangeDeclare(cfg.Exchange, cfg.ExchangeType, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	q, err := r.channel.QueueDeclare(cfg.QueueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := r.channel.QueueBind(q.Name, cfg.RoutingKey+".*", cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// ArticleEvent is the wire format for a mutation event.
type ArticleEvent struct {
	Action    string         `json:"action"` // "create", "update" or "delete"
	Article   domain.Article `json:"article"`
	Timestamp time.Time      `json:"timestamp"`
}

// Publish emits one mutation event, routed by action.
func (r *RabbitMQ) Publish(ctx context.Context, action string, article *domain.Article) error {
	body, err := json.Marshal(ArticleEvent{
		Action:    action,
		Article:   *article,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	key := r.prefix + "." + action
	err = r.channel.PublishWithContext(ctx, r.exchange, key, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    article.ID,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	r.logger.Debug("published article event", "article_id", article.ID, "routing_key", key)
	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
