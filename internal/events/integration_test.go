//go:build integration

package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"readlater/internal/domain"
)

type RabbitMQIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
	logger    *slog.Logger
}

func (s *RabbitMQIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	amqpURL, err := container.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpURL = amqpURL
}

func (s *RabbitMQIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRabbitMQIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQIntegrationSuite))
}

func (s *RabbitMQIntegrationSuite) TestPublisher_Connection() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange",
		RoutingKey: "test-routing-key",
		QueueName:  "test-queue",
	}

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.NoError(err)
	s.NotNil(pub)

	err = pub.Close()
	s.NoError(err)
}

func (s *RabbitMQIntegrationSuite) TestPublisher_PublishCreate() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-create",
		RoutingKey: "test-routing-key-create",
		QueueName:  "test-queue-create",
	}

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	article := domain.NewArticle("https://example.com/article", "Test Article")
	article.Tags = []string{"go", "reading"}

	err = pub.Publish(s.ctx, "create", &article)
	s.NoError(err)

	msg := s.consumeMessage(cfg)
	s.NotNil(msg)

	var received ArticleEvent
	err = json.Unmarshal(msg.Body, &received)
	s.NoError(err)
	s.Equal("test-routing-key-create.create", msg.RoutingKey)
	s.Equal("create", received.Action)
	s.Equal(article.ID, received.Article.ID)
	s.Equal("Test Article", received.Article.Title)
	s.Equal([]string{"go", "reading"}, received.Article.Tags)
	s.False(received.Timestamp.IsZero())
}

func (s *RabbitMQIntegrationSuite) TestPublisher_PublishDelete() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-delete",
		RoutingKey: "test-routing-key-delete",
		QueueName:  "test-queue-delete",
	}

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	article := domain.NewArticle("https://example.com/gone", "Gone")

	err = pub.Publish(s.ctx, "delete", &article)
	s.NoError(err)

	msg := s.consumeMessage(cfg)
	s.NotNil(msg)

	var received ArticleEvent
	err = json.Unmarshal(msg.Body, &received)
	s.NoError(err)
	s.Equal("test-routing-key-delete.delete", msg.RoutingKey)
	s.Equal("delete", received.Action)
	s.Equal(article.ID, received.Article.ID)
}

func (s *RabbitMQIntegrationSuite) TestPublisher_MessageFormat() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-format",
		RoutingKey: "test-routing-key-format",
		QueueName:  "test-queue-format",
	}

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	article := domain.NewArticle("https://example.com/full", "Full Article")
	article.Excerpt = "Full excerpt"
	article.Content = "Full body"
	article.Category = domain.CategoryTech
	article.ReadProgress = 42
	article.Highlights = []domain.Highlight{
		{ID: "h1", Text: "quoted", Color: "yellow", Tags: []string{"key"}},
	}

	err = pub.Publish(s.ctx, "update", &article)
	s.NoError(err)

	msg := s.consumeMessage(cfg)
	s.NotNil(msg)

	s.Equal("application/json", msg.ContentType)
	s.Equal(uint8(amqp.Persistent), msg.DeliveryMode)
	s.Equal(article.ID, msg.MessageId)
	s.Equal("test-routing-key-format.update", msg.RoutingKey)

	var received ArticleEvent
	err = json.Unmarshal(msg.Body, &received)
	s.NoError(err)

	s.Equal("update", received.Action)
	s.Equal("Full Article", received.Article.Title)
	s.Equal("Full excerpt", received.Article.Excerpt)
	s.Equal("Full body", received.Article.Content)
	s.Equal(domain.CategoryTech, received.Article.Category)
	s.Equal(42, received.Article.ReadProgress)
	s.Len(received.Article.Highlights, 1)
	s.Equal("quoted", received.Article.Highlights[0].Text)
}

func (s *RabbitMQIntegrationSuite) consumeMessage(cfg Config) *amqp.Delivery {
	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()

	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	msgs, err := ch.Consume(cfg.QueueName, "", true, false, false, false, nil)
	s.Require().NoError(err)

	select {
	case msg := <-msgs:
		return &msg
	case <-time.After(5 * time.Second):
		s.Fail("Timeout waiting for message")
		return nil
	}
}
