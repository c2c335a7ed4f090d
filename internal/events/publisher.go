package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Виды событий жизненного цикла заказа
const (
	KindJobCreated   = "job.created"
	KindJobCancelled = "job.cancelled"
	KindSessionEnded = "session.ended"
)

// Publisher публикует события жизненного цикла в topic-обменник
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

func NewPublisher(url, exchange string, logger *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to amqp: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &Publisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// Publish публикует событие с JSON-телом, ключ маршрутизации — вид события
func (p *Publisher) Publish(ctx context.Context, kind string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		kind,
		false,
		false,
		amqp.Publishing{
			ContentType:   "application/json",
			CorrelationId: uuid.NewString(),
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish event %s: %w", kind, err)
	}

	p.logger.Debug("Event published", zap.String("kind", kind))
	return nil
}

// Close закрывает канал и соединение
func (p *Publisher) Close() error {
	if err := p.channel.Close(); err != nil {
		return fmt.Errorf("close amqp channel: %w", err)
	}
	return p.conn.Close()
}
