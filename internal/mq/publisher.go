package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/DealFlow/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeDealNew     MessageType = "deal.new"
	MessageTypeDealDecided MessageType = "deal.decided"
	MessageTypeDealFailed  MessageType = "deal.failed"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
		now:    time.Now,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// DealNewPayload — payload для сообщения о новой сделке.
type DealNewPayload struct {
	DealID uuid.UUID `json:"deal_id"`
}

// DealDecidedPayload — payload для сообщения о записанном вердикте.
type DealDecidedPayload struct {
	DealID   uuid.UUID            `json:"deal_id"`
	Decision domain.Decision      `json:"decision"`
	Source   domain.VerdictSource `json:"source"`
	Score    float64              `json:"score"`
	Cycles   int                  `json:"cycles"`
	Conflict bool                 `json:"conflict"`
}

// DealFailedPayload — payload для сообщения о сделке в FAILED.
type DealFailedPayload struct {
	DealID uuid.UUID `json:"deal_id"`
	Reason string    `json:"reason"`
}

// newMessage создаёт сообщение с новым ID.
func (p *Publisher) newMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: p.now(),
	}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Type:         string(msg.Type),
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishDealNew будит воркеры после вставки сделки.
// Потребитель: dealflow-worker.
func (p *Publisher) PublishDealNew(ctx context.Context, dealID uuid.UUID) error {
	msg := p.newMessage(MessageTypeDealNew, DealNewPayload{DealID: dealID})
	return p.Publish(ctx, ExchangeDeals, RoutingKeyNew, msg)
}

// PublishDealDecided публикует событие о записанном вердикте.
func (p *Publisher) PublishDealDecided(ctx context.Context, v domain.Verdict) error {
	msg := p.newMessage(MessageTypeDealDecided, DealDecidedPayload{
		DealID:   v.DealID,
		Decision: v.Decision,
		Source:   v.Source,
		Score:    v.Score,
		Cycles:   v.Cycles,
		Conflict: v.Conflict,
	})
	return p.Publish(ctx, ExchangeDeals, RoutingKeyDecided, msg)
}

// PublishDealFailed публикует событие о сделке, переведённой в FAILED.
func (p *Publisher) PublishDealFailed(ctx context.Context, dealID uuid.UUID, reason string) error {
	msg := p.newMessage(MessageTypeDealFailed, DealFailedPayload{DealID: dealID, Reason: reason})
	return p.Publish(ctx, ExchangeDeals, RoutingKeyFailed, msg)
}
