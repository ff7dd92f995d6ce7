// Package events publishes stock domain events to a RabbitMQ topic exchange
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/nemonet1337/pharmastock/pkg/inventory"
)

// Routing keys
// ルーティングキー
const (
	RoutingStockChanged    = "pharmastock.stock.changed"
	RoutingLowStockAlert   = "pharmastock.stock.low"
	RoutingItemTransferred = "pharmastock.stock.transferred"
	RoutingSaleRecorded    = "pharmastock.sale.recorded"
)

// DefaultSource is stamped on every envelope unless overridden
const DefaultSource = "pharmastock"

// Channel is the subset of *amqp.Channel used by the publisher
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Envelope wraps an event payload with delivery metadata
// イベントの共通ヘッダー
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Source     string          `json:"source"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// NewEnvelope marshals data into an envelope of the given type
func NewEnvelope(eventType, source string, occurredAt time.Time, data interface{}) (*Envelope, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("イベントのシリアライズに失敗しました: %w", err)
	}
	return &Envelope{
		ID:         uuid.NewString(),
		Type:       eventType,
		Source:     source,
		OccurredAt: occurredAt.UTC(),
		Data:       body,
	}, nil
}

// AMQPPublisher implements inventory.EventPublisher over an AMQP channel
// AMQPによるイベント発行者
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  Channel
	exchange string
	source   string
	logger   *zap.Logger
}

var _ inventory.EventPublisher = (*AMQPPublisher)(nil)

// Dial connects to the broker, opens a channel and declares the exchange
// ブローカーに接続しエクスチェンジを宣言
func Dial(url, exchange string, logger *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("RabbitMQ接続に失敗しました: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("チャネル作成に失敗しました: %w", err)
	}

	p, err := NewAMQPPublisher(ch, exchange, logger)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// NewAMQPPublisher declares a durable topic exchange on ch and returns a publisher for it
func NewAMQPPublisher(ch Channel, exchange string, logger *zap.Logger) (*AMQPPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		return nil, fmt.Errorf("エクスチェンジ宣言に失敗しました %s: %w", exchange, err)
	}

	return &AMQPPublisher{
		channel:  ch,
		exchange: exchange,
		source:   DefaultSource,
		logger:   logger,
	}, nil
}

// PublishStockChanged publishes a stock change
func (p *AMQPPublisher) PublishStockChanged(ctx context.Context, event inventory.StockChangedEvent) error {
	return p.publish(ctx, RoutingStockChanged, event.Timestamp, event)
}

// PublishLowStockAlert publishes a low-stock alert
func (p *AMQPPublisher) PublishLowStockAlert(ctx context.Context, event inventory.LowStockAlertEvent) error {
	return p.publish(ctx, RoutingLowStockAlert, event.Timestamp, event)
}

// PublishItemTransferred publishes a completed transfer
func (p *AMQPPublisher) PublishItemTransferred(ctx context.Context, event inventory.ItemTransferredEvent) error {
	return p.publish(ctx, RoutingItemTransferred, event.Timestamp, event)
}

// PublishSaleRecorded publishes a committed sale
func (p *AMQPPublisher) PublishSaleRecorded(ctx context.Context, event inventory.SaleRecordedEvent) error {
	return p.publish(ctx, RoutingSaleRecorded, event.Timestamp, event)
}

func (p *AMQPPublisher) publish(ctx context.Context, routingKey string, at time.Time, data interface{}) error {
	envelope, err := NewEnvelope(routingKey, p.source, at, data)
	if err != nil {
		return err
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("イベントのシリアライズに失敗しました: %w", err)
	}

	// amqp091のチャネルは並行発行に対応しない
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx,
		p.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    envelope.ID,
			Timestamp:    envelope.OccurredAt,
			Type:         routingKey,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("イベント発行に失敗しました %s: %w", routingKey, err)
	}

	p.logger.Debug("イベントを発行しました",
		zap.String("routing_key", routingKey),
		zap.String("event_id", envelope.ID),
	)
	return nil
}

// Close closes the channel and, when the publisher owns it, the connection
// チャネルと接続をクローズ
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.Close(); err != nil {
		p.logger.Warn("チャネルのクローズに失敗しました", zap.Error(err))
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("接続のクローズに失敗しました: %w", err)
		}
	}
	return nil
}
