package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nemonet1337/pharmastock/pkg/inventory"
)

// MockChannel はテスト用のAMQPチャネルモック
type MockChannel struct {
	mock.Mock
}

func (m *MockChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return m.Called(name, kind, durable, autoDelete, internal, noWait, args).Error(0)
}

func (m *MockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return m.Called(ctx, exchange, key, mandatory, immediate, msg).Error(0)
}

func (m *MockChannel) Close() error {
	return m.Called().Error(0)
}

func newTestPublisher(t *testing.T) (*AMQPPublisher, *MockChannel) {
	t.Helper()
	ch := new(MockChannel)
	ch.On("ExchangeDeclare", "pharmastock.events", "topic", true, false, false, false, amqp.Table(nil)).Return(nil)

	p, err := NewAMQPPublisher(ch, "pharmastock.events", zap.NewNop())
	require.NoError(t, err)
	return p, ch
}

func TestNewAMQPPublisher_DeclareFails(t *testing.T) {
	ch := new(MockChannel)
	ch.On("ExchangeDeclare", "x", "topic", true, false, false, false, amqp.Table(nil)).
		Return(errors.New("access refused"))

	// テスト実行
	p, err := NewAMQPPublisher(ch, "x", nil)

	// アサーション
	assert.Nil(t, p)
	assert.ErrorContains(t, err, "access refused")
}

func TestAMQPPublisher_PublishStockChanged(t *testing.T) {
	p, ch := newTestPublisher(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	var published amqp.Publishing
	ch.On("PublishWithContext", ctx, "pharmastock.events", RoutingStockChanged, false, false, mock.AnythingOfType("amqp091.Publishing")).
		Run(func(args mock.Arguments) {
			published = args.Get(5).(amqp.Publishing)
		}).
		Return(nil)

	event := inventory.StockChangedEvent{
		ItemID:      "ITEM-1",
		Location:    inventory.LocationMainStore,
		UnitCost:    decimal.RequireFromString("10.00"),
		OldQuantity: 0,
		NewQuantity: 100,
		ChangeType:  inventory.MovementKindIntake,
		Timestamp:   at,
	}

	// テスト実行
	err := p.PublishStockChanged(ctx, event)

	// アサーション
	require.NoError(t, err)
	ch.AssertExpectations(t)
	assert.Equal(t, "application/json", published.ContentType)
	assert.Equal(t, amqp.Persistent, published.DeliveryMode)
	assert.Equal(t, RoutingStockChanged, published.Type)
	assert.NotEmpty(t, published.MessageId)

	var envelope Envelope
	require.NoError(t, json.Unmarshal(published.Body, &envelope))
	assert.Equal(t, published.MessageId, envelope.ID)
	assert.Equal(t, DefaultSource, envelope.Source)
	assert.True(t, at.Equal(envelope.OccurredAt))

	var data inventory.StockChangedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, "ITEM-1", data.ItemID)
	assert.Equal(t, int64(100), data.NewQuantity)
	assert.True(t, data.UnitCost.Equal(decimal.RequireFromString("10")))
}

func TestAMQPPublisher_RoutingKeys(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		key     string
		publish func(p *AMQPPublisher) error
	}{
		{"low stock", RoutingLowStockAlert, func(p *AMQPPublisher) error {
			return p.PublishLowStockAlert(ctx, inventory.LowStockAlertEvent{ItemID: "A", Status: inventory.StockStatusCritical})
		}},
		{"transfer", RoutingItemTransferred, func(p *AMQPPublisher) error {
			return p.PublishItemTransferred(ctx, inventory.ItemTransferredEvent{ItemID: "A", Quantity: 5})
		}},
		{"sale", RoutingSaleRecorded, func(p *AMQPPublisher) error {
			return p.PublishSaleRecorded(ctx, inventory.SaleRecordedEvent{SaleID: "S", Total: decimal.NewFromInt(75)})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ch := newTestPublisher(t)
			ch.On("PublishWithContext", ctx, "pharmastock.events", tt.key, false, false, mock.Anything).Return(nil)

			require.NoError(t, tt.publish(p))
			ch.AssertExpectations(t)
		})
	}
}

func TestAMQPPublisher_PublishError(t *testing.T) {
	p, ch := newTestPublisher(t)
	ctx := context.Background()
	ch.On("PublishWithContext", ctx, "pharmastock.events", RoutingSaleRecorded, false, false, mock.Anything).
		Return(amqp.ErrClosed)

	err := p.PublishSaleRecorded(ctx, inventory.SaleRecordedEvent{SaleID: "S"})

	assert.ErrorIs(t, err, amqp.ErrClosed)
}

func TestAMQPPublisher_Close(t *testing.T) {
	p, ch := newTestPublisher(t)
	ch.On("Close").Return(errors.New("already closed"))

	// チャネルのクローズ失敗はログのみ
	assert.NoError(t, p.Close())
	ch.AssertExpectations(t)
}
