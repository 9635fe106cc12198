// Package events publishes fulfillment events for downstream consumers
// (receipt mailers, analytics). Publishing is best-effort: a fulfilled order
// is never rolled back because Kafka was unreachable.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/Meltveit/ExcelTemplateMarket/models"
)

// Publisher wraps a Kafka producer. A nil Publisher is valid and publishes
// nothing, so the service runs unchanged without a broker.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

func NewPublisher(broker, topic string, logger *zap.Logger) (*Publisher, error) {
	if broker == "" {
		logger.Info("Kafka broker not configured, event publishing disabled")
		return nil, nil
	}

	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer([]string{broker}, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	logger.Info("Kafka producer initialized", zap.String("broker", broker), zap.String("topic", topic))
	return &Publisher{producer: producer, topic: topic, logger: logger}, nil
}

// PublishOrderFulfilled emits an order_fulfilled event with the current trace
// context injected into the message headers.
func (p *Publisher) PublishOrderFulfilled(ctx context.Context, order models.Order) error {
	if p == nil {
		return nil
	}

	event := models.OrderEvent{
		OrderID:         order.ID,
		TemplateID:      order.TemplateID,
		CustomerEmail:   order.CustomerEmail,
		Amount:          order.Amount,
		StripePaymentID: order.StripePaymentID,
		EventType:       "order_fulfilled",
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:   p.topic,
		Key:     sarama.StringEncoder(order.StripePaymentID),
		Value:   sarama.ByteEncoder(eventJSON),
		Headers: []sarama.RecordHeader{},
	}

	propagator := otel.GetTextMapPropagator()
	carrier := make(headerCarrier, 0)
	propagator.Inject(ctx, &carrier)
	msg.Headers = carrier

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("Published order_fulfilled event",
		zap.Int("order_id", order.ID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.producer.Close()
}

// headerCarrier implements the TextMapCarrier interface over Kafka headers.
type headerCarrier []sarama.RecordHeader

func (c headerCarrier) Get(key string) string {
	for _, h := range c {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	*c = append(*c, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = string(h.Key)
	}
	return keys
}
