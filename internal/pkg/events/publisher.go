// Package events publishes order lifecycle events to Kafka so downstream
// consumers (fulfilment, notification) can react to paid orders. Publishing
// is best-effort and disabled entirely when no brokers are configured.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// OrderPaid is emitted after a finalize transaction commits.
type OrderPaid struct {
	OrderNumber string    `json:"order_number"`
	Owner       string    `json:"owner"`
	PaymentID   string    `json:"payment_id"`
	Method      string    `json:"method"`
	Amount      string    `json:"amount"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher writes order events to a single topic. The zero value and nil
// are both valid, disabled publishers.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher builds a publisher from a comma-separated broker list. An
// empty list yields a disabled publisher.
func NewPublisher(brokersCSV, topic string) *Publisher {
	var brokers []string
	for _, b := range strings.Split(brokersCSV, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return &Publisher{}
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// Enabled reports whether events will actually be written.
func (p *Publisher) Enabled() bool {
	return p != nil && p.writer != nil
}

// PublishOrderPaid emits one OrderPaid event keyed by order number, so all
// events for an order land in the same partition.
func (p *Publisher) PublishOrderPaid(ctx context.Context, evt OrderPaid) error {
	if !p.Enabled() {
		return nil
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.OrderNumber),
		Value: data,
		Time:  time.Now().UTC(),
	})
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	if !p.Enabled() {
		return nil
	}
	return p.writer.Close()
}
