package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	kgo "github.com/segmentio/kafka-go"
)

const publishTimeout = 3 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kgo.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON, keyed by shop domain so a shop's
// events stay ordered within one partition.
type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
}

func NewKafkaPublisher(brokersCSV, topic string) (*KafkaPublisher, error) {
	brokers := splitCSV(brokersCSV)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka: topic is required")
	}

	w := &kgo.Writer{
		Addr:         kgo.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kgo.Hash{},
		RequiredAcks: kgo.RequireOne,
	}
	return &KafkaPublisher{writer: w, timeout: publishTimeout}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	msg, err := message(e)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(cctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }

func message(e Event) (kgo.Message, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return kgo.Message{}, fmt.Errorf("encode event: %w", err)
	}
	return kgo.Message{
		Key:   []byte(e.ShopDomain),
		Value: b,
		Time:  e.Timestamp,
		Headers: []kgo.Header{
			{Key: "event-type", Value: []byte(e.Type)},
		},
	}, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
