package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/secretengineer/GreenHouse-Tender-2/internal/greenhouse"
)

// JSONPublisher is the MQTT side used by MQTTNotifier.
type JSONPublisher interface {
	PublishJSON(topic string, doc []byte) error
}

// MQTTNotifier publishes alerts as JSON on greenhouse/alerts.
type MQTTNotifier struct {
	Pub   JSONPublisher
	Topic string
}

func (n MQTTNotifier) Notify(_ context.Context, a Alert) error {
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	topic := n.Topic
	if topic == "" {
		topic = greenhouse.AlertsTopic
	}
	return n.Pub.PublishJSON(topic, b)
}

// MessageWriter is the part of kafka.Writer the notifier needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaNotifier forwards alerts to a Kafka topic keyed by reading key.
type KafkaNotifier struct {
	W   MessageWriter
	Log *slog.Logger
}

// NewKafkaWriter returns a hash-balanced writer for topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
}

func (n KafkaNotifier) Notify(ctx context.Context, a Alert) error {
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	if err := n.W.WriteMessages(ctx, kafka.Message{Key: []byte(a.Key), Value: b, Time: a.At}); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	if n.Log != nil {
		n.Log.Info("alert forwarded to kafka", "id", a.ID, "key", a.Key)
	}
	return nil
}

// Fanout notifies every notifier and joins their errors.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, a Alert) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
