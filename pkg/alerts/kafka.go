package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// KafkaSender publishes messages as JSON events to a Kafka topic, keyed by
// alert so one alert's events stay ordered within a partition.
type KafkaSender struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaProducer connects a synchronous producer to brokers.
func NewKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return producer, nil
}

// NewKafkaSender creates a sender over an existing producer.
func NewKafkaSender(producer sarama.SyncProducer, topic string) *KafkaSender {
	return &KafkaSender{producer: producer, topic: topic}
}

func (k *KafkaSender) Name() string { return "kafka" }

func (k *KafkaSender) Send(_ context.Context, msg Message) error {
	value, err := json.Marshal(kafkaEvent{
		Event:     "fare_deal",
		Timestamp: time.Now().UTC(),
		Message:   msg,
	})
	if err != nil {
		return fmt.Errorf("marshal kafka event: %w", err)
	}

	_, _, err = k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(msg.AlertID),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", k.topic, err)
	}
	return nil
}

// Close shuts down the producer.
func (k *KafkaSender) Close() error {
	return k.producer.Close()
}

type kafkaEvent struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Message   Message   `json:"message"`
}
