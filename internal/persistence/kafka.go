package persistence

import (
	"errors"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/spec-kit/netcafe-service/internal/config"
)

// ErrKafkaDisabled is returned by Publish when no brokers are configured.
var ErrKafkaDisabled = errors.New("kafka producer not configured")

// Kafka wraps a sarama synchronous producer. A zero value is a disabled producer.
type Kafka struct {
	Producer sarama.SyncProducer
}

// NewKafka creates a producer when brokers are configured.
func NewKafka(cfg config.KafkaConfig, logger *zap.Logger) (*Kafka, error) {
	if !cfg.Enabled() {
		logger.Info("KAFKA_BROKERS not provided; audit stream disabled")
		return &Kafka{}, nil
	}

	kafkaCfg := sarama.NewConfig()
	kafkaCfg.Producer.RequiredAcks = sarama.WaitForAll
	kafkaCfg.Producer.Retry.Max = 3
	kafkaCfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaCfg)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to kafka", zap.Strings("brokers", cfg.Brokers))
	return &Kafka{Producer: producer}, nil
}

// Publish sends a keyed message to topic.
func (k *Kafka) Publish(topic, key string, value []byte) error {
	if k == nil || k.Producer == nil {
		return ErrKafkaDisabled
	}
	_, _, err := k.Producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	})
	return err
}

// Enabled reports whether a producer is attached.
func (k *Kafka) Enabled() bool {
	return k != nil && k.Producer != nil
}

// Close shuts the producer down.
func (k *Kafka) Close() {
	if k != nil && k.Producer != nil {
		_ = k.Producer.Close()
	}
}
