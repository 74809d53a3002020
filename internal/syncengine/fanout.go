package syncengine

import (
	"context"
	"encoding/json"

	"github.com/billingops/billing-sync-connector/internal/config"
	"github.com/billingops/billing-sync-connector/internal/platform/queue"

	kafka "github.com/segmentio/kafka-go"
)

// KafkaChangePublisher fans entity changes out to a kafka topic for
// downstream consumers (search indexers, audit pipelines).
type KafkaChangePublisher struct {
	writer *kafka.Writer
}

func NewKafkaChangePublisher(cfg *config.Config) *KafkaChangePublisher {

	producerConfig := &queue.ProducerConfig{
		Brokers:    cfg.FanoutKafkaBrokers,
		Topic:      cfg.FanoutKafkaTopic,
		BatchSize:  cfg.FanoutKafkaBatchSize,
		BatchBytes: cfg.FanoutKafkaBatchBytes,
		Balancer:   "hash",
	}

	if cfg.FanoutKafkaUsername != "" {
		producerConfig.SaslConfig = &queue.SaslConfig{
			SaslMechanism: cfg.FanoutKafkaSASLMechanism,
			SaslUsername:  cfg.FanoutKafkaUsername,
			SaslPassword:  cfg.FanoutKafkaPassword,
			KafkaCA:       cfg.FanoutKafkaCA,
		}
	}

	return &KafkaChangePublisher{writer: queue.StartProducer(producerConfig)}
}

func (p *KafkaChangePublisher) PublishChange(ctx context.Context, change EntityChange) error {

	value, err := json.Marshal(change)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(change.ID),
		Value: value,
	})
}

func (p *KafkaChangePublisher) Close() error {
	return p.writer.Close()
}
