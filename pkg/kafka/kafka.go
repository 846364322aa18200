package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/illegalcall/profile-resolver/internal/config"
)

const (
	maxRetries = 10
	retryDelay = 3 * time.Second
)

func waitForKafka(ctx context.Context, brokers []string) error {
	for i := 0; i < maxRetries; i++ {
		cfg := sarama.NewConfig()
		cfg.Net.DialTimeout = 1 * time.Second
		client, err := sarama.NewClient(brokers, cfg)
		if err == nil {
			client.Close()
			return nil
		}
		slog.Info("Waiting for Kafka to be ready...", "attempt", i+1)

		select {
		case <-ctx.Done():
			return fmt.Errorf("failed waiting for kafka: %w", ctx.Err())
		case <-time.After(retryDelay):
		}
	}
	return fmt.Errorf("kafka not available after %d attempts", maxRetries)
}

func NewProducer(ctx context.Context, kc config.KafkaConfig) (sarama.SyncProducer, error) {
	brokers := []string{kc.Broker}
	if err := waitForKafka(ctx, brokers); err != nil {
		return nil, err
	}

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = kc.RetryMax
	cfg.Producer.Retry.Backoff = kc.RetryBackoff

	return sarama.NewSyncProducer(brokers, cfg)
}

func NewConsumer(ctx context.Context, kc config.KafkaConfig) (sarama.ConsumerGroup, error) {
	brokers := []string{kc.Broker}
	if err := waitForKafka(ctx, brokers); err != nil {
		return nil, err
	}

	cfg := sarama.NewConfig()
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Return.Errors = true

	return sarama.NewConsumerGroup(brokers, kc.Group, cfg)
}

// JobMessage builds the producer message for a job, keyed by job id so all
// events for one job land on one partition.
func JobMessage(topic string, jobID int, payload []byte) *sarama.ProducerMessage {
	return &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(fmt.Sprint(jobID)),
		Value: sarama.ByteEncoder(payload),
	}
}
