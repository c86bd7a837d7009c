// Package notify publishes the outcome of sync runs to downstream systems.
package notify

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	synerrors "github.com/ajitpratap0/shopsync/pkg/errors"
)

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ResourceEvent summarizes one resource within a run.
type ResourceEvent struct {
	Resource  string         `json:"resource"`
	Fetched   int            `json:"fetched"`
	Written   map[string]int `json:"written,omitempty"`
	Watermark *time.Time     `json:"watermark,omitempty"`
	Stage     string         `json:"stage"`
}

// RunEvent is published once per run.
type RunEvent struct {
	RunID      string          `json:"run_id"`
	Kind       string          `json:"kind"`
	Status     string          `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Resources  []ResourceEvent `json:"resources"`
	Error      string          `json:"error,omitempty"`
}

// Notifier publishes run events. A publish failure never fails the run.
type Notifier interface {
	Notify(ctx context.Context, event RunEvent) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, RunEvent) error { return nil }
func (Nop) Close() error                           { return nil }

// KafkaConfig configures the Kafka notifier.
type KafkaConfig struct {
	Enabled  bool     `mapstructure:"enabled" yaml:"enabled"`
	Brokers  []string `mapstructure:"brokers" yaml:"brokers"`
	Topic    string   `mapstructure:"topic" yaml:"topic"`
	ClientID string   `mapstructure:"client_id" yaml:"client_id"`
}

// KafkaNotifier publishes each event as a JSON message keyed by run id.
type KafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewKafka connects a synchronous producer to cfg.Brokers.
func NewKafka(cfg KafkaConfig, logger *zap.Logger) (*KafkaNotifier, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, synerrors.New(synerrors.ErrorTypeConfig, "kafka notifier requires brokers and topic")
	}

	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	if sc.ClientID == "" {
		sc.ClientID = "shopsync"
	}
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	sc.Producer.Compression = sarama.CompressionSnappy

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, synerrors.Wrap(err, synerrors.ErrorTypeTransport, "failed to create kafka producer")
	}
	return NewKafkaWithProducer(producer, cfg.Topic, logger), nil
}

// NewKafkaWithProducer wraps an existing producer.
func NewKafkaWithProducer(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaNotifier{
		producer: producer,
		topic:    topic,
		logger:   logger.With(zap.String("component", "kafka_notifier")),
	}
}

func (k *KafkaNotifier) Notify(_ context.Context, event RunEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return synerrors.Wrap(err, synerrors.ErrorTypeInternal, "failed to encode run event")
	}

	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(event.RunID),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("kind"), Value: []byte(event.Kind)},
			{Key: []byte("status"), Value: []byte(event.Status)},
			{Key: []byte("content-type"), Value: []byte("application/json")},
		},
		Timestamp: event.FinishedAt,
	}

	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return synerrors.Wrap(err, synerrors.ErrorTypeTransport, "failed to publish run event").
			WithDetail("topic", k.topic)
	}
	k.logger.Debug("run event published",
		zap.String("run_id", event.RunID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

func (k *KafkaNotifier) Close() error { return k.producer.Close() }
