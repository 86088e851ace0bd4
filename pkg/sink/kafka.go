package sink

import (
	"context"
	"encoding/json"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/itohio/thermocal/pkg/calibration"
	"github.com/itohio/thermocal/pkg/config"
)

const kafkaWriteTimeout = 5 * time.Second

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes snapshots keyed by run id, so one run stays on one
// partition.
type Kafka struct {
	writer kafkaMessageWriter
	topic  string
}

// NewKafka creates a publisher for cfg.Topic on cfg.Brokers.
func NewKafka(cfg config.KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, pkgerrors.New("kafka: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, pkgerrors.New("kafka: topic must not be empty")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return newKafkaWithWriter(w, cfg.Topic), nil
}

func newKafkaWithWriter(w kafkaMessageWriter, topic string) *Kafka {
	return &Kafka{writer: w, topic: topic}
}

func (k *Kafka) Publish(s calibration.Snapshot) error {
	value, err := json.Marshal(s)
	if err != nil {
		return pkgerrors.Wrap(err, "kafka: marshal snapshot")
	}

	ctx, cancel := context.WithTimeout(context.Background(), kafkaWriteTimeout)
	defer cancel()

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(s.RunID),
		Value: value,
		Time:  s.Time(),
	})
	if err != nil {
		return pkgerrors.Wrapf(err, "kafka: write to %s", k.topic)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
