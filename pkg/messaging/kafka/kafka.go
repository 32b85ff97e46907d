package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/igabaycare/care-api/pkg/messaging"
)

type Config struct {
	Brokers     []string
	GroupID     string
	TopicPrefix string
}

// KafkaBroker publishes each channel to its own topic. Topic names are
// the channel with dots kept and the configured prefix prepended.
type KafkaBroker struct {
	writer  *kafka.Writer
	config  Config
	logger  *zerolog.Logger
	readers []*kafka.Reader
}

func NewKafkaBroker(config Config, logger *zerolog.Logger) (messaging.Broker, error) {
	if len(config.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}

	conn, err := kafka.Dial("tcp", config.Brokers[0])
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Kafka: %w", err)
	}
	conn.Close()

	return &KafkaBroker{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(config.Brokers...),
			Balancer:               &kafka.LeastBytes{},
			BatchTimeout:           50 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
		config: config,
		logger: logger,
	}, nil
}

func (b *KafkaBroker) topic(channel string) string {
	return b.config.TopicPrefix + strings.ReplaceAll(channel, ":", ".")
}

func (b *KafkaBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	payload, err := messaging.Encode(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return b.writer.WriteMessages(ctx, kafka.Message{
		Topic: b.topic(channel),
		Key:   []byte(channel),
		Value: payload,
	})
}

func (b *KafkaBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: b.config.Brokers,
		Topic:   b.topic(channel),
		GroupID: b.config.GroupID,
		MaxWait: 10 * time.Second,
	})
	b.readers = append(b.readers, reader)

	out := make(chan []byte, 100)
	go func() {
		defer close(out)
		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				b.logger.Warn().Err(err).Str("topic", reader.Config().Topic).Msg("kafka read failed, retrying")
				select {
				case <-time.After(5 * time.Second):
					continue
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- msg.Value:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (b *KafkaBroker) Close() error {
	var errs []error
	for _, r := range b.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := b.writer.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
