package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Sriram-PR/sitemapper/pkg/models"
	"github.com/Sriram-PR/sitemapper/pkg/utils"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// URLProducer publishes one message per discovered URL, keyed by run ID
type URLProducer struct {
	writer messageWriter
}

// NewURLProducer creates a producer for topic on brokers
func NewURLProducer(brokers []string, topic string) *URLProducer {
	return &URLProducer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: false,
		},
	}
}

// NewURLProducerWithWriter builds a producer on a custom writer
func NewURLProducerWithWriter(writer messageWriter) *URLProducer {
	return &URLProducer{writer: writer}
}

// Close flushes and shuts down the underlying writer
func (p *URLProducer) Close() error {
	return p.writer.Close()
}

// Publish writes urls as a single batch. An empty batch is a no-op.
func (p *URLProducer) Publish(ctx context.Context, urls []models.DiscoveredURL) error {
	if len(urls) == 0 {
		return nil
	}

	now := time.Now().UTC()
	msgs := make([]kafka.Message, 0, len(urls))
	for _, u := range urls {
		payload, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("%w: encoding '%s': %w", utils.ErrSink, u.URL, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(u.RunID),
			Value: payload,
			Time:  now,
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("%w: kafka write of %d message(s): %w", utils.ErrSink, len(msgs), err)
	}
	return nil
}
