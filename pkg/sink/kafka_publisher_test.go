package sink

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/sitemapper/pkg/models"
	"github.com/Sriram-PR/sitemapper/pkg/utils"
)

type recordingWriter struct {
	calls  [][]kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.calls = append(w.calls, msgs)
	return w.err
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestURLProducer_Publish(t *testing.T) {
	writer := &recordingWriter{}
	prod := NewURLProducerWithWriter(writer)

	at := time.Unix(0, 0).UTC()
	urls := []models.DiscoveredURL{
		{RunID: "run-1", URL: "https://example.com/jobs", Source: models.SourceSeed, Priority: 1, Category: "job_listings", DiscoveredAt: at},
		{RunID: "run-1", URL: "https://example.com/about", Source: models.SourceExtracted, Priority: 4, Category: "other", DiscoveredAt: at},
	}
	require.NoError(t, prod.Publish(context.Background(), urls))

	require.Len(t, writer.calls, 1, "one batch per Publish call")
	msgs := writer.calls[0]
	require.Len(t, msgs, 2, "one message per URL")
	for i, msg := range msgs {
		if string(msg.Key) != "run-1" {
			t.Errorf("message %d key = %q, want run-1", i, string(msg.Key))
		}
		var got models.DiscoveredURL
		require.NoError(t, json.Unmarshal(msg.Value, &got))
		assert.Equal(t, urls[i], got)
		assert.False(t, msg.Time.IsZero())
	}
}

func TestURLProducer_PublishEmptyIsNoop(t *testing.T) {
	writer := &recordingWriter{}
	prod := NewURLProducerWithWriter(writer)

	require.NoError(t, prod.Publish(context.Background(), nil))
	assert.Empty(t, writer.calls)
}

func TestURLProducer_PublishError(t *testing.T) {
	writer := &recordingWriter{err: errors.New("write failed")}
	prod := NewURLProducerWithWriter(writer)

	err := prod.Publish(context.Background(), []models.DiscoveredURL{{RunID: "r", URL: "https://example.com/"}})
	assert.ErrorIs(t, err, utils.ErrSink)
	assert.Contains(t, err.Error(), "write failed")
}

func TestURLProducer_Close(t *testing.T) {
	writer := &recordingWriter{}
	require.NoError(t, NewURLProducerWithWriter(writer).Close())
	assert.True(t, writer.closed)
}
