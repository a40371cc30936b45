package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return w.err
	}

	w.msgs = append(w.msgs, msgs...)

	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}

	return ""
}

func testProducer(w Writer) *Producer {
	p := newProducer(w, ProducerConfig{ReviewTopic: "reviews", RunTopic: "runs"}, nil)
	p.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	return p
}

func TestProducer_PublishReviewQueued(t *testing.T) {
	w := &fakeWriter{}
	p := testProducer(w)

	err := p.PublishReviewQueued(context.Background(), domain.ReviewEntry{
		ID:              "9b2f",
		SupplierID:      12,
		ListingID:       401,
		SourceLabel:     "Galaxy S25 Ultra 256Go Noir",
		NormalizedLabel: "galaxy s25 ultra 256go noir",
		Attributes:      domain.Attributes{Brand: "Samsung", ModelFamily: "Galaxy S25 Ultra", Storage: "256GB"},
		Candidates:      []domain.MatchCandidate{{ProductID: 3, Score: 75}},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "reviews", msg.Topic)
	assert.Equal(t, "12:galaxy s25 ultra 256go noir", string(msg.Key))
	assert.Equal(t, TypeReviewQueued, header(msg, headerEventType))
	assert.Equal(t, "12", header(msg, headerSupplierID))
	assert.Equal(t, SchemaVersion, header(msg, headerSchemaVersion))

	var event ReviewQueuedEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, "9b2f", event.ReviewID)
	assert.Equal(t, "Samsung", event.Attributes.Brand)
	require.Len(t, event.Candidates, 1)
	assert.Equal(t, 75, event.Candidates[0].Score)
}

func TestProducer_PublishRunFinished(t *testing.T) {
	w := &fakeWriter{}
	p := testProducer(w)
	supplier := int64(4)

	err := p.PublishRunFinished(context.Background(), domain.RunReport{RunID: "run-1", SupplierID: &supplier, AutoMatched: 3})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "runs", w.msgs[0].Topic)
	assert.Equal(t, "run-1", string(w.msgs[0].Key))
	assert.Equal(t, "4", header(w.msgs[0], headerSupplierID))

	var event RunFinishedEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &event))
	assert.Equal(t, 3, event.Report.AutoMatched)
}

func TestProducer_RunTopicDisabled(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, ProducerConfig{ReviewTopic: "reviews"}, nil)

	require.NoError(t, p.PublishRunFinished(context.Background(), domain.RunReport{RunID: "run-1"}))
	assert.Empty(t, w.msgs)
}

func TestProducer_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := testProducer(w)

	err := p.PublishReviewQueued(context.Background(), domain.ReviewEntry{ID: "x", SupplierID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestProducer_Close(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, testProducer(w).Close())
	assert.True(t, w.closed)
}
