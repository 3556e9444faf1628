package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/config"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishBatch(t *testing.T) {
	w := &recordingWriter{}
	p := newProducer(w, "search-analytics")

	err := p.PublishBatch(context.Background(), []Event{
		{Key: "search", Value: map[string]int{"total_hits": 2}},
		{Key: "index_build", Value: "done"},
	})
	if err != nil {
		t.Fatalf("PublishBatch: %v", err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("wrote %d messages", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "search" {
		t.Errorf("key = %q", w.msgs[0].Key)
	}
	var decoded map[string]int
	if err := json.Unmarshal(w.msgs[0].Value, &decoded); err != nil || decoded["total_hits"] != 2 {
		t.Errorf("value = %s (%v)", w.msgs[0].Value, err)
	}
	if err := p.Close(); err != nil || !w.closed {
		t.Error("Close should close the writer")
	}
}

func TestPublishErrors(t *testing.T) {
	w := &recordingWriter{}
	p := newProducer(w, "t")

	if err := p.Publish(context.Background(), Event{Key: "bad", Value: make(chan int)}); err == nil {
		t.Error("expected marshal error")
	}
	if len(w.msgs) != 0 {
		t.Error("nothing should be written after a marshal error")
	}

	w.err = errors.New("broker down")
	if err := p.Publish(context.Background(), Event{Key: "k", Value: 1}); !errors.Is(err, w.err) {
		t.Errorf("err = %v", err)
	}
	if err := p.PublishBatch(context.Background(), nil); err != nil {
		t.Errorf("empty batch: %v", err)
	}
}

func TestNewProducerValidates(t *testing.T) {
	if _, err := NewProducer(config.KafkaConfig{}); err == nil {
		t.Error("expected error without brokers")
	}
	cfg := config.KafkaConfig{Brokers: []string{"localhost:9092"}}
	if _, err := NewProducer(cfg); err == nil {
		t.Error("expected error without topic")
	}
	cfg.Topics.AnalyticsEvents = "search-analytics"
	p, err := NewProducer(cfg)
	if err != nil {
		t.Fatalf("NewProducer: %v", err)
	}
	if p.Topic() != "search-analytics" {
		t.Errorf("Topic() = %q", p.Topic())
	}
	p.Close()
}
