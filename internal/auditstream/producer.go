// Package auditstream mirrors every successfully published channel event to
// a Kafka/Redpanda topic for durable replay and offline analytics — the
// producer-direction counterpart of the donor ws subproject's kgo-based
// Kafka consumer, inverted because this server originates events rather
// than ingesting them from a broker.
package auditstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Config holds producer configuration.
type Config struct {
	Brokers []string
	Topic   string
}

// Record is the durable envelope written to Topic for every mirrored event.
type Record struct {
	AppID     string `json:"app_id"`
	Channel   string `json:"channel"`
	Event     string `json:"event"`
	Data      string `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// Producer wraps a franz-go client configured for fire-and-forget,
// asynchronous production: a dropped audit record must never slow down or
// fail a client-facing publish.
type Producer struct {
	client *kgo.Client
	topic  string
	logger zerolog.Logger
}

// NewProducer dials the given brokers and returns a Producer for topic.
func NewProducer(cfg Config, logger zerolog.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return &Producer{client: client, topic: cfg.Topic, logger: logger}, nil
}

// Mirror asynchronously produces rec to the configured topic. Failures are
// logged, never returned: audit mirroring is best-effort and must not
// affect the originating publish path.
func (p *Producer) Mirror(rec Record) {
	payload, err := json.Marshal(rec)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to marshal audit record")
		return
	}

	record := &kgo.Record{Topic: p.topic, Key: []byte(rec.Channel), Value: payload}
	p.client.Produce(context.Background(), record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Warn().Err(err).Str("channel", rec.Channel).Msg("failed to mirror event to Kafka")
		}
	})
}

// Close flushes any buffered records and closes the client.
func (p *Producer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = p.client.Flush(ctx)
	p.client.Close()
}
