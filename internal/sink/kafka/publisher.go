package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fabricekabongo/nexmark/event"
	"github.com/fabricekabongo/nexmark/internal/sink"
)

// KindHeader carries the event kind on every produced record.
const KindHeader = "kind"

type PublisherConfig struct {
	Brokers     []string
	TopicPrefix string
	ClientID    string
	TLS         bool
}

type producer interface {
	ProduceSync(context.Context, ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Publisher writes events to one topic per kind, keyed by the entity id so
// that events about the same person or auction land on one partition.
type Publisher struct {
	prefix string
	client producer
}

func NewPublisher(cfg PublisherConfig, opts ...kgo.Opt) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka.brokers is required")
	}
	kopts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.AllowAutoTopicCreation(),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	}
	if cfg.ClientID != "" {
		kopts = append(kopts, kgo.ClientID(cfg.ClientID))
	}
	if cfg.TLS {
		kopts = append(kopts, kgo.DialTLSConfig(&tls.Config{}))
	}
	kopts = append(kopts, opts...)

	cl, err := kgo.NewClient(kopts...)
	if err != nil {
		return nil, fmt.Errorf("new kafka client: %w", err)
	}
	return &Publisher{prefix: cfg.TopicPrefix, client: cl}, nil
}

// Publish produces evs and waits until every record is acknowledged.
func (p *Publisher) Publish(ctx context.Context, evs []event.Event) error {
	if len(evs) == 0 {
		return nil
	}
	recs := make([]*kgo.Record, 0, len(evs))
	for _, ev := range evs {
		rec, err := Record(p.prefix, ev)
		if err != nil {
			return err
		}
		recs = append(recs, rec)
	}
	if err := p.client.ProduceSync(ctx, recs...).FirstErr(); err != nil {
		return fmt.Errorf("produce: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.client.Close()
	return nil
}

// Record builds the kafka record for ev.
func Record(prefix string, ev event.Event) (*kgo.Record, error) {
	if ev.IsZero() {
		return nil, errors.New("publish zero event")
	}
	value, err := event.EncodeJSON(ev.Value())
	if err != nil {
		return nil, err
	}
	return &kgo.Record{
		Topic:   sink.Subject(prefix, ev.Kind()),
		Key:     []byte(strconv.FormatUint(ev.Key(), 10)),
		Value:   value,
		Headers: []kgo.RecordHeader{{Key: KindHeader, Value: []byte(ev.Kind())}},
	}, nil
}
