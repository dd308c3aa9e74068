package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"github.com/fabricekabongo/nexmark/event"
	"github.com/fabricekabongo/nexmark/internal/hashroute"
	"github.com/fabricekabongo/nexmark/internal/sink"
)

const (
	KindHeader = "kind"
	SeqHeader  = "seq"
)

type PublisherConfig struct {
	URL           string
	Exchange      string
	RoutingPrefix string
	// RoutingShards > 1 appends a shard of the entity id to every routing
	// key, e.g. nexmark.bid.3.
	RoutingShards int
	TLS           TLSConfig
	Auth          AuthConfig
}

type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher sends events to a topic exchange. Every message carries the
// publisher id as AppId and a per-publisher sequence number, which consumers
// use to drop redeliveries.
type Publisher struct {
	cfg  PublisherConfig
	id   string
	seq  uint64
	conn *amqp091.Connection
	ch   publishChannel
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if cfg.Exchange == "" {
		return nil, errors.New("rabbitmq exchange is required")
	}
	if cfg.RoutingPrefix == "" {
		cfg.RoutingPrefix = "nexmark"
	}
	conn, err := dial(cfg.URL, cfg.Auth, cfg.TLS)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := declareExchange(ch, cfg.Exchange); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &Publisher{cfg: cfg, id: uuid.NewString(), conn: conn, ch: ch}, nil
}

// Publish is not safe for concurrent use.
func (p *Publisher) Publish(ctx context.Context, evs []event.Event) error {
	for _, ev := range evs {
		msg, err := p.message(ev)
		if err != nil {
			return err
		}
		key := RoutingKey(p.cfg.RoutingPrefix, ev, p.cfg.RoutingShards)
		if err := p.ch.PublishWithContext(ctx, p.cfg.Exchange, key, false, false, msg); err != nil {
			return fmt.Errorf("publish %s: %w", key, err)
		}
		p.seq++
	}
	return nil
}

func (p *Publisher) message(ev event.Event) (amqp091.Publishing, error) {
	if ev.IsZero() {
		return amqp091.Publishing{}, errors.New("publish zero event")
	}
	body, err := event.EncodeJSON(ev.Value())
	if err != nil {
		return amqp091.Publishing{}, err
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		AppId:        p.id,
		MessageId:    p.id + "/" + strconv.FormatUint(p.seq, 10),
		Timestamp:    time.UnixMilli(int64(ev.DateTime())).UTC(),
		Headers: amqp091.Table{
			KindHeader: string(ev.Kind()),
			SeqHeader:  int64(p.seq),
		},
		Body: body,
	}, nil
}

func (p *Publisher) Close() error {
	var errs []error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RoutingKey is <prefix>.<kind>, plus .<shard> when shards > 1.
func RoutingKey(prefix string, ev event.Event, shards int) string {
	key := sink.Subject(prefix, ev.Kind())
	if shards > 1 {
		key += "." + strconv.Itoa(hashroute.Shard(ev.Key(), shards))
	}
	return key
}
