package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/rabbitmq/amqp091-go"

	"github.com/fabricekabongo/nexmark/event"
	"github.com/fabricekabongo/nexmark/internal/hashroute"
	"github.com/fabricekabongo/nexmark/internal/logging"
	"github.com/fabricekabongo/nexmark/internal/sink"
)

type Config struct {
	URL           string
	Exchange      string
	Queue         string
	RoutingKeys   []string
	ConsumerTag   string
	PrefetchCount int
	Workers       int
	DeliveryQueue int
	TLS           TLSConfig
	Auth          AuthConfig
	Logger        *log.Logger
}

func (c Config) Validate() error {
	if c.Queue == "" {
		return fmt.Errorf("rabbitmq queue is required")
	}
	if c.Exchange == "" {
		return fmt.Errorf("rabbitmq exchange is required")
	}
	if c.PrefetchCount < 1 {
		return fmt.Errorf("rabbitmq prefetch_count must be >= 1")
	}
	if c.Workers < 1 {
		return fmt.Errorf("rabbitmq workers must be >= 1")
	}
	if c.DeliveryQueue < 1 {
		return fmt.Errorf("rabbitmq delivery_queue must be >= 1")
	}
	if c.URL == "" {
		return fmt.Errorf("rabbitmq url is required")
	}
	return nil
}

// Consumer acks a delivery once the appender stored it, nacks with requeue
// on temporary appender errors and drops undecodable deliveries.
type Consumer struct {
	cfg      Config
	logger   *log.Logger
	appender sink.Appender
	conn     *amqp091.Connection
	ch       *amqp091.Channel
	deliver  <-chan amqp091.Delivery
	ops      chan deliveryTask
	closed   chan struct{}
	closeErr atomic.Value
	wg       sync.WaitGroup
}

type deliveryTask struct {
	ctx      context.Context
	delivery amqp091.Delivery
}

func NewConsumer(cfg Config, appender sink.Appender) (*Consumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if appender == nil {
		return nil, fmt.Errorf("appender is required")
	}
	if cfg.ConsumerTag == "" {
		cfg.ConsumerTag = "nexmark-rabbitmq"
	}
	return &Consumer{
		cfg:      cfg,
		logger:   logging.OrDefault(cfg.Logger).WithPrefix("rabbitmq"),
		appender: appender,
		closed:   make(chan struct{}),
		ops:      make(chan deliveryTask, cfg.DeliveryQueue),
	}, nil
}

// Start declares the topology, begins consuming and returns. Close stops
// the workers.
func (c *Consumer) Start(ctx context.Context) error {
	conn, err := dial(c.cfg.URL, c.cfg.Auth, c.cfg.TLS)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open rabbitmq channel: %w", err)
	}
	fail := func(err error) error {
		ch.Close()
		conn.Close()
		return err
	}
	if err := ch.Qos(c.cfg.PrefetchCount, 0, false); err != nil {
		return fail(fmt.Errorf("set prefetch: %w", err))
	}
	if err := declareExchange(ch, c.cfg.Exchange); err != nil {
		return fail(err)
	}
	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		return fail(fmt.Errorf("declare queue: %w", err))
	}
	routingKeys := c.cfg.RoutingKeys
	if len(routingKeys) == 0 {
		routingKeys = []string{"#"}
	}
	for _, key := range routingKeys {
		if err := ch.QueueBind(c.cfg.Queue, key, c.cfg.Exchange, false, nil); err != nil {
			return fail(fmt.Errorf("bind queue key=%s: %w", key, err))
		}
	}
	deliveries, err := ch.Consume(c.cfg.Queue, c.cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return fail(fmt.Errorf("consume queue: %w", err))
	}
	c.conn, c.ch, c.deliver = conn, ch, deliveries
	c.logger.Info("consuming", "queue", c.cfg.Queue, "exchange", c.cfg.Exchange, "keys", routingKeys)

	c.wg.Add(1)
	go c.readLoop(ctx)
	for i := 0; i < c.cfg.Workers; i++ {
		c.wg.Add(1)
		go c.workerLoop(ctx)
	}
	return nil
}

func (c *Consumer) Close() error {
	select {
	case <-c.closed:
		if v := c.closeErr.Load(); v != nil {
			return v.(error)
		}
		return nil
	default:
		close(c.closed)
	}
	if c.ch != nil {
		_ = c.ch.Cancel(c.cfg.ConsumerTag, false)
	}
	c.wg.Wait()
	var errs []error
	if c.ch != nil {
		if err := c.ch.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	c.closeErr.Store(err)
	return err
}

func (c *Consumer) readLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case d, ok := <-c.deliver:
			if !ok {
				return
			}
			task := deliveryTask{ctx: ctx, delivery: d}
			select {
			case c.ops <- task:
			case <-ctx.Done():
				return
			case <-c.closed:
				return
			}
		}
	}
}

func (c *Consumer) workerLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case task := <-c.ops:
			c.processDelivery(task.ctx, task.delivery)
		}
	}
}

func (c *Consumer) processDelivery(ctx context.Context, d amqp091.Delivery) {
	del, err := decodeDelivery(c.cfg.Queue, d)
	if err != nil {
		c.logger.Warn("dropping undecodable delivery", "routing_key", d.RoutingKey, "err", err)
		_ = d.Nack(false, false)
		return
	}
	if err := c.appender.Append(ctx, del); err != nil && !errors.Is(err, sink.ErrDuplicate) {
		if isRetryable(err) {
			_ = d.Nack(false, true)
			return
		}
		c.logger.Warn("dropping delivery", "source", del.Source, "seq", del.Seq, "err", err)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

// decodeDelivery decodes strictly against the kind header when present and
// resolves the body otherwise. Messages from a Publisher are identified by
// AppId and seq header. Other messages are identified by a hash of their
// MessageId, or of their body when they carry none. Delivery tags restart
// on every channel and never identify a message.
func decodeDelivery(queue string, d amqp091.Delivery) (sink.Delivery, error) {
	var (
		ev  event.Event
		err error
	)
	if kind := headerString(d.Headers, KindHeader); kind != "" {
		var r event.Record
		r, err = event.Decode(event.Kind(kind), d.Body)
		if err == nil {
			ev = event.New(r)
		}
	} else {
		ev, err = event.Resolve(d.Body)
	}
	if err != nil {
		return sink.Delivery{}, err
	}

	out := sink.Delivery{Event: ev}
	seq, ok := headerUint(d.Headers, SeqHeader)
	switch {
	case ok && d.AppId != "":
		out.Source, out.Seq = "rabbitmq/"+d.AppId, seq
	case d.MessageId != "":
		out.Source, out.Seq = "rabbitmq/"+queue+"/message-id", messageSeq([]byte(d.MessageId))
	default:
		out.Source, out.Seq = "rabbitmq/"+queue+"/content", messageSeq(d.Body)
	}
	return out, nil
}

// messageSeq keeps hashed identities below 1<<63 so they sort and scan like
// publisher sequence numbers.
func messageSeq(b []byte) uint64 {
	return hashroute.Sum64(b) & math.MaxInt64
}

func headerString(table amqp091.Table, key string) string {
	if table == nil {
		return ""
	}
	v, ok := table[key]
	if !ok {
		return ""
	}
	return fmt.Sprint(v)
}

func headerUint(table amqp091.Table, key string) (uint64, bool) {
	switch v := table[key].(type) {
	case int64:
		return uint64(v), v >= 0
	case int32:
		return uint64(v), v >= 0
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

type retryable interface{ Temporary() bool }

func isRetryable(err error) bool {
	var te retryable
	if errors.As(err, &te) {
		return te.Temporary()
	}
	return false
}
