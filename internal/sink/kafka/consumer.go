package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fabricekabongo/nexmark/event"
	"github.com/fabricekabongo/nexmark/internal/logging"
	"github.com/fabricekabongo/nexmark/internal/sink"
)

type Config struct {
	Brokers        []string
	TopicPrefix    string
	Topics         []string
	GroupID        string
	ClientID       string
	WorkerCount    int
	MaxPollRecords int
	QueueCapacity  int
	TLS            bool
	Fetch          FetchConfig
	Logger         *log.Logger
}

type FetchConfig struct {
	MinBytes int32
	MaxBytes int32
	MaxWait  time.Duration
}

// Consumer reads event records from a consumer group and hands them to an
// Appender. An offset is committed only once the appender accepted the
// record or reported it as a duplicate.
type Consumer struct {
	cfg    Config
	logger *log.Logger

	client  *kgo.Client
	records chan *kgo.Record
	acks    chan recordAck
	closed  atomic.Bool

	pauseMux sync.Mutex
	paused   bool

	appender     sink.Appender
	offsets      *offsetTracker
	markCommit   func(*kgo.Record)
	commitMarked func(context.Context) error
	pauseFetch   func(...string)
	resumeFetch  func(...string)
}

type recordAck struct {
	record *kgo.Record
	err    error
}

func NewConsumer(cfg Config, appender sink.Appender, opts ...kgo.Opt) (*Consumer, error) {
	cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := newConsumer(cfg, appender)
	revoked := func(_ context.Context, _ *kgo.Client, ps map[string][]int32) { c.offsets.forget(ps) }
	kopts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
		kgo.FetchMaxWait(cfg.Fetch.MaxWait),
		kgo.FetchMinBytes(cfg.Fetch.MinBytes),
		kgo.FetchMaxBytes(cfg.Fetch.MaxBytes),
		kgo.OnPartitionsRevoked(revoked),
		kgo.OnPartitionsLost(revoked),
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

	c.client = cl
	c.markCommit = func(r *kgo.Record) { cl.MarkCommitRecords(r) }
	c.commitMarked = func(ctx context.Context) error { return cl.CommitMarkedOffsets(ctx) }
	c.pauseFetch = func(topics ...string) { _ = cl.PauseFetchTopics(topics...) }
	c.resumeFetch = func(topics ...string) { cl.ResumeFetchTopics(topics...) }
	return c, nil
}

func newConsumer(cfg Config, appender sink.Appender) *Consumer {
	return &Consumer{
		cfg:      cfg,
		logger:   logging.OrDefault(cfg.Logger).WithPrefix("kafka"),
		appender: appender,
		offsets:  newOffsetTracker(),
		records:  make(chan *kgo.Record, max(cfg.QueueCapacity, 1)),
		acks:     make(chan recordAck, max(cfg.QueueCapacity, 1)),
	}
}

func (c *Config) withDefaults() {
	if len(c.Topics) == 0 {
		c.Topics = sink.Subjects(c.TopicPrefix)
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 4
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 1024
	}
	if c.MaxPollRecords <= 0 {
		c.MaxPollRecords = 500
	}
	if c.Fetch.MaxWait <= 0 {
		c.Fetch.MaxWait = time.Second
	}
	if c.Fetch.MinBytes <= 0 {
		c.Fetch.MinBytes = 1
	}
	if c.Fetch.MaxBytes <= 0 {
		c.Fetch.MaxBytes = 50 << 20
	}
}

func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka.brokers is required")
	}
	if len(c.Topics) == 0 {
		return errors.New("kafka.topics is required")
	}
	if c.GroupID == "" {
		return errors.New("kafka.group_id is required")
	}
	return nil
}

// Start polls until ctx is cancelled or Close is called.
func (c *Consumer) Start(ctx context.Context) error {
	defer c.client.Close()
	var acks sync.WaitGroup
	acks.Add(1)
	go func() {
		defer acks.Done()
		c.handleAcks(ctx)
	}()

	var workers sync.WaitGroup
	for i := 0; i < c.cfg.WorkerCount; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			c.runWorker(ctx)
		}()
	}
	drain := func() {
		close(c.records)
		workers.Wait()
		close(c.acks)
		acks.Wait()
	}

	for {
		if ctx.Err() != nil || c.closed.Load() {
			drain()
			return ctx.Err()
		}
		fetches := c.client.PollRecords(ctx, c.cfg.MaxPollRecords)
		if fetches.IsClientClosed() {
			drain()
			return nil
		}
		if errs := fetches.Errors(); len(errs) > 0 && ctx.Err() == nil {
			c.logger.Error("fetch failed", "topic", errs[0].Topic, "partition", errs[0].Partition, "err", errs[0].Err)
			drain()
			return errs[0].Err
		}
		fetches.EachRecord(c.enqueue)
		c.client.AllowRebalance()
	}
}

func (c *Consumer) Close() {
	c.closed.Store(true)
}

func (c *Consumer) enqueue(rec *kgo.Record) {
	c.offsets.track(rec)
	for {
		select {
		case c.records <- rec:
			c.maybeResume()
			return
		default:
			c.maybePause()
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func (c *Consumer) runWorker(ctx context.Context) {
	for rec := range c.records {
		d, err := decodeRecord(rec)
		if err != nil {
			c.logger.Warn("undecodable record", "topic", rec.Topic, "partition", rec.Partition, "offset", rec.Offset, "err", err)
			c.acks <- recordAck{record: rec, err: err}
			continue
		}
		err = c.appender.Append(ctx, d)
		c.acks <- recordAck{record: rec, err: err}
	}
}

// handleAcks runs until the acks channel is closed. A failed record holds
// back every later commit of its partition.
func (c *Consumer) handleAcks(ctx context.Context) {
	for ack := range c.acks {
		if ack.record == nil {
			continue
		}
		if ack.err != nil && !errors.Is(ack.err, sink.ErrDuplicate) {
			c.logger.Warn("record not stored, partition commits held", "topic", ack.record.Topic, "partition", ack.record.Partition, "offset", ack.record.Offset, "err", ack.err)
			continue
		}
		rec := c.offsets.ack(ack.record)
		if rec == nil {
			continue
		}
		c.markCommit(rec)
		if err := c.commitMarked(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn("commit offsets", "err", err)
		}
	}
}

// decodeRecord decodes a record strictly against its kind header and falls
// back to resolving the value when the header is absent.
func decodeRecord(rec *kgo.Record) (sink.Delivery, error) {
	var (
		ev  event.Event
		err error
	)
	if kind, ok := header(rec, KindHeader); ok {
		var r event.Record
		r, err = event.Decode(event.Kind(kind), rec.Value)
		if err == nil {
			ev = event.New(r)
		}
	} else {
		ev, err = event.Resolve(rec.Value)
	}
	if err != nil {
		return sink.Delivery{}, err
	}
	return sink.Delivery{
		Event:  ev,
		Source: fmt.Sprintf("kafka/%s/%d", rec.Topic, rec.Partition),
		Seq:    uint64(rec.Offset),
	}, nil
}

func header(rec *kgo.Record, key string) (string, bool) {
	for _, h := range rec.Headers {
		if h.Key == key {
			return string(h.Value), true
		}
	}
	return "", false
}

func (c *Consumer) maybePause() {
	c.pauseMux.Lock()
	defer c.pauseMux.Unlock()
	if c.paused {
		return
	}
	if len(c.records) < cap(c.records) {
		return
	}
	c.pauseFetch(c.cfg.Topics...)
	c.paused = true
}

func (c *Consumer) maybeResume() {
	c.pauseMux.Lock()
	defer c.pauseMux.Unlock()
	if !c.paused {
		return
	}
	if len(c.records) > cap(c.records)/2 {
		return
	}
	c.resumeFetch(c.cfg.Topics...)
	c.paused = false
}
