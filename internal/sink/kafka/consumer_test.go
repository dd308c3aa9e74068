package kafka

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fabricekabongo/nexmark/event"
	"github.com/fabricekabongo/nexmark/internal/logging"
	"github.com/fabricekabongo/nexmark/internal/sink"
)

const bidJSON = `{"auction":1000,"bidder":1001,"price":50,"date_time":1436918400000,"channel":"Google","url":"https://example.com/item?id=1","extra":""}`

type stubAppender struct {
	mu         sync.Mutex
	deliveries []sink.Delivery
	errBySeq   map[uint64]error
	waitCh     chan struct{}
}

func (s *stubAppender) Append(_ context.Context, d sink.Delivery) error {
	if s.waitCh != nil {
		<-s.waitCh
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, d)
	return s.errBySeq[d.Seq]
}

func testConsumer(app sink.Appender, queue int) *Consumer {
	c := newConsumer(Config{Topics: []string{"nexmark.bid"}, QueueCapacity: queue, Logger: logging.Discard()}, app)
	c.markCommit = func(*kgo.Record) {}
	c.commitMarked = func(context.Context) error { return nil }
	c.pauseFetch = func(...string) {}
	c.resumeFetch = func(...string) {}
	return c
}

func bidRecord(offset int64, withHeader bool) *kgo.Record {
	rec := &kgo.Record{Topic: "nexmark.bid", Partition: 2, Offset: offset, Value: []byte(bidJSON)}
	if withHeader {
		rec.Headers = []kgo.RecordHeader{{Key: KindHeader, Value: []byte("bid")}}
	}
	return rec
}

func TestConfigDefaultsSubscribeToEveryKind(t *testing.T) {
	cfg := Config{Brokers: []string{"127.0.0.1:9092"}, GroupID: "g1", TopicPrefix: "bench"}
	cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	want := []string{"bench.person", "bench.auction", "bench.bid"}
	for i := range want {
		if cfg.Topics[i] != want[i] {
			t.Fatalf("topics = %v", cfg.Topics)
		}
	}
	if err := (Config{Brokers: []string{"x"}, Topics: []string{"t"}}).Validate(); err == nil {
		t.Fatalf("expected group id error")
	}
}

func TestDecodeRecordWithKindHeader(t *testing.T) {
	d, err := decodeRecord(bidRecord(7, true))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.Source != "kafka/nexmark.bid/2" || d.Seq != 7 {
		t.Fatalf("unexpected source fields: %+v", d)
	}
	if bid, ok := d.Event.Bid(); !ok || bid.Auction != 1000 {
		t.Fatalf("unexpected event: %v", d.Event)
	}
}

func TestDecodeRecordWithoutHeaderResolves(t *testing.T) {
	d, err := decodeRecord(bidRecord(1, false))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !d.Event.IsBid() {
		t.Fatalf("expected bid, got %v", d.Event)
	}
}

func TestDecodeRecordHeaderIsStrict(t *testing.T) {
	rec := bidRecord(1, false)
	rec.Headers = []kgo.RecordHeader{{Key: KindHeader, Value: []byte("person")}}
	_, err := decodeRecord(rec)
	var de *event.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestOffsetCommitOnlyAfterAck(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wait := make(chan struct{})
	c := testConsumer(&stubAppender{waitCh: wait}, 1)

	committed := make(chan struct{}, 1)
	c.markCommit = func(*kgo.Record) { committed <- struct{}{} }

	go c.handleAcks(ctx)
	go c.runWorker(ctx)

	c.enqueue(bidRecord(1, true))

	select {
	case <-committed:
		t.Fatalf("offset committed before append ack")
	case <-time.After(75 * time.Millisecond):
	}
	close(wait)
	select {
	case <-committed:
	case <-time.After(time.Second):
		t.Fatalf("expected commit after ack")
	}
}

func TestDuplicateDeliveryIsCommitted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := testConsumer(nil, 1)
	var commits atomic.Int32
	c.markCommit = func(*kgo.Record) { commits.Add(1) }

	go c.handleAcks(ctx)
	rec := bidRecord(2, true)
	c.offsets.track(rec)
	c.acks <- recordAck{record: rec, err: sink.ErrDuplicate}
	time.Sleep(40 * time.Millisecond)
	if commits.Load() != 1 {
		t.Fatalf("expected duplicate to be committed, got %d", commits.Load())
	}
}

func TestCommitSkipsOnAppendFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := testConsumer(&stubAppender{errBySeq: map[uint64]error{1: errors.New("disk full")}}, 1)
	var commits atomic.Int32
	c.markCommit = func(*kgo.Record) { commits.Add(1) }

	go c.handleAcks(ctx)
	go c.runWorker(ctx)
	c.enqueue(bidRecord(1, true))
	time.Sleep(60 * time.Millisecond)
	if commits.Load() != 0 {
		t.Fatalf("expected no offset commit on append failure")
	}
}

func TestCommitSkipsUndecodableRecord(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app := &stubAppender{}
	c := testConsumer(app, 1)
	var commits atomic.Int32
	c.markCommit = func(*kgo.Record) { commits.Add(1) }

	go c.handleAcks(ctx)
	go c.runWorker(ctx)
	c.enqueue(&kgo.Record{Topic: "nexmark.bid", Value: []byte(`{"hello":"world"}`)})
	time.Sleep(60 * time.Millisecond)
	if commits.Load() != 0 {
		t.Fatalf("expected no commit for an undecodable record")
	}
	app.mu.Lock()
	defer app.mu.Unlock()
	if len(app.deliveries) != 0 {
		t.Fatalf("undecodable record must not reach the appender")
	}
}

// runAcks feeds acks through handleAcks and returns the offsets passed to
// markCommit.
func runAcks(t *testing.T, tracked []*kgo.Record, acks []recordAck) []int64 {
	t.Helper()
	c := testConsumer(nil, len(acks))
	var marked []int64
	c.markCommit = func(r *kgo.Record) { marked = append(marked, r.Offset) }
	for _, rec := range tracked {
		c.offsets.track(rec)
	}
	for _, a := range acks {
		c.acks <- a
	}
	close(c.acks)
	c.handleAcks(context.Background())
	return marked
}

func TestCommitNeverPassesAFailedOffset(t *testing.T) {
	r5, r6, r7 := bidRecord(5, true), bidRecord(6, true), bidRecord(7, true)
	marked := runAcks(t, []*kgo.Record{r5, r6, r7}, []recordAck{
		{record: r6},
		{record: r5, err: errors.New("disk full")},
		{record: r7},
	})
	if len(marked) != 0 {
		t.Fatalf("committed past failed offset 5: %v", marked)
	}
}

func TestCommitWaitsForEarlierOffsets(t *testing.T) {
	r5, r6, r7 := bidRecord(5, true), bidRecord(6, true), bidRecord(7, true)
	marked := runAcks(t, []*kgo.Record{r5, r6, r7}, []recordAck{
		{record: r6},
		{record: r5, err: sink.ErrDuplicate},
		{record: r7},
	})
	if len(marked) != 2 || marked[0] != 6 || marked[1] != 7 {
		t.Fatalf("expected commits at 6 then 7, got %v", marked)
	}
}

func TestCommitIsPerPartition(t *testing.T) {
	a5 := bidRecord(5, true)
	b9 := &kgo.Record{Topic: "nexmark.bid", Partition: 3, Offset: 9}
	a6 := bidRecord(6, true)
	marked := runAcks(t, []*kgo.Record{a5, b9, a6}, []recordAck{
		{record: a6},
		{record: b9},
	})
	if len(marked) != 1 || marked[0] != 9 {
		t.Fatalf("partition 3 should commit independently of partition 2, got %v", marked)
	}
}

func TestRevokedPartitionsAreForgotten(t *testing.T) {
	tr := newOffsetTracker()
	r1 := bidRecord(1, true)
	tr.track(r1)
	tr.forget(map[string][]int32{"nexmark.bid": {2}})
	if got := tr.ack(r1); got != nil {
		t.Fatalf("expected no commit for a revoked partition, got offset %d", got.Offset)
	}
}

func TestBackpressurePauseAndResume(t *testing.T) {
	c := testConsumer(nil, 2)
	paused := 0
	resumed := 0
	c.pauseFetch = func(...string) { paused++ }
	c.resumeFetch = func(...string) { resumed++ }

	c.records <- &kgo.Record{}
	c.records <- &kgo.Record{}
	c.maybePause()
	if paused != 1 {
		t.Fatalf("expected pause, got %d", paused)
	}
	<-c.records
	c.maybeResume()
	if resumed != 1 {
		t.Fatalf("expected resume, got %d", resumed)
	}
}
