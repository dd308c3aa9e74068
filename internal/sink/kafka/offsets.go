package kafka

import (
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
)

type topicPartition struct {
	topic     string
	partition int32
}

// offsetTracker lets a partition commit only its contiguous prefix of
// acknowledged records. Workers finish out of order, and a failed record
// must stay uncommitted so the group re-reads it after a restart.
type offsetTracker struct {
	mu    sync.Mutex
	parts map[topicPartition]*partitionOffsets
}

type partitionOffsets struct {
	pending []*kgo.Record // fetch order
	acked   map[int64]bool
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{parts: make(map[topicPartition]*partitionOffsets)}
}

// track registers rec as outstanding. Records of one partition must be
// tracked in offset order.
func (t *offsetTracker) track(rec *kgo.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := topicPartition{rec.Topic, rec.Partition}
	p, ok := t.parts[key]
	if !ok {
		p = &partitionOffsets{acked: make(map[int64]bool)}
		t.parts[key] = p
	}
	p.pending = append(p.pending, rec)
}

// ack marks rec as stored and returns the newest record the partition may
// now commit, or nil when an earlier record is still outstanding.
func (t *offsetTracker) ack(rec *kgo.Record) *kgo.Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.parts[topicPartition{rec.Topic, rec.Partition}]
	if !ok {
		return nil
	}
	p.acked[rec.Offset] = true
	var last *kgo.Record
	for len(p.pending) > 0 && p.acked[p.pending[0].Offset] {
		last = p.pending[0]
		delete(p.acked, last.Offset)
		p.pending = p.pending[1:]
	}
	return last
}

// forget drops partitions this member no longer owns.
func (t *offsetTracker) forget(partitions map[string][]int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for topic, ps := range partitions {
		for _, p := range ps {
			delete(t.parts, topicPartition{topic, p})
		}
	}
}
