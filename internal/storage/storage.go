package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/fabricekabongo/nexmark/event"
	"github.com/fabricekabongo/nexmark/internal/hashroute"
)

// Entry is the storage representation of one recorded event.
type Entry struct {
	Seq         uint64
	Kind        event.Kind
	Key         uint64
	DateTime    uint64
	PayloadJSON string
	Source      string
}

// Query selects entries of one source in seq order. An empty Kind matches
// every kind; Limit <= 0 means no limit. A non-nil Partition keeps only the
// entries whose key falls in that partition.
type Query struct {
	Source    string
	Kind      event.Kind
	Partition *int
	FromSeq   uint64
	Limit     int
}

// Engine is the storage contract for the append-only event log.
type Engine interface {
	// Append writes entries in one transaction and reports how many were new.
	// Entries whose (Source, Seq) already exist are skipped.
	Append(ctx context.Context, entries []Entry) (int, error)
	Scan(ctx context.Context, q Query) ([]Entry, error)
	Count(ctx context.Context, kind event.Kind) (int64, error)
}

// EntryFromEvent encodes ev as the flat JSON payload of an entry.
func EntryFromEvent(seq uint64, source string, ev event.Event) (Entry, error) {
	if ev.IsZero() {
		return Entry{}, errors.New("entry from zero event")
	}
	payload, err := event.EncodeJSON(ev.Value())
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Seq:         seq,
		Kind:        ev.Kind(),
		Key:         ev.Key(),
		DateTime:    ev.DateTime(),
		PayloadJSON: string(payload),
		Source:      source,
	}, nil
}

// Partition is the key partition of the entry, in [0, hashroute.PartitionCount).
func (e Entry) Partition() int {
	return hashroute.Shard(e.Key, hashroute.PartitionCount)
}

// Event decodes the payload against the stored kind.
func (e Entry) Event() (event.Event, error) {
	r, err := event.Decode(e.Kind, []byte(e.PayloadJSON))
	if err != nil {
		return event.Event{}, fmt.Errorf("entry %s/%d: %w", e.Source, e.Seq, err)
	}
	return event.New(r), nil
}
