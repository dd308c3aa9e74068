// Package sink holds what the broker publishers and consumers share: subject
// naming and the Appender that consumers deliver into.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/fabricekabongo/nexmark/event"
	"github.com/fabricekabongo/nexmark/internal/storage"
)

// ErrDuplicate reports a delivery that was already stored. Consumers treat it
// as success and acknowledge the message.
var ErrDuplicate = errors.New("duplicate delivery")

// Delivery is one event received from a broker. Source and Seq identify the
// message uniquely, e.g. a kafka topic partition and its offset.
type Delivery struct {
	Event  event.Event
	Source string
	Seq    uint64
}

type Appender interface {
	Append(context.Context, Delivery) error
}

// Subject names the topic or routing key that carries events of kind k.
func Subject(prefix string, k event.Kind) string {
	if prefix == "" {
		return string(k)
	}
	return prefix + "." + string(k)
}

// Subjects lists the subjects of every kind.
func Subjects(prefix string) []string {
	out := make([]string, len(event.Kinds))
	for i, k := range event.Kinds {
		out[i] = Subject(prefix, k)
	}
	return out
}

// StoreAppender records deliveries in an append-only event log.
type StoreAppender struct {
	Engine storage.Engine
}

func (s StoreAppender) Append(ctx context.Context, d Delivery) error {
	entry, err := storage.EntryFromEvent(d.Seq, d.Source, d.Event)
	if err != nil {
		return err
	}
	n, err := s.Engine.Append(ctx, []storage.Entry{entry})
	if err != nil {
		return fmt.Errorf("store delivery %s/%d: %w", d.Source, d.Seq, err)
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}
