// Package nexmark exposes a NEXMark event stream as a pull-based cursor.
//
// An EventGenerator yields event.Event values one at a time (Next), in bulk
// (Take) or through a range-over-func iterator (All):
//
//	g := nexmark.NewDefault()
//	for _, ev := range g.Take(5) {
//		fmt.Println(ev.Kind(), ev)
//	}
package nexmark

import (
	"fmt"
	"iter"

	"github.com/fabricekabongo/nexmark/event"
	"github.com/fabricekabongo/nexmark/internal/generator"
)

// maxPrealloc bounds the slice capacity Take reserves up front.
const maxPrealloc = 4096

type source interface {
	Next() (generator.Event, bool)
}

// EventGenerator is a single-consumer cursor over the generated stream. It is
// either ready or exhausted; once Next reports the end of the stream it keeps
// doing so. An EventGenerator is not safe for concurrent use.
type EventGenerator struct {
	cfg       Config
	src       source
	exhausted bool
}

// New builds an EventGenerator from a snapshot of cfg.
func New(cfg Config) (*EventGenerator, error) {
	src, err := generator.New(cfg.generator())
	if err != nil {
		return nil, fmt.Errorf("new generator: %w", err)
	}
	return &EventGenerator{cfg: fromGenerator(src.Config()), src: src}, nil
}

// NewDefault builds an EventGenerator with DefaultConfig.
func NewDefault() *EventGenerator {
	g, err := New(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return g
}

// Config returns the effective configuration, defaults applied.
func (g *EventGenerator) Config() Config { return g.cfg }

func (g *EventGenerator) Exhausted() bool { return g.exhausted }

// Next pulls one event. It returns false once the stream is exhausted and on
// every call after that.
func (g *EventGenerator) Next() (event.Event, bool) {
	if g.exhausted {
		return event.Event{}, false
	}
	raw, ok := g.src.Next()
	if !ok {
		g.exhausted = true
		return event.Event{}, false
	}
	ev, err := event.FromGenerated(raw)
	if err != nil {
		panic(fmt.Sprintf("nexmark: %v", err))
	}
	return ev, true
}

// Take pulls at most n events. It returns fewer than n only when the stream
// ran out during the call, and never pulls more than n.
func (g *EventGenerator) Take(n int) []event.Event {
	if n <= 0 {
		return []event.Event{}
	}
	out := make([]event.Event, 0, min(n, maxPrealloc))
	for len(out) < n {
		ev, ok := g.Next()
		if !ok {
			break
		}
		out = append(out, ev)
	}
	return out
}

// All iterates until the stream is exhausted or the loop breaks. Breaking
// out leaves the cursor after the last yielded event.
func (g *EventGenerator) All() iter.Seq[event.Event] {
	return func(yield func(event.Event) bool) {
		for {
			ev, ok := g.Next()
			if !ok || !yield(ev) {
				return
			}
		}
	}
}
