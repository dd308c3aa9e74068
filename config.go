package nexmark

import "github.com/fabricekabongo/nexmark/internal/generator"

// Config holds the generator tunables. It is a plain value: New copies it,
// so changing a Config after New has no effect on the built EventGenerator.
// Zero fields take the generator defaults.
type Config struct {
	// NumEventGenerators is the number of generators the event timeline is
	// shared between (num_event_generators). Defaults to 1.
	NumEventGenerators int
	// MaxEvents ends the stream once this many events exist. 0 is unbounded.
	MaxEvents uint64
	// FirstEventRate is the event rate in events per second used to space
	// timestamps. Defaults to 10000.
	FirstEventRate int
	// BaseTime is the timestamp of event 0 in unix milliseconds.
	BaseTime uint64
	// Offset and Step select event numbers Offset, Offset+Step, ... so that
	// Step generators with offsets 0..Step-1 partition one stream.
	Offset uint64
	Step   uint64

	PersonProportion  int
	AuctionProportion int
	BidProportion     int

	Seed uint64
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return fromGenerator(generator.DefaultConfig())
}

func (c Config) generator() generator.Config {
	return generator.Config{
		NumEventGenerators: c.NumEventGenerators,
		MaxEvents:          c.MaxEvents,
		FirstEventRate:     c.FirstEventRate,
		BaseTime:           c.BaseTime,
		Offset:             c.Offset,
		Step:               c.Step,
		PersonProportion:   c.PersonProportion,
		AuctionProportion:  c.AuctionProportion,
		BidProportion:      c.BidProportion,
		Seed:               c.Seed,
	}
}

func fromGenerator(g generator.Config) Config {
	return Config{
		NumEventGenerators: g.NumEventGenerators,
		MaxEvents:          g.MaxEvents,
		FirstEventRate:     g.FirstEventRate,
		BaseTime:           g.BaseTime,
		Offset:             g.Offset,
		Step:               g.Step,
		PersonProportion:   g.PersonProportion,
		AuctionProportion:  g.AuctionProportion,
		BidProportion:      g.BidProportion,
		Seed:               g.Seed,
	}
}
