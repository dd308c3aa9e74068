package generator

import (
	"errors"
	"math"
	"time"
)

const (
	DefaultNumEventGenerators = 1
	DefaultFirstEventRate     = 10_000
	DefaultPersonProportion   = 1
	DefaultAuctionProportion  = 3
	DefaultBidProportion      = 46
)

// DefaultBaseTime is 2015-07-15T00:00:00Z in milliseconds, the NEXMark epoch.
var DefaultBaseTime = uint64(time.Date(2015, 7, 15, 0, 0, 0, 0, time.UTC).UnixMilli())

// Config tunes the generator. Zero fields are replaced by defaults when a
// Generator is built.
type Config struct {
	// NumEventGenerators is the number of generators sharing the event
	// timeline. Each one spaces its timestamps NumEventGenerators times wider.
	NumEventGenerators int
	// MaxEvents stops generation once the event number reaches it. 0 means unbounded.
	MaxEvents      uint64
	FirstEventRate int
	BaseTime       uint64
	// Offset and Step select event numbers Offset, Offset+Step, ...
	Offset uint64
	Step   uint64

	PersonProportion  int
	AuctionProportion int
	BidProportion     int

	Seed uint64
}

func DefaultConfig() Config {
	c := Config{}
	c.withDefaults()
	return c
}

func (c *Config) withDefaults() {
	if c.NumEventGenerators <= 0 {
		c.NumEventGenerators = DefaultNumEventGenerators
	}
	if c.FirstEventRate <= 0 {
		c.FirstEventRate = DefaultFirstEventRate
	}
	if c.BaseTime == 0 {
		c.BaseTime = DefaultBaseTime
	}
	if c.Step == 0 {
		c.Step = 1
	}
	if c.PersonProportion <= 0 && c.AuctionProportion <= 0 && c.BidProportion <= 0 {
		c.PersonProportion = DefaultPersonProportion
		c.AuctionProportion = DefaultAuctionProportion
		c.BidProportion = DefaultBidProportion
	}
}

func (c Config) Validate() error {
	if c.PersonProportion < 0 || c.AuctionProportion < 0 || c.BidProportion < 0 {
		return errors.New("event proportions must be non-negative")
	}
	if c.PersonProportion == 0 && (c.AuctionProportion > 0 || c.BidProportion > 0) {
		return errors.New("person proportion must be positive when auctions or bids are generated")
	}
	if c.AuctionProportion == 0 && c.BidProportion > 0 {
		return errors.New("auction proportion must be positive when bids are generated")
	}
	total := 0
	for _, p := range []int{c.PersonProportion, c.AuctionProportion, c.BidProportion} {
		if p > math.MaxInt-total {
			return errors.New("event proportions overflow")
		}
		total += p
	}
	if total == 0 {
		return errors.New("at least one event proportion must be positive")
	}
	return nil
}

func (c Config) totalProportion() uint64 {
	return uint64(c.PersonProportion + c.AuctionProportion + c.BidProportion)
}

// interEventDelayUs is the spacing between consecutive event numbers.
func (c Config) interEventDelayUs() float64 {
	return 1_000_000 / float64(c.FirstEventRate) * float64(c.NumEventGenerators)
}
