package generator

import (
	"math"
	"math/rand/v2"
)

const (
	firstPersonID       = 1000
	firstAuctionID      = 1000
	firstCategoryID     = 10
	numCategories       = 5
	numActivePeople     = 1000
	numInFlightAuctions = 100
	personIDLead        = 10
	auctionIDLead       = 10
	hotAuctionRatio     = 2
	hotBidderRatio      = 4
	hotSellerRatio      = 4

	avgPersonByteSize  = 200
	avgAuctionByteSize = 500
	avgBidByteSize     = 100

	maxAuctionLengthMs = 10 * 60 * 1000
)

// Generator produces a deterministic sequence of events. Every event is a
// pure function of (Seed, event number), so two generators with the same
// config emit identical sequences. A Generator is not safe for concurrent use.
type Generator struct {
	cfg   Config
	index uint64
	done  bool
}

func New(cfg Config) (*Generator, error) {
	cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{cfg: cfg}, nil
}

func (g *Generator) Config() Config { return g.cfg }

// Next returns the next event, or false once the sequence is exhausted.
func (g *Generator) Next() (Event, bool) {
	if g.done {
		return nil, false
	}
	n := g.cfg.Offset + g.index*g.cfg.Step
	if g.cfg.MaxEvents > 0 && n >= g.cfg.MaxEvents {
		g.done = true
		return nil, false
	}
	g.index++
	return g.eventAt(n), true
}

func (g *Generator) eventAt(n uint64) Event {
	rng := rand.New(rand.NewPCG(g.cfg.Seed, n))
	ts := g.timestamp(n)
	p := uint64(g.cfg.PersonProportion)
	a := uint64(g.cfg.AuctionProportion)
	rem := n % g.cfg.totalProportion()
	switch {
	case rem < p:
		return g.person(rng, n, ts)
	case rem < p+a:
		return g.auction(rng, n, ts)
	default:
		return g.bid(rng, n, ts)
	}
}

func (g *Generator) timestamp(n uint64) uint64 {
	return g.cfg.BaseTime + uint64(float64(n)*g.cfg.interEventDelayUs()/1000)
}

func (g *Generator) person(rng *rand.Rand, n, ts uint64) *Person {
	name := firstNames[rng.IntN(len(firstNames))] + " " + lastNames[rng.IntN(len(lastNames))]
	p := &Person{
		ID:           g.lastBase0PersonID(n) + firstPersonID,
		Name:         name,
		EmailAddress: nextString(rng, 7) + "@" + nextString(rng, 5) + ".com",
		CreditCard:   creditCard(rng),
		City:         usCities[rng.IntN(len(usCities))],
		State:        usStates[rng.IntN(len(usStates))],
		DateTime:     ts,
	}
	size := 8 + len(p.Name) + len(p.EmailAddress) + len(p.CreditCard) + len(p.City) + len(p.State) + 8
	p.Extra = nextExtra(rng, size, avgPersonByteSize)
	return p
}

func (g *Generator) auction(rng *rand.Rand, n, ts uint64) *Auction {
	var seller uint64
	if rng.IntN(hotSellerRatio) > 0 {
		seller = (g.lastBase0PersonID(n) / hotSellerRatio) * hotSellerRatio
	} else {
		seller = g.nextBase0PersonID(rng, n)
	}
	initial := nextPrice(rng)
	a := &Auction{
		ID:          g.lastBase0AuctionID(n) + firstAuctionID,
		ItemName:    nextString(rng, 20),
		Description: nextString(rng, 100),
		InitialBid:  initial,
		Reserve:     initial + nextPrice(rng),
		DateTime:    ts,
		Expires:     ts + 1000 + rng.Uint64N(maxAuctionLengthMs),
		Seller:      seller + firstPersonID,
		Category:    firstCategoryID + rng.Uint64N(numCategories),
	}
	size := 8 + len(a.ItemName) + len(a.Description) + 8*7
	a.Extra = nextExtra(rng, size, avgAuctionByteSize)
	return a
}

func (g *Generator) bid(rng *rand.Rand, n, ts uint64) *Bid {
	var auction uint64
	if rng.IntN(hotAuctionRatio) > 0 {
		auction = (g.lastBase0AuctionID(n) / hotAuctionRatio) * hotAuctionRatio
	} else {
		auction = g.nextBase0AuctionID(rng, n)
	}
	var bidder uint64
	if rng.IntN(hotBidderRatio) > 0 {
		bidder = (g.lastBase0PersonID(n)/hotBidderRatio)*hotBidderRatio + 1
	} else {
		bidder = g.nextBase0PersonID(rng, n)
	}
	channel, url := nextChannel(rng)
	b := &Bid{
		Auction:  auction + firstAuctionID,
		Bidder:   bidder + firstPersonID,
		Price:    nextPrice(rng),
		DateTime: ts,
		Channel:  channel,
		URL:      url,
	}
	size := 8*4 + len(b.Channel) + len(b.URL)
	b.Extra = nextExtra(rng, size, avgBidByteSize)
	return b
}

// lastBase0PersonID is the id of the most recent person at or before event n.
func (g *Generator) lastBase0PersonID(n uint64) uint64 {
	p := uint64(g.cfg.PersonProportion)
	epoch := n / g.cfg.totalProportion()
	offset := n % g.cfg.totalProportion()
	if offset >= p {
		offset = p - 1
	}
	return epoch*p + offset
}

// lastBase0AuctionID is the id of the most recent auction at or before event n.
func (g *Generator) lastBase0AuctionID(n uint64) uint64 {
	p := int64(g.cfg.PersonProportion)
	a := int64(g.cfg.AuctionProportion)
	epoch := int64(n / g.cfg.totalProportion())
	offset := int64(n % g.cfg.totalProportion())
	switch {
	case offset < p:
		epoch--
		offset = a - 1
	case offset >= p+a:
		offset = a - 1
	default:
		offset -= p
	}
	id := epoch*a + offset
	if id < 0 {
		return 0
	}
	return uint64(id)
}

func (g *Generator) nextBase0PersonID(rng *rand.Rand, n uint64) uint64 {
	numPeople := g.lastBase0PersonID(n) + 1
	active := min(numPeople, numActivePeople)
	return numPeople - active + rng.Uint64N(active+personIDLead)
}

func (g *Generator) nextBase0AuctionID(rng *rand.Rand, n uint64) uint64 {
	maxAuction := g.lastBase0AuctionID(n)
	var minAuction uint64
	if maxAuction > numInFlightAuctions {
		minAuction = maxAuction - numInFlightAuctions
	}
	return minAuction + rng.Uint64N(maxAuction-minAuction+1+auctionIDLead)
}

// nextPrice is log-uniform over [100, 100_000_000) cents.
func nextPrice(rng *rand.Rand) uint64 {
	return uint64(math.Round(math.Pow(10, rng.Float64()*6) * 100))
}
