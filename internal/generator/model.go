package generator

// Event is one item produced by the generator. The variant set is closed:
// *Person, *Auction and *Bid.
type Event interface {
	// EventTime is the event timestamp in milliseconds since the unix epoch.
	EventTime() uint64
	generated()
}

type Person struct {
	ID           uint64
	Name         string
	EmailAddress string
	CreditCard   string
	City         string
	State        string
	DateTime     uint64
	Extra        string
}

type Auction struct {
	ID          uint64
	ItemName    string
	Description string
	InitialBid  uint64
	Reserve     uint64
	DateTime    uint64
	Expires     uint64
	Seller      uint64
	Category    uint64
	Extra       string
}

type Bid struct {
	Auction  uint64
	Bidder   uint64
	Price    uint64
	DateTime uint64
	Channel  string
	URL      string
	Extra    string
}

func (p *Person) EventTime() uint64  { return p.DateTime }
func (a *Auction) EventTime() uint64 { return a.DateTime }
func (b *Bid) EventTime() uint64     { return b.DateTime }

func (*Person) generated()  {}
func (*Auction) generated() {}
func (*Bid) generated()     {}

var (
	_ Event = (*Person)(nil)
	_ Event = (*Auction)(nil)
	_ Event = (*Bid)(nil)
)
