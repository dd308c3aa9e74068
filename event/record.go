package event

import "fmt"

// Record is one of the three event payloads: Person, Auction or Bid. The set
// is closed; no other package can implement Record.
type Record interface {
	Kind() Kind
	String() string
	fields() []field
	record()
}

// field binds a JSON key to a record field. value is used for encoding and
// mapping projection, ptr as the decode target.
type field struct {
	name  string
	value any
	ptr   any
}

type Person struct {
	ID           uint64 `json:"id"`
	Name         string `json:"name"`
	EmailAddress string `json:"email_address"`
	CreditCard   string `json:"credit_card"`
	City         string `json:"city"`
	State        string `json:"state"`
	DateTime     uint64 `json:"date_time"`
	Extra        string `json:"extra"`
}

type Auction struct {
	ID          uint64 `json:"id"`
	ItemName    string `json:"item_name"`
	Description string `json:"description"`
	InitialBid  uint64 `json:"initial_bid"`
	Reserve     uint64 `json:"reserve"`
	DateTime    uint64 `json:"date_time"`
	Expires     uint64 `json:"expires"`
	Seller      uint64 `json:"seller"`
	Category    uint64 `json:"category"`
	Extra       string `json:"extra"`
}

type Bid struct {
	Auction  uint64 `json:"auction"`
	Bidder   uint64 `json:"bidder"`
	Price    uint64 `json:"price"`
	DateTime uint64 `json:"date_time"`
	Channel  string `json:"channel"`
	URL      string `json:"url"`
	Extra    string `json:"extra"`
}

func (Person) Kind() Kind  { return KindPerson }
func (Auction) Kind() Kind { return KindAuction }
func (Bid) Kind() Kind     { return KindBid }

func (Person) record()  {}
func (Auction) record() {}
func (Bid) record()     {}

func (p Person) String() string {
	return fmt.Sprintf("Person(id=%d, name='%s', email='%s', city='%s', state='%s')", p.ID, p.Name, p.EmailAddress, p.City, p.State)
}

func (a Auction) String() string {
	return fmt.Sprintf("Auction(id=%d, item='%s', initial_bid=%d, seller=%d)", a.ID, a.ItemName, a.InitialBid, a.Seller)
}

func (b Bid) String() string {
	return fmt.Sprintf("Bid(auction=%d, bidder=%d, price=%d)", b.Auction, b.Bidder, b.Price)
}

func (p Person) fields() []field  { return (&p).refs() }
func (a Auction) fields() []field { return (&a).refs() }
func (b Bid) fields() []field     { return (&b).refs() }

func (p *Person) refs() []field {
	return []field{
		{"id", p.ID, &p.ID},
		{"name", p.Name, &p.Name},
		{"email_address", p.EmailAddress, &p.EmailAddress},
		{"credit_card", p.CreditCard, &p.CreditCard},
		{"city", p.City, &p.City},
		{"state", p.State, &p.State},
		{"date_time", p.DateTime, &p.DateTime},
		{"extra", p.Extra, &p.Extra},
	}
}

func (a *Auction) refs() []field {
	return []field{
		{"id", a.ID, &a.ID},
		{"item_name", a.ItemName, &a.ItemName},
		{"description", a.Description, &a.Description},
		{"initial_bid", a.InitialBid, &a.InitialBid},
		{"reserve", a.Reserve, &a.Reserve},
		{"date_time", a.DateTime, &a.DateTime},
		{"expires", a.Expires, &a.Expires},
		{"seller", a.Seller, &a.Seller},
		{"category", a.Category, &a.Category},
		{"extra", a.Extra, &a.Extra},
	}
}

func (b *Bid) refs() []field {
	return []field{
		{"auction", b.Auction, &b.Auction},
		{"bidder", b.Bidder, &b.Bidder},
		{"price", b.Price, &b.Price},
		{"date_time", b.DateTime, &b.DateTime},
		{"channel", b.Channel, &b.Channel},
		{"url", b.URL, &b.URL},
		{"extra", b.Extra, &b.Extra},
	}
}

var (
	_ Record = Person{}
	_ Record = Auction{}
	_ Record = Bid{}
)
