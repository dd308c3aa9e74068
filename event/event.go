// Package event defines the NEXMark event model exchanged with hosts: the
// Person, Auction and Bid records, the Event union over them, their JSON and
// mapping codecs, and the resolver that builds an Event from untyped input.
package event

import (
	"github.com/fabricekabongo/nexmark/internal/generator"
)

// Kind tags the active variant of an Event.
type Kind string

const (
	KindPerson  Kind = "person"
	KindAuction Kind = "auction"
	KindBid     Kind = "bid"
)

// Kinds lists every variant in resolver precedence order.
var Kinds = []Kind{KindPerson, KindAuction, KindBid}

func (k Kind) Valid() bool {
	switch k {
	case KindPerson, KindAuction, KindBid:
		return true
	}
	return false
}

// Event holds exactly one Record. Events are immutable: build a new one to
// change the payload. The zero Event holds nothing and is only meaningful as
// a "no event" placeholder; every constructor returns a populated Event.
//
// Accessors for the wrong variant return the zero record and false; they
// never panic or return an error.
type Event struct {
	rec Record
}

func NewPerson(p Person) Event   { return Event{rec: p} }
func NewAuction(a Auction) Event { return Event{rec: a} }
func NewBid(b Bid) Event         { return Event{rec: b} }

// New wraps r. A nil r yields the zero Event.
func New(r Record) Event { return Event{rec: r} }

func (e Event) IsZero() bool { return e.rec == nil }

// Kind returns the variant tag, or "" for the zero Event.
func (e Event) Kind() Kind {
	if e.rec == nil {
		return ""
	}
	return e.rec.Kind()
}

// Value returns the active record, or nil for the zero Event.
func (e Event) Value() Record { return e.rec }

func (e Event) Person() (Person, bool) {
	p, ok := e.rec.(Person)
	return p, ok
}

func (e Event) Auction() (Auction, bool) {
	a, ok := e.rec.(Auction)
	return a, ok
}

func (e Event) Bid() (Bid, bool) {
	b, ok := e.rec.(Bid)
	return b, ok
}

func (e Event) IsPerson() bool  { return e.Kind() == KindPerson }
func (e Event) IsAuction() bool { return e.Kind() == KindAuction }
func (e Event) IsBid() bool     { return e.Kind() == KindBid }

// Key is the entity id an event is partitioned by: the person id, the
// auction id, or the auction a bid targets.
func (e Event) Key() uint64 {
	switch r := e.rec.(type) {
	case Person:
		return r.ID
	case Auction:
		return r.ID
	case Bid:
		return r.Auction
	}
	return 0
}

// DateTime is the event timestamp in milliseconds since the unix epoch.
func (e Event) DateTime() uint64 {
	switch r := e.rec.(type) {
	case Person:
		return r.DateTime
	case Auction:
		return r.DateTime
	case Bid:
		return r.DateTime
	}
	return 0
}

func (e Event) String() string {
	if e.rec == nil {
		return "Event()"
	}
	return e.rec.String()
}

// FromGenerated copies a generator event field by field.
func FromGenerated(ev generator.Event) (Event, error) {
	switch g := ev.(type) {
	case *generator.Person:
		return NewPerson(Person{
			ID:           g.ID,
			Name:         g.Name,
			EmailAddress: g.EmailAddress,
			CreditCard:   g.CreditCard,
			City:         g.City,
			State:        g.State,
			DateTime:     g.DateTime,
			Extra:        g.Extra,
		}), nil
	case *generator.Auction:
		return NewAuction(Auction{
			ID:          g.ID,
			ItemName:    g.ItemName,
			Description: g.Description,
			InitialBid:  g.InitialBid,
			Reserve:     g.Reserve,
			DateTime:    g.DateTime,
			Expires:     g.Expires,
			Seller:      g.Seller,
			Category:    g.Category,
			Extra:       g.Extra,
		}), nil
	case *generator.Bid:
		return NewBid(Bid{
			Auction:  g.Auction,
			Bidder:   g.Bidder,
			Price:    g.Price,
			DateTime: g.DateTime,
			Channel:  g.Channel,
			URL:      g.URL,
			Extra:    g.Extra,
		}), nil
	}
	return Event{}, &TypeError{Value: ev, Msg: "unknown generator event"}
}
