package event

import (
	"encoding/json"
	"errors"
)

const resolveMsg = "value is not a Person, Auction, Bid, or matching JSON"

// Resolve builds an Event from an arbitrary value. The first rule that
// matches wins:
//
//  1. Person, Auction, Bid (or non-nil pointers to them) are wrapped as is;
//     an Event is returned unchanged.
//  2. Text (string, []byte, json.RawMessage) is decoded against the Person,
//     Auction and Bid schemas in that order; the first schema that decodes
//     picks the variant.
//  3. Anything else is a *TypeError.
//
// Rule 2 is ambiguous when a document satisfies more than one schema, for
// example a bid that also carries every person field. The fixed order is
// part of the contract. Callers that know the kind should use Decode or
// ParseTagged instead.
func Resolve(v any) (Event, error) {
	switch x := v.(type) {
	case Event:
		if x.IsZero() {
			return Event{}, &TypeError{Value: v, Msg: resolveMsg}
		}
		return x, nil
	case Person:
		return NewPerson(x), nil
	case Auction:
		return NewAuction(x), nil
	case Bid:
		return NewBid(x), nil
	case *Person:
		if x != nil {
			return NewPerson(*x), nil
		}
	case *Auction:
		if x != nil {
			return NewAuction(*x), nil
		}
	case *Bid:
		if x != nil {
			return NewBid(*x), nil
		}
	case string:
		return resolveText(v, []byte(x))
	case []byte:
		return resolveText(v, x)
	case json.RawMessage:
		return resolveText(v, x)
	}
	return Event{}, &TypeError{Value: v, Msg: resolveMsg}
}

func resolveText(v any, data []byte) (Event, error) {
	if p, err := DecodePerson(data); err == nil {
		return NewPerson(p), nil
	}
	if a, err := DecodeAuction(data); err == nil {
		return NewAuction(a), nil
	}
	b, err := DecodeBid(data)
	if err == nil {
		return NewBid(b), nil
	}
	var de *DecodeError
	if errors.As(err, &de) && de.Field == "" {
		return Event{}, &TypeError{Value: v, Msg: resolveMsg + ": " + de.Err.Error()}
	}
	return Event{}, &TypeError{Value: v, Msg: resolveMsg}
}
