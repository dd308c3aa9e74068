package event

import (
	"encoding/json"
	"errors"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// EncodeJSON renders r as a flat JSON object with one key per field.
func EncodeJSON(r Record) ([]byte, error) {
	if r == nil {
		return nil, &SerializationError{Err: errors.New("nil record")}
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, &SerializationError{Kind: r.Kind(), Err: err}
	}
	return b, nil
}

// ToMapping projects r onto an ordered key/value map with the same keys and
// values as its JSON encoding. Numbers are uint64, text is string. A nil
// record yields an empty map.
func ToMapping(r Record) *orderedmap.OrderedMap[string, any] {
	m := orderedmap.New[string, any]()
	if r == nil {
		return m
	}
	for _, f := range r.fields() {
		m.Set(f.name, f.value)
	}
	return m
}

// Fields lists the JSON keys of a kind in declaration order.
func Fields(k Kind) []string {
	r, err := zero(k)
	if err != nil {
		return nil
	}
	fs := r.fields()
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.name
	}
	return out
}

func DecodePerson(data []byte) (Person, error) {
	var p Person
	if err := decodeInto(KindPerson, data, p.refs()); err != nil {
		return Person{}, err
	}
	return p, nil
}

func DecodeAuction(data []byte) (Auction, error) {
	var a Auction
	if err := decodeInto(KindAuction, data, a.refs()); err != nil {
		return Auction{}, err
	}
	return a, nil
}

func DecodeBid(data []byte) (Bid, error) {
	var b Bid
	if err := decodeInto(KindBid, data, b.refs()); err != nil {
		return Bid{}, err
	}
	return b, nil
}

// Decode decodes data against the schema of kind k.
func Decode(k Kind, data []byte) (Record, error) {
	switch k {
	case KindPerson:
		return orNil(DecodePerson(data))
	case KindAuction:
		return orNil(DecodeAuction(data))
	case KindBid:
		return orNil(DecodeBid(data))
	}
	return nil, &DecodeError{Kind: k, Err: fmt.Errorf("unknown kind %q", k)}
}

func orNil[R Record](r R, err error) (Record, error) {
	if err != nil {
		return nil, err
	}
	return r, nil
}

// decodeInto requires every field to be present, non-null and of the right
// JSON type. Keys outside the schema are ignored.
func decodeInto(k Kind, data []byte, fs []field) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return &DecodeError{Kind: k, Err: err}
	}
	if obj == nil {
		return &DecodeError{Kind: k, Err: errors.New("expected a JSON object")}
	}
	for _, f := range fs {
		raw, ok := obj[f.name]
		if !ok {
			return &DecodeError{Kind: k, Field: f.name, Err: errMissing}
		}
		if string(raw) == "null" {
			return &DecodeError{Kind: k, Field: f.name, Err: errNull}
		}
		if err := json.Unmarshal(raw, f.ptr); err != nil {
			return &DecodeError{Kind: k, Field: f.name, Err: err}
		}
	}
	return nil
}

func zero(k Kind) (Record, error) {
	switch k {
	case KindPerson:
		return Person{}, nil
	case KindAuction:
		return Auction{}, nil
	case KindBid:
		return Bid{}, nil
	}
	return nil, fmt.Errorf("unknown kind %q", k)
}
