package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// tagged is the explicit-kind JSON form of an Event:
//
//	{"kind":"bid","data":{"auction":1,...}}
type tagged struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	if e.rec == nil {
		return nil, &SerializationError{Err: errors.New("zero event")}
	}
	data, err := EncodeJSON(e.rec)
	if err != nil {
		return nil, err
	}
	return json.Marshal(tagged{Kind: e.rec.Kind(), Data: data})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	ev, err := ParseTagged(data)
	if err != nil {
		return err
	}
	*e = ev
	return nil
}

// ParseTagged decodes the explicit-kind form produced by Event.MarshalJSON.
// The payload is decoded strictly against the named kind; no sniffing.
func ParseTagged(data []byte) (Event, error) {
	var t tagged
	if err := json.Unmarshal(data, &t); err != nil {
		return Event{}, &DecodeError{Err: err}
	}
	if !t.Kind.Valid() {
		return Event{}, &DecodeError{Kind: t.Kind, Field: "kind", Err: fmt.Errorf("unknown kind %q", t.Kind)}
	}
	if len(t.Data) == 0 {
		return Event{}, &DecodeError{Kind: t.Kind, Field: "data", Err: errMissing}
	}
	r, err := Decode(t.Kind, t.Data)
	if err != nil {
		return Event{}, err
	}
	return New(r), nil
}
