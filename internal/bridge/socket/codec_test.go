package socket

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/fabricekabongo/nexmark/event"
)

func TestFrameRoundTrip(t *testing.T) {
	in := []byte("hello")
	var b bytes.Buffer
	if err := WriteFrame(&b, in); err != nil {
		t.Fatal(err)
	}
	out, err := ReadFrame(bufio.NewReader(&b))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != string(in) {
		t.Fatalf("got %q", out)
	}
}

func TestFrameRejectsOversized(t *testing.T) {
	tooBig := make([]byte, MaxFrameSize+1)
	var b bytes.Buffer
	if err := WriteFrame(&b, tooBig); err == nil {
		t.Fatal("expected error")
	}
	if _, err := ReadFrame(bufio.NewReader(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff}))); err == nil {
		t.Fatal("expected oversized header error")
	}
}

func TestFrameRejectsEmpty(t *testing.T) {
	if _, err := ReadFrame(bufio.NewReader(bytes.NewReader([]byte{0, 0, 0, 0}))); err == nil {
		t.Fatal("expected empty frame error")
	}
}

func TestProtoRoundTrip(t *testing.T) {
	req := &SocketRequest{RequestId: "1", Operation: int32(OperationTake), Take: &TakeRequest{N: 5}}
	payload, err := MarshalMessage(req)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := UnmarshalRequest(payload)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.RequestId != "1" || Operation(decoded.Operation) != OperationTake || decoded.Take == nil || decoded.Take.N != 5 {
		t.Fatalf("bad decode: %+v", decoded)
	}
}

func TestWireEventRoundTrip(t *testing.T) {
	in := event.NewAuction(event.Auction{ID: 1000, ItemName: "vase", Description: "blue", InitialBid: 10, Reserve: 20, DateTime: 1, Expires: 2, Seller: 1001, Category: 10, Extra: "x"})
	w, err := EncodeEvent(in)
	if err != nil {
		t.Fatal(err)
	}
	if w.Kind != "auction" {
		t.Fatalf("unexpected kind %q", w.Kind)
	}
	out, err := DecodeEvent(w)
	if err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: %v vs %v", out, in)
	}
}

func TestWireEventRejectsKindMismatch(t *testing.T) {
	w, err := EncodeEvent(event.NewPerson(event.Person{ID: 1}))
	if err != nil {
		t.Fatal(err)
	}
	w.Kind = "bid"
	if _, err := DecodeEvent(w); err == nil {
		t.Fatal("expected decode error for person payload tagged as bid")
	}
	if _, err := EncodeEvent(event.Event{}); err == nil {
		t.Fatal("expected error encoding zero event")
	}
}

func TestValidateRequest(t *testing.T) {
	cases := []*SocketRequest{
		nil,
		{},
		{Operation: int32(OperationTake)},
		{Operation: int32(OperationResolve)},
	}
	for i, req := range cases {
		if err := ValidateRequest(req); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
	if err := ValidateRequest(&SocketRequest{Operation: int32(OperationNext)}); err != nil {
		t.Fatal(err)
	}
}
