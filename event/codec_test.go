package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/rand"
	"strconv"
	"testing"
	"testing/quick"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeJSONFlatObject(t *testing.T) {
	for _, r := range []Record{samplePerson, sampleAuction, sampleBid} {
		data, err := EncodeJSON(r)
		require.NoError(t, err)

		var obj map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(data, &obj))
		assert.Len(t, obj, len(Fields(r.Kind())), "kind %s", r.Kind())
		for _, name := range Fields(r.Kind()) {
			assert.Contains(t, obj, name)
		}
	}

	data, err := EncodeJSON(sampleBid)
	require.NoError(t, err)
	assert.JSONEq(t, `{"auction":1002,"bidder":1001,"price":150,"date_time":1436918400002,"channel":"Google","url":"https://www.nexmark.com/google/item.htm?query=1","extra":"x"}`, string(data))
}

func TestEncodeJSONNilRecord(t *testing.T) {
	_, err := EncodeJSON(nil)
	var se *SerializationError
	assert.ErrorAs(t, err, &se)
}

func TestRoundTripProperty(t *testing.T) {
	cfg := &quick.Config{Rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
	if err := quick.Check(func(p Person) bool {
		data, err := EncodeJSON(p)
		if err != nil {
			return false
		}
		got, err := DecodePerson(data)
		return err == nil && got == p
	}, cfg); err != nil {
		t.Fatalf("person round trip: %v", err)
	}
	if err := quick.Check(func(a Auction) bool {
		data, err := EncodeJSON(a)
		if err != nil {
			return false
		}
		got, err := DecodeAuction(data)
		return err == nil && got == a
	}, cfg); err != nil {
		t.Fatalf("auction round trip: %v", err)
	}
	if err := quick.Check(func(b Bid) bool {
		data, err := EncodeJSON(b)
		if err != nil {
			return false
		}
		got, err := Decode(KindBid, data)
		return err == nil && got == Record(b)
	}, cfg); err != nil {
		t.Fatalf("bid round trip: %v", err)
	}
}

func TestMappingMatchesJSON(t *testing.T) {
	for _, r := range []Record{samplePerson, sampleAuction, sampleBid} {
		data, err := EncodeJSON(r)
		require.NoError(t, err)

		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var generic map[string]any
		require.NoError(t, dec.Decode(&generic))

		m := ToMapping(r)
		require.Equal(t, len(generic), m.Len())

		var keys []string
		for pair := m.Oldest(); pair != nil; pair = pair.Next() {
			keys = append(keys, pair.Key)
			want, ok := generic[pair.Key]
			require.True(t, ok, "unexpected key %q", pair.Key)
			switch v := pair.Value.(type) {
			case uint64:
				assert.Equal(t, json.Number(strconv.FormatUint(v, 10)), want, pair.Key)
			case string:
				assert.Equal(t, v, want, pair.Key)
			default:
				t.Fatalf("unexpected mapping value type %T for %q", v, pair.Key)
			}
		}
		assert.Equal(t, Fields(r.Kind()), keys)
	}
}

func TestMappingOfNilRecordIsEmpty(t *testing.T) {
	m := ToMapping(Event{}.Value())
	require.NotNil(t, m)
	assert.Equal(t, 0, m.Len())
}

func TestDecodeRejectsSchemaMismatch(t *testing.T) {
	valid := `"auction":1,"bidder":2,"price":100,"date_time":0,"channel":"c","url":"u","extra":""`
	cases := []struct {
		name  string
		in    string
		field string
	}{
		{"invalid json", `{"auction":`, ""},
		{"array", `[1,2]`, ""},
		{"top level null", `null`, ""},
		{"missing field", `{"auction":1,"bidder":2,"price":100,"date_time":0,"channel":"c","url":"u"}`, "extra"},
		{"null field", `{` + valid + `,"price":null}`, "price"},
		{"string for number", `{"auction":"1","bidder":2,"price":100,"date_time":0,"channel":"c","url":"u","extra":""}`, "auction"},
		{"negative", `{"auction":1,"bidder":-2,"price":100,"date_time":0,"channel":"c","url":"u","extra":""}`, "bidder"},
		{"fraction", `{"auction":1,"bidder":2,"price":1.5,"date_time":0,"channel":"c","url":"u","extra":""}`, "price"},
		{"number for string", `{"auction":1,"bidder":2,"price":100,"date_time":0,"channel":7,"url":"u","extra":""}`, "channel"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := DecodeBid([]byte(c.in))
			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, KindBid, de.Kind)
			assert.Equal(t, c.field, de.Field)
		})
	}
}

func TestDecodeMissingFieldSentinel(t *testing.T) {
	_, err := DecodePerson([]byte(`{"id":1}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errMissing))
}

func TestDecodeIgnoresUnknownKeys(t *testing.T) {
	b, err := DecodeBid([]byte(`{"auction":1,"bidder":2,"price":100,"date_time":0,"channel":"c","url":"u","extra":"","referrer":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, Bid{Auction: 1, Bidder: 2, Price: 100, Channel: "c", URL: "u"}, b)
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode(Kind("order"), []byte(`{}`))
	var de *DecodeError
	assert.ErrorAs(t, err, &de)
}

func TestDecodeKeepsFullUint64Range(t *testing.T) {
	p := samplePerson
	p.ID = 1<<64 - 1
	p.DateTime = 1<<63 + 5
	data, err := EncodeJSON(p)
	require.NoError(t, err)
	got, err := DecodePerson(data)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestSchemaRequiresEveryField(t *testing.T) {
	for _, k := range Kinds {
		s := Schema(k)
		require.NotNil(t, s, "kind %s", k)
		assert.ElementsMatch(t, Fields(k), s.Required)
		assert.Equal(t, len(Fields(k)), s.Properties.Len())
	}
	assert.Nil(t, Schema(Kind("order")))
}
