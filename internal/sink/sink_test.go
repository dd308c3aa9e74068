package sink

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/fabricekabongo/nexmark/event"
	"github.com/fabricekabongo/nexmark/internal/storage"
	"github.com/fabricekabongo/nexmark/internal/storage/sqlite"
)

func TestSubjects(t *testing.T) {
	got := Subjects("nexmark")
	want := []string{"nexmark.person", "nexmark.auction", "nexmark.bid"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("subject %d = %q, want %q", i, got[i], want[i])
		}
	}
	if Subject("", event.KindBid) != "bid" {
		t.Fatalf("empty prefix must yield the bare kind")
	}
}

func TestStoreAppenderReportsDuplicates(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	app := StoreAppender{Engine: store}
	d := Delivery{Event: event.NewBid(event.Bid{Auction: 1000, Bidder: 1001, Price: 5}), Source: "kafka/nexmark.bid/0", Seq: 42}
	if err := app.Append(ctx, d); err != nil {
		t.Fatal(err)
	}
	if err := app.Append(ctx, d); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	entries, err := store.Scan(ctx, storage.Query{Source: d.Source})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Seq != 42 || entries[0].Kind != event.KindBid {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestStoreAppenderRejectsZeroEvent(t *testing.T) {
	app := StoreAppender{}
	if err := app.Append(context.Background(), Delivery{Source: "x"}); err == nil {
		t.Fatalf("expected error for zero event")
	}
}
