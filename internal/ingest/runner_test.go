package ingest

import (
	"testing"

	"chaser/internal/book"
	"chaser/internal/obs"
	"chaser/internal/symbols"
)

func TestParseLevelsDropsMalformedEntries(t *testing.T) {
	raw := [][2]string{
		{"100.05", "1.5"},
		{"not-a-number", "1"},
		{"100.00", "zero"},
		{"0", "2"},
		{"99.95", "0"},
		{"99.90", "3"},
	}

	levels := parseLevels(raw)
	if len(levels) != 2 {
		t.Fatalf("parsed %d levels, want 2: %+v", len(levels), levels)
	}
	if levels[0].Price != 100.05 || levels[1].Price != 99.90 {
		t.Fatalf("levels mismatch: %+v", levels)
	}
}

func newTestRunner() (*Runner, *book.Manager) {
	books := book.NewManager()
	return &Runner{
		cfg:     Config{Symbols: []string{"BTCUSDT"}, Depth: 50},
		books:   books,
		subbed:  symbols.NewSet("BTCUSDT"),
		metrics: obs.NewMetrics(),
	}, books
}

func bookMessage(kind string, bids, asks [][2]string) BybitBookMessage {
	var m BybitBookMessage
	m.Topic = "orderbook.50.BTCUSDT"
	m.Type = kind
	m.Data.Symbol = "BTCUSDT"
	m.Data.Bids = bids
	m.Data.Asks = asks
	return m
}

func TestApplySnapshotReplacesBothSides(t *testing.T) {
	r, books := newTestRunner()

	r.apply(bookMessage("snapshot",
		[][2]string{{"100.00", "1"}, {"99.90", "2"}},
		[][2]string{{"100.10", "1"}},
	))

	b := books.Get("BTCUSDT")
	if b == nil {
		t.Fatal("book not created")
	}
	bid, ok := b.BestBid()
	if !ok || bid.Price != 100.00 {
		t.Fatalf("best bid mismatch: %+v ok=%v", bid, ok)
	}
	ask, ok := b.BestAsk()
	if !ok || ask.Price != 100.10 {
		t.Fatalf("best ask mismatch: %+v ok=%v", ask, ok)
	}
	if b.UpdateID() != 1 {
		t.Fatalf("update id: got %d want 1", b.UpdateID())
	}
}

func TestApplyDeltaKeepsUntouchedSide(t *testing.T) {
	r, books := newTestRunner()

	r.apply(bookMessage("snapshot",
		[][2]string{{"100.00", "1"}},
		[][2]string{{"100.10", "1"}},
	))
	// A delta carrying only bids must not wipe the ask side.
	r.apply(bookMessage("delta",
		[][2]string{{"100.02", "1"}},
		nil,
	))

	b := books.Get("BTCUSDT")
	bid, _ := b.BestBid()
	if bid.Price != 100.02 {
		t.Fatalf("bid not updated: %+v", bid)
	}
	ask, ok := b.BestAsk()
	if !ok || ask.Price != 100.10 {
		t.Fatalf("ask side wiped by one-sided delta: %+v ok=%v", ask, ok)
	}
	if b.UpdateID() != 2 {
		t.Fatalf("update id: got %d want 2", b.UpdateID())
	}
}

func TestApplyIgnoresEmptyMessage(t *testing.T) {
	r, books := newTestRunner()
	r.apply(bookMessage("delta", nil, nil))

	b := books.Get("BTCUSDT")
	if b != nil && b.UpdateID() != 0 {
		t.Fatal("empty message bumped the update id")
	}
}
