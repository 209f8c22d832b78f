package durable

import (
	"testing"

	"chaser/internal/codec"
	"chaser/internal/schema"
)

type fakeBroadcaster struct {
	payloads [][]byte
	failFor  int
}

func (b *fakeBroadcaster) Offer(payload []byte) bool {
	if b.failFor > 0 {
		b.failFor--
		return false
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	b.payloads = append(b.payloads, cp)
	return true
}

func TestPutGetDeactivate(t *testing.T) {
	b := NewBuffer(nil)
	rec := schema.NewOrderRecord("BOT-1", "BTCUSDT", schema.SideBuy, 100.05, 0.01, 7)

	b.Put(rec)
	got, ok := b.Get("BTCUSDT")
	if !ok || got != rec {
		t.Fatalf("get mismatch: %+v ok=%v", got, ok)
	}
	if !b.HasActive("BTCUSDT") {
		t.Fatal("active record not reported")
	}

	b.Deactivate("BTCUSDT")
	if b.HasActive("BTCUSDT") {
		t.Fatal("record still active after deactivate")
	}
	got, ok = b.Get("BTCUSDT")
	if !ok || got.IsActive {
		t.Fatal("deactivated record not queryable")
	}

	// Unknown symbols are inert.
	if b.HasActive("ETHUSDT") {
		t.Fatal("unknown symbol reported active")
	}
	b.Deactivate("ETHUSDT")
}

func TestPutReplacesBySymbol(t *testing.T) {
	b := NewBuffer(nil)
	b.Put(schema.NewOrderRecord("BOT-1", "BTCUSDT", schema.SideBuy, 100, 0.01, 1))
	b.Put(schema.NewOrderRecord("BOT-2", "BTCUSDT", schema.SideSell, 101, 0.02, 2))

	got, _ := b.Get("BTCUSDT")
	if got.OrderID.String() != "BOT-2" {
		t.Fatalf("replace failed: %+v", got)
	}
}

func TestPutBroadcastsEncodedRecord(t *testing.T) {
	pub := &fakeBroadcaster{}
	b := NewBuffer(pub)
	rec := schema.NewOrderRecord("BOT-9", "BTCUSDT", schema.SideSell, 99.5, 0.08, 3)

	b.Put(rec)
	if len(pub.payloads) != 1 {
		t.Fatalf("broadcast count: got %d want 1", len(pub.payloads))
	}
	decoded, ok := codec.DecodeOrder(pub.payloads[0])
	if !ok || decoded != rec {
		t.Fatalf("broadcast payload mismatch: %+v ok=%v", decoded, ok)
	}

	b.Deactivate("BTCUSDT")
	if len(pub.payloads) != 2 {
		t.Fatalf("deactivate not broadcast: %d", len(pub.payloads))
	}
	decoded, _ = codec.DecodeOrder(pub.payloads[1])
	if decoded.IsActive {
		t.Fatal("deactivate broadcast still active")
	}
}

func TestBroadcastRetriesOnBackpressure(t *testing.T) {
	pub := &fakeBroadcaster{failFor: 2}
	b := NewBuffer(pub)

	if !b.Broadcast([]byte("payload")) {
		t.Fatal("broadcast failed despite retries")
	}
	if len(pub.payloads) != 1 {
		t.Fatalf("retry count mismatch: %d", len(pub.payloads))
	}

	pub = &fakeBroadcaster{failFor: 10}
	b = NewBuffer(pub)
	if b.Broadcast([]byte("payload")) {
		t.Fatal("broadcast reported success under sustained backpressure")
	}
}

func TestRestoreKeepsLatestPerSymbol(t *testing.T) {
	active := schema.NewOrderRecord("BOT-1", "BTCUSDT", schema.SideSell, 100.20, 0.04, 1)
	inactive := active
	inactive.IsActive = false

	other := schema.NewOrderRecord("BOT-2", "ETHUSDT", schema.SideBuy, 2000, 0.5, 2)

	var stream [][]byte
	stream = append(stream, append([]byte(nil), codec.EncodeOrder(nil, active)...))
	stream = append(stream, append([]byte(nil), codec.EncodeOrder(nil, other)...))
	stream = append(stream, append([]byte(nil), codec.EncodeOrder(nil, inactive)...))
	// Foreign templates on the stream are skipped.
	stream = append(stream, append([]byte(nil), codec.EncodeTradeSignal(nil, schema.TradeSignal{Timestamp: 1, Symbol: "BTCUSDT"})...))

	b := NewBuffer(nil)
	err := b.Restore(func(fn func(payload []byte) bool) error {
		for _, p := range stream {
			if !fn(p) {
				break
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}

	if b.HasActive("BTCUSDT") {
		t.Fatal("later deactivation lost during restore")
	}
	if !b.HasActive("ETHUSDT") {
		t.Fatal("active record lost during restore")
	}
}
