package gateway

import (
	"sync"
	"testing"
	"time"

	"chaser/internal/obs"
	"chaser/internal/schema"
)

func TestSignKnownVectors(t *testing.T) {
	cases := []struct {
		secret  string
		expires int64
		want    string
	}{
		{"test-secret", 1_700_000_000_000, "5e1a6810262f270b783cf759f856aadee413643be3c03d0fb89dd22261e41df0"},
		{"api-secret-2", 1_700_000_000_000, "1ea7204cbf2704cb8fe9c2de48d4bea6c63a18c931780817e78a61478f03e7b5"},
	}
	for _, tc := range cases {
		if got := sign(tc.secret, tc.expires); got != tc.want {
			t.Fatalf("sign(%q) mismatch:\n got %s\nwant %s", tc.secret, got, tc.want)
		}
	}
}

type sinkRecorder struct {
	mu      sync.Mutex
	updates []schema.OrderUpdate
}

func (r *sinkRecorder) sink(u schema.OrderUpdate) {
	r.mu.Lock()
	r.updates = append(r.updates, u)
	r.mu.Unlock()
}

func (r *sinkRecorder) all() []schema.OrderUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schema.OrderUpdate(nil), r.updates...)
}

func newTestGateway(t *testing.T) (*Gateway, *sinkRecorder) {
	t.Helper()
	g := New(Config{URL: "wss://example.invalid", APIKey: "k", APISecret: "s"}, obs.NewMetrics())
	g.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	rec := &sinkRecorder{}
	g.SetStatusSink(rec.sink)
	return g, rec
}

func TestDispatchClassification(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    schema.OrderStatus
	}{
		{"create ack ok", `{"reqId":"BOT-1","op":"order.create","retCode":0}`, schema.OrderStatusNew},
		{"create ack rejected", `{"reqId":"BOT-1","op":"order.create","retCode":110007,"retMsg":"insufficient balance"}`, schema.OrderStatusRejected},
		{"cancel ack ok", `{"reqId":"BOT-1","op":"order.cancel","retCode":0}`, schema.OrderStatusCancelled},
		{"cancel ack rejected", `{"reqId":"BOT-1","op":"order.cancel","retCode":110001,"retMsg":"order not exists or too late"}`, schema.OrderStatusRejected},
		{"execution report", `{"topic":"execution","data":[{"symbol":"BTCUSDT","orderLinkId":"BOT-1","side":"Buy","execQty":"0.01"}]}`, schema.OrderStatusFilled},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, rec := newTestGateway(t)
			g.register("BOT-1", "BTCUSDT")

			g.dispatch([]byte(tc.payload))

			updates := rec.all()
			if len(updates) != 1 {
				t.Fatalf("emitted %d updates, want 1", len(updates))
			}
			u := updates[0]
			if u.ClientID != "BOT-1" || u.Status != tc.want || u.Symbol != "BTCUSDT" {
				t.Fatalf("update mismatch: %+v", u)
			}
		})
	}
}

func TestDispatchDropsUnknownCorrelation(t *testing.T) {
	g, rec := newTestGateway(t)

	g.dispatch([]byte(`{"reqId":"GHOST","op":"order.create","retCode":0}`))
	g.dispatch([]byte(`{"topic":"execution","data":[{"orderLinkId":"GHOST","symbol":"BTCUSDT"}]}`))
	if len(rec.all()) != 0 {
		t.Fatalf("unknown ids not dropped: %+v", rec.all())
	}
}

func TestDispatchIgnoresMalformedFrame(t *testing.T) {
	g, rec := newTestGateway(t)
	g.register("BOT-1", "BTCUSDT")

	g.dispatch([]byte(`{"truncated`))
	g.dispatch([]byte(``))
	if len(rec.all()) != 0 {
		t.Fatalf("malformed frames produced updates: %+v", rec.all())
	}

	// The session keeps working afterwards.
	g.dispatch([]byte(`{"reqId":"BOT-1","op":"order.create","retCode":0}`))
	if len(rec.all()) != 1 {
		t.Fatal("gateway dead after malformed frame")
	}
}

func TestTerminalStatusEvictsInflight(t *testing.T) {
	g, rec := newTestGateway(t)
	g.register("BOT-1", "BTCUSDT")

	g.dispatch([]byte(`{"reqId":"BOT-1","op":"order.create","retCode":0}`))
	g.dispatch([]byte(`{"topic":"execution","data":[{"orderLinkId":"BOT-1","symbol":"BTCUSDT"}]}`))

	// A late cancel ack for the evicted id is dropped, matching the
	// ordering contract: New → terminal, then silence.
	g.dispatch([]byte(`{"reqId":"BOT-1","op":"order.cancel","retCode":0}`))

	updates := rec.all()
	if len(updates) != 2 {
		t.Fatalf("updates: got %d want 2: %+v", len(updates), updates)
	}
	if updates[0].Status != schema.OrderStatusNew || updates[1].Status != schema.OrderStatusFilled {
		t.Fatalf("ordering mismatch: %+v", updates)
	}
}

// TestReassembledFrameParsesOnce mirrors the fragmented inbound
// scenario: the session concatenates the fragments and dispatch runs
// exactly once on the whole message, emitting a single fill.
func TestReassembledFrameParsesOnce(t *testing.T) {
	g, rec := newTestGateway(t)
	g.register("BOT-1", "BTCUSDT")

	fragments := []string{
		`{"topic":"execution","data":[{"symbol":"BTC`,
		`USDT","orderLinkId":"BOT-1","side":"Buy",`,
		`"execQty":"0.01","execPrice":"100.05"}]}`,
	}

	var rx []byte
	for _, f := range fragments {
		rx = append(rx, f...)
	}
	g.dispatch(rx)

	updates := rec.all()
	if len(updates) != 1 {
		t.Fatalf("emitted %d updates, want exactly 1", len(updates))
	}
	if updates[0].Status != schema.OrderStatusFilled {
		t.Fatalf("status mismatch: %+v", updates[0])
	}
}

func TestMultipleExecutionsEmitPerFill(t *testing.T) {
	g, rec := newTestGateway(t)
	g.register("BOT-1", "BTCUSDT")
	g.register("BOT-2", "BTCUSDT")

	g.dispatch([]byte(`{"topic":"execution","data":[` +
		`{"orderLinkId":"BOT-1","symbol":"BTCUSDT","execQty":"0.005"},` +
		`{"orderLinkId":"BOT-2","symbol":"BTCUSDT","execQty":"0.005"}]}`))

	if len(rec.all()) != 2 {
		t.Fatalf("per-fill dispatch mismatch: %+v", rec.all())
	}
}

func TestFormatFloatTrimsTrailingZeros(t *testing.T) {
	cases := map[float64]string{
		0.01:   "0.01",
		100.05: "100.05",
		2:      "2",
	}
	for v, want := range cases {
		if got := formatFloat(v); got != want {
			t.Fatalf("formatFloat(%v): got %q want %q", v, got, want)
		}
	}
}
