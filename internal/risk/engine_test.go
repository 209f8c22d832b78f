package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chaser/internal/schema"
)

func request(qty, price float64) schema.PlaceRequest {
	return schema.PlaceRequest{
		Symbol:   "BTCUSDT",
		Side:     schema.SideBuy,
		Qty:      qty,
		Price:    price,
		ClientID: "BOT-1",
	}
}

func TestKillSwitchDeniesEverything(t *testing.T) {
	e := NewEngine(Config{KillSwitch: true})
	d := e.Evaluate(request(0.01, 100), View{})
	require.False(t, d.Allowed())
	assert.Equal(t, ReasonKillSwitch, d.Reason)
}

func TestMaxQty(t *testing.T) {
	e := NewEngine(Config{MaxOrderQty: 0.5})
	require.True(t, e.Evaluate(request(0.5, 100), View{}).Allowed())

	d := e.Evaluate(request(0.51, 100), View{})
	require.False(t, d.Allowed())
	assert.Equal(t, ReasonMaxQty, d.Reason)
}

func TestPriceBand(t *testing.T) {
	e := NewEngine(Config{MaxPriceDeviationPct: 0.01})

	require.True(t, e.Evaluate(request(0.01, 100.5), View{FairPrice: 100}).Allowed())

	d := e.Evaluate(request(0.01, 102), View{FairPrice: 100})
	require.False(t, d.Allowed())
	assert.Equal(t, ReasonPriceBand, d.Reason)

	// Without a fair price the band cannot be evaluated.
	assert.True(t, e.Evaluate(request(0.01, 102), View{}).Allowed())
}

func TestOrderRateLimit(t *testing.T) {
	e := NewEngine(Config{OrderRateLimit: 2, OrderRateWindow: time.Second})
	now := time.Unix(1_700_000_000, 0)

	require.True(t, e.Evaluate(request(0.01, 100), View{Now: now}).Allowed())
	require.True(t, e.Evaluate(request(0.01, 100), View{Now: now}).Allowed())

	d := e.Evaluate(request(0.01, 100), View{Now: now})
	require.False(t, d.Allowed())
	assert.Equal(t, ReasonRateLimit, d.Reason)

	// The window rolls over and the budget refreshes.
	later := now.Add(2 * time.Second)
	assert.True(t, e.Evaluate(request(0.01, 100), View{Now: later}).Allowed())
}

func TestZeroConfigAllowsAll(t *testing.T) {
	e := NewEngine(Config{})
	for i := 0; i < 100; i++ {
		require.True(t, e.Evaluate(request(10, 100), View{FairPrice: 1}).Allowed())
	}
}
