package obs

import (
	"sync/atomic"
	"time"
)

// Metrics collects lightweight engine counters. All methods are safe
// for concurrent use and nil-tolerant so callers never guard.
type Metrics struct {
	bookUpdates    atomic.Uint64
	shmPublished   atomic.Uint64
	ordersPlaced   atomic.Uint64
	ordersCanceled atomic.Uint64
	fills          atomic.Uint64
	rejects        atomic.Uint64
	updateDrops    atomic.Uint64
	trades         atomic.Uint64
	wins           atomic.Uint64

	ackLatency LatencyStats
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncBookUpdate() {
	if m != nil {
		m.bookUpdates.Add(1)
	}
}

func (m *Metrics) IncShmPublished() {
	if m != nil {
		m.shmPublished.Add(1)
	}
}

func (m *Metrics) IncOrderPlaced() {
	if m != nil {
		m.ordersPlaced.Add(1)
	}
}

func (m *Metrics) IncOrderCanceled() {
	if m != nil {
		m.ordersCanceled.Add(1)
	}
}

func (m *Metrics) IncFill() {
	if m != nil {
		m.fills.Add(1)
	}
}

func (m *Metrics) IncReject() {
	if m != nil {
		m.rejects.Add(1)
	}
}

func (m *Metrics) IncUpdateDrop() {
	if m != nil {
		m.updateDrops.Add(1)
	}
}

// ObserveTrade records a completed cycle.
func (m *Metrics) ObserveTrade(win bool) {
	if m == nil {
		return
	}
	m.trades.Add(1)
	if win {
		m.wins.Add(1)
	}
}

// ObserveAck measures a request round trip.
func (m *Metrics) ObserveAck(d time.Duration) {
	if m != nil {
		m.ackLatency.Observe(d)
	}
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	BookUpdates    uint64
	ShmPublished   uint64
	OrdersPlaced   uint64
	OrdersCanceled uint64
	Fills          uint64
	Rejects        uint64
	UpdateDrops    uint64
	Trades         uint64
	Wins           uint64
	AckLatency     LatencySnapshot
}

// Snapshot copies the current values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		BookUpdates:    m.bookUpdates.Load(),
		ShmPublished:   m.shmPublished.Load(),
		OrdersPlaced:   m.ordersPlaced.Load(),
		OrdersCanceled: m.ordersCanceled.Load(),
		Fills:          m.fills.Load(),
		Rejects:        m.rejects.Load(),
		UpdateDrops:    m.updateDrops.Load(),
		Trades:         m.trades.Load(),
		Wins:           m.wins.Load(),
		AckLatency:     m.ackLatency.Snapshot(),
	}
}
