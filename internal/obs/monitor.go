package obs

import (
	"context"
	"time"

	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
)

const defaultMonitorInterval = 5 * time.Second

// Monitor periodically logs a metrics block so a long-running engine
// stays observable from the log alone.
type Monitor struct {
	metrics  *Metrics
	interval time.Duration
}

// NewMonitor creates a monitor over the given metrics.
func NewMonitor(metrics *Metrics, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = defaultMonitorInterval
	}
	return &Monitor{metrics: metrics, interval: interval}
}

// Run blocks until the context is done or the process shuts down.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sys.Shutdown():
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := m.metrics.Snapshot()
			logs.Infof("stats: book_updates=%d shm=%d placed=%d cancelled=%d fills=%d rejects=%d drops=%d trades=%d wins=%d ack_avg=%s",
				s.BookUpdates, s.ShmPublished, s.OrdersPlaced, s.OrdersCanceled,
				s.Fills, s.Rejects, s.UpdateDrops, s.Trades, s.Wins, s.AckLatency.Avg)
		}
	}
}
