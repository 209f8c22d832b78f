package strategy

import (
	"context"
	"time"
)

// Trade is one completed cycle, entry fill to exit fill.
type Trade struct {
	Symbol     string
	Direction  string
	EntryPrice float64
	ExitPrice  float64
	Qty        float64
	PnlPct     float64
	Pnl        float64
	Step       int
	Win        bool
	OpenedAt   time.Time
	ClosedAt   time.Time
}

// TradeRecorder persists completed trades. The engine tolerates a nil
// recorder and recorder errors alike.
type TradeRecorder interface {
	Record(ctx context.Context, trade Trade) error
}

// Stats accumulates cycle statistics for the status log.
type Stats struct {
	Trades      int
	Wins        int
	TotalProfit float64
	CumLoss     float64
	LastPnlPct  float64
	LastPnl     float64
}
