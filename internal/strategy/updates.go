package strategy

import (
	"context"

	"github.com/yanun0323/logs"

	"chaser/internal/schema"
)

// applyUpdate routes one asynchronous order status to the entry or
// exit handler. Statuses for ids the engine does not own are dropped,
// as are statuses arriving after a perceived terminal state.
func (e *Engine) applyUpdate(ctx context.Context, u schema.OrderUpdate) {
	switch u.ClientID {
	case "":
		return
	case e.activeEntryID:
		e.applyEntryUpdate(ctx, u.Status)
	case e.activeExitID:
		e.applyExitUpdate(ctx, u.Status)
	default:
		logs.Warnf("drop unsolicited update, id: %s, status: %s", u.ClientID, u.Status)
	}
}

func (e *Engine) applyEntryUpdate(ctx context.Context, status schema.OrderStatus) {
	logs.Infof("entry update, id: %s, status: %s, state: %s", e.activeEntryID, status, e.state)

	switch status {
	case schema.OrderStatusNew:
		if e.state == StatePlacing {
			e.state = StateWorking
			e.stateEntryTime = e.now()
		}

	case schema.OrderStatusFilled:
		if e.filled {
			return
		}
		e.enterPosition(ctx)

	case schema.OrderStatusCancelled:
		switch e.state {
		case StatePlacing, StateWorking, StateCancelling:
			e.clearEntry()
			e.state = StateIdle
			logs.Info("entry cancelled, back to idle")
		}

	case schema.OrderStatusRejected:
		switch e.state {
		case StateCancelling:
			// The cancel lost the race: the order filled before the
			// venue processed it. Treat the position as open.
			logs.Warn("cancel rejected, order likely filled, moving to position")
			e.enterPosition(ctx)
		case StatePlacing, StateWorking:
			logs.Warn("entry rejected, back to idle")
			e.clearEntry()
			e.state = StateIdle
		}
	}
}

// enterPosition marks the entry filled and rests the take profit.
func (e *Engine) enterPosition(ctx context.Context) {
	e.filled = true
	e.state = StateInPosition
	e.positionEntryTime = e.now()
	e.stats.LastPnlPct = 0
	e.stats.LastPnl = 0
	logs.Infof("entry filled at %v, monitoring pnl", e.entryPrice)
	e.publishSignal(schema.SignalActionOpen, e.entryPrice)
	e.placeExit(ctx)
}

func (e *Engine) applyExitUpdate(ctx context.Context, status schema.OrderStatus) {
	logs.Infof("exit update, id: %s, status: %s, state: %s", e.activeExitID, status, e.state)

	switch status {
	case schema.OrderStatusNew:

	case schema.OrderStatusFilled:
		e.closePosition(ctx)

	case schema.OrderStatusCancelled:
		// Either our own stop-loss flow removed the resting exit, or a
		// timed-out close came back. The position stays open and the
		// position handler replaces whichever exit is still needed.
		e.activeExitID = ""
		e.waitingClose = false
		if e.filled {
			e.state = StateInPosition
		}

	case schema.OrderStatusRejected:
		if e.waitingClose {
			// The aggressive close bounced; retry from the position
			// handler on the next tick.
			e.activeExitID = ""
			e.waitingClose = false
			e.state = StateInPosition
			logs.Warn("close rejected, retrying")
		} else {
			// Take-profit placement rejected (e.g. post-only crossed);
			// it is re-placed on the next position tick.
			e.activeExitID = ""
			logs.Warn("exit rejected, will re-place")
		}
	}
}

// closePosition books the completed cycle on an exit fill.
func (e *Engine) closePosition(ctx context.Context) {
	exitPrice := e.entryPrice * (1 + e.direction.Sign()*e.stats.LastPnlPct)
	win := !e.pendingReverse

	e.stats.Trades++
	e.stats.TotalProfit += e.stats.LastPnl
	if win {
		e.stats.Wins++
	} else {
		loss := e.stats.LastPnl
		if loss < 0 {
			loss = -loss
		}
		e.stats.CumLoss += loss
	}

	e.recordTrade(ctx, exitPrice, win)
	e.publishSignal(schema.SignalActionClose, exitPrice)
	if e.mirror != nil {
		e.mirror.Deactivate(e.cfg.Symbol)
	}
	e.metrics.ObserveTrade(win)

	e.filled = false
	e.waitingClose = false
	e.activeExitID = ""
	e.clearEntry()

	if e.pendingReverse {
		logs.Warn("loss booked, entering recovery")
		e.state = StateRecovering
		return
	}

	logs.Infof("profit booked, stats: %d/%d wins, total pnl: %.4f",
		e.stats.Wins, e.stats.Trades, e.stats.TotalProfit)
	e.step = 0
	e.qtyCurrent = e.cfg.QtyBase
	e.stats.CumLoss = 0
	e.state = StateIdle
}

func (e *Engine) clearEntry() {
	e.activeEntryID = ""
	e.activeOrderPrice = 0
	if e.mirror != nil && !e.filled {
		e.mirror.Deactivate(e.cfg.Symbol)
	}
}

func (e *Engine) recordTrade(ctx context.Context, exitPrice float64, win bool) {
	if e.rec == nil {
		return
	}
	trade := Trade{
		Symbol:     e.cfg.Symbol,
		Direction:  e.direction.String(),
		EntryPrice: e.entryPrice,
		ExitPrice:  exitPrice,
		Qty:        e.qtyCurrent,
		PnlPct:     e.stats.LastPnlPct,
		Pnl:        e.stats.LastPnl,
		Step:       e.step,
		Win:        win,
		OpenedAt:   e.positionEntryTime,
		ClosedAt:   e.now(),
	}
	if err := e.rec.Record(ctx, trade); err != nil {
		logs.Warnf("record trade failed, err: %+v", err)
	}
}
