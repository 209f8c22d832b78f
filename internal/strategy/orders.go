package strategy

import (
	"context"
	"math"

	"github.com/yanun0323/logs"

	"chaser/internal/codec"
	"chaser/internal/risk"
	"chaser/internal/schema"
)

func (e *Engine) entrySide() schema.Side {
	if e.direction == DirectionShort {
		return schema.SideSell
	}
	return schema.SideBuy
}

func (e *Engine) exitSide() schema.Side {
	return e.entrySide().Opposite()
}

func (e *Engine) roundToTick(price float64) float64 {
	if e.cfg.TickSize <= 0 {
		return price
	}
	return math.Round(price/e.cfg.TickSize) * e.cfg.TickSize
}

// evaluateEntry computes the entry price just inside the spread and
// submits a post-only entry.
func (e *Engine) evaluateEntry(ctx context.Context) {
	bid, ask, ok := e.top()
	if !ok {
		return
	}
	mid := (bid.Price + ask.Price) / 2

	var price float64
	if e.direction == DirectionShort {
		price = mid + e.cfg.EpsilonTick
		if floor := bid.Price + e.cfg.EpsilonSafe; price < floor {
			price = floor
		}
	} else {
		price = mid - e.cfg.EpsilonTick
		if ceil := ask.Price - e.cfg.EpsilonSafe; price > ceil {
			price = ceil
		}
	}
	price = e.roundToTick(price)
	if price <= 0 {
		return
	}

	logs.Infof("opening %s, qty: %v, price: %v, step: %d", e.direction, e.qtyCurrent, price, e.step)
	e.placeEntry(ctx, price)
}

func (e *Engine) placeEntry(ctx context.Context, price float64) {
	req := schema.PlaceRequest{
		Symbol:   e.cfg.Symbol,
		Side:     e.entrySide(),
		Qty:      e.qtyCurrent,
		Price:    price,
		ClientID: e.newID(),
		Maker:    true,
	}
	if !e.allowed(req) {
		return
	}
	if err := e.venue.Place(ctx, req); err != nil {
		logs.Warnf("place entry failed, id: %s, err: %+v", req.ClientID, err)
		return
	}

	now := e.now()
	e.activeEntryID = req.ClientID
	e.activeOrderPrice = price
	e.entryPrice = price
	e.filled = false
	e.state = StatePlacing
	e.stateEntryTime = now

	if e.mirror != nil {
		e.mirror.Put(schema.NewOrderRecord(req.ClientID, e.cfg.Symbol, req.Side, price, req.Qty, now.UTC().UnixNano()))
	}
}

// placeExit rests the take-profit order after an entry fill.
func (e *Engine) placeExit(ctx context.Context) {
	tp := e.entryPrice * (1 + e.direction.Sign()*e.cfg.TpPct)
	tp = e.roundToTick(tp)

	req := schema.PlaceRequest{
		Symbol:   e.cfg.Symbol,
		Side:     e.exitSide(),
		Qty:      e.qtyCurrent,
		Price:    tp,
		ClientID: e.newID(),
		Maker:    true,
	}
	if !e.allowed(req) {
		return
	}
	if err := e.venue.Place(ctx, req); err != nil {
		logs.Warnf("place exit failed, id: %s, err: %+v", req.ClientID, err)
		return
	}
	e.activeExitID = req.ClientID
	logs.Infof("take profit resting, id: %s, price: %v", req.ClientID, tp)
}

// monitorWorkingOrder refreshes a stale entry and chases the market
// when it runs away from the resting price.
func (e *Engine) monitorWorkingOrder(ctx context.Context) {
	age := e.now().Sub(e.stateEntryTime)
	if age < e.cfg.GracePeriod {
		return
	}

	bid, ask, ok := e.top()
	if !ok {
		return
	}

	chase := false
	switch {
	case age > e.cfg.StaleTimeout:
		logs.Infof("working order stale after %s, refreshing", age)
		chase = true
	case e.direction == DirectionLong && bid.Price > e.activeOrderPrice+e.cfg.ChaseDelta:
		logs.Infof("market moved up to %v, chasing", bid.Price)
		chase = true
	case e.direction == DirectionShort && ask.Price < e.activeOrderPrice-e.cfg.ChaseDelta:
		logs.Infof("market moved down to %v, chasing", ask.Price)
		chase = true
	}
	if !chase {
		return
	}

	if err := e.venue.Cancel(ctx, e.cfg.Symbol, e.activeEntryID); err != nil {
		logs.Warnf("cancel failed, id: %s, err: %+v", e.activeEntryID, err)
		return
	}
	e.state = StateCancelling
	e.stateEntryTime = e.now()
}

// handleTimeout re-issues a cancel when a request goes unacknowledged
// for longer than the order timeout.
func (e *Engine) handleTimeout(ctx context.Context) {
	now := e.now()
	if now.Sub(e.stateEntryTime) <= e.cfg.OrderTimeout {
		return
	}

	id := e.activeEntryID
	if e.waitingClose && e.activeExitID != "" {
		id = e.activeExitID
	}
	if id == "" {
		e.state = StateIdle
		return
	}

	logs.Warnf("ack timeout in %s, cancelling id: %s", e.state, id)
	if err := e.venue.Cancel(ctx, e.cfg.Symbol, id); err != nil {
		logs.Warnf("cancel failed, id: %s, err: %+v", id, err)
	}
	e.stateEntryTime = now
}

// manageOpenPosition tracks pnl against the exit-side touch and fires
// the stop loss.
func (e *Engine) manageOpenPosition(ctx context.Context) {
	if !e.filled {
		return
	}
	bid, ask, ok := e.top()
	if !ok {
		return
	}

	mark := bid.Price
	if e.direction == DirectionShort {
		mark = ask.Price
	}
	pnlPct := e.direction.Sign() * (mark - e.entryPrice) / e.entryPrice
	e.stats.LastPnlPct = pnlPct
	e.stats.LastPnl = pnlPct * e.entryPrice * e.qtyCurrent

	if e.activeExitID == "" && !e.waitingClose {
		// The resting exit disappeared (placement rejected or a cancel
		// without a close); put the take profit back.
		e.placeExit(ctx)
		return
	}

	switch {
	case pnlPct >= e.cfg.TpPct:
		// The exit order is already resting at the target; the fill
		// arrives on the async path.
		logs.Infof("target hit (+%.4f%%), waiting for exit fill", pnlPct*100)
	case pnlPct <= -e.cfg.SlPct:
		logs.Warnf("stop loss (%.4f%%), closing aggressively", pnlPct*100)
		e.closeAggressively(ctx, mark)
	}
}

// closeAggressively cancels the resting exit and crosses the spread to
// guarantee the close fills, arming the Martingale reversal.
func (e *Engine) closeAggressively(ctx context.Context, mark float64) {
	if e.activeExitID != "" {
		if err := e.venue.Cancel(ctx, e.cfg.Symbol, e.activeExitID); err != nil {
			logs.Warnf("cancel exit failed, id: %s, err: %+v", e.activeExitID, err)
		}
	}

	offset := float64(e.cfg.CloseTicks) * e.cfg.TickSize
	price := mark - offset
	if e.direction == DirectionShort {
		price = mark + offset
	}
	price = e.roundToTick(price)

	req := schema.PlaceRequest{
		Symbol:   e.cfg.Symbol,
		Side:     e.exitSide(),
		Qty:      e.qtyCurrent,
		Price:    price,
		ClientID: e.newID(),
		Maker:    false,
	}
	if !e.allowed(req) {
		return
	}
	if err := e.venue.Place(ctx, req); err != nil {
		logs.Warnf("place close failed, id: %s, err: %+v", req.ClientID, err)
		return
	}

	e.activeExitID = req.ClientID
	e.pendingReverse = true
	e.waitingClose = true
	e.state = StatePlacing
	e.stateEntryTime = e.now()
}

// applyMartingaleRecovery escalates after a stop-loss exit: double and
// reverse, or hard-reset once the step cap is exhausted. The next entry
// goes out immediately.
func (e *Engine) applyMartingaleRecovery(ctx context.Context) {
	e.step++
	if e.step > e.cfg.StepMax {
		logs.Warnf("max martingale steps reached, hard reset")
		e.step = 0
		e.qtyCurrent = e.cfg.QtyBase
		e.stats.CumLoss = 0
	} else {
		e.qtyCurrent *= 2
		e.direction = e.direction.Opposite()
		logs.Warnf("martingale step %d, qty: %v, reversing to %s", e.step, e.qtyCurrent, e.direction)
	}
	e.pendingReverse = false
	e.evaluateEntry(ctx)
	if e.state == StateRecovering {
		// Placement was gated or failed; retry from Idle next tick.
		e.state = StateIdle
	}
}

func (e *Engine) allowed(req schema.PlaceRequest) bool {
	if e.gate == nil {
		return true
	}
	var fair float64
	if b := e.books.Get(e.cfg.Symbol); b != nil {
		fair, _ = b.FairPrice()
	}
	decision := e.gate.Evaluate(req, risk.View{FairPrice: fair, Now: e.now()})
	if !decision.Allowed() {
		logs.Warnf("order suppressed, id: %s, reason: %s", req.ClientID, decision.Reason)
		return false
	}
	return true
}

func (e *Engine) publishSignal(action uint8, price float64) {
	if e.signals == nil {
		return
	}
	e.scratch = codec.EncodeTradeSignal(e.scratch, schema.TradeSignal{
		Timestamp: e.now().UTC().UnixNano(),
		Action:    action,
		Price:     price,
		Qty:       e.qtyCurrent,
		Symbol:    e.cfg.Symbol,
	})
	e.signals.Offer(e.scratch)
}
