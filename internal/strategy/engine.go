package strategy

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"chaser/internal/book"
	"chaser/internal/durable"
	"chaser/internal/obs"
	"chaser/internal/risk"
	"chaser/internal/schema"
)

// Venue submits and cancels orders. *gateway.Gateway satisfies it.
type Venue interface {
	Place(ctx context.Context, req schema.PlaceRequest) error
	Cancel(ctx context.Context, symbol, clientID string) error
}

// Mirror is the durable order buffer. *durable.Buffer satisfies it.
type Mirror interface {
	Put(rec schema.OrderRecord)
	Deactivate(symbol string)
	Get(symbol string) (schema.OrderRecord, bool)
	HasActive(symbol string) bool
}

// Subscriptions reports live market data subscriptions. *symbols.Set
// satisfies it.
type Subscriptions interface {
	Subscribed(symbol string) bool
}

// Engine runs the Martingale chaser for a single instrument. All state
// is owned by the goroutine calling Tick; order updates arriving from
// the execution session are queued and drained at the start of each
// tick, so StrategyState has exactly one writer.
type Engine struct {
	cfg     Config
	books   *book.Manager
	subbed  Subscriptions
	venue   Venue
	mirror  Mirror
	gate    *risk.Engine
	rec     TradeRecorder
	signals durable.Broadcaster
	metrics *obs.Metrics

	updates chan schema.OrderUpdate

	state      State
	direction  Direction
	entryPrice float64
	filled     bool
	qtyCurrent float64
	step       int

	activeEntryID    string
	activeExitID     string
	activeOrderPrice float64
	pendingReverse   bool
	waitingClose     bool

	stateEntryTime    time.Time
	positionEntryTime time.Time
	lastStatusLog     time.Time
	lastCrossedLog    time.Time

	stats Stats

	scratch []byte

	now   func() time.Time
	newID func() string
}

// Deps bundles the engine collaborators.
type Deps struct {
	Books   *book.Manager
	Subbed  Subscriptions
	Venue   Venue
	Mirror  Mirror
	Risk    *risk.Engine
	Trades  TradeRecorder
	Signals durable.Broadcaster
	Metrics *obs.Metrics
}

// New builds the engine and reconciles against the durable buffer: an
// active mirrored order means a position survived a restart, and the
// engine resumes monitoring it instead of entering a fresh cycle.
func New(cfg Config, deps Deps) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:        cfg,
		books:      deps.Books,
		subbed:     deps.Subbed,
		venue:      deps.Venue,
		mirror:     deps.Mirror,
		gate:       deps.Risk,
		rec:        deps.Trades,
		signals:    deps.Signals,
		metrics:    deps.Metrics,
		updates:    make(chan schema.OrderUpdate, cfg.UpdateQueueSize),
		state:      StateIdle,
		direction:  cfg.InitialDirection,
		qtyCurrent: cfg.QtyBase,
		scratch:    make([]byte, 0, 256),
		now:        time.Now,
		newID: func() string {
			return "BOT-" + uuid.NewString()
		},
	}
	e.reconcileOnStartup()
	return e
}

func (e *Engine) reconcileOnStartup() {
	if e.mirror == nil || !e.mirror.HasActive(e.cfg.Symbol) {
		return
	}
	rec, ok := e.mirror.Get(e.cfg.Symbol)
	if !ok {
		return
	}

	e.activeEntryID = rec.OrderID.String()
	e.entryPrice = rec.Price
	e.activeOrderPrice = rec.Price
	e.qtyCurrent = rec.Qty
	if rec.SideValue() == schema.SideSell {
		e.direction = DirectionShort
	} else {
		e.direction = DirectionLong
	}
	e.filled = true
	e.state = StateInPosition
	e.positionEntryTime = e.now()
	logs.Warnf("recovered position from durable buffer, id: %s, %s %s qty=%v entry=%v",
		e.activeEntryID, e.cfg.Symbol, e.direction, e.qtyCurrent, e.entryPrice)
}

// OnOrderStatus is the status sink registered with the gateway. It runs
// on the execution goroutine and must never block: overflow is counted
// and dropped, and the strategy recovers through its own timeouts.
func (e *Engine) OnOrderStatus(update schema.OrderUpdate) {
	if update.Symbol != "" && update.Symbol != e.cfg.Symbol {
		return
	}
	select {
	case e.updates <- update:
	default:
		e.metrics.IncUpdateDrop()
		logs.Warnf("update queue full, dropped id: %s, status: %s", update.ClientID, update.Status)
	}
}

// State returns the current machine state.
func (e *Engine) State() State {
	return e.state
}

// Statistics returns the accumulated cycle stats.
func (e *Engine) Statistics() Stats {
	return e.stats
}

// Run ticks the engine until the context ends.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick advances the machine once: drain async updates, gate on market
// data quality, then run the state's handler.
func (e *Engine) Tick(ctx context.Context) {
	e.drainUpdates(ctx)

	if !e.validate() {
		return
	}
	e.heartbeat()

	switch e.state {
	case StateIdle:
		if !e.waitingClose {
			e.evaluateEntry(ctx)
		}
	case StatePlacing, StateCancelling:
		e.handleTimeout(ctx)
	case StateWorking:
		e.monitorWorkingOrder(ctx)
	case StateInPosition:
		e.manageOpenPosition(ctx)
	case StateRecovering:
		e.applyMartingaleRecovery(ctx)
	}
}

func (e *Engine) drainUpdates(ctx context.Context) {
	for {
		select {
		case u := <-e.updates:
			e.applyUpdate(ctx, u)
		default:
			return
		}
	}
}

// validate is the per-tick data quality gate: subscribed symbol, both
// sides present with positive fields, and an uncrossed market.
func (e *Engine) validate() bool {
	if e.cfg.Symbol == "" || !e.subbed.Subscribed(e.cfg.Symbol) {
		return false
	}
	b := e.books.Get(e.cfg.Symbol)
	if b == nil {
		return false
	}
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return false
	}
	if bid.Price >= ask.Price {
		if now := e.now(); now.Sub(e.lastCrossedLog) > 5*time.Second {
			logs.Warnf("crossed market, bid: %v >= ask: %v, pausing", bid.Price, ask.Price)
			e.lastCrossedLog = now
		}
		return false
	}
	return true
}

func (e *Engine) heartbeat() {
	now := e.now()
	if now.Sub(e.lastStatusLog) < e.cfg.HeartbeatEvery {
		return
	}
	e.lastStatusLog = now
	if e.filled {
		logs.Infof("pnl: %.4f%% (%.4f), state: %s, step: %d, qty: %v",
			e.stats.LastPnlPct*100, e.stats.LastPnl, e.state, e.step, e.qtyCurrent)
	}
}

func (e *Engine) top() (bid, ask book.PriceLevel, ok bool) {
	b := e.books.Get(e.cfg.Symbol)
	if b == nil {
		return book.PriceLevel{}, book.PriceLevel{}, false
	}
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	return bid, ask, okB && okA
}
