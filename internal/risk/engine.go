package risk

import (
	"time"

	"chaser/internal/schema"
)

// Config defines the pre-trade limits.
type Config struct {
	// KillSwitch suppresses every submission; the engine runs dry.
	KillSwitch bool
	// MaxOrderQty caps a single submission, 0 disables.
	MaxOrderQty float64
	// MaxPriceDeviationPct bounds the limit price against the fair
	// price, 0 disables.
	MaxPriceDeviationPct float64
	// OrderRateLimit caps submissions per OrderRateWindow, 0 disables.
	OrderRateLimit  int
	OrderRateWindow time.Duration
}

// Action is the outcome of an evaluation.
type Action uint8

const (
	ActionAllow Action = iota
	ActionDeny
)

// Reason explains a denial.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonKillSwitch
	ReasonRateLimit
	ReasonMaxQty
	ReasonPriceBand
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonKillSwitch:
		return "kill_switch"
	case ReasonRateLimit:
		return "rate_limit"
	case ReasonMaxQty:
		return "max_qty"
	case ReasonPriceBand:
		return "price_band"
	default:
		return "unknown"
	}
}

// Decision is the evaluation result.
type Decision struct {
	Action Action
	Reason Reason
}

// Allowed reports whether the order may go out.
func (d Decision) Allowed() bool {
	return d.Action == ActionAllow
}

// View carries the market context for an evaluation.
type View struct {
	FairPrice float64
	Now       time.Time
}

// Engine applies static limits to order submissions before they reach
// the gateway.
type Engine struct {
	cfg             Config
	rateWindowStart time.Time
	rateCount       int
}

// NewEngine creates an engine with static limits.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Evaluate checks one submission. It is called only from the strategy
// goroutine and keeps its rate window without locks.
func (e *Engine) Evaluate(req schema.PlaceRequest, view View) Decision {
	if e.cfg.KillSwitch {
		return Decision{Action: ActionDeny, Reason: ReasonKillSwitch}
	}

	if e.cfg.OrderRateLimit > 0 && e.cfg.OrderRateWindow > 0 {
		now := view.Now
		if now.IsZero() {
			now = time.Now()
		}
		if e.rateWindowStart.IsZero() || now.Sub(e.rateWindowStart) >= e.cfg.OrderRateWindow {
			e.rateWindowStart = now
			e.rateCount = 0
		}
		e.rateCount++
		if e.rateCount > e.cfg.OrderRateLimit {
			return Decision{Action: ActionDeny, Reason: ReasonRateLimit}
		}
	}

	if e.cfg.MaxOrderQty > 0 && req.Qty > e.cfg.MaxOrderQty {
		return Decision{Action: ActionDeny, Reason: ReasonMaxQty}
	}

	if e.cfg.MaxPriceDeviationPct > 0 && view.FairPrice > 0 && req.Price > 0 {
		dev := req.Price/view.FairPrice - 1
		if dev < 0 {
			dev = -dev
		}
		if dev > e.cfg.MaxPriceDeviationPct {
			return Decision{Action: ActionDeny, Reason: ReasonPriceBand}
		}
	}

	return Decision{Action: ActionAllow, Reason: ReasonNone}
}
