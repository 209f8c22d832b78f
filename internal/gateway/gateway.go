package gateway

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"golang.org/x/time/rate"

	"chaser/internal/obs"
	"chaser/internal/schema"
	"chaser/pkg/exception"
)

const (
	defaultAuthTimeout = 10 * time.Second
	authExpiryMargin   = 10 * time.Second
)

// StatusSink receives every normalized order status. Any strategy that
// offers this capability can be wired in.
type StatusSink func(update schema.OrderUpdate)

// Config controls the private venue session.
type Config struct {
	URL       string
	APIKey    string
	APISecret string
	// Category is the venue product category, e.g. "linear".
	Category string
	// OrderRatePerSec bounds outbound operations. 0 disables limiting.
	OrderRatePerSec float64
	AuthTimeout     time.Duration
}

type inflightOrder struct {
	symbol string
	sentAt time.Time
}

// Gateway is the request/response execution session. The bot-generated
// client id is both the request id and the order link id, and is the
// sole correlation key for acknowledgements and executions.
type Gateway struct {
	cfg     Config
	session *session
	metrics *obs.Metrics
	limiter *rate.Limiter

	mu       sync.Mutex
	inflight map[string]inflightOrder
	sink     StatusSink

	authCh chan bool
	now    func() time.Time
}

// New creates a gateway. The sink must be registered before Run.
func New(cfg Config, metrics *obs.Metrics) *Gateway {
	if cfg.Category == "" {
		cfg.Category = "linear"
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = defaultAuthTimeout
	}
	var limiter *rate.Limiter
	if cfg.OrderRatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.OrderRatePerSec), 1)
	}
	return &Gateway{
		cfg:      cfg,
		session:  newSession(cfg.URL),
		metrics:  metrics,
		limiter:  limiter,
		inflight: make(map[string]inflightOrder),
		authCh:   make(chan bool, 1),
		now:      time.Now,
	}
}

// SetStatusSink registers the single status consumer.
func (g *Gateway) SetStatusSink(sink StatusSink) {
	g.mu.Lock()
	g.sink = sink
	g.mu.Unlock()
}

// Connected reports whether the session is up.
func (g *Gateway) Connected() bool {
	return g.session.isConnected()
}

// Connect dials the venue.
func (g *Gateway) Connect(ctx context.Context) error {
	return g.session.dial(ctx)
}

// Run reads the session until it dies. Reconnecting is the caller's
// job: on return the session is marked disconnected and in-flight
// orders resolve through strategy timeouts.
func (g *Gateway) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go g.session.keepAlive(runCtx)
	go func() {
		// Unblock the read loop when the engine shuts down.
		<-runCtx.Done()
		g.session.close()
	}()

	err := g.session.readLoop(ctx, g.dispatch)
	logs.Warnf("execution session ended, err: %+v", err)
	return err
}

// Close tears the session down.
func (g *Gateway) Close() {
	g.session.close()
}

// Authenticate performs the HMAC handshake and waits for the ack.
func (g *Gateway) Authenticate(ctx context.Context) error {
	// Drain a stale result from a previous connection.
	select {
	case <-g.authCh:
	default:
	}

	expires := g.now().Add(authExpiryMargin).UnixMilli()
	req := request{
		Op:   opAuth,
		Args: []any{g.cfg.APIKey, expires, sign(g.cfg.APISecret, expires)},
	}
	if err := g.session.writeJSON(req); err != nil {
		return errors.Wrap(err, "send auth")
	}

	select {
	case ok := <-g.authCh:
		if !ok {
			return exception.ErrAuthRejected
		}
		logs.Info("execution session authenticated")
		return nil
	case <-time.After(g.cfg.AuthTimeout):
		return errors.Wrap(exception.ErrNotAuthed, "auth ack timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubscribeExecutions subscribes the per-fill execution topic.
func (g *Gateway) SubscribeExecutions() error {
	return g.session.writeJSON(request{Op: opSubscribe, Args: []any{topicExecution}})
}

// Place submits a limit order. Maker requests post-only time-in-force.
func (g *Gateway) Place(ctx context.Context, req schema.PlaceRequest) error {
	if req.ClientID == "" || req.Qty <= 0 || req.Price <= 0 {
		return exception.ErrInvalidArgument
	}
	if err := g.waitRate(ctx); err != nil {
		return err
	}

	tif := "GTC"
	if req.Maker {
		tif = "PostOnly"
	}
	payload := request{
		ReqID:  req.ClientID,
		Header: map[string]string{"X-BAPI-TIMESTAMP": strconv.FormatInt(g.now().UnixMilli(), 10)},
		Op:     opOrderCreate,
		Args: []any{orderArgs{
			Category:    g.cfg.Category,
			Symbol:      req.Symbol,
			Side:        req.Side.String(),
			OrderType:   "Limit",
			Qty:         formatFloat(req.Qty),
			Price:       formatFloat(req.Price),
			TimeInForce: tif,
			OrderLinkID: req.ClientID,
		}},
	}

	g.register(req.ClientID, req.Symbol)
	if err := g.session.writeJSON(payload); err != nil {
		g.unregister(req.ClientID)
		return errors.Wrapf(err, "place %s", req.ClientID)
	}
	g.metrics.IncOrderPlaced()
	logs.Infof("order.create sent, id: %s %s %s qty=%s price=%s tif=%s",
		req.ClientID, req.Symbol, req.Side, formatFloat(req.Qty), formatFloat(req.Price), tif)
	return nil
}

// Cancel requests cancellation by client id.
func (g *Gateway) Cancel(ctx context.Context, symbol, clientID string) error {
	if clientID == "" {
		return exception.ErrInvalidArgument
	}
	if err := g.waitRate(ctx); err != nil {
		return err
	}

	payload := request{
		ReqID:  clientID,
		Header: map[string]string{"X-BAPI-TIMESTAMP": strconv.FormatInt(g.now().UnixMilli(), 10)},
		Op:     opOrderCancel,
		Args: []any{orderArgs{
			Category:    g.cfg.Category,
			Symbol:      symbol,
			OrderLinkID: clientID,
		}},
	}
	if err := g.session.writeJSON(payload); err != nil {
		return errors.Wrapf(err, "cancel %s", clientID)
	}
	g.metrics.IncOrderCanceled()
	logs.Infof("order.cancel sent, id: %s %s", clientID, symbol)
	return nil
}

func (g *Gateway) waitRate(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	return g.limiter.Wait(ctx)
}

func (g *Gateway) register(clientID, symbol string) {
	g.mu.Lock()
	g.inflight[clientID] = inflightOrder{symbol: symbol, sentAt: g.now()}
	g.mu.Unlock()
}

func (g *Gateway) unregister(clientID string) {
	g.mu.Lock()
	delete(g.inflight, clientID)
	g.mu.Unlock()
}

// dispatch classifies one reassembled inbound message and forwards the
// normalized status to the sink. Parse failures are logged and the
// frame discarded; the session survives.
func (g *Gateway) dispatch(payload []byte) {
	var m inbound
	if err := sonic.ConfigFastest.Unmarshal(payload, &m); err != nil {
		logs.Warnf("discard unparsable frame, len: %d, err: %+v", len(payload), err)
		return
	}

	switch {
	case m.Op == opAuth:
		select {
		case g.authCh <- m.retOK():
		default:
		}
	case m.Op == opOrderCreate:
		status := schema.OrderStatusNew
		if !m.retOK() {
			status = schema.OrderStatusRejected
			g.metrics.IncReject()
			logs.Warnf("order.create rejected, id: %s, msg: %s", m.ReqID, m.RetMsg)
		}
		g.emit(m.ReqID, status)
	case m.Op == opOrderCancel:
		status := schema.OrderStatusCancelled
		if !m.retOK() {
			// A cancel losing the race against a fill surfaces here.
			status = schema.OrderStatusRejected
			logs.Warnf("order.cancel rejected, id: %s, msg: %s", m.ReqID, m.RetMsg)
		}
		g.emit(m.ReqID, status)
	case m.Op == opSubscribe:
		if !m.retOK() {
			logs.Warnf("subscribe failed, msg: %s", m.RetMsg)
		}
	case m.Op == opPing || m.Op == opPong:
	case m.Topic == topicExecution:
		g.dispatchExecutions(m.Data)
	}
}

func (g *Gateway) dispatchExecutions(data []byte) {
	var execs []execution
	if err := sonic.ConfigFastest.Unmarshal(data, &execs); err != nil {
		logs.Warnf("discard unparsable execution report, err: %+v", err)
		return
	}
	for _, e := range execs {
		g.metrics.IncFill()
		g.emit(e.OrderLinkID, schema.OrderStatusFilled)
	}
}

// emit forwards a status for a known client id; statuses with no
// matching in-flight order are dropped.
func (g *Gateway) emit(clientID string, status schema.OrderStatus) {
	if clientID == "" {
		return
	}

	g.mu.Lock()
	order, known := g.inflight[clientID]
	if !known {
		g.mu.Unlock()
		logs.Warnf("drop status for unknown id: %s, status: %s", clientID, status)
		return
	}
	if status.Terminal() {
		delete(g.inflight, clientID)
	}
	sink := g.sink
	g.mu.Unlock()

	g.metrics.ObserveAck(g.now().Sub(order.sentAt))
	logs.Infof("order update, id: %s, status: %s, symbol: %s", clientID, status, order.symbol)
	if sink != nil {
		sink(schema.OrderUpdate{ClientID: clientID, Status: status, Symbol: order.symbol})
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
