package gateway

import "encoding/json"

// Bybit v5 private stream shapes. Every request carries reqId equal to
// the orderLinkId so acknowledgements correlate without venue ids.

type request struct {
	ReqID  string            `json:"reqId,omitempty"`
	Header map[string]string `json:"header,omitempty"`
	Op     string            `json:"op"`
	Args   []any             `json:"args,omitempty"`
}

type orderArgs struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side,omitempty"`
	OrderType   string `json:"orderType,omitempty"`
	Qty         string `json:"qty,omitempty"`
	Price       string `json:"price,omitempty"`
	TimeInForce string `json:"timeInForce,omitempty"`
	OrderLinkID string `json:"orderLinkId"`
}

// inbound is the union of every message the private session can carry:
// operation acknowledgements (op + retCode) and topic pushes (topic +
// data).
type inbound struct {
	Op      string          `json:"op"`
	ReqID   string          `json:"reqId"`
	RetCode *int            `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Success *bool           `json:"success"`
	Topic   string          `json:"topic"`
	Data    json.RawMessage `json:"data"`
}

func (m inbound) retOK() bool {
	if m.RetCode != nil {
		return *m.RetCode == 0
	}
	return m.Success != nil && *m.Success
}

// execution is a single per-fill report on the execution topic.
type execution struct {
	Symbol      string `json:"symbol"`
	OrderLinkID string `json:"orderLinkId"`
	Side        string `json:"side"`
	ExecQty     string `json:"execQty"`
	ExecPrice   string `json:"execPrice"`
}

const (
	opAuth        = "auth"
	opSubscribe   = "subscribe"
	opPing        = "ping"
	opPong        = "pong"
	opOrderCreate = "order.create"
	opOrderCancel = "order.cancel"

	topicExecution = "execution"
)
