package ingest

import (
	"context"
	"fmt"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"
)

const _bybitPublicLinearWsUrl = "wss://stream.bybit.com/v5/public/linear"

const _bookSubscribeReqID = "book-sub-1"

// BybitPublic wraps the public market data stream.
type BybitPublic struct {
	wss *ws.WebSocket
}

// NewBybitPublic creates the public session. An empty url uses the
// venue's linear perpetual endpoint.
func NewBybitPublic(ctx context.Context, url string) *BybitPublic {
	if url == "" {
		url = _bybitPublicLinearWsUrl
	}
	return &BybitPublic{wss: ws.New(ctx, url)}
}

// StartWebsocket connects the session.
func (repo *BybitPublic) StartWebsocket(ctx context.Context) error {
	if err := repo.wss.Start(ctx); err != nil {
		return errors.Wrap(err, "start wss")
	}
	return nil
}

// Close shuts the session down.
func (repo *BybitPublic) Close() {
	repo.wss.Close()
}

type bybitSubscribeRequest struct {
	ReqID string   `json:"req_id,omitempty"`
	Op    string   `json:"op"`
	Args  []string `json:"args"`
}

type bybitSubscribeResponse struct {
	ReqID   string `json:"req_id"`
	Op      string `json:"op"`
	Success bool   `json:"success"`
	RetMsg  string `json:"ret_msg"`
}

// SubscribeOrderBook subscribes the orderbook.<depth>.<symbol> topic
// and waits for the venue acknowledgement.
func (repo *BybitPublic) SubscribeOrderBook(ctx context.Context, depth int, symbol string) error {
	appendIntoRegister := true
	if err := repo.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, client *ws.WebSocket) error {
			payload := bybitSubscribeRequest{
				ReqID: _bookSubscribeReqID,
				Op:    "subscribe",
				Args: []string{
					fmt.Sprintf("orderbook.%d.%s", depth, symbol),
				},
			}
			if err := client.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("payload", payload)
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			resp, ok := ws.ReadMessage[bybitSubscribeResponse](m)
			if !ok || resp.Op != "subscribe" || resp.ReqID != _bookSubscribeReqID {
				return false, nil
			}
			if !resp.Success {
				return false, errors.Errorf("subscribe rejected, msg: %s", resp.RetMsg)
			}
			return true, nil
		},
	}, appendIntoRegister); err != nil {
		return errors.Wrap(err, "send and wait")
	}
	return nil
}

// BybitBookMessage is one orderbook push. Levels arrive as stringified
// decimals, best first on both sides.
type BybitBookMessage struct {
	Topic string `json:"topic"`
	Type  string `json:"type"` // "snapshot" or "delta"
	TS    int64  `json:"ts"`
	Data  struct {
		Symbol   string      `json:"s"`
		Bids     [][2]string `json:"b"` // [0]price [1]quantity
		Asks     [][2]string `json:"a"` // [0]price [1]quantity
		UpdateID uint64      `json:"u"`
		Seq      int64       `json:"seq"`
	} `json:"data"`
}

// IsSnapshot reports whether the message replaces the whole ladder.
func (m BybitBookMessage) IsSnapshot() bool {
	return m.Type == "snapshot"
}

// ObserveOrderBook feeds every orderbook push to the handler until the
// context ends or the process shuts down.
func (repo *BybitPublic) ObserveOrderBook(ctx context.Context, handler func(m BybitBookMessage)) (unsubscribe func()) {
	ch, cancel := repo.wss.Subscribe()

	go func() {
		defer cancel()
		for {
			select {
			case <-sys.Shutdown():
				return
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}

				resp, ok := ws.ReadMessage[BybitBookMessage](m)
				if !ok || resp.Data.Symbol == "" {
					continue
				}

				handler(resp)
			}
		}
	}()

	return cancel
}
