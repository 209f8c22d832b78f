package ingest

import (
	"context"
	"strconv"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"chaser/internal/book"
	"chaser/internal/codec"
	"chaser/internal/obs"
	"chaser/internal/schema"
	"chaser/internal/shm"
)

const defaultBookDepth = 50

// Config controls the market ingest runner.
type Config struct {
	URL     string
	Symbols []string
	Depth   int
}

// SymbolSink marks a symbol as live once its subscription is accepted.
// *symbols.Set satisfies it.
type SymbolSink interface {
	Add(symbol string) bool
}

// Runner subscribes the configured symbols and keeps their books fresh.
// It is the single writer of every book side.
type Runner struct {
	cfg     Config
	pub     *BybitPublic
	books   *book.Manager
	subbed  SymbolSink
	metrics *obs.Metrics

	// snapshots mirrors each applied update onto the durable book
	// stream when a publisher is attached.
	snapshots *shm.Publisher
	scratch   []byte
}

// NewRunner wires the public session to the book manager.
func NewRunner(ctx context.Context, cfg Config, books *book.Manager, subbed SymbolSink, snapshots *shm.Publisher, metrics *obs.Metrics) *Runner {
	if cfg.Depth <= 0 {
		cfg.Depth = defaultBookDepth
	}
	return &Runner{
		cfg:       cfg,
		pub:       NewBybitPublic(ctx, cfg.URL),
		books:     books,
		subbed:    subbed,
		metrics:   metrics,
		snapshots: snapshots,
		scratch:   make([]byte, 0, 1024),
	}
}

// Start connects, subscribes every configured symbol, and begins
// applying updates. It returns after the subscriptions are accepted.
func (r *Runner) Start(ctx context.Context) error {
	if err := r.pub.StartWebsocket(ctx); err != nil {
		return errors.Wrap(err, "start public session")
	}

	for _, symbol := range r.cfg.Symbols {
		r.books.GetOrCreate(symbol)
		if err := r.pub.SubscribeOrderBook(ctx, r.cfg.Depth, symbol); err != nil {
			return errors.Wrapf(err, "subscribe %s", symbol)
		}
		r.subbed.Add(symbol)
		logs.Infof("subscribed orderbook.%d.%s", r.cfg.Depth, symbol)
	}

	r.pub.ObserveOrderBook(ctx, r.apply)
	return nil
}

// Close shuts the public session down.
func (r *Runner) Close() {
	r.pub.Close()
}

// apply writes one push into the symbol's book. Snapshot messages
// replace both sides; delta messages replace only the sides they
// carry, so an empty side never wipes existing data.
func (r *Runner) apply(m BybitBookMessage) {
	b := r.books.GetOrCreate(m.Data.Symbol)

	bids := parseLevels(m.Data.Bids)
	asks := parseLevels(m.Data.Asks)
	if len(bids) == 0 && len(asks) == 0 {
		return
	}

	if len(bids) > 0 || m.IsSnapshot() {
		b.UpdateBids(bids)
	}
	if len(asks) > 0 || m.IsSnapshot() {
		b.UpdateAsks(asks)
	}
	b.BumpUpdateID()
	r.metrics.IncBookUpdate()

	r.publishSnapshot(m.Data.Symbol, b)
}

func (r *Runner) publishSnapshot(symbol string, b *book.Book) {
	if r.snapshots == nil {
		return
	}

	snap := schema.BookSnapshot{
		Timestamp: time.Now().UTC().UnixNano(),
		Bids:      toLevels(b.SnapshotBids(book.MaxLevels)),
		Asks:      toLevels(b.SnapshotAsks(book.MaxLevels)),
		Symbol:    symbol,
	}
	r.scratch = codec.EncodeBookSnapshot(r.scratch, snap)
	if r.snapshots.Offer(r.scratch) {
		r.metrics.IncShmPublished()
	}
}

// parseLevels converts stringified decimal pairs, dropping malformed
// or non-positive entries.
func parseLevels(raw [][2]string) []book.PriceLevel {
	if len(raw) == 0 {
		return nil
	}
	levels := make([]book.PriceLevel, 0, len(raw))
	for _, entry := range raw {
		price, err := strconv.ParseFloat(entry[0], 64)
		if err != nil {
			continue
		}
		qty, err := strconv.ParseFloat(entry[1], 64)
		if err != nil {
			continue
		}
		lv := book.PriceLevel{Price: price, Qty: qty}
		if !lv.Valid() {
			continue
		}
		levels = append(levels, lv)
	}
	return levels
}

func toLevels(levels []book.PriceLevel) []schema.Level {
	out := make([]schema.Level, 0, len(levels))
	for _, lv := range levels {
		out = append(out, schema.Level{Price: lv.Price, Qty: lv.Qty})
	}
	return out
}
