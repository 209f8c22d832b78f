package book

import "sync/atomic"

// MaxLevels bounds each side of the ladder.
const MaxLevels = 10

// PriceLevel is one resting level. A level with a non-positive price or
// quantity is treated as absent.
type PriceLevel struct {
	Price float64
	Qty   float64
}

// Valid reports whether the level carries usable data.
func (l PriceLevel) Valid() bool {
	return l.Price > 0 && l.Qty > 0
}

// Book is a bounded top-of-book ladder written by a single ingest
// goroutine per side and read by any number of goroutines without
// locks. Writers store entries first and publish the count with a
// release store; readers acquire-load the count and never dereference
// beyond it. Torn individual levels are tolerated: readers discard
// levels with non-positive fields.
type Book struct {
	bids [MaxLevels]PriceLevel
	asks [MaxLevels]PriceLevel

	bidCount atomic.Int32
	askCount atomic.Int32
	updateID atomic.Uint64
}

// UpdateBids replaces the bid side with the leading levels of the input,
// best (highest) first.
func (b *Book) UpdateBids(levels []PriceLevel) {
	n := min(len(levels), MaxLevels)
	for i := 0; i < n; i++ {
		b.bids[i] = levels[i]
	}
	b.bidCount.Store(int32(n))
}

// UpdateAsks replaces the ask side with the leading levels of the input,
// best (lowest) first.
func (b *Book) UpdateAsks(levels []PriceLevel) {
	n := min(len(levels), MaxLevels)
	for i := 0; i < n; i++ {
		b.asks[i] = levels[i]
	}
	b.askCount.Store(int32(n))
}

// BestBid returns the top bid level when present and well-formed.
func (b *Book) BestBid() (PriceLevel, bool) {
	if b.bidCount.Load() <= 0 {
		return PriceLevel{}, false
	}
	lv := b.bids[0]
	if !lv.Valid() {
		return PriceLevel{}, false
	}
	return lv, true
}

// BestAsk returns the top ask level when present and well-formed.
func (b *Book) BestAsk() (PriceLevel, bool) {
	if b.askCount.Load() <= 0 {
		return PriceLevel{}, false
	}
	lv := b.asks[0]
	if !lv.Valid() {
		return PriceLevel{}, false
	}
	return lv, true
}

// FairPrice returns the midpoint when both sides exist and are not
// crossed.
func (b *Book) FairPrice() (float64, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA || bid.Price >= ask.Price {
		return 0, false
	}
	return (bid.Price + ask.Price) / 2, true
}

// SnapshotBids copies up to max currently-published bid levels,
// dropping malformed entries.
func (b *Book) SnapshotBids(max int) []PriceLevel {
	return snapshotSide(&b.bids, int(b.bidCount.Load()), max)
}

// SnapshotAsks copies up to max currently-published ask levels,
// dropping malformed entries.
func (b *Book) SnapshotAsks(max int) []PriceLevel {
	return snapshotSide(&b.asks, int(b.askCount.Load()), max)
}

func snapshotSide(side *[MaxLevels]PriceLevel, count, max int) []PriceLevel {
	n := min(count, max)
	n = min(n, MaxLevels)
	if n <= 0 {
		return nil
	}
	out := make([]PriceLevel, 0, n)
	for i := 0; i < n; i++ {
		if lv := side[i]; lv.Valid() {
			out = append(out, lv)
		}
	}
	return out
}

// BumpUpdateID advances the monotonic update counter.
func (b *Book) BumpUpdateID() {
	b.updateID.Add(1)
}

// UpdateID returns the current update counter.
func (b *Book) UpdateID() uint64 {
	return b.updateID.Load()
}
