package durable

import (
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"chaser/internal/codec"
	"chaser/internal/schema"
)

const (
	broadcastRetries = 3
	broadcastBackoff = 2 * time.Millisecond
)

// Broadcaster publishes encoded records; Offer reports false on
// backpressure. *shm.Publisher satisfies it.
type Broadcaster interface {
	Offer(payload []byte) bool
}

// Buffer mirrors the currently-active order per symbol and broadcasts
// every change on the durable stream. At most one active record exists
// per symbol; deactivated records stay queryable for audit.
type Buffer struct {
	mu      sync.Mutex
	records map[string]schema.OrderRecord
	pub     Broadcaster
	scratch []byte
}

// NewBuffer creates an empty buffer. pub may be nil to disable
// broadcasting (in-memory mirror only).
func NewBuffer(pub Broadcaster) *Buffer {
	return &Buffer{
		records: make(map[string]schema.OrderRecord),
		pub:     pub,
		scratch: make([]byte, 0, 256),
	}
}

// Put replaces the record for its symbol and broadcasts it.
func (b *Buffer) Put(rec schema.OrderRecord) {
	b.mu.Lock()
	b.records[rec.Symbol.String()] = rec
	b.scratch = codec.EncodeOrder(b.scratch, rec)
	payload := b.scratch
	b.broadcastLocked(payload)
	b.mu.Unlock()
}

// Deactivate clears the active flag on the symbol's record, keeping it
// queryable, and broadcasts the transition.
func (b *Buffer) Deactivate(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[symbol]
	if !ok || !rec.IsActive {
		return
	}
	rec.IsActive = false
	b.records[symbol] = rec
	b.scratch = codec.EncodeOrder(b.scratch, rec)
	b.broadcastLocked(b.scratch)
}

// Get returns the last record stored for a symbol.
func (b *Buffer) Get(symbol string) (schema.OrderRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[symbol]
	return rec, ok
}

// HasActive reports whether the symbol has an active record.
func (b *Buffer) HasActive(symbol string) bool {
	rec, ok := b.Get(symbol)
	return ok && rec.IsActive
}

// Broadcast publishes an arbitrary encoded payload with bounded retry
// on backpressure.
func (b *Buffer) Broadcast(payload []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.broadcastLocked(payload)
}

func (b *Buffer) broadcastLocked(payload []byte) bool {
	if b.pub == nil {
		return true
	}
	for attempt := 0; attempt < broadcastRetries; attempt++ {
		if b.pub.Offer(payload) {
			return true
		}
		time.Sleep(broadcastBackoff << attempt)
	}
	logs.Warnf("durable broadcast dropped after %d attempts, len: %d", broadcastRetries, len(payload))
	return false
}

// RecordScanner walks resident records on a stream. *shm.Driver's Scan
// (curried with a stream id) satisfies it.
type RecordScanner func(fn func(payload []byte) bool) error

// Restore rebuilds the mirror from the durable stream, keeping the
// latest record seen per symbol. Later records win, so a deactivation
// following a put leaves the symbol inactive.
func (b *Buffer) Restore(scan RecordScanner) error {
	return scan(func(payload []byte) bool {
		if tmpl, ok := codec.PeekTemplate(payload); !ok || tmpl != schema.TemplateOrder {
			return true
		}
		rec, ok := codec.DecodeOrder(payload)
		if !ok {
			logs.Warnf("skip undecodable order record, len: %d", len(payload))
			return true
		}
		b.mu.Lock()
		b.records[rec.Symbol.String()] = rec
		b.mu.Unlock()
		return true
	})
}
