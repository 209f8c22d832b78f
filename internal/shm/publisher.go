package shm

import "sync/atomic"

// Publisher appends records to one stream ring. Offer never blocks; a
// false return signals backpressure from an attached lagging consumer
// and the caller decides whether to retry.
type Publisher struct {
	stream   *stream
	streamID uint32

	published atomic.Uint64
	failures  atomic.Uint64
}

// StreamID returns the stream this publisher writes to.
func (p *Publisher) StreamID() uint32 {
	return p.streamID
}

// Offer publishes one record. It reports false on backpressure or when
// the record cannot fit the ring at all.
func (p *Publisher) Offer(payload []byte) bool {
	p.stream.mu.Lock()
	err := p.stream.ring.offer(payload)
	p.stream.mu.Unlock()
	if err != nil {
		p.failures.Add(1)
		return false
	}
	p.published.Add(1)
	return true
}

// Published returns the number of successful offers.
func (p *Publisher) Published() uint64 {
	return p.published.Load()
}

// Failures returns the number of rejected offers.
func (p *Publisher) Failures() uint64 {
	return p.failures.Load()
}
