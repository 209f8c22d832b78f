package shm

// Reader consumes records from one stream ring. While at least one
// reader is attached the writer reports backpressure instead of
// overwriting unread records.
type Reader struct {
	stream   *stream
	streamID uint32
	closed   bool
}

// StreamID returns the stream this reader consumes.
func (r *Reader) StreamID() uint32 {
	return r.streamID
}

// Poll consumes the next record into buf (reusing its capacity) and
// returns it, or nil when the ring is currently empty.
func (r *Reader) Poll(buf []byte) ([]byte, error) {
	r.stream.mu.Lock()
	defer r.stream.mu.Unlock()
	return r.stream.ring.consume(buf)
}

// Close detaches the reader from the ring.
func (r *Reader) Close() {
	if r.closed {
		return
	}
	r.closed = true
	r.stream.ring.detach()
}
