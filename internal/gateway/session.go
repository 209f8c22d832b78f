package gateway

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/yanun0323/errors"

	"chaser/pkg/exception"
)

const (
	dialTimeout      = 10 * time.Second
	pingInterval     = 20 * time.Second
	writeTimeout     = 5 * time.Second
	readChunkSize    = 4 * 1024
	maxMessageLength = 1 << 20
)

// session owns one websocket connection to the venue. Inbound frames
// may arrive fragmented; the session accumulates fragments into a
// per-connection buffer and hands the handler exactly one reassembled
// message at a time.
type session struct {
	url string

	mu        sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool
	rx        []byte
}

func newSession(url string) *session {
	return &session{url: url, rx: make([]byte, 0, readChunkSize)}
}

func (s *session) dial(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return errors.Wrapf(err, "dial %s", s.url)
	}

	s.mu.Lock()
	s.conn = conn
	s.rx = s.rx[:0]
	s.mu.Unlock()
	s.connected.Store(true)
	return nil
}

func (s *session) isConnected() bool {
	return s.connected.Load()
}

func (s *session) writeJSON(v any) error {
	if !s.connected.Load() {
		return exception.ErrNotConnected
	}
	payload, err := sonic.ConfigFastest.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return exception.ErrNotConnected
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return errors.Wrap(err, "write frame")
	}
	return nil
}

// readLoop reads until the connection dies. Each message is rebuilt
// from its fragments in s.rx before handler runs once on it.
func (s *session) readLoop(ctx context.Context, handler func(payload []byte)) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return exception.ErrNotConnected
	}
	conn.SetReadLimit(maxMessageLength)

	for {
		if ctx.Err() != nil {
			s.close()
			return ctx.Err()
		}

		_, r, err := conn.NextReader()
		if err != nil {
			s.close()
			return errors.Wrap(err, "next frame")
		}

		s.rx = s.rx[:0]
		var chunk [readChunkSize]byte
		for {
			n, err := r.Read(chunk[:])
			if n > 0 {
				s.rx = append(s.rx, chunk[:n]...)
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				s.close()
				return errors.Wrap(err, "read frame")
			}
		}

		handler(s.rx)
	}
}

// keepAlive sends the venue ping op until the context ends.
func (s *session) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.writeJSON(request{Op: opPing}); err != nil {
				return
			}
		}
	}
}

func (s *session) close() {
	s.connected.Store(false)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}
