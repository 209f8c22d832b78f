package shm

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/yanun0323/errors"
	"golang.org/x/sys/unix"
)

const (
	defaultDir      = "/dev/shm"
	defaultRingSize = 1 << 20
)

// Config controls where the driver maps its stream files.
type Config struct {
	// Dir holds one file per stream. Defaults to /dev/shm so the rings
	// survive a process crash but not a reboot.
	Dir string
	// RingSize is the total mapped size per stream, header included.
	RingSize int
	// Channel names the transport instance; it prefixes stream files so
	// several engines can share a directory.
	Channel string
}

func (c Config) withDefaults() Config {
	if c.Dir == "" {
		c.Dir = defaultDir
	}
	if c.RingSize <= ringHeaderSize {
		c.RingSize = defaultRingSize
	}
	if c.Channel == "" {
		c.Channel = "chaser"
	}
	return c
}

// Driver owns the mapped stream files. It replaces an ambient global
// media driver: callers construct it explicitly, hand it to components,
// and Close unmaps everything on shutdown.
type Driver struct {
	cfg Config

	mu      sync.Mutex
	streams map[uint32]*stream
	closed  bool
}

type stream struct {
	file *os.File
	mem  []byte
	ring *ring
	mu   sync.Mutex
}

// NewDriver validates the config and prepares the stream directory.
func NewDriver(cfg Config) (*Driver, error) {
	cfg = cfg.withDefaults()
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create shm dir")
	}
	return &Driver{cfg: cfg, streams: make(map[uint32]*stream)}, nil
}

func (d *Driver) path(streamID uint32) string {
	return filepath.Join(d.cfg.Dir, fmt.Sprintf("%s-%d.ring", d.cfg.Channel, streamID))
}

func (d *Driver) openStream(streamID uint32) (*stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errors.New("shm driver closed")
	}
	if s, ok := d.streams[streamID]; ok {
		return s, nil
	}

	f, err := os.OpenFile(d.path(streamID), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open stream %d", streamID)
	}
	if err := f.Truncate(int64(d.cfg.RingSize)); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "size stream %d", streamID)
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, d.cfg.RingSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "map stream %d", streamID)
	}
	r, err := initRing(mem, streamID)
	if err != nil {
		unix.Munmap(mem)
		f.Close()
		return nil, errors.Wrapf(err, "init stream %d", streamID)
	}

	s := &stream{file: f, mem: mem, ring: r}
	d.streams[streamID] = s
	return s, nil
}

// Publisher returns a publisher for a stream, mapping it on first use.
func (d *Driver) Publisher(streamID uint32) (*Publisher, error) {
	s, err := d.openStream(streamID)
	if err != nil {
		return nil, err
	}
	return &Publisher{stream: s, streamID: streamID}, nil
}

// Reader returns an attached consumer for a stream.
func (d *Driver) Reader(streamID uint32) (*Reader, error) {
	s, err := d.openStream(streamID)
	if err != nil {
		return nil, err
	}
	s.ring.attach()
	return &Reader{stream: s, streamID: streamID}, nil
}

// Scan walks the records currently resident on a stream without
// consuming them. Used for startup recovery.
func (d *Driver) Scan(streamID uint32, fn func(payload []byte) bool) error {
	s, err := d.openStream(streamID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.scan(fn)
}

// Close unmaps and closes every stream. Safe to call more than once.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	var firstErr error
	for id, s := range d.streams {
		if err := unix.Munmap(s.mem); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "unmap stream %d", id)
		}
		if err := s.file.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "close stream %d", id)
		}
	}
	d.streams = nil
	return firstErr
}
