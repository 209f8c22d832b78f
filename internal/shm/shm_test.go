package shm

import (
	"bytes"
	"fmt"
	"testing"
)

func newTestDriver(t *testing.T, size int) *Driver {
	t.Helper()
	d, err := NewDriver(Config{Dir: t.TempDir(), RingSize: size, Channel: "test"})
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestOfferAndPoll(t *testing.T) {
	d := newTestDriver(t, 4096)

	pub, err := d.Publisher(1001)
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	r, err := d.Reader(1001)
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	defer r.Close()

	for i := 0; i < 10; i++ {
		if !pub.Offer([]byte(fmt.Sprintf("record-%d", i))) {
			t.Fatalf("offer %d failed", i)
		}
	}
	if pub.Published() != 10 {
		t.Fatalf("published count: got %d want 10", pub.Published())
	}

	var buf []byte
	for i := 0; i < 10; i++ {
		rec, err := r.Poll(buf)
		if err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
		want := fmt.Sprintf("record-%d", i)
		if string(rec) != want {
			t.Fatalf("record %d mismatch: got %q want %q", i, rec, want)
		}
		buf = rec
	}

	rec, err := r.Poll(buf)
	if err != nil || rec != nil {
		t.Fatalf("poll on empty ring: rec=%v err=%v", rec, err)
	}
}

func TestBackpressureWithAttachedReader(t *testing.T) {
	d := newTestDriver(t, ringHeaderSize+64)

	pub, err := d.Publisher(7)
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	r, err := d.Reader(7)
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	defer r.Close()

	payload := bytes.Repeat([]byte{'x'}, 20)
	if !pub.Offer(payload) || !pub.Offer(payload) {
		t.Fatal("initial offers failed")
	}
	// The ring is now too full for another record while the reader lags.
	if pub.Offer(payload) {
		t.Fatal("offer succeeded on full ring with attached reader")
	}
	if pub.Failures() == 0 {
		t.Fatal("failure not counted")
	}

	// Draining frees space.
	if _, err := r.Poll(nil); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if !pub.Offer(payload) {
		t.Fatal("offer failed after drain")
	}
}

func TestWriterReclaimsWithoutReader(t *testing.T) {
	d := newTestDriver(t, ringHeaderSize+64)

	pub, err := d.Publisher(8)
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}

	payload := bytes.Repeat([]byte{'y'}, 20)
	for i := 0; i < 50; i++ {
		if !pub.Offer(payload) {
			t.Fatalf("offer %d failed without attached reader", i)
		}
	}
}

func TestRecordTooLarge(t *testing.T) {
	d := newTestDriver(t, ringHeaderSize+64)
	pub, err := d.Publisher(9)
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	if pub.Offer(bytes.Repeat([]byte{'z'}, 128)) {
		t.Fatal("oversized record accepted")
	}
}

func TestScanSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	d, err := NewDriver(Config{Dir: dir, RingSize: 4096, Channel: "test"})
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	pub, err := d.Publisher(1003)
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	pub.Offer([]byte("first"))
	pub.Offer([]byte("second"))
	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A new driver over the same directory sees the resident records:
	// this is the crash recovery path.
	d2, err := NewDriver(Config{Dir: dir, RingSize: 4096, Channel: "test"})
	if err != nil {
		t.Fatalf("reopen driver: %v", err)
	}
	defer d2.Close()

	var got []string
	if err := d2.Scan(1003, func(payload []byte) bool {
		got = append(got, string(payload))
		return true
	}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("scan mismatch: %v", got)
	}
}

func TestWrapAroundPreservesRecords(t *testing.T) {
	d := newTestDriver(t, ringHeaderSize+96)
	pub, err := d.Publisher(5)
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	r, err := d.Reader(5)
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	defer r.Close()

	// Interleave offers and polls so the cursor wraps several times.
	var buf []byte
	for i := 0; i < 64; i++ {
		payload := []byte(fmt.Sprintf("wrap-%02d-padding", i))
		if !pub.Offer(payload) {
			t.Fatalf("offer %d failed", i)
		}
		rec, err := r.Poll(buf)
		if err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
		if string(rec) != string(payload) {
			t.Fatalf("wrap mismatch at %d: got %q want %q", i, rec, payload)
		}
		buf = rec
	}
}
