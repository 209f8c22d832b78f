package schema

// Fixed-width byte buffers for strings crossing the shared-memory
// boundary. Records containing them hold no heap pointers.

type Buf64 [64]byte

type Buf16 [16]byte

type Buf8 [8]byte

// NewBuf64 copies s into a fixed buffer, truncating at capacity.
func NewBuf64(s string) Buf64 {
	var b Buf64
	copy(b[:], s)
	return b
}

func NewBuf16(s string) Buf16 {
	var b Buf16
	copy(b[:], s)
	return b
}

func NewBuf8(s string) Buf8 {
	var b Buf8
	copy(b[:], s)
	return b
}

func trimZero(b []byte) []byte {
	for i := range b {
		if b[i] == 0 {
			return b[:i]
		}
	}
	return b
}

func (b Buf64) String() string { return string(trimZero(b[:])) }

func (b Buf16) String() string { return string(trimZero(b[:])) }

func (b Buf8) String() string { return string(trimZero(b[:])) }

// Level is a single price level in a book snapshot.
type Level struct {
	Price float64
	Qty   float64
}

// BookSnapshot mirrors the top of the ladder onto the durable stream
// (template 2).
type BookSnapshot struct {
	Timestamp int64
	Bids      []Level
	Asks      []Level
	Symbol    string
}

// Signal actions carried by TradeSignal.
const (
	SignalActionOpen  uint8 = 1
	SignalActionClose uint8 = 2
)

// TradeSignal announces a strategy decision on the durable stream
// (template 3).
type TradeSignal struct {
	Timestamp int64
	Action    uint8
	Price     float64
	Qty       float64
	Symbol    string
}

// OrderRecord mirrors the currently-active order (template 4). String
// fields are fixed-width buffers so the record can live in shared
// memory without embedded heap pointers.
type OrderRecord struct {
	OrderID   Buf64
	Symbol    Buf16
	Side      Buf8
	Price     float64
	Qty       float64
	Timestamp int64
	IsActive  bool
}

// NewOrderRecord builds an active order record.
func NewOrderRecord(orderID, symbol string, side Side, price, qty float64, ts int64) OrderRecord {
	return OrderRecord{
		OrderID:   NewBuf64(orderID),
		Symbol:    NewBuf16(symbol),
		Side:      NewBuf8(side.String()),
		Price:     price,
		Qty:       qty,
		Timestamp: ts,
		IsActive:  true,
	}
}

// SideValue parses the fixed side buffer back into a Side.
func (r OrderRecord) SideValue() Side {
	return SideFromString(r.Side.String())
}
