package codec

import (
	"math"

	"chaser/internal/schema"
)

func floatBits(v float64) uint64 { return math.Float64bits(v) }

func floatFrom(u uint64) float64 { return math.Float64frombits(u) }

// Fixed per-entry block length of a book snapshot level group.
const levelBlockLength uint16 = 16

// EncodeBookSnapshot serializes a template-2 message into dst.
func EncodeBookSnapshot(dst []byte, s schema.BookSnapshot) []byte {
	dst = dst[:0]
	dst = EncodeHeader(dst, schema.NewMessageHeader(schema.TemplateBookSnapshot, schema.BookSnapshotBlockLength))
	dst = appendUint64(dst, uint64(s.Timestamp))
	dst = appendUint16(dst, uint16(len(s.Bids)))
	dst = appendUint16(dst, uint16(len(s.Asks)))

	dst = appendUint16(dst, levelBlockLength)
	dst = appendUint16(dst, uint16(len(s.Bids)))
	for _, lv := range s.Bids {
		dst = appendFloat64(dst, lv.Price)
		dst = appendFloat64(dst, lv.Qty)
	}

	dst = appendUint16(dst, levelBlockLength)
	dst = appendUint16(dst, uint16(len(s.Asks)))
	for _, lv := range s.Asks {
		dst = appendFloat64(dst, lv.Price)
		dst = appendFloat64(dst, lv.Qty)
	}

	return appendString(dst, s.Symbol)
}

// DecodeBookSnapshot parses a template-2 message.
func DecodeBookSnapshot(src []byte) (schema.BookSnapshot, bool) {
	h, ok := DecodeHeader(src)
	if !ok || h.SchemaID != schema.SchemaID || h.TemplateID != schema.TemplateBookSnapshot {
		return schema.BookSnapshot{}, false
	}

	r := &reader{src: src, off: schema.MessageHeaderSize, ok: true}
	var s schema.BookSnapshot
	s.Timestamp = int64(r.uint64())
	r.uint16() // bid count, repeated in the group header
	r.uint16() // ask count

	s.Bids = decodeLevels(r)
	s.Asks = decodeLevels(r)
	s.Symbol = r.str()
	if !r.ok {
		return schema.BookSnapshot{}, false
	}
	return s, true
}

func decodeLevels(r *reader) []schema.Level {
	r.uint16() // block length
	n := int(r.uint16())
	if !r.ok || n < 0 {
		return nil
	}
	levels := make([]schema.Level, 0, n)
	for i := 0; i < n; i++ {
		levels = append(levels, schema.Level{Price: r.float64(), Qty: r.float64()})
	}
	return levels
}

// EncodeTradeSignal serializes a template-3 message into dst.
func EncodeTradeSignal(dst []byte, s schema.TradeSignal) []byte {
	dst = dst[:0]
	dst = EncodeHeader(dst, schema.NewMessageHeader(schema.TemplateTradeSignal, schema.TradeSignalBlockLength))
	dst = appendUint64(dst, uint64(s.Timestamp))
	dst = appendUint8(dst, s.Action)
	dst = appendFloat64(dst, s.Price)
	dst = appendFloat64(dst, s.Qty)
	return appendString(dst, s.Symbol)
}

// DecodeTradeSignal parses a template-3 message.
func DecodeTradeSignal(src []byte) (schema.TradeSignal, bool) {
	h, ok := DecodeHeader(src)
	if !ok || h.SchemaID != schema.SchemaID || h.TemplateID != schema.TemplateTradeSignal {
		return schema.TradeSignal{}, false
	}

	r := &reader{src: src, off: schema.MessageHeaderSize, ok: true}
	var s schema.TradeSignal
	s.Timestamp = int64(r.uint64())
	s.Action = r.uint8()
	s.Price = r.float64()
	s.Qty = r.float64()
	s.Symbol = r.str()
	if !r.ok {
		return schema.TradeSignal{}, false
	}
	return s, true
}

// EncodeOrder serializes a template-4 message into dst.
func EncodeOrder(dst []byte, rec schema.OrderRecord) []byte {
	dst = dst[:0]
	dst = EncodeHeader(dst, schema.NewMessageHeader(schema.TemplateOrder, schema.OrderBlockLength))
	dst = appendUint64(dst, uint64(rec.Timestamp))
	dst = appendFloat64(dst, rec.Price)
	dst = appendFloat64(dst, rec.Qty)
	active := uint8(0)
	if rec.IsActive {
		active = 1
	}
	dst = appendUint8(dst, active)
	dst = appendString(dst, rec.OrderID.String())
	dst = appendString(dst, rec.Symbol.String())
	return appendString(dst, rec.Side.String())
}

// DecodeOrder parses a template-4 message.
func DecodeOrder(src []byte) (schema.OrderRecord, bool) {
	h, ok := DecodeHeader(src)
	if !ok || h.SchemaID != schema.SchemaID || h.TemplateID != schema.TemplateOrder {
		return schema.OrderRecord{}, false
	}

	r := &reader{src: src, off: schema.MessageHeaderSize, ok: true}
	var rec schema.OrderRecord
	rec.Timestamp = int64(r.uint64())
	rec.Price = r.float64()
	rec.Qty = r.float64()
	rec.IsActive = r.uint8() == 1
	rec.OrderID = schema.NewBuf64(r.str())
	rec.Symbol = schema.NewBuf16(r.str())
	rec.Side = schema.NewBuf8(r.str())
	if !r.ok {
		return schema.OrderRecord{}, false
	}
	return rec, true
}
