package codec

import (
	"encoding/binary"

	"chaser/internal/schema"
)

// All records share an 8-byte message header followed by the template's
// fixed fields and length-prefixed variable strings. Integers and
// floats are little-endian.

func appendUint8(dst []byte, v uint8) []byte {
	return append(dst, v)
}

func appendUint16(dst []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(dst, v)
}

func appendUint64(dst []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, v)
}

func appendFloat64(dst []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint64(dst, floatBits(v))
}

func appendString(dst []byte, s string) []byte {
	dst = appendUint16(dst, uint16(len(s)))
	return append(dst, s...)
}

// EncodeHeader appends the message header.
func EncodeHeader(dst []byte, h schema.MessageHeader) []byte {
	dst = appendUint16(dst, h.BlockLength)
	dst = appendUint16(dst, uint16(h.TemplateID))
	dst = appendUint16(dst, h.SchemaID)
	return appendUint16(dst, h.Version)
}

// DecodeHeader parses the message header.
func DecodeHeader(src []byte) (schema.MessageHeader, bool) {
	if len(src) < schema.MessageHeaderSize {
		return schema.MessageHeader{}, false
	}
	return schema.MessageHeader{
		BlockLength: binary.LittleEndian.Uint16(src[0:2]),
		TemplateID:  schema.TemplateID(binary.LittleEndian.Uint16(src[2:4])),
		SchemaID:    binary.LittleEndian.Uint16(src[4:6]),
		Version:     binary.LittleEndian.Uint16(src[6:8]),
	}, true
}

// PeekTemplate returns the template id of an encoded message.
func PeekTemplate(src []byte) (schema.TemplateID, bool) {
	h, ok := DecodeHeader(src)
	if !ok || h.SchemaID != schema.SchemaID {
		return schema.TemplateUnknown, false
	}
	return h.TemplateID, true
}

type reader struct {
	src []byte
	off int
	ok  bool
}

func (r *reader) need(n int) bool {
	if !r.ok || r.off+n > len(r.src) {
		r.ok = false
		return false
	}
	return true
}

func (r *reader) uint8() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.src[r.off]
	r.off++
	return v
}

func (r *reader) uint16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.src[r.off:])
	r.off += 2
	return v
}

func (r *reader) uint64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.src[r.off:])
	r.off += 8
	return v
}

func (r *reader) float64() float64 {
	return floatFrom(r.uint64())
}

func (r *reader) str() string {
	n := int(r.uint16())
	if !r.need(n) {
		return ""
	}
	v := string(r.src[r.off : r.off+n])
	r.off += n
	return v
}
