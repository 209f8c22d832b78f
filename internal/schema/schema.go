package schema

// SchemaID is the wire schema identifier carried in every message header.
const SchemaID uint16 = 1

// SchemaVersion is the current wire schema version.
const SchemaVersion uint16 = 0

// TemplateID identifies a binary record layout.
type TemplateID uint16

const (
	TemplateUnknown      TemplateID = 0
	TemplateBookSnapshot TemplateID = 2
	TemplateTradeSignal  TemplateID = 3
	TemplateOrder        TemplateID = 4
)

// Block lengths carried in each template's message header. They are not
// the encoded size of the fixed portion (12, 25 and 25 bytes for
// templates 2, 3 and 4), and the decoders do not read them.
const (
	BookSnapshotBlockLength uint16 = 48
	TradeSignalBlockLength  uint16 = 32
	OrderBlockLength        uint16 = 64
)

// MessageHeaderSize is the encoded size of MessageHeader in bytes.
const MessageHeaderSize = 8

// MessageHeader prefixes every encoded message.
// All fields are little-endian on the wire.
type MessageHeader struct {
	BlockLength uint16
	TemplateID  TemplateID
	SchemaID    uint16
	Version     uint16
}

// NewMessageHeader builds a header for a template with the current schema.
func NewMessageHeader(template TemplateID, blockLength uint16) MessageHeader {
	return MessageHeader{
		BlockLength: blockLength,
		TemplateID:  template,
		SchemaID:    SchemaID,
		Version:     SchemaVersion,
	}
}
