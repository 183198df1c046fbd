// Package protocol implements the framed message protocol spoken between the
// capture firmware and the host: VLQ-encoded command arguments inside
// length-prefixed, CRC16-checked, sequence-numbered blocks.
package protocol

// Version is the protocol revision reported in the data dictionary.
const Version = "rcadc-0.2.0"

const (
	// MessageMax is the size of the device-side output scratch buffer. It
	// holds several frames; the transport flushes before it overflows.
	MessageMax = 512

	MessageMin     = 5
	MessageHeader  = 2
	MessageTrailer = 3

	MessageSeqMask  = 0x0F
	MessageSeqShift = 4
)

// MessageBlock is one decoded block.
type MessageBlock struct {
	Length   uint8
	Sequence uint8
	Data     []byte
	CRC      uint16
}
