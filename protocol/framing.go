package protocol

// Block layout: length, sequence, payload, CRC16 (big endian), sync.
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10

	// MessagePayloadMax is the largest payload that fits in one block.
	MessagePayloadMax = MessageLengthMax - MessageLengthMin
)

type scanResult int

const (
	scanNeedMore scanResult = iota
	scanFound
	scanResync
)

// scanBlock looks for a complete block at the start of data, skipping any
// leading sync bytes. On scanFound it returns the block and the number of
// bytes it occupied including the skipped sync bytes.
func scanBlock(data []byte) (block []byte, n int, res scanResult) {
	skip := 0
	for skip < len(data) && data[skip] == MessageValueSync {
		skip++
	}
	data = data[skip:]
	if len(data) < MessageLengthMin {
		return nil, 0, scanNeedMore
	}

	msgLen := int(data[MessagePositionLen])
	if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
		return nil, 0, scanResync
	}
	if data[MessagePositionSeq]&^MessageSeqMask != MessageDest {
		return nil, 0, scanResync
	}
	if len(data) < msgLen {
		return nil, 0, scanNeedMore
	}
	if data[msgLen-MessageTrailerSync] != MessageValueSync {
		return nil, 0, scanResync
	}
	crc := uint16(data[msgLen-MessageTrailerCRC])<<8 | uint16(data[msgLen-MessageTrailerCRC+1])
	if crc != CRC16(data[:msgLen-MessageTrailerSize]) {
		return nil, 0, scanResync
	}
	return data[:msgLen], skip + msgLen, scanFound
}

// resyncOffset returns how many bytes to drop to get past the next sync
// byte, and whether one was found.
func resyncOffset(data []byte) (int, bool) {
	for i, b := range data {
		if b == MessageValueSync {
			return i + 1, true
		}
	}
	return len(data), false
}

// payloadOf strips the header and trailer from a block found by scanBlock.
func payloadOf(block []byte) []byte {
	return block[MessageHeaderSize : len(block)-MessageTrailerSize]
}

// nextSeq advances a sequence number within the destination range.
func nextSeq(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
