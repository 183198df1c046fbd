package protocol

import "errors"

// SampleChunk is the most sample bytes carried by one samples_data
// response. With the command ID, sequence, offset and length prefix it
// keeps the block under MessageLengthMax.
const SampleChunk = 48

// SampleStatus is the outcome code carried by samples_done.
type SampleStatus uint8

const (
	StatusOK SampleStatus = iota
	StatusTooLarge
	StatusOddLength
	StatusNotReady
	StatusTimeout
	StatusTear
)

func (s SampleStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTooLarge:
		return "too large"
	case StatusOddLength:
		return "odd length"
	case StatusNotReady:
		return "not ready"
	case StatusTimeout:
		return "timeout"
	case StatusTear:
		return "tear"
	}
	return "unknown"
}

// Retryable reports whether repeating the request may succeed.
func (s SampleStatus) Retryable() bool {
	return s == StatusTimeout || s == StatusTear
}

// ChunkSamples splits a sample block into SampleChunk-sized pieces and
// calls emit for each with its byte offset.
func ChunkSamples(block []byte, emit func(offset int, chunk []byte)) {
	for off := 0; off < len(block); off += SampleChunk {
		end := off + SampleChunk
		if end > len(block) {
			end = len(block)
		}
		emit(off, block[off:end])
	}
}

var (
	ErrChunkSequence   = errors.New("sample chunk from another request")
	ErrChunkOutOfRange = errors.New("sample chunk outside the requested block")
	ErrShortBlock      = errors.New("sample block incomplete")
)

// SampleAssembler rebuilds one sample block from its chunks.
type SampleAssembler struct {
	seq      uint16
	buf      []byte
	received int
}

// NewSampleAssembler expects chunks tagged seq covering size bytes.
func NewSampleAssembler(seq uint16, size int) *SampleAssembler {
	return &SampleAssembler{seq: seq, buf: make([]byte, size)}
}

// Add places a chunk.
func (a *SampleAssembler) Add(seq uint16, offset int, data []byte) error {
	if seq != a.seq {
		return ErrChunkSequence
	}
	if offset < 0 || offset+len(data) > len(a.buf) {
		return ErrChunkOutOfRange
	}
	copy(a.buf[offset:], data)
	a.received += len(data)
	return nil
}

// Finish checks the trailer and returns the block. count is the number of
// bytes the device says it sent.
func (a *SampleAssembler) Finish(seq uint16, count int) ([]byte, error) {
	if seq != a.seq {
		return nil, ErrChunkSequence
	}
	if count != a.received || count > len(a.buf) {
		return nil, ErrShortBlock
	}
	return a.buf[:count], nil
}
