package protocol

import "sync/atomic"

// CommandHandler handles one decoded command. data is positioned just after
// the command ID; the handler consumes its own arguments.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the device side of the link: it parses host blocks,
// acknowledges them and frames responses into an OutputBuffer.
type Transport struct {
	synced  uint32 // atomic bool
	nextSeq uint32 // atomic; expected host sequence, echoed in every reply

	output  OutputBuffer
	handler CommandHandler

	resetCallback func()
	flushCallback func()
}

// NewTransport returns a synchronised transport expecting sequence 0x10.
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	return &Transport{
		synced:  1,
		nextSeq: MessageDest,
		output:  output,
		handler: handler,
	}
}

// Receive consumes as many complete blocks from input as it can.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()
	used := 0

scan:
	for used < len(data) {
		if !t.isSynced() {
			skip, found := resyncOffset(data[used:])
			used += skip
			if found {
				t.setSynced(true)
				t.sendAck()
			}
			continue
		}

		block, n, res := scanBlock(data[used:])
		switch res {
		case scanNeedMore:
			break scan
		case scanResync:
			t.setSynced(false)
			continue
		}
		used += n
		t.handleBlock(block[MessagePositionSeq], payloadOf(block))
	}

	if used > 0 {
		input.Pop(used)
	}
}

func (t *Transport) handleBlock(seq uint8, payload []byte) {
	expected := uint8(atomic.LoadUint32(&t.nextSeq))
	if seq == MessageDest && expected != MessageDest {
		// The host restarted its sequence.
		atomic.StoreUint32(&t.nextSeq, MessageDest)
		expected = MessageDest
		if t.resetCallback != nil {
			t.resetCallback()
		}
	}
	if seq == expected {
		atomic.StoreUint32(&t.nextSeq, uint32(nextSeq(seq)))
		_ = t.dispatch(payload)
	}
	// A mismatched sequence still gets an ack; it tells the host which
	// sequence we expect.
	t.sendAck()
}

// dispatch runs every command in a payload. A panicking handler drops the
// link out of sync so the host retransmits.
func (t *Transport) dispatch(payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.setSynced(false)
		}
	}()

	for len(payload) > 0 {
		cmdID, err := DecodeVLQUint(&payload)
		if err != nil {
			t.setSynced(false)
			return err
		}
		if t.handler == nil {
			continue
		}
		if err := t.handler(uint16(cmdID), &payload); err != nil {
			return err
		}
	}
	return nil
}

// sendAck emits an empty block carrying the next expected sequence and
// flushes everything buffered so far.
func (t *Transport) sendAck() {
	ns := uint8(atomic.LoadUint32(&t.nextSeq))
	t.output.Output(appendTrailer([]byte{MessageLengthMin, ns}))
	t.Flush()
}

// EncodeFrame frames whatever frameData writes into a single block.
func (t *Transport) EncodeFrame(frameData func(output OutputBuffer)) {
	cursor := t.output.CurPosition()
	seq := uint8(atomic.LoadUint32(&t.nextSeq))
	t.output.Output([]byte{0, seq})

	frameData(t.output)

	t.output.Update(cursor, uint8(len(t.output.DataSince(cursor))+MessageTrailerSize))
	crc := CRC16(t.output.DataSince(cursor))
	t.output.Output([]byte{byte(crc >> 8), byte(crc), MessageValueSync})
}

// SendCommand frames a command or response. If the output buffer could not
// hold another full block it is flushed first.
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	if t.Buffered()+MessageLengthMax > MessageMax {
		t.Flush()
	}
	t.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Buffered returns the number of framed bytes not yet flushed.
func (t *Transport) Buffered() int {
	return t.output.CurPosition()
}

// Flush pushes buffered output to the link, if a flush callback is set.
func (t *Transport) Flush() {
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// Reset returns the transport to its power-on state.
func (t *Transport) Reset() {
	atomic.StoreUint32(&t.synced, 1)
	atomic.StoreUint32(&t.nextSeq, MessageDest)
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// SetResetCallback is called when the host restarts its sequence.
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback sets the function that drains the output buffer to USB.
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}

func (t *Transport) isSynced() bool {
	return atomic.LoadUint32(&t.synced) != 0
}

func (t *Transport) setSynced(v bool) {
	if v {
		atomic.StoreUint32(&t.synced, 1)
	} else {
		atomic.StoreUint32(&t.synced, 0)
	}
}
