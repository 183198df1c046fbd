package protocol

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultAckTimeout bounds how long SendCommand waits for the device to
// acknowledge a block.
const DefaultAckTimeout = 2 * time.Second

// responseQueue holds a full sample block (one chunk per frame) plus its
// trailer without dropping anything.
const responseQueue = 128

var (
	ErrTransportStopped = errors.New("transport stopped")
	ErrMessageTooLong   = errors.New("message too long")
)

// ResponseHandler observes every response as it arrives.
type ResponseHandler func(cmdID uint16, data *[]byte) error

// Message is a parsed block received from the device.
type Message struct {
	Length   uint8
	Sequence uint8
	Payload  []byte
	CRC      uint16
}

// HostTransport is the host side of the link. Commands are sent one at a
// time and each waits for its ack; responses are queued as they arrive.
type HostTransport struct {
	port io.ReadWriteCloser

	seq    uint32 // atomic
	synced uint32 // atomic bool

	input  *FifoBuffer
	output *bytes.Buffer

	acks      chan *Message
	responses chan *Message
	handler   ResponseHandler

	writeMu sync.Mutex
	readMu  sync.Mutex

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewHostTransport starts a reader goroutine on port.
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:      port,
		seq:       MessageDest,
		synced:    1,
		input:     NewFifoBuffer(1024),
		output:    bytes.NewBuffer(make([]byte, 0, MessageLengthMax)),
		acks:      make(chan *Message, 1),
		responses: make(chan *Message, responseQueue),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// SendCommand sends a command and waits up to DefaultAckTimeout for its ack.
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, DefaultAckTimeout)
}

// SendCommandWithTimeout is SendCommand with a custom ack timeout.
func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return t.Send(ctx, cmdID, args)
}

// Send sends a command and waits for its ack until ctx is done.
func (t *HostTransport) Send(ctx context.Context, cmdID uint16, args func(output OutputBuffer)) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	msg, err := t.buildCommandMessage(cmdID, args)
	if err != nil {
		return fmt.Errorf("failed to build command: %w", err)
	}
	n, err := t.port.Write(msg)
	if err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if n != len(msg) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(msg))
	}
	if err := t.waitForAck(ctx); err != nil {
		return fmt.Errorf("no ack: %w", err)
	}
	return nil
}

// buildCommandMessage frames one command. Caller holds writeMu.
func (t *HostTransport) buildCommandMessage(cmdID uint16, args func(output OutputBuffer)) ([]byte, error) {
	scratch := NewScratchOutput()
	EncodeVLQUint(scratch, uint32(cmdID))
	if args != nil {
		args(scratch)
	}
	payload := scratch.Result()

	msgLen := MessageLengthMin + len(payload)
	if msgLen > MessageLengthMax {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLong, msgLen, MessageLengthMax)
	}

	t.output.Reset()
	t.output.WriteByte(uint8(msgLen))
	t.output.WriteByte(uint8(atomic.LoadUint32(&t.seq)))
	t.output.Write(payload)
	return appendTrailer(append([]byte(nil), t.output.Bytes()...)), nil
}

func (t *HostTransport) waitForAck(ctx context.Context) error {
	select {
	case ack := <-t.acks:
		expected := uint8(atomic.LoadUint32(&t.seq))
		want := nextSeq(expected)
		if ack.Sequence != want {
			return fmt.Errorf("sequence mismatch: expected 0x%02x, got 0x%02x", want, ack.Sequence)
		}
		atomic.StoreUint32(&t.seq, uint32(want))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.stop:
		return ErrTransportStopped
	}
}

// Receive returns the next queued response.
func (t *HostTransport) Receive(ctx context.Context) (*Message, error) {
	select {
	case resp := <-t.responses:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.stop:
		return nil, ErrTransportStopped
	}
}

// ReceiveResponse is Receive with a timeout.
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	msg, err := t.Receive(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("response timeout after %v", timeout)
	}
	return msg, err
}

// SetResponseHandler installs a callback that sees every response before it
// is queued.
func (t *HostTransport) SetResponseHandler(handler ResponseHandler) {
	t.handler = handler
}

func (t *HostTransport) readLoop() {
	defer close(t.done)

	buf := make([]byte, 256)
	for {
		select {
		case <-t.stop:
			return
		default:
		}

		n, err := t.port.Read(buf)
		if n > 0 {
			t.processMessages(buf[:n])
		}
		if err == io.EOF || errors.Is(err, io.ErrClosedPipe) {
			return
		}
		if err != nil {
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func (t *HostTransport) processMessages(in []byte) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	t.input.Write(in)
	data := t.input.Data()
	used := 0

scan:
	for used < len(data) {
		if atomic.LoadUint32(&t.synced) == 0 {
			skip, found := resyncOffset(data[used:])
			used += skip
			if found {
				atomic.StoreUint32(&t.synced, 1)
			}
			continue
		}

		block, n, res := scanBlock(data[used:])
		switch res {
		case scanNeedMore:
			break scan
		case scanResync:
			atomic.StoreUint32(&t.synced, 0)
			continue
		}
		used += n

		end := len(block)
		t.dispatchMessage(&Message{
			Length:   block[MessagePositionLen],
			Sequence: block[MessagePositionSeq],
			Payload:  append([]byte(nil), payloadOf(block)...),
			CRC:      uint16(block[end-MessageTrailerCRC])<<8 | uint16(block[end-MessageTrailerCRC+1]),
		})
	}

	if used > 0 {
		t.input.Pop(used)
	}
}

func (t *HostTransport) dispatchMessage(msg *Message) {
	if len(msg.Payload) == 0 {
		select {
		case t.acks <- msg:
		default:
		}
		return
	}

	if t.handler != nil {
		p := append([]byte(nil), msg.Payload...)
		if cmdID, err := DecodeVLQUint(&p); err == nil {
			_ = t.handler(uint16(cmdID), &p)
		}
	}

	select {
	case t.responses <- msg:
	default:
		// Queue full: drop the oldest response.
		select {
		case <-t.responses:
		default:
		}
		t.responses <- msg
	}
}

// Close stops the reader and closes the port.
func (t *HostTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stop)
		if t.port != nil {
			err = t.port.Close()
		}
		<-t.done
	})
	return err
}

// Reset drops all queued messages and restarts the sequence.
func (t *HostTransport) Reset() {
	atomic.StoreUint32(&t.synced, 1)
	atomic.StoreUint32(&t.seq, MessageDest)
	for len(t.acks) > 0 {
		<-t.acks
	}
	for len(t.responses) > 0 {
		<-t.responses
	}
	t.readMu.Lock()
	t.input.Reset()
	t.readMu.Unlock()
}

// GetCurrentSequence returns the sequence of the next command.
func (t *HostTransport) GetCurrentSequence() uint8 {
	return uint8(atomic.LoadUint32(&t.seq))
}

// Drain discards responses queued before now.
func (t *HostTransport) Drain() {
	for {
		select {
		case <-t.responses:
		default:
			return
		}
	}
}
