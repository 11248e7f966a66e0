package protocol

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// ResponseHandler observes responses as the read loop parses them.
type ResponseHandler func(cmdID uint16, data *[]byte) error

// Message is one parsed link frame as seen by the host.
type Message struct {
	Length   uint8
	Sequence uint8
	Payload  []byte // frame data without header and trailer
	CRC      uint16
}

// HostTransport is the provisioning side of the console link: it
// frames commands toward the device, serializes on the device's ACKs,
// and surfaces responses through a channel or a registered handler.
// A background goroutine owns the serial read; everything else runs on
// the caller.
type HostTransport struct {
	port io.ReadWriteCloser

	curSeq atomic.Uint32 // our next command sequence (0x10-0x1F)
	synced atomic.Bool

	in  *FifoBuffer
	out *bytes.Buffer

	ackChan      chan *Message
	responseChan chan *Message

	responseHandler ResponseHandler

	writeMu sync.Mutex
	readMu  sync.Mutex

	stopChan chan struct{}
	doneChan chan struct{}
}

// NewHostTransport starts a transport over an open port. Close stops
// the read loop and closes the port.
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:         port,
		in:           NewFifoBuffer(512),
		out:          bytes.NewBuffer(make([]byte, 0, 256)),
		ackChan:      make(chan *Message, 1),
		responseChan: make(chan *Message, 16),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	t.curSeq.Store(MessageDest)
	t.synced.Store(true)

	go t.readLoop()
	return t
}

// SendCommand frames one command, writes it and blocks until the
// device acknowledges it or the default 2 s deadline passes.
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, 2*time.Second)
}

// SendCommandWithTimeout is SendCommand with a caller-chosen deadline.
func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	msg, err := t.frameCommand(cmdID, args)
	if err != nil {
		return fmt.Errorf("failed to build command: %w", err)
	}

	t.writeMu.Lock()
	_, err = t.port.Write(msg)
	t.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	if err := t.awaitAck(timeout); err != nil {
		return fmt.Errorf("ACK timeout or error: %w", err)
	}
	return nil
}

// frameCommand builds one complete wire frame for the command.
func (t *HostTransport) frameCommand(cmdID uint16, args func(output OutputBuffer)) ([]byte, error) {
	payload := NewScratchOutput()
	EncodeVLQUint(payload, uint32(cmdID))
	if args != nil {
		args(payload)
	}

	body := payload.Result()
	total := MessageHeaderSize + len(body) + MessageTrailerSize
	if total > MessageLengthMax {
		return nil, fmt.Errorf("message too long: %d bytes (max %d)", total, MessageLengthMax)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.out.Reset()
	t.out.Write([]byte{uint8(total), uint8(t.curSeq.Load())})
	t.out.Write(body)

	crc := CRC16(t.out.Bytes())
	t.out.Write([]byte{uint8(crc >> 8), uint8(crc & 0xFF), MessageValueSync})

	frame := make([]byte, t.out.Len())
	copy(frame, t.out.Bytes())
	return frame, nil
}

// awaitAck blocks until the device acknowledges the in-flight command,
// then advances the sequence counter.
func (t *HostTransport) awaitAck(timeout time.Duration) error {
	select {
	case ack := <-t.ackChan:
		expected := uint8(t.curSeq.Load())
		if ack.Sequence != expected {
			return fmt.Errorf("sequence mismatch: expected 0x%02x, got 0x%02x", expected, ack.Sequence)
		}
		t.curSeq.Store(uint32(((expected + 1) & MessageSeqMask) | MessageDest))
		return nil

	case <-time.After(timeout):
		return fmt.Errorf("ACK timeout after %v", timeout)

	case <-t.stopChan:
		return fmt.Errorf("transport stopped")
	}
}

// ReceiveResponse blocks for the next response frame.
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Message, error) {
	select {
	case resp := <-t.responseChan:
		return resp, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("response timeout after %v", timeout)
	case <-t.stopChan:
		return nil, fmt.Errorf("transport stopped")
	}
}

// SetResponseHandler registers a callback invoked from the read loop
// for every response, ahead of the channel delivery.
func (t *HostTransport) SetResponseHandler(handler ResponseHandler) {
	t.responseHandler = handler
}

// readLoop pulls bytes off the port and feeds the frame parser until
// Close or EOF.
func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buffer := make([]byte, 256)
	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buffer)
		if err != nil {
			if err == io.EOF {
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if n > 0 {
			t.in.Write(buffer[:n])
			t.parseFrames()
		}
	}
}

// parseFrames drains complete frames from the input buffer, using the
// same scanner as the device side.
func (t *HostTransport) parseFrames() {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	data := t.in.Data()

	for len(data) > 0 {
		if !t.synced.Load() {
			rest, found := resync(data)
			data = rest
			if found {
				t.synced.Store(true)
			}
			continue
		}

		status, seq, payload, size := scanFrame(data)
		if status == scanNeedMore {
			break
		}
		if status == scanSkipSync {
			data = data[size:]
			continue
		}
		if status == scanBad {
			t.synced.Store(false)
			continue
		}

		body := make([]byte, len(payload))
		copy(body, payload)
		wireCRC := uint16(data[size-MessageTrailerCRC])<<8 | uint16(data[size-MessageTrailerCRC+1])
		data = data[size:]

		t.deliver(&Message{
			Length:   uint8(size),
			Sequence: seq,
			Payload:  body,
			CRC:      wireCRC,
		})
	}

	if consumed := t.in.Available() - len(data); consumed > 0 {
		t.in.Pop(consumed)
	}
}

// deliver routes one frame: empty payload means ACK, anything else is
// a response.
func (t *HostTransport) deliver(msg *Message) {
	if len(msg.Payload) == 0 {
		select {
		case t.ackChan <- msg:
		default:
		}
		return
	}

	if t.responseHandler != nil {
		// The handler gets its own copy; decoding consumes the slice.
		view := make([]byte, len(msg.Payload))
		copy(view, msg.Payload)
		if cmdID, err := DecodeVLQUint(&view); err == nil {
			_ = t.responseHandler(uint16(cmdID), &view)
		}
	}

	select {
	case t.responseChan <- msg:
	default:
		// Full queue: the oldest unread response is the least useful.
		select {
		case <-t.responseChan:
		default:
		}
		t.responseChan <- msg
	}
}

// Close stops the read loop and closes the port.
func (t *HostTransport) Close() error {
	close(t.stopChan)
	<-t.doneChan

	if t.port != nil {
		return t.port.Close()
	}
	return nil
}

// Reset drops any buffered frames and returns the sequence state to
// power-on values. The device folds back to the same state when it
// sees the restarted sequence.
func (t *HostTransport) Reset() {
	t.synced.Store(true)
	t.curSeq.Store(MessageDest)

	for len(t.ackChan) > 0 {
		<-t.ackChan
	}
	for len(t.responseChan) > 0 {
		<-t.responseChan
	}

	t.readMu.Lock()
	t.in.Reset()
	t.readMu.Unlock()
}

// GetCurrentSequence exposes the sequence counter for diagnostics.
func (t *HostTransport) GetCurrentSequence() uint8 {
	return uint8(t.curSeq.Load())
}
