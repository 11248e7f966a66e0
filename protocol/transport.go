package protocol

import "sync/atomic"

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
	// MessageSeqMask lives in protocol.go
)

// CommandHandler decodes and executes one command from a frame payload.
type CommandHandler func(cmdID uint16, data *[]byte) error

// scanStatus is the outcome of examining the front of the receive
// buffer for one frame.
type scanStatus int

const (
	scanNeedMore scanStatus = iota // partial frame, wait for more bytes
	scanSkipSync                   // leading sync byte, consume one byte
	scanBad                        // framing violation, resynchronize
	scanOK                         // complete valid frame at the front
)

// scanFrame validates the frame at the front of data. On scanOK it
// returns the sequence byte, the payload between header and trailer,
// and the total frame size to consume. Both link ends parse frames the
// same way; only what they do with them differs.
func scanFrame(data []byte) (status scanStatus, seq uint8, payload []byte, size int) {
	if data[0] == MessageValueSync {
		return scanSkipSync, 0, nil, 1
	}
	if len(data) < MessageLengthMin {
		return scanNeedMore, 0, nil, 0
	}

	n := int(data[MessagePositionLen])
	if n < MessageLengthMin || n > MessageLengthMax {
		return scanBad, 0, nil, 0
	}
	if len(data) < n {
		return scanNeedMore, 0, nil, 0
	}
	if data[n-MessageTrailerSync] != MessageValueSync {
		return scanBad, 0, nil, 0
	}

	wireCRC := uint16(data[n-MessageTrailerCRC])<<8 | uint16(data[n-MessageTrailerCRC+1])
	if wireCRC != CRC16(data[:n-MessageTrailerSize]) {
		return scanBad, 0, nil, 0
	}

	return scanOK, data[MessagePositionSeq], data[MessageHeaderSize : n-MessageTrailerSize], n
}

// resync drops bytes up to and past the next sync marker. Returns the
// remaining data and whether a marker was found.
func resync(data []byte) ([]byte, bool) {
	for i, b := range data {
		if b == MessageValueSync {
			return data[i+1:], true
		}
	}
	return nil, false
}

// Transport is the device side of the console link. It validates and
// acknowledges frames from the host, dispatches the commands inside
// them, and frames outgoing responses. Receive may be fed from a USB
// callback while the main loop flushes output, hence the atomics.
type Transport struct {
	synced  atomic.Bool
	nextSeq atomic.Uint32 // next expected host sequence (0x10-0x1F)

	output        OutputBuffer
	handler       CommandHandler
	resetCallback func() // host reconnect detected
	flushCallback func() // push a pending ACK to the wire at once
}

// NewTransport creates a device transport writing responses to output.
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{output: output, handler: handler}
	t.synced.Store(true)
	t.nextSeq.Store(MessageDest)
	return t
}

// Receive consumes whatever complete frames the input buffer holds.
// Partial frames stay buffered for the next call.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()

	for len(data) > 0 {
		if !t.synced.Load() {
			rest, found := resync(data)
			data = rest
			if found {
				t.synced.Store(true)
				t.sendAck()
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
		if status == scanBad || seq&^MessageSeqMask != MessageDest {
			t.synced.Store(false)
			continue
		}

		data = data[size:]
		t.handleFrame(seq, payload)
	}

	if consumed := input.Available() - len(data); consumed > 0 {
		input.Pop(consumed)
	}
}

// handleFrame applies the sequence protocol to one valid frame and
// dispatches its commands if it is the one we expected.
func (t *Transport) handleFrame(seq uint8, payload []byte) {
	expected := uint8(t.nextSeq.Load())

	// A host that restarts begins again at MessageDest. Fold our
	// state back so the new session does not stall on a stale count.
	if seq == MessageDest && expected != MessageDest {
		t.nextSeq.Store(MessageDest)
		expected = MessageDest
		if t.resetCallback != nil {
			t.resetCallback()
		}
	}

	if seq == expected {
		t.nextSeq.Store(uint32(((seq + 1) & MessageSeqMask) | MessageDest))
		_ = t.dispatch(payload)
	}
	// The ACK goes out either way. On a mismatch it carries the
	// sequence we still expect, which is the retransmit point.
	t.sendAck()
}

// dispatch runs every command packed into one frame payload.
func (t *Transport) dispatch(payload []byte) (err error) {
	// A handler panic must not take the firmware down with it; drop
	// the link instead and let the host resynchronize.
	defer func() {
		if r := recover(); r != nil {
			t.synced.Store(false)
		}
	}()

	for len(payload) > 0 {
		cmdID, err := DecodeVLQUint(&payload)
		if err != nil {
			t.synced.Store(false)
			return err
		}
		if t.handler != nil {
			if err := t.handler(uint16(cmdID), &payload); err != nil {
				// Handler errors are the command's problem, not a
				// link fault; stay synchronized.
				return err
			}
		}
	}
	return nil
}

// sendAck emits an empty frame carrying the next expected sequence.
// The host serializes on ACKs, so this bypasses the normal main-loop
// flush when the target provides a flush callback.
func (t *Transport) sendAck() {
	seq := uint8(t.nextSeq.Load())
	crc := CRC16([]byte{MessageLengthMin, seq})

	t.output.Output([]byte{
		MessageLengthMin,
		seq,
		uint8(crc >> 8),
		uint8(crc & 0xFF),
		MessageValueSync,
	})

	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// EncodeFrame frames arbitrary payload bytes into the output buffer:
// length and sequence header, caller-provided payload, CRC and sync
// trailer. Responses echo the next expected sequence; several frames
// may carry the same value.
func (t *Transport) EncodeFrame(frameData func(output OutputBuffer)) {
	mark := t.output.CurPosition()
	t.output.Output([]byte{0, uint8(t.nextSeq.Load())})

	frameData(t.output)

	body := len(t.output.DataSince(mark))
	t.output.Update(mark, uint8(body+MessageTrailerSize))

	crc := CRC16(t.output.DataSince(mark))
	t.output.Output([]byte{uint8(crc >> 8), uint8(crc & 0xFF), MessageValueSync})
}

// SendCommand frames one response message with its arguments.
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	t.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset returns the link to its power-on state. The USB layer calls
// this on disconnect so a replugged host starts clean.
func (t *Transport) Reset() {
	t.synced.Store(true)
	t.nextSeq.Store(MessageDest)
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// SetResetCallback registers a hook run when a host reconnect is
// detected (sequence restart or explicit Reset).
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback registers a hook that pushes a pending ACK onto the
// wire immediately instead of waiting for the next main-loop flush.
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}
