package protocol

import (
	"bytes"
	"errors"
	"sync/atomic"
)

// ErrHandlerPanic is reported when a command handler panics mid-frame
var ErrHandlerPanic = errors.New("command handler panicked")

// CommandHandler runs one decoded command; it consumes its arguments from data
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the MCU end of the link. It scans host frames, dispatches the
// commands they carry in sequence order, and answers every frame with an
// ACK naming the next sequence it expects. Responses go out with that same
// sequence byte.
type Transport struct {
	synced  atomic.Bool
	nextSeq atomic.Uint32 // 0x10-0x1F

	output  OutputBuffer
	handler CommandHandler
	ackBuf  [MessageLengthMin]byte

	onReset func() // Host restarted its sequence
	onFlush func() // Push the ACK out before any response
	onError func(error)
}

func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{output: output, handler: handler}
	t.synced.Store(true)
	t.nextSeq.Store(MessageDest)
	return t
}

// Receive consumes every complete frame in input. A partial frame at the
// end is left for the next call.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()

	for len(data) > 0 {
		if !t.synced.Load() {
			// Everything up to and including the next sync byte is garbage
			i := bytes.IndexByte(data, MessageValueSync)
			if i < 0 {
				data = nil
				break
			}
			data = data[i+1:]
			t.synced.Store(true)
			t.sendAck()
			continue
		}

		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		frame, n, status := ScanFrame(data, true)
		if status == FrameIncomplete {
			break
		}
		if status == FrameInvalid {
			t.synced.Store(false)
			continue
		}
		data = data[n:]
		t.accept(frame)
	}

	if consumed := input.Available() - len(data); consumed > 0 {
		input.Pop(consumed)
	}
}

// accept dispatches frame if it carries the expected sequence and ACKs it
// either way; a mismatched frame gets a NAK repeating the expected sequence
func (t *Transport) accept(frame Frame) {
	expected := uint8(t.nextSeq.Load())
	if frame.Sequence == MessageDest && expected != MessageDest {
		// Sequence back at the start means the host restarted
		expected = MessageDest
		t.nextSeq.Store(MessageDest)
		if t.onReset != nil {
			t.onReset()
		}
	}

	if frame.Sequence == expected {
		t.nextSeq.Store(uint32(NextSequence(expected)))
		if err := t.dispatch(frame.Payload); err != nil && t.onError != nil {
			t.onError(err)
		}
	}
	t.sendAck()
}

// dispatch runs every command in a frame payload. A handler error stops the
// frame but keeps the link in sync; a payload that does not decode does not.
func (t *Transport) dispatch(payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.synced.Store(false)
			err = ErrHandlerPanic
		}
	}()

	for len(payload) > 0 {
		cmdID, err := DecodeVLQUint(&payload)
		if err != nil {
			t.synced.Store(false)
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

func (t *Transport) sendAck() {
	ack, _ := AppendFrame(t.ackBuf[:0], uint8(t.nextSeq.Load()), nil)
	t.output.Output(ack)
	if t.onFlush != nil {
		t.onFlush()
	}
}

// EncodeFrame writes one frame whose payload is produced by fill. The length
// byte and CRC are patched in once the payload is known.
func (t *Transport) EncodeFrame(fill func(output OutputBuffer)) {
	start := t.output.CurPosition()
	t.output.Output([]byte{0, uint8(t.nextSeq.Load())})
	fill(t.output)

	t.output.Update(start, uint8(len(t.output.DataSince(start))+MessageTrailerSize))
	crc := CRC16(t.output.DataSince(start))
	t.output.Output([]byte{uint8(crc >> 8), uint8(crc), MessageValueSync})
}

// SendCommand writes a frame holding cmdID followed by the encoded args
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	t.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset returns to the power-on state, e.g. after USB re-enumerates
func (t *Transport) Reset() {
	t.synced.Store(true)
	t.nextSeq.Store(MessageDest)
	if t.onReset != nil {
		t.onReset()
	}
}

func (t *Transport) SetResetCallback(fn func()) { t.onReset = fn }

// SetFlushCallback sets the hook that drains output right after each ACK
func (t *Transport) SetFlushCallback(fn func()) { t.onFlush = fn }

// SetErrorCallback sets the hook that receives dispatch errors, which would
// otherwise only be visible as a missing response on the host
func (t *Transport) SetErrorCallback(fn func(error)) { t.onError = fn }
