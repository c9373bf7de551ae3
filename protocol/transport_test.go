package protocol

import (
	"errors"
	"testing"
)

func commandFrame(t *testing.T, seq uint8, ids ...uint32) []byte {
	t.Helper()
	scratch := NewScratchOutput()
	for _, id := range ids {
		EncodeVLQUint(scratch, id)
	}
	frame, err := AppendFrame(nil, seq, scratch.Result())
	if err != nil {
		t.Fatalf("AppendFrame failed: %v", err)
	}
	return frame
}

func lastAckSeq(t *testing.T, out *ScratchOutput) uint8 {
	t.Helper()
	data := out.Result()
	var seq uint8
	for len(data) > 0 {
		frame, n, status := ScanFrame(data, false)
		if status != FrameOK {
			t.Fatalf("Bad output frame in %v", out.Result())
		}
		seq = frame.Sequence
		data = data[n:]
	}
	return seq
}

func TestTransportReportsHandlerErrors(t *testing.T) {
	out := NewScratchOutput()
	errBusy := errors.New("ramp in progress")
	var ran []uint16
	tr := NewTransport(out, func(cmdID uint16, data *[]byte) error {
		ran = append(ran, cmdID)
		if cmdID == 2 {
			return errBusy
		}
		return nil
	})
	var reported []error
	tr.SetErrorCallback(func(err error) { reported = append(reported, err) })

	// The failing command stops the rest of its frame only
	tr.Receive(NewSliceInputBuffer(commandFrame(t, 0x10, 1, 2, 3)))
	tr.Receive(NewSliceInputBuffer(commandFrame(t, 0x11, 4)))

	if len(ran) != 3 || ran[2] != 4 {
		t.Errorf("Expected commands [1 2 4], ran %v", ran)
	}
	if len(reported) != 1 || reported[0] != errBusy {
		t.Errorf("Expected one reported error, got %v", reported)
	}
	if seq := lastAckSeq(t, out); seq != 0x12 {
		t.Errorf("Expected ACK for 0x12, got %#x", seq)
	}
}

func TestTransportRecoversHandlerPanic(t *testing.T) {
	out := NewScratchOutput()
	tr := NewTransport(out, func(cmdID uint16, data *[]byte) error {
		if cmdID == 9 {
			panic("bad channel")
		}
		return nil
	})
	var reported error
	tr.SetErrorCallback(func(err error) { reported = err })

	tr.Receive(NewSliceInputBuffer(commandFrame(t, 0x10, 9)))
	if reported != ErrHandlerPanic {
		t.Fatalf("Expected ErrHandlerPanic, got %v", reported)
	}

	// The panic drops sync; the next frame's trailing sync byte restores it
	// and the frame after that is dispatched
	reported = nil
	input := append(commandFrame(t, 0x11, 1), commandFrame(t, 0x11, 1)...)
	tr.Receive(NewSliceInputBuffer(input))
	if reported != nil {
		t.Errorf("Unexpected error after resync: %v", reported)
	}
	if seq := lastAckSeq(t, out); seq != 0x12 {
		t.Errorf("Expected ACK for 0x12 after resync, got %#x", seq)
	}
}

func TestTransportResyncsAfterGarbage(t *testing.T) {
	out := NewScratchOutput()
	var ran int
	tr := NewTransport(out, func(cmdID uint16, data *[]byte) error {
		ran++
		return nil
	})

	// A bad length byte desyncs; everything up to the next sync is dropped
	input := []byte{0xFF, 0x01, 0x02, MessageValueSync}
	input = append(input, commandFrame(t, 0x10, 5)...)
	buf := NewSliceInputBuffer(input)
	tr.Receive(buf)

	if ran != 1 {
		t.Errorf("Expected the frame after the sync byte to run, ran %d", ran)
	}
	if buf.Available() != 0 {
		t.Errorf("%d bytes left unconsumed", buf.Available())
	}
}

func TestTransportKeepsPartialFrame(t *testing.T) {
	out := NewScratchOutput()
	var ran int
	tr := NewTransport(out, func(cmdID uint16, data *[]byte) error {
		ran++
		return nil
	})

	frame := commandFrame(t, 0x10, 5)
	fifo := NewFifoBuffer(64)
	fifo.Write(frame[:4])
	tr.Receive(fifo)
	if ran != 0 || fifo.Available() != 4 {
		t.Fatalf("Partial frame consumed: ran=%d left=%d", ran, fifo.Available())
	}

	fifo.Write(frame[4:])
	tr.Receive(fifo)
	if ran != 1 || fifo.Available() != 0 {
		t.Errorf("Completed frame not consumed: ran=%d left=%d", ran, fifo.Available())
	}
}

func TestTransportHostRestart(t *testing.T) {
	out := NewScratchOutput()
	tr := NewTransport(out, func(cmdID uint16, data *[]byte) error { return nil })
	resets := 0
	tr.SetResetCallback(func() { resets++ })

	tr.Receive(NewSliceInputBuffer(commandFrame(t, 0x10, 1)))
	tr.Receive(NewSliceInputBuffer(commandFrame(t, 0x11, 1)))
	if resets != 0 {
		t.Fatalf("Reset reported during normal sequencing")
	}

	tr.Receive(NewSliceInputBuffer(commandFrame(t, 0x10, 1)))
	if resets != 1 {
		t.Errorf("Expected one reset, got %d", resets)
	}
	if seq := lastAckSeq(t, out); seq != 0x11 {
		t.Errorf("Expected ACK for 0x11 after restart, got %#x", seq)
	}
}

func TestTransportResponseUsesAckSequence(t *testing.T) {
	out := NewScratchOutput()
	tr := NewTransport(out, nil)
	tr.Receive(NewSliceInputBuffer(commandFrame(t, 0x10)))
	out.Reset()

	tr.SendCommand(3, func(o OutputBuffer) {
		EncodeVLQUint(o, 4)
		EncodeVLQInt(o, -90000)
	})
	frame, n, status := ScanFrame(out.Result(), false)
	if status != FrameOK || n != len(out.Result()) {
		t.Fatalf("Response is not one valid frame: %v", out.Result())
	}
	if frame.Sequence != 0x11 {
		t.Errorf("Expected response sequence 0x11, got %#x", frame.Sequence)
	}
	payload := frame.Payload
	id, _ := DecodeVLQUint(&payload)
	ch, _ := DecodeVLQUint(&payload)
	phase, _ := DecodeVLQInt(&payload)
	if id != 3 || ch != 4 || phase != -90000 {
		t.Errorf("Decoded %d %d %d", id, ch, phase)
	}
}
