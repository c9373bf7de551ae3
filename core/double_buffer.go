package core

import (
	"errors"
	"sync/atomic"
	"unsafe"

	"phasepwm/timeline"
)

var ErrNotWritable = errors.New("buffer is not the writable buffer")

// bufferBytes is the size of one command buffer as seen by a transfer engine
const bufferBytes = timeline.Capacity * 4

// DoubleBuffer owns the two command buffers and the indirection cell the
// playback control channel reloads from at the end of every pass.
//
// The cell has a single writer (Publish) and a single reader (the control
// channel). A buffer is written completely before its address is stored, and
// the store is atomic, so hardware never sees a partial buffer.
type DoubleBuffer struct {
	bufs      [2]timeline.CommandBuffer
	active    int // Index of the published buffer, -1 before the first publish
	cell      atomic.Uintptr
	publishes uint32
}

// NewDoubleBuffer returns a manager with nothing published
func NewDoubleBuffer() *DoubleBuffer {
	return &DoubleBuffer{active: -1}
}

// BufferAddress returns the address of a buffer's first word
func BufferAddress(buf *timeline.CommandBuffer) uintptr {
	return uintptr(unsafe.Pointer(&buf.Words()[0]))
}

// contains reports whether a read pointer lies within the buffer, including
// one-past-the-end where the data channel rests before the control reload
func contains(buf *timeline.CommandBuffer, addr uintptr) bool {
	start := BufferAddress(buf)
	return addr >= start && addr <= start+bufferBytes
}

func (d *DoubleBuffer) writableIndex() int {
	if d.active == 0 {
		return 1
	}
	return 0
}

// Writable returns the buffer that is not published. The hardware adopts a
// new publish only at its next pass boundary, so the previously published
// buffer may still be streaming; when inFlight points into it, the buffer is
// withheld and ok is false.
func (d *DoubleBuffer) Writable(inFlight uintptr) (buf *timeline.CommandBuffer, ok bool) {
	buf = &d.bufs[d.writableIndex()]
	if inFlight != 0 && contains(buf, inFlight) {
		return nil, false
	}
	return buf, true
}

// Publish makes a fully written buffer the one hardware reads on its next pass
func (d *DoubleBuffer) Publish(buf *timeline.CommandBuffer) error {
	idx := d.writableIndex()
	if buf != &d.bufs[idx] {
		return ErrNotWritable
	}
	// Release store: every buffer write above is ordered before it
	d.cell.Store(BufferAddress(buf))
	d.active = idx
	d.publishes++
	return nil
}

// Active returns the published buffer and its index, or nil and -1
func (d *DoubleBuffer) Active() (*timeline.CommandBuffer, int) {
	if d.active < 0 {
		return nil, -1
	}
	return &d.bufs[d.active], d.active
}

// Buffer returns buffer A (0) or B (1)
func (d *DoubleBuffer) Buffer(idx int) *timeline.CommandBuffer {
	return &d.bufs[idx&1]
}

// Cell returns the address currently held by the indirection cell
func (d *DoubleBuffer) Cell() uintptr {
	return d.cell.Load()
}

// CellAddress returns the address of the indirection cell itself, the read
// source of the control channel
func (d *DoubleBuffer) CellAddress() uintptr {
	return uintptr(unsafe.Pointer(&d.cell))
}

// Publishes returns how many buffers have been published
func (d *DoubleBuffer) Publishes() uint32 {
	return d.publishes
}
