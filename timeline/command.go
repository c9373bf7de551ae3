// Package timeline compiles per-channel phase/duty settings into the
// pin-mask/delay command stream consumed by the playback sequencer.
package timeline

import "errors"

// Fixed design constants of the sequencer word format
const (
	NumChannels = 10               // Output channels driven by one sequencer
	MaskBits    = NumChannels      // Low bits of a command: pin levels
	DelayBits   = 32 - MaskBits    // High bits of a command: delay in engine cycles
	MaskLimit   = 1<<MaskBits - 1  // All channels high
	MaxDelay    = 1<<DelayBits - 1 // Largest encodable delay
	Capacity    = 4 * NumChannels  // Words per command buffer
	maxEvents   = 2 * NumChannels  // One rising and one falling edge per channel
)

// DefaultOverhead is the number of engine cycles the sequencer program spends
// per command on top of the encoded delay (out pins, out x, final jmp).
const DefaultOverhead = 3

var (
	ErrInvalidChannel    = errors.New("invalid channel index")
	ErrCapacityExceeded  = errors.New("command buffer capacity exceeded")
	ErrPeriodOutOfRange  = errors.New("period ticks out of range")
	ErrInsufficientSlack = errors.New("period too short to pad command buffer")
)

// Command is one sequencer word: bits [0:10) are the pin levels, bits [10:32)
// the number of cycles to hold them before fetching the next word.
type Command uint32

// Pack builds a command word. The delay must not exceed MaxDelay.
func Pack(mask uint16, delay uint32) Command {
	return Command(delay<<MaskBits | uint32(mask)&MaskLimit)
}

// Mask returns the pin levels applied by the command
func (c Command) Mask() uint16 {
	return uint16(uint32(c) & MaskLimit)
}

// Delay returns the encoded hold time in engine cycles
func (c Command) Delay() uint32 {
	return uint32(c) >> MaskBits
}

// Cycles returns how long the sequencer spends on the command
func (c Command) Cycles(overhead uint32) uint32 {
	return c.Delay() + overhead
}

// CommandBuffer is a fixed-capacity command array with a logical length.
// Its backing storage never moves, so its address can be handed to a
// transfer engine.
type CommandBuffer struct {
	words [Capacity]Command
	n     int
}

// Reset empties the buffer and clears every word so that identical
// compilations produce identical memory.
func (b *CommandBuffer) Reset() {
	b.words = [Capacity]Command{}
	b.n = 0
}

// Append adds a command. It never truncates: a full buffer is an error.
func (b *CommandBuffer) Append(c Command) error {
	if b.n >= Capacity {
		return ErrCapacityExceeded
	}
	b.words[b.n] = c
	b.n++
	return nil
}

// Len returns the logical length
func (b *CommandBuffer) Len() int {
	return b.n
}

// At returns the i-th command
func (b *CommandBuffer) At(i int) Command {
	return b.words[i]
}

// Commands returns the logical contents. The slice aliases the buffer.
func (b *CommandBuffer) Commands() []Command {
	return b.words[:b.n]
}

// Words exposes the full backing array (for address and size arithmetic)
func (b *CommandBuffer) Words() *[Capacity]Command {
	return &b.words
}

// Duration returns the total engine cycles one pass over the buffer takes
func (b *CommandBuffer) Duration(overhead uint32) uint32 {
	var total uint32
	for i := 0; i < b.n; i++ {
		total += b.words[i].Cycles(overhead)
	}
	return total
}

// LevelsAt returns the pin mask in force at the given cycle offset into a
// pass, or false if the offset lies beyond the end of the pass.
func (b *CommandBuffer) LevelsAt(cycle, overhead uint32) (uint16, bool) {
	var start uint32
	for i := 0; i < b.n; i++ {
		end := start + b.words[i].Cycles(overhead)
		if cycle < end {
			return b.words[i].Mask(), true
		}
		start = end
	}
	return 0, false
}
