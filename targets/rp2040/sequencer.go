//go:build rp2040 || rp2350

package main

import (
	"machine"
	"unsafe"

	"phasepwm/timeline"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// Sequencer program. Each 32-bit command carries the pin mask in its low
// timeline.NumChannels bits and the hold delay above it. Autopull refills
// the OSR, so the loop costs timeline.DefaultOverhead cycles plus the delay:
//
//	.wrap_target
//	out pins, 10   ; apply mask
//	out x, 22      ; delay
//	hold:
//	jmp x--, hold  ; runs delay+1 times
//	.wrap
func buildSequencerProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		asm.Out(rp2pio.OutDestPins, timeline.NumChannels).Encode(), // 0: out pins, 10
		asm.Out(rp2pio.OutDestX, timeline.DelayBits).Encode(),      // 1: out x, 22
		asm.Jmp(2, rp2pio.JmpXNZeroDec).Encode(),                   // 2: jmp x--, 2
	}
}

const sequencerOrigin = 0 // Jump targets are absolute

// PIOSequencer runs the command program on one PIO state machine and
// implements core.Sequencer
type PIOSequencer struct {
	pio    *rp2pio.PIO
	sm     rp2pio.StateMachine
	offset uint8
	length uint8
	loaded bool
}

// NewPIOSequencer selects a state machine
// pioNum: 0 for PIO0, 1 for PIO1
// smNum: 0-3
func NewPIOSequencer(pioNum, smNum uint8) *PIOSequencer {
	pioHW := rp2pio.PIO0
	if pioNum != 0 {
		pioHW = rp2pio.PIO1
	}
	return &PIOSequencer{
		pio: pioHW,
		sm:  pioHW.StateMachine(smNum),
	}
}

// Configure loads the program and binds the output pins. All pins start low
// and the state machine stays disabled until SetEnabled.
func (s *PIOSequencer) Configure(basePin uint8, count uint8) error {
	s.sm.TryClaim()

	if !s.loaded {
		program := buildSequencerProgram()
		offset, err := s.pio.AddProgram(program, sequencerOrigin)
		if err != nil {
			return err
		}
		s.offset = offset
		s.length = uint8(len(program))
		s.loaded = true
	}

	base := machine.Pin(basePin)
	for i := uint8(0); i < count; i++ {
		(base + machine.Pin(i)).Configure(machine.PinConfig{Mode: s.pio.PinMode()})
	}

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetOutPins(base, count)

	// Shift right so the mask comes out first; autopull at 32 bits
	cfg.SetOutShift(true, true, 32)

	// Only the TX FIFO is used
	cfg.SetFIFOJoin(rp2pio.FifoJoinTx)

	cfg.SetWrap(s.offset+s.length-1, s.offset)

	// Full system clock; delays are counted in system cycles
	cfg.SetClkDivIntFrac(1, 0)

	s.sm.Init(s.offset, cfg)

	// Pin directions must be set after Init
	s.sm.SetPindirsConsecutive(base, count, true)
	s.sm.SetPinsConsecutive(base, count, false)
	return nil
}

// InputRegister returns the TX FIFO address the data channel writes to
func (s *PIOSequencer) InputRegister() uintptr {
	return uintptr(unsafe.Pointer(s.sm.TxReg()))
}

// SetEnabled starts or stops the state machine. Stopping also flushes the
// FIFO and restarts the program so a later start begins with a fresh word.
func (s *PIOSequencer) SetEnabled(enabled bool) error {
	if enabled {
		s.sm.SetEnabled(true)
		return nil
	}
	s.sm.SetEnabled(false)
	s.sm.ClearFIFOs()
	s.sm.Restart()
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	s.sm.Exec(asm.Jmp(s.offset, rp2pio.JmpAlways).Encode())
	return nil
}
