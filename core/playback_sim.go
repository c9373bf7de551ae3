//go:build !tinygo

package core

import (
	"errors"
	"sync/atomic"
	"unsafe"

	"phasepwm/timeline"
)

// SimTransferChannels matches the RP2040 DMA channel count
const SimTransferChannels = 12

var ErrInvalidTransferChannel = errors.New("invalid transfer channel")

// SimSequencer stands in for the PIO state machine. It records every command
// word it consumes.
type SimSequencer struct {
	BasePin  uint8
	Pins     uint8
	Enabled  bool
	Levels   uint16             // Pin levels applied by the last command
	Cycles   uint64             // Engine cycles consumed so far
	Overhead uint32             // Per-command cycles on top of the delay
	Applied  []timeline.Command // Every command consumed, in order

	ConfigureErr error // Returned by Configure when set

	input uint32
}

// NewSimSequencer returns a disabled sequencer with the default overhead
func NewSimSequencer() *SimSequencer {
	return &SimSequencer{Overhead: timeline.DefaultOverhead}
}

func (s *SimSequencer) Configure(basePin uint8, count uint8) error {
	if s.ConfigureErr != nil {
		return s.ConfigureErr
	}
	s.BasePin = basePin
	s.Pins = count
	return nil
}

func (s *SimSequencer) InputRegister() uintptr {
	return uintptr(unsafe.Pointer(&s.input))
}

func (s *SimSequencer) SetEnabled(enabled bool) error {
	s.Enabled = enabled
	return nil
}

func (s *SimSequencer) consume() {
	cmd := timeline.Command(s.input)
	s.Levels = cmd.Mask()
	s.Cycles += uint64(cmd.Cycles(s.Overhead))
	s.Applied = append(s.Applied, cmd)
}

type simChannel struct {
	cfg       TransferConfig
	readAddr  uintptr
	writeAddr uintptr
	remaining uint32
	busy      bool
}

// SimTransfer emulates a bank of chained DMA channels. Time only advances
// through Step, which makes tests deterministic.
type SimTransfer struct {
	seq      *SimSequencer
	channels [SimTransferChannels]simChannel

	// PassStarts records the read pointer at the start of every paced pass
	PassStarts []uintptr
}

// NewSimTransfer returns transfer engines feeding the given sequencer
func NewSimTransfer(seq *SimSequencer) *SimTransfer {
	return &SimTransfer{seq: seq}
}

func (t *SimTransfer) Configure(channel uint8, cfg TransferConfig) error {
	if channel >= SimTransferChannels || cfg.ChainTo >= SimTransferChannels {
		return ErrInvalidTransferChannel
	}
	c := &t.channels[channel]
	c.cfg = cfg
	c.readAddr = cfg.Read
	c.writeAddr = cfg.Write
	c.busy = false
	return nil
}

func (t *SimTransfer) Trigger(channel uint8) error {
	if channel >= SimTransferChannels {
		return ErrInvalidTransferChannel
	}
	t.start(channel)
	return nil
}

func (t *SimTransfer) Abort(channel uint8) error {
	if channel >= SimTransferChannels {
		return ErrInvalidTransferChannel
	}
	t.channels[channel].busy = false
	t.channels[channel].remaining = 0
	return nil
}

func (t *SimTransfer) ReadAddressRegister(channel uint8) uintptr {
	return uintptr(unsafe.Pointer(&t.channels[channel].readAddr))
}

func (t *SimTransfer) ReadAddress(channel uint8) uintptr {
	return t.channels[channel].readAddr
}

// Busy reports whether a channel has words left in its current pass
func (t *SimTransfer) Busy(channel uint8) bool {
	return t.channels[channel].busy
}

// start re-triggers a channel: the count reloads, the pointers stay where
// they were left (or where another channel wrote them)
func (t *SimTransfer) start(channel uint8) {
	c := &t.channels[channel]
	c.remaining = c.cfg.Count
	c.busy = c.remaining > 0
	if c.cfg.Trigger == TriggerSequencer && c.busy {
		t.PassStarts = append(t.PassStarts, c.readAddr)
	}
}

// Step lets the sequencer consume up to n words. Unpaced channels run to
// completion between paced words.
func (t *SimTransfer) Step(n int) {
	for i := 0; i < n; i++ {
		t.settle()
		ch := t.paced()
		if ch < 0 || !t.seq.Enabled {
			return
		}
		t.transfer(uint8(ch))
	}
	t.settle()
}

// StepPass runs until the next paced pass begins
func (t *SimTransfer) StepPass() {
	passes := len(t.PassStarts)
	for guard := 0; guard < 4*timeline.Capacity; guard++ {
		if t.paced() < 0 {
			return
		}
		t.Step(1)
		if len(t.PassStarts) > passes {
			return
		}
	}
}

func (t *SimTransfer) settle() {
	for guard := 0; guard < 64; guard++ {
		progressed := false
		for ch := range t.channels {
			c := &t.channels[ch]
			if c.busy && c.cfg.Trigger == TriggerPermanent {
				t.transfer(uint8(ch))
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
}

func (t *SimTransfer) paced() int {
	for ch := range t.channels {
		c := &t.channels[ch]
		if c.busy && c.cfg.Trigger == TriggerSequencer {
			return ch
		}
	}
	return -1
}

// transfer moves one word. Writes into another channel's read-pointer
// register are pointer sized, everything else is 32 bits.
func (t *SimTransfer) transfer(channel uint8) {
	c := &t.channels[channel]

	switch {
	case t.isReadAddressRegister(c.writeAddr):
		v := atomic.LoadUintptr((*uintptr)(unsafe.Pointer(c.readAddr)))
		*(*uintptr)(unsafe.Pointer(c.writeAddr)) = v
	case c.writeAddr == t.seq.InputRegister():
		t.seq.input = *(*uint32)(unsafe.Pointer(c.readAddr))
		t.seq.consume()
	default:
		*(*uint32)(unsafe.Pointer(c.writeAddr)) = *(*uint32)(unsafe.Pointer(c.readAddr))
	}

	if c.cfg.IncrementRead {
		c.readAddr += 4
	}
	if c.cfg.IncrementWrite {
		c.writeAddr += 4
	}

	c.remaining--
	if c.remaining == 0 {
		c.busy = false
		if c.cfg.ChainTo != channel {
			t.start(c.cfg.ChainTo)
		}
	}
}

func (t *SimTransfer) isReadAddressRegister(addr uintptr) bool {
	for ch := range t.channels {
		if addr == uintptr(unsafe.Pointer(&t.channels[ch].readAddr)) {
			return true
		}
	}
	return false
}
