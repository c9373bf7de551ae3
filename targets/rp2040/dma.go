//go:build rp2040 || rp2350

package main

import (
	"device/rp"
	"errors"
	"runtime/volatile"
	"unsafe"

	"phasepwm/core"
)

var errDMAChannel = errors.New("DMA channel out of range")

const (
	dmaChannelCount  = 12
	dmaChannelStride = 0x40 // Bytes between channel register blocks

	dreqPermanent = 0x3f // TREQ_SEL value for unpaced transfers
)

// dmaChannelRegs is one channel's register block. AL1_CTRL is the
// non-triggering alias of CTRL_TRIG.
type dmaChannelRegs struct {
	READ_ADDR   volatile.Register32
	WRITE_ADDR  volatile.Register32
	TRANS_COUNT volatile.Register32
	CTRL_TRIG   volatile.Register32
	AL1_CTRL    volatile.Register32
}

// RPDMA implements core.TransferEngines with direct register access.
// Pacing on the sequencer uses the TX DREQ of its state machine.
type RPDMA struct {
	sequencerDREQ uint32
}

// NewRPDMA paces sequencer-triggered transfers on the TX FIFO of the given
// PIO state machine
func NewRPDMA(pioNum, smNum uint8) *RPDMA {
	return &RPDMA{sequencerDREQ: uint32(pioNum)*8 + uint32(smNum)}
}

func dmaChannel(ch uint8) *dmaChannelRegs {
	base := uintptr(unsafe.Pointer(&rp.DMA.CH0_READ_ADDR))
	return (*dmaChannelRegs)(unsafe.Pointer(base + uintptr(ch)*dmaChannelStride))
}

// Configure programs a channel without starting it. Writing through
// AL1_CTRL leaves the channel idle; TRANS_COUNT becomes the reload value
// for every later trigger.
func (d *RPDMA) Configure(ch uint8, cfg core.TransferConfig) error {
	if ch >= dmaChannelCount {
		return errDMAChannel
	}
	regs := dmaChannel(ch)

	treq := uint32(dreqPermanent)
	if cfg.Trigger == core.TriggerSequencer {
		treq = d.sequencerDREQ
	}

	ctrl := uint32(rp.DMA_CH0_CTRL_TRIG_EN) |
		// Transfer 32-bit words
		rp.DMA_CH0_CTRL_TRIG_DATA_SIZE_SIZE_WORD<<rp.DMA_CH0_CTRL_TRIG_DATA_SIZE_Pos |
		uint32(cfg.ChainTo)<<rp.DMA_CH0_CTRL_TRIG_CHAIN_TO_Pos |
		treq<<rp.DMA_CH0_CTRL_TRIG_TREQ_SEL_Pos |
		// High priority so the TX FIFO never runs dry
		rp.DMA_CH0_CTRL_TRIG_HIGH_PRIORITY
	if cfg.IncrementRead {
		ctrl |= rp.DMA_CH0_CTRL_TRIG_INCR_READ
	}
	if cfg.IncrementWrite {
		ctrl |= rp.DMA_CH0_CTRL_TRIG_INCR_WRITE
	}

	regs.READ_ADDR.Set(uint32(cfg.Read))
	regs.WRITE_ADDR.Set(uint32(cfg.Write))
	regs.TRANS_COUNT.Set(cfg.Count)
	regs.AL1_CTRL.Set(ctrl)
	return nil
}

// Trigger starts a configured channel
func (d *RPDMA) Trigger(ch uint8) error {
	if ch >= dmaChannelCount {
		return errDMAChannel
	}
	rp.DMA.MULTI_CHAN_TRIGGER.Set(1 << ch)
	return nil
}

// Abort disables a channel and waits until the abort has drained
func (d *RPDMA) Abort(ch uint8) error {
	if ch >= dmaChannelCount {
		return errDMAChannel
	}
	dmaChannel(ch).AL1_CTRL.ClearBits(rp.DMA_CH0_CTRL_TRIG_EN)
	rp.DMA.CHAN_ABORT.Set(1 << ch)
	for rp.DMA.CHAN_ABORT.Get() != 0 {
	}
	return nil
}

// ReadAddressRegister returns the address of READ_ADDR, which does not
// trigger the channel when written
func (d *RPDMA) ReadAddressRegister(ch uint8) uintptr {
	return uintptr(unsafe.Pointer(&dmaChannel(ch).READ_ADDR))
}

// ReadAddress returns the channel's live read pointer
func (d *RPDMA) ReadAddress(ch uint8) uintptr {
	return uintptr(dmaChannel(ch).READ_ADDR.Get())
}
