package core

import (
	"errors"

	"go.uber.org/multierr"

	"phasepwm/timeline"
)

var (
	ErrSameChannel    = errors.New("data and control channels must differ")
	ErrAlreadyRunning = errors.New("playback already streaming")
	ErrNotPublished   = errors.New("no buffer published")
)

// PlaybackConfig selects the hardware resources of the playback loop
type PlaybackConfig struct {
	BasePin        uint8 // First of NumChannels consecutive output pins
	DataChannel    uint8 // Streams commands into the sequencer
	ControlChannel uint8 // Reloads the data channel from the indirection cell
}

// Playback arms the sequencer and the two chained transfer channels. Once
// started it replays the published buffer forever: the data channel streams
// Capacity words paced by the sequencer, then chains to the control channel,
// which copies the indirection cell into the data channel's read pointer and
// chains back.
type Playback struct {
	seq     Sequencer
	dma     TransferEngines
	cfg     PlaybackConfig
	running bool
}

// NewPlayback takes ownership of the sequencer and transfer engines
func NewPlayback(seq Sequencer, dma TransferEngines, cfg PlaybackConfig) *Playback {
	return &Playback{seq: seq, dma: dma, cfg: cfg}
}

// Start configures everything and triggers the first pass over the buffer
// at first. cell is the address of the indirection cell. Setup problems are
// reported here once; there is no runtime retry.
func (p *Playback) Start(cell, first uintptr) error {
	if p.running {
		return ErrAlreadyRunning
	}
	if p.cfg.DataChannel == p.cfg.ControlChannel {
		return ErrSameChannel
	}
	if cell == 0 || first == 0 {
		return ErrNotPublished
	}

	if err := p.seq.Configure(p.cfg.BasePin, timeline.NumChannels); err != nil {
		return err
	}

	ctrl := TransferConfig{
		Read:    cell,
		Write:   p.dma.ReadAddressRegister(p.cfg.DataChannel),
		Count:   1,
		Trigger: TriggerPermanent,
		ChainTo: p.cfg.DataChannel,
	}
	if err := p.dma.Configure(p.cfg.ControlChannel, ctrl); err != nil {
		return err
	}

	data := TransferConfig{
		Read:          first,
		Write:         p.seq.InputRegister(),
		Count:         timeline.Capacity,
		IncrementRead: true,
		Trigger:       TriggerSequencer,
		ChainTo:       p.cfg.ControlChannel,
	}
	if err := p.dma.Configure(p.cfg.DataChannel, data); err != nil {
		return err
	}

	if err := p.seq.SetEnabled(true); err != nil {
		return err
	}
	if err := p.dma.Trigger(p.cfg.DataChannel); err != nil {
		return multierr.Append(err, p.seq.SetEnabled(false))
	}
	p.running = true
	return nil
}

// Running reports whether the loop has been armed
func (p *Playback) Running() bool {
	return p.running
}

// InFlight returns the data channel's current read pointer, or 0 when idle
func (p *Playback) InFlight() uintptr {
	if !p.running {
		return 0
	}
	return p.dma.ReadAddress(p.cfg.DataChannel)
}

// Stop tears the loop down. The control channel goes first so it cannot
// re-arm the data channel after it has been aborted.
func (p *Playback) Stop() error {
	if !p.running {
		return nil
	}
	p.running = false
	return multierr.Combine(
		p.dma.Abort(p.cfg.ControlChannel),
		p.dma.Abort(p.cfg.DataChannel),
		p.seq.SetEnabled(false),
	)
}
