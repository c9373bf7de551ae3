package core

import (
	"errors"

	"phasepwm/timeline"
)

var ErrFrequencyOutOfRange = errors.New("pwm frequency out of range")

// Defaults for a 125 MHz RP2040 system clock
const (
	DefaultClockHz     = 125000000
	DefaultFrequencyHz = 1000
)

// ControllerConfig is the one-time setup of a Controller
type ControllerConfig struct {
	ClockHz     uint32 // Sequencer clock in Hz
	FrequencyHz uint32 // Initial PWM frequency
	Overhead    uint32 // Sequencer cycles per command; 0 selects the default
	Mode        timeline.EmitMode
	Playback    PlaybackConfig
}

// Status is a snapshot of the controller for diagnostics
type Status struct {
	PeriodTicks uint32
	Commands    int    // Logical length of the last published compilation
	Publishes   uint32 // Buffers published since start
	Active      int    // Index of the published buffer, -1 before the first
	Pending     bool   // An update is waiting for the hardware to leave a buffer
	Running     bool
}

// Controller is the entry point for configuring channels. It owns the
// channel state, the compiler, both command buffers and the playback
// hardware. It is not safe for concurrent use; the hardware loop never
// touches it except through the indirection cell.
type Controller struct {
	cfg      ControllerConfig
	store    timeline.Store
	compiler timeline.Compiler
	buffers  *DoubleBuffer
	playback *Playback
	ramps    [timeline.NumChannels]Ramp

	commands int
	pending  bool
}

// NewController validates the configuration and takes ownership of the
// hardware handles. Nothing is touched until Start.
func NewController(seq Sequencer, dma TransferEngines, cfg ControllerConfig) (*Controller, error) {
	if cfg.ClockHz == 0 {
		cfg.ClockHz = DefaultClockHz
	}
	if cfg.FrequencyHz == 0 {
		cfg.FrequencyHz = DefaultFrequencyHz
	}
	if cfg.Overhead == 0 {
		cfg.Overhead = timeline.DefaultOverhead
	}

	period, err := timeline.PeriodForFrequency(cfg.ClockHz, cfg.FrequencyHz, cfg.Overhead)
	if err != nil {
		return nil, ErrFrequencyOutOfRange
	}

	c := &Controller{
		cfg: cfg,
		compiler: timeline.Compiler{
			PeriodTicks: period,
			Overhead:    cfg.Overhead,
			Mode:        cfg.Mode,
		},
		buffers:  NewDoubleBuffer(),
		playback: NewPlayback(seq, dma, cfg.Playback),
	}
	for ch := range c.ramps {
		c.ramps[ch].init(c, ch)
	}
	return c, nil
}

// Start compiles the current state, publishes it and arms the playback
// loop. It is called once.
func (c *Controller) Start() error {
	if c.playback.Running() {
		return ErrAlreadyRunning
	}
	if err := c.Update(); err != nil {
		return err
	}
	first, _ := c.buffers.Active()
	if err := c.playback.Start(c.buffers.CellAddress(), BufferAddress(first)); err != nil {
		return err
	}
	RecordTiming(EvtPlaybackStart, 0, GetTime(), c.compiler.PeriodTicks, uint32(c.commands))
	return nil
}

// SetConfig stores a channel's phase (degrees) and duty (percent) and
// recompiles. Values are clamped; only the channel index is rejected, in
// which case nothing changes. A ramp running on the channel is cancelled.
//
// A nil error means the setting is committed, not that it is on the pins:
// if the update was deferred (see Update) the outputs change when Task
// publishes it, within one PWM period. Pending reports that case.
func (c *Controller) SetConfig(channel int, phase, duty float64) error {
	if err := c.store.Set(channel, phase, duty); err != nil {
		return err
	}
	c.ramps[channel].Cancel()
	return c.Update()
}

// Channel returns the committed configuration of a channel
func (c *Controller) Channel(channel int) (timeline.ChannelConfig, error) {
	return c.store.Get(channel)
}

// Update compiles the full channel state into the writable buffer and
// publishes it. If hardware is still streaming that buffer the update is
// left pending for Task and Update returns nil; it never waits for the
// hardware.
func (c *Controller) Update() error {
	buf, ok := c.buffers.Writable(c.playback.InFlight())
	if !ok {
		if !c.pending {
			RecordTiming(EvtUpdateDeferred, 0, GetTime(), c.buffers.Publishes(), 0)
		}
		c.pending = true
		return nil
	}

	channels := c.store.Snapshot()
	if err := c.compiler.Compile(&channels, buf); err != nil {
		if errors.Is(err, timeline.ErrCapacityExceeded) {
			// Truncating would silently desynchronize the waveform
			RecordTiming(EvtCapacityFault, 0, GetTime(), uint32(buf.Len()), c.compiler.PeriodTicks)
			panic("phase pwm: " + err.Error())
		}
		return err
	}
	n := buf.Len()
	if err := timeline.Pad(buf, c.cfg.Overhead); err != nil {
		return err
	}
	if err := c.buffers.Publish(buf); err != nil {
		return err
	}

	c.commands = n
	c.pending = false
	RecordTiming(EvtPublish, 0, GetTime(), uint32(n), c.buffers.Publishes())
	return nil
}

// Task retries a pending update. Call it from the main loop.
func (c *Controller) Task() error {
	if !c.pending {
		return nil
	}
	return c.Update()
}

// Pending reports whether the last committed change is still waiting for
// Task to publish it
func (c *Controller) Pending() bool {
	return c.pending
}

// SetFrequency changes the PWM frequency and recompiles every channel
func (c *Controller) SetFrequency(hz uint32) error {
	period, err := timeline.PeriodForFrequency(c.cfg.ClockHz, hz, c.cfg.Overhead)
	if err != nil {
		return ErrFrequencyOutOfRange
	}
	c.cfg.FrequencyHz = hz
	c.compiler.PeriodTicks = period
	RecordTiming(EvtFrequency, 0, GetTime(), hz, period)
	return c.Update()
}

// Frequency returns the configured PWM frequency in Hz
func (c *Controller) Frequency() uint32 {
	return c.cfg.FrequencyHz
}

// Stop cancels all ramps and drives every channel low. The playback loop
// keeps running. Like SetConfig, a nil return may leave the zeroed state
// pending for up to one period.
func (c *Controller) Stop() error {
	for ch := range c.ramps {
		c.ramps[ch].Cancel()
	}
	c.store.Reset()
	return c.Update()
}

// Close stops the playback loop. The outputs hold their last level.
func (c *Controller) Close() error {
	for ch := range c.ramps {
		c.ramps[ch].Cancel()
	}
	c.pending = false
	return c.playback.Stop()
}

// Status returns a diagnostic snapshot
func (c *Controller) Status() Status {
	_, active := c.buffers.Active()
	return Status{
		PeriodTicks: c.compiler.PeriodTicks,
		Commands:    c.commands,
		Publishes:   c.buffers.Publishes(),
		Active:      active,
		Pending:     c.pending,
		Running:     c.playback.Running(),
	}
}

// Buffers exposes the double buffer for inspection
func (c *Controller) Buffers() *DoubleBuffer {
	return c.buffers
}

// Compiler exposes the compiler state of the last compilation
func (c *Controller) Compiler() *timeline.Compiler {
	return &c.compiler
}
