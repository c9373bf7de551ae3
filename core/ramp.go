package core

import "phasepwm/timeline"

// RampIntervalUS is the time between ramp interpolation steps
const RampIntervalUS = 10000

// Ramp moves one channel linearly from its current setting to a target.
// Steps run from the timer scheduler; each step recompiles and publishes.
type Ramp struct {
	timer   Timer
	ctrl    *Controller
	channel int

	from, to  timeline.ChannelConfig
	start     uint32 // Timer ticks
	duration  uint32 // Timer ticks
	active    bool
	scheduled bool
}

func (r *Ramp) init(c *Controller, channel int) {
	r.ctrl = c
	r.channel = channel
	r.timer.Handler = r.step
}

// Active reports whether the ramp is still moving
func (r *Ramp) Active() bool {
	return r.active
}

// Cancel stops the ramp where it is
func (r *Ramp) Cancel() {
	if r.scheduled {
		CancelTimer(&r.timer)
		r.scheduled = false
	}
	r.active = false
}

// Ramp moves a channel to phase/duty over durationUS, starting after
// delayUS. Phase takes the shorter way around the circle. With no delay and
// no duration the target is applied immediately.
func (c *Controller) Ramp(channel int, phase, duty float64, delayUS, durationUS uint32) error {
	from, err := c.store.Get(channel)
	if err != nil {
		return err
	}
	if delayUS == 0 && durationUS == 0 {
		return c.SetConfig(channel, phase, duty)
	}

	r := &c.ramps[channel]
	r.Cancel()
	r.from = from
	r.to = timeline.ChannelConfig{
		Phase: timeline.NormalizePhase(phase),
		Duty:  timeline.ClampDuty(duty),
	}
	r.start = GetTime() + TimerFromUS(delayUS)
	r.duration = TimerFromUS(durationUS)
	r.active = true
	r.scheduled = true
	r.timer.WakeTime = r.start
	ScheduleTimer(&r.timer)
	return nil
}

// Ramping reports whether a channel has a ramp in progress
func (c *Controller) Ramping(channel int) bool {
	if channel < 0 || channel >= timeline.NumChannels {
		return false
	}
	return c.ramps[channel].active
}

func (r *Ramp) step(t *Timer) uint8 {
	if !r.active {
		r.scheduled = false
		return SF_DONE
	}

	elapsed := currentTime - r.start
	if elapsed >= r.duration {
		r.apply(r.to)
		r.active = false
		r.scheduled = false
		return SF_DONE
	}

	frac := float64(elapsed) / float64(r.duration)
	r.apply(interpolate(r.from, r.to, frac))
	t.WakeTime += TimerFromUS(RampIntervalUS)
	return SF_RESCHEDULE
}

func (r *Ramp) apply(cfg timeline.ChannelConfig) {
	c := r.ctrl
	// r.channel is fixed at init and always in range
	_ = c.store.Set(r.channel, cfg.Phase, cfg.Duty)
	RecordTiming(EvtRampStep, uint8(r.channel), currentTime,
		uint32(cfg.Phase*1000), uint32(cfg.Duty*1000))
	if err := c.Update(); err != nil {
		DebugPrintln("[RAMP] update failed: " + err.Error())
	}
}

func interpolate(from, to timeline.ChannelConfig, frac float64) timeline.ChannelConfig {
	d := to.Phase - from.Phase
	if d > 180 {
		d -= 360
	} else if d < -180 {
		d += 360
	}
	return timeline.ChannelConfig{
		Phase: timeline.NormalizePhase(from.Phase + d*frac),
		Duty:  from.Duty + (to.Duty-from.Duty)*frac,
	}
}
