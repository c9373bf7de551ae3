package core

import (
	"errors"

	"phasepwm/protocol"
	"phasepwm/timeline"
)

// MaxRampMS bounds ramp delay and duration so they stay clear of timer wrap
const MaxRampMS = 600000

var ErrRampTooLong = errors.New("ramp delay or duration too long")

// phasePWMCommands binds the serial commands to one controller
type phasePWMCommands struct {
	ctrl *Controller
}

// InitPhasePWMCommands registers the phase PWM commands with the command
// registry. Phase is carried in millidegrees and duty in millipercent.
func InitPhasePWMCommands(ctrl *Controller) {
	h := &phasePWMCommands{ctrl: ctrl}

	RegisterCommand("set_phase_pwm", "channel=%c phase=%i duty=%u", h.handleSet)
	RegisterCommand("set_phase_pwm_frequency", "hz=%u", h.handleFrequency)
	RegisterCommand("ramp_phase_pwm", "channel=%c phase=%i duty=%u delay_ms=%u duration_ms=%u", h.handleRamp)
	RegisterCommand("stop_phase_pwm", "", h.handleStop)
	RegisterCommand("get_phase_pwm", "channel=%c", h.handleGet)
	RegisterCommand("get_phase_pwm_status", "", h.handleStatus)

	RegisterResponse("phase_pwm_state", "channel=%c phase=%i duty=%u ramping=%c")
	RegisterResponse("phase_pwm_status", "period_ticks=%u frequency=%u commands=%u publishes=%u active=%i pending=%c running=%c")

	RegisterConstant("PWM_CHANNELS", uint32(timeline.NumChannels))
	RegisterConstant("PWM_CAPACITY", uint32(timeline.Capacity))
	RegisterConstant("PWM_OVERHEAD", ctrl.cfg.Overhead)
	RegisterConstant("PWM_CLOCK_FREQ", ctrl.cfg.ClockHz)

	// All outputs low on shutdown; the playback loop itself keeps running
	OnShutdown(func() {
		if err := ctrl.Stop(); err != nil {
			DebugPrintln("[PWM] stop on shutdown failed: " + err.Error())
		}
	})
}

// handleSet applies one channel setting
// Format: set_phase_pwm channel=%c phase=%i duty=%u
func (h *phasePWMCommands) handleSet(data *[]byte) error {
	channel, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	phase, err := protocol.DecodeVLQInt(data)
	if err != nil {
		return err
	}
	duty, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if IsShutdown() {
		return ErrShutdown
	}
	return h.ctrl.SetConfig(int(channel), fromMilli(phase), float64(duty)/1000)
}

// handleFrequency changes the PWM frequency of every channel
// Format: set_phase_pwm_frequency hz=%u
func (h *phasePWMCommands) handleFrequency(data *[]byte) error {
	hz, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if IsShutdown() {
		return ErrShutdown
	}
	return h.ctrl.SetFrequency(hz)
}

// handleRamp starts a timed transition of one channel
// Format: ramp_phase_pwm channel=%c phase=%i duty=%u delay_ms=%u duration_ms=%u
func (h *phasePWMCommands) handleRamp(data *[]byte) error {
	channel, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	phase, err := protocol.DecodeVLQInt(data)
	if err != nil {
		return err
	}
	duty, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	delayMS, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	durationMS, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if IsShutdown() {
		return ErrShutdown
	}
	if delayMS > MaxRampMS || durationMS > MaxRampMS {
		return ErrRampTooLong
	}
	return h.ctrl.Ramp(int(channel), fromMilli(phase), float64(duty)/1000, delayMS*1000, durationMS*1000)
}

// handleStop drives every channel low
func (h *phasePWMCommands) handleStop(data *[]byte) error {
	return h.ctrl.Stop()
}

// handleGet reports one channel's committed setting
// Format: get_phase_pwm channel=%c
// Response: phase_pwm_state channel=%c phase=%i duty=%u ramping=%c
func (h *phasePWMCommands) handleGet(data *[]byte) error {
	channel, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	cfg, err := h.ctrl.Channel(int(channel))
	if err != nil {
		return err
	}
	ramping := h.ctrl.Ramping(int(channel))

	SendResponse("phase_pwm_state", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, channel)
		protocol.EncodeVLQInt(output, toMilli(cfg.Phase))
		protocol.EncodeVLQUint(output, uint32(toMilli(cfg.Duty)))
		protocol.EncodeVLQUint(output, boolToUint(ramping))
	})
	return nil
}

// handleStatus reports the playback state
func (h *phasePWMCommands) handleStatus(data *[]byte) error {
	st := h.ctrl.Status()
	hz := h.ctrl.Frequency()

	SendResponse("phase_pwm_status", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, st.PeriodTicks)
		protocol.EncodeVLQUint(output, hz)
		protocol.EncodeVLQUint(output, uint32(st.Commands))
		protocol.EncodeVLQUint(output, st.Publishes)
		protocol.EncodeVLQInt(output, int32(st.Active))
		protocol.EncodeVLQUint(output, boolToUint(st.Pending))
		protocol.EncodeVLQUint(output, boolToUint(st.Running))
	})
	return nil
}

func fromMilli(v int32) float64 {
	return float64(v) / 1000
}

// toMilli rounds to the nearest milli-unit
func toMilli(v float64) int32 {
	if v < 0 {
		return int32(v*1000 - 0.5)
	}
	return int32(v*1000 + 0.5)
}
