package mcu

import (
	"math"
	"time"
)

// ChannelState is one channel's committed setting as the MCU reports it
type ChannelState struct {
	Channel int
	Phase   float64 // Degrees in [0, 360)
	Duty    float64 // Percent in [0, 100]
	Ramping bool
}

// Status mirrors the phase_pwm_status response
type Status struct {
	PeriodTicks uint32
	Frequency   uint32
	Commands    uint32
	Publishes   uint32
	Active      int32
	Pending     bool
	Running     bool
}

// Supply mirrors the supply_state response
type Supply struct {
	CurrentUA int32
	VoltageUV int32
	Tripped   bool
	Errors    uint32
}

// Faults mirrors the fault_state response. Bit n is channel n.
type Faults struct {
	Active  uint16
	Tripped uint16
}

// ShutdownState mirrors the config response
type ShutdownState struct {
	IsShutdown bool
	Reason     string
}

// toMilli carries degrees and percent as thousandths on the wire
func toMilli(v float64) int32 {
	return int32(math.Round(v * 1000))
}

func dutyMilli(duty float64) uint32 {
	if duty <= 0 {
		return 0
	}
	return uint32(math.Round(duty * 1000))
}

// SetChannel sets one channel's phase in degrees and duty in percent
func (m *MCU) SetChannel(channel int, phase, duty float64) error {
	return m.Send("set_phase_pwm", channel, toMilli(phase), dutyMilli(duty))
}

// SetFrequency changes the PWM frequency of every channel
func (m *MCU) SetFrequency(hz uint32) error {
	return m.Send("set_phase_pwm_frequency", hz)
}

// Ramp moves a channel to a new setting over duration after delay
func (m *MCU) Ramp(channel int, phase, duty float64, delay, duration time.Duration) error {
	return m.Send("ramp_phase_pwm", channel, toMilli(phase), dutyMilli(duty),
		uint32(delay/time.Millisecond), uint32(duration/time.Millisecond))
}

// Stop drives every channel low
func (m *MCU) Stop() error {
	return m.Send("stop_phase_pwm")
}

// EmergencyStop latches the MCU shutdown state
func (m *MCU) EmergencyStop() error {
	return m.Send("emergency_stop")
}

// Channel reads one channel's setting
func (m *MCU) Channel(channel int) (ChannelState, error) {
	resp, err := m.Query("get_phase_pwm", []interface{}{channel}, "phase_pwm_state", DefaultQueryTimeout)
	if err != nil {
		return ChannelState{}, err
	}
	return ChannelState{
		Channel: int(resp["channel"].(int64)),
		Phase:   float64(resp["phase"].(int64)) / 1000,
		Duty:    float64(resp["duty"].(int64)) / 1000,
		Ramping: resp["ramping"].(int64) != 0,
	}, nil
}

// Status reads the playback status
func (m *MCU) Status() (Status, error) {
	resp, err := m.Query("get_phase_pwm_status", nil, "phase_pwm_status", DefaultQueryTimeout)
	if err != nil {
		return Status{}, err
	}
	return Status{
		PeriodTicks: uint32(resp["period_ticks"].(int64)),
		Frequency:   uint32(resp["frequency"].(int64)),
		Commands:    uint32(resp["commands"].(int64)),
		Publishes:   uint32(resp["publishes"].(int64)),
		Active:      int32(resp["active"].(int64)),
		Pending:     resp["pending"].(int64) != 0,
		Running:     resp["running"].(int64) != 0,
	}, nil
}

// Supply reads the supply monitor. Boards without a sensor do not
// register get_supply.
func (m *MCU) Supply() (Supply, error) {
	resp, err := m.Query("get_supply", nil, "supply_state", DefaultQueryTimeout)
	if err != nil {
		return Supply{}, err
	}
	return Supply{
		CurrentUA: int32(resp["current_ua"].(int64)),
		VoltageUV: int32(resp["voltage_uv"].(int64)),
		Tripped:   resp["tripped"].(int64) != 0,
		Errors:    uint32(resp["errors"].(int64)),
	}, nil
}

// Faults reads the driver fault inputs. Boards without fault wiring do not
// register get_faults.
func (m *MCU) Faults() (Faults, error) {
	resp, err := m.Query("get_faults", nil, "fault_state", DefaultQueryTimeout)
	if err != nil {
		return Faults{}, err
	}
	return Faults{
		Active:  uint16(resp["active"].(int64)),
		Tripped: uint16(resp["tripped"].(int64)),
	}, nil
}

// Shutdown reads the shutdown latch and its reason
func (m *MCU) Shutdown() (ShutdownState, error) {
	resp, err := m.Query("get_config", nil, "config", DefaultQueryTimeout)
	if err != nil {
		return ShutdownState{}, err
	}
	return ShutdownState{
		IsShutdown: resp["is_shutdown"].(int64) != 0,
		Reason:     string(resp["reason"].([]byte)),
	}, nil
}
