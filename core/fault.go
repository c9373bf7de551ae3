package core

import (
	"phasepwm/protocol"
	"phasepwm/timeline"
)

// NoFaultPin marks a channel without a driver fault input
const NoFaultPin = -1

// DefaultFaultSamples is how many consecutive asserted samples trip a fault
const DefaultFaultSamples = 3

// FaultMonitor samples the active-low fault outputs of the channel drivers
// and shuts the firmware down once a pin has been held low for SampleCount
// consecutive samples. The trip latches until reset.
type FaultMonitor struct {
	timer       Timer
	pins        [timeline.NumChannels]int32
	interval    uint32 // Timer ticks between samples
	sampleCount uint8

	counts  [timeline.NumChannels]uint8
	active  uint16 // Channels whose pin read low at the last sample
	tripped uint16 // Channels that caused a trip
	running bool
}

// NewFaultMonitor configures every listed pin as a pulled-up input.
// Channels mapped to NoFaultPin are not watched.
func NewFaultMonitor(pins [timeline.NumChannels]int32, intervalUS uint32, sampleCount uint8) (*FaultMonitor, error) {
	if sampleCount == 0 {
		sampleCount = DefaultFaultSamples
	}
	m := &FaultMonitor{
		pins:        pins,
		interval:    TimerFromUS(intervalUS),
		sampleCount: sampleCount,
	}
	for _, pin := range pins {
		if pin == NoFaultPin {
			continue
		}
		if err := MustGPIO().ConfigureInputPullUp(GPIOPin(pin)); err != nil {
			return nil, err
		}
	}
	m.timer.Handler = m.event
	return m, nil
}

// Start schedules the first sample
func (m *FaultMonitor) Start() {
	if m.running {
		return
	}
	m.running = true
	m.timer.WakeTime = GetTime() + m.interval
	ScheduleTimer(&m.timer)
}

// Stop removes the monitor from the schedule
func (m *FaultMonitor) Stop() {
	if m.running {
		CancelTimer(&m.timer)
		m.running = false
	}
}

// Sample reads every fault pin once
func (m *FaultMonitor) Sample() {
	gpio := MustGPIO()
	m.active = 0
	for ch, pin := range m.pins {
		if pin == NoFaultPin {
			continue
		}
		if gpio.ReadPin(GPIOPin(pin)) {
			m.counts[ch] = 0
			continue
		}

		m.active |= 1 << ch
		if m.counts[ch] < m.sampleCount {
			m.counts[ch]++
		}
		if m.counts[ch] == m.sampleCount && m.tripped&(1<<ch) == 0 {
			first := m.tripped == 0
			m.tripped |= 1 << ch
			RecordTiming(EvtDriverFault, uint8(ch), GetTime(), uint32(pin), 0)
			DebugAsync("[FAULT] ch" + itoa(ch) + " pin " + itoa(int(pin)))
			if first {
				TryShutdown("driver fault ch" + itoa(ch))
			}
		}
	}
}

// Active returns the channels whose fault pin read low at the last sample
func (m *FaultMonitor) Active() uint16 {
	return m.active
}

// Tripped returns the channels that latched a fault
func (m *FaultMonitor) Tripped() uint16 {
	return m.tripped
}

func (m *FaultMonitor) event(t *Timer) uint8 {
	m.Sample()
	if !m.running {
		return SF_DONE
	}
	t.WakeTime += m.interval
	return SF_RESCHEDULE
}

// InitFaultCommands registers the fault query
// Format: get_faults
// Response: fault_state active=%u tripped=%u
func InitFaultCommands(m *FaultMonitor) {
	RegisterCommand("get_faults", "", func(data *[]byte) error {
		SendResponse("fault_state", func(output protocol.OutputBuffer) {
			protocol.EncodeVLQUint(output, uint32(m.active))
			protocol.EncodeVLQUint(output, uint32(m.tripped))
		})
		return nil
	})
	RegisterResponse("fault_state", "active=%u tripped=%u")
}
