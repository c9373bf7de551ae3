package core

import "phasepwm/protocol"

// SupplySensor reads the output stage supply
type SupplySensor interface {
	Current() (microamps int32, err error)
	Voltage() (microvolts int32, err error)
}

// SupplyMonitor polls a SupplySensor from the timer scheduler and shuts the
// firmware down when the current leaves the allowed range. The trip latches
// until the MCU is reset.
type SupplyMonitor struct {
	timer    Timer
	sensor   SupplySensor
	limitUA  int32
	interval uint32 // Timer ticks between polls

	currentUA  int32
	voltageUV  int32
	tripped    bool
	readErrors uint32
	running    bool
}

// NewSupplyMonitor creates a monitor tripping at |current| > limitUA
func NewSupplyMonitor(sensor SupplySensor, limitUA int32, intervalUS uint32) *SupplyMonitor {
	m := &SupplyMonitor{
		sensor:   sensor,
		limitUA:  limitUA,
		interval: TimerFromUS(intervalUS),
	}
	m.timer.Handler = m.event
	return m
}

// Start schedules the first poll
func (m *SupplyMonitor) Start() {
	if m.running {
		return
	}
	m.running = true
	m.timer.WakeTime = GetTime() + m.interval
	ScheduleTimer(&m.timer)
}

// Stop removes the monitor from the schedule
func (m *SupplyMonitor) Stop() {
	if m.running {
		CancelTimer(&m.timer)
		m.running = false
	}
}

// Poll takes one reading and trips on overcurrent
func (m *SupplyMonitor) Poll() error {
	current, err := m.sensor.Current()
	if err != nil {
		m.readErrors++
		return err
	}
	voltage, err := m.sensor.Voltage()
	if err != nil {
		m.readErrors++
		return err
	}
	m.currentUA = current
	m.voltageUV = voltage

	if !m.tripped && (current > m.limitUA || current < -m.limitUA) {
		m.tripped = true
		RecordTiming(EvtSupplyTrip, 0, GetTime(), uint32(current), uint32(m.limitUA))
		TryShutdown("supply overcurrent")
	}
	return nil
}

// Tripped reports whether the monitor has latched a fault
func (m *SupplyMonitor) Tripped() bool {
	return m.tripped
}

// Reading returns the last current and voltage
func (m *SupplyMonitor) Reading() (currentUA, voltageUV int32) {
	return m.currentUA, m.voltageUV
}

func (m *SupplyMonitor) event(t *Timer) uint8 {
	if err := m.Poll(); err != nil {
		DebugPrintln("[SUPPLY] read failed: " + err.Error())
	}
	if !m.running {
		return SF_DONE
	}
	t.WakeTime += m.interval
	return SF_RESCHEDULE
}

// InitSupplyCommands registers the supply query
// Format: get_supply
// Response: supply_state current_ua=%i voltage_uv=%i tripped=%c errors=%u
func InitSupplyCommands(m *SupplyMonitor) {
	RegisterCommand("get_supply", "", func(data *[]byte) error {
		current, voltage := m.Reading()
		SendResponse("supply_state", func(output protocol.OutputBuffer) {
			protocol.EncodeVLQInt(output, current)
			protocol.EncodeVLQInt(output, voltage)
			protocol.EncodeVLQUint(output, boolToUint(m.tripped))
			protocol.EncodeVLQUint(output, m.readErrors)
		})
		return nil
	})
	RegisterResponse("supply_state", "current_ua=%i voltage_uv=%i tripped=%c errors=%u")
	RegisterConstant("SUPPLY_LIMIT_UA", m.limitUA)
}
