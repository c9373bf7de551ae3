package core

import (
	"testing"

	"phasepwm/timeline"
)

type fakeGPIO struct {
	pulledUp map[GPIOPin]bool
	low      map[GPIOPin]bool
}

func newFakeGPIO() *fakeGPIO {
	return &fakeGPIO{pulledUp: map[GPIOPin]bool{}, low: map[GPIOPin]bool{}}
}

func (f *fakeGPIO) ConfigureInputPullUp(pin GPIOPin) error {
	f.pulledUp[pin] = true
	return nil
}

func (f *fakeGPIO) ReadPin(pin GPIOPin) bool { return !f.low[pin] }

func faultPins() [timeline.NumChannels]int32 {
	var pins [timeline.NumChannels]int32
	for i := range pins {
		pins[i] = NoFaultPin
	}
	pins[0] = 16
	pins[3] = 19
	return pins
}

func TestFaultMonitorConfiguresPins(t *testing.T) {
	gpio := newFakeGPIO()
	SetGPIODriver(gpio)
	t.Cleanup(func() { SetGPIODriver(nil) })

	m, err := NewFaultMonitor(faultPins(), 1000, 0)
	if err != nil {
		t.Fatalf("NewFaultMonitor failed: %v", err)
	}
	if len(gpio.pulledUp) != 2 || !gpio.pulledUp[16] || !gpio.pulledUp[19] {
		t.Errorf("Unexpected pull-ups %v", gpio.pulledUp)
	}
	if m.sampleCount != DefaultFaultSamples {
		t.Errorf("Expected default sample count %d, got %d", DefaultFaultSamples, m.sampleCount)
	}
}

func TestFaultMonitorDebounces(t *testing.T) {
	t.Cleanup(ResetFirmwareState)
	gpio := newFakeGPIO()
	SetGPIODriver(gpio)
	t.Cleanup(func() { SetGPIODriver(nil) })

	m, err := NewFaultMonitor(faultPins(), 1000, 3)
	if err != nil {
		t.Fatalf("NewFaultMonitor failed: %v", err)
	}
	ClearTimingRing()

	// A glitch shorter than the sample count is ignored
	gpio.low[19] = true
	m.Sample()
	m.Sample()
	if m.Active() != 1<<3 {
		t.Errorf("Expected active mask 0x8, got %#x", m.Active())
	}
	gpio.low[19] = false
	m.Sample()
	m.Sample()
	if m.Tripped() != 0 || IsShutdown() {
		t.Fatalf("Glitch tripped the monitor")
	}
	if m.Active() != 0 {
		t.Errorf("Expected no active faults, got %#x", m.Active())
	}

	gpio.low[19] = true
	for i := 0; i < 3; i++ {
		m.Sample()
	}
	if m.Tripped() != 1<<3 || !IsShutdown() {
		t.Fatalf("Held fault did not shut down (tripped %#x)", m.Tripped())
	}
	if globalState.reason != "driver fault ch3" {
		t.Errorf("Unexpected shutdown reason %q", globalState.reason)
	}
	events := TimingEvents()
	if len(events) != 1 || events[0].EventType != EvtDriverFault || events[0].Channel != 3 || events[0].Value1 != 19 {
		t.Errorf("Unexpected timing events %+v", events)
	}

	// The trip latches even once the pin releases
	gpio.low[19] = false
	m.Sample()
	if m.Tripped() != 1<<3 {
		t.Errorf("Trip cleared itself")
	}
}

func TestFaultMonitorRunsOnTimer(t *testing.T) {
	r := startedRig(t)
	t.Cleanup(func() {
		ResetFirmwareState()
		shutdownHooks = nil
	})
	OnShutdown(func() { r.ctrl.Stop() })
	r.ctrl.SetConfig(0, 0, 80)

	gpio := newFakeGPIO()
	SetGPIODriver(gpio)
	t.Cleanup(func() { SetGPIODriver(nil) })

	m, err := NewFaultMonitor(faultPins(), 10000, 2)
	if err != nil {
		t.Fatalf("NewFaultMonitor failed: %v", err)
	}
	runTimersAt(0)
	m.Start()
	t.Cleanup(m.Stop)

	gpio.low[16] = true
	runTimersAt(TimerFromUS(10000))
	if IsShutdown() {
		t.Fatalf("Tripped after one sample")
	}
	runTimersAt(TimerFromUS(20000))
	if !IsShutdown() || m.Tripped() != 1 {
		t.Fatalf("Fault did not shut down (tripped %#x)", m.Tripped())
	}
	expectChannel(t, r.ctrl, 0, 0, 0)
}
