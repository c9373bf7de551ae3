//go:build rp2040 || rp2350

package main

import (
	"machine"

	"phasepwm/core"
)

// RPGPIODriver implements core.GPIODriver on the RP2040 and RP2350 banks
type RPGPIODriver struct {
	configuredPins map[core.GPIOPin]machine.Pin
}

// NewRPGPIODriver creates an empty driver
func NewRPGPIODriver() *RPGPIODriver {
	return &RPGPIODriver{
		configuredPins: make(map[core.GPIOPin]machine.Pin),
	}
}

func (d *RPGPIODriver) ConfigureInputPullUp(pin core.GPIOPin) error {
	if _, exists := d.configuredPins[pin]; exists {
		return nil
	}

	// GPIO numbers map directly onto machine pins
	machinePin := machine.Pin(pin)
	machinePin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	d.configuredPins[pin] = machinePin
	return nil
}

// ReadPin returns false for a pin that was never configured
func (d *RPGPIODriver) ReadPin(pin core.GPIOPin) bool {
	machinePin, exists := d.configuredPins[pin]
	if !exists {
		return false
	}
	return machinePin.Get()
}

// initFaultMonitor watches the driver fault outputs
func initFaultMonitor() *core.FaultMonitor {
	if !faultMonitorEnabled {
		return nil
	}
	core.SetGPIODriver(NewRPGPIODriver())
	m, err := core.NewFaultMonitor(faultPins, faultPollUS, faultSamples)
	if err != nil {
		core.DebugPrintln("[FAULT] " + err.Error())
		return nil
	}
	core.InitFaultCommands(m)
	m.Start()
	return m
}
