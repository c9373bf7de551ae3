//go:build rp2040 || rp2350

package main

import (
	"errors"
	"machine"

	"phasepwm/core"

	"tinygo.org/x/drivers/ina260"
)

var errSupplyMissing = errors.New("INA260 not responding")

// ina260Supply adapts the INA260 driver to core.SupplySensor
type ina260Supply struct {
	dev ina260.Device
}

// newINA260Supply configures I2C0 on its default pins (SDA=GP4, SCL=GP5)
// and puts the sensor into continuous current and voltage conversion
func newINA260Supply() (*ina260Supply, error) {
	bus := machine.I2C0
	err := bus.Configure(machine.I2CConfig{Frequency: supplyI2CFrequency})
	if err != nil {
		return nil, err
	}

	dev := ina260.New(bus)
	dev.Address = supplyAddress
	if !dev.Connected() {
		return nil, errSupplyMissing
	}

	// 16 samples of 1.1 ms each settle well inside one poll interval
	dev.Configure(ina260.Config{
		AverageMode:     ina260.AVGMODE_16,
		VoltConvTime:    ina260.CONVTIME_1100USEC,
		CurrentConvTime: ina260.CONVTIME_1100USEC,
		Mode:            ina260.MODE_CONTINUOUS | ina260.MODE_VOLTAGE | ina260.MODE_CURRENT,
	})
	return &ina260Supply{dev: dev}, nil
}

// Current returns the bus current in microamps
func (s *ina260Supply) Current() (int32, error) {
	return s.dev.Current(), nil
}

// Voltage returns the bus voltage in microvolts
func (s *ina260Supply) Voltage() (int32, error) {
	return s.dev.Voltage(), nil
}

// initSupplyMonitor starts polling the supply. Boards without the sensor
// run without the trip.
func initSupplyMonitor() *core.SupplyMonitor {
	if !supplyMonitorEnabled {
		return nil
	}
	sensor, err := newINA260Supply()
	if err != nil {
		core.DebugPrintln("[SUPPLY] " + err.Error())
		return nil
	}
	m := core.NewSupplyMonitor(sensor, supplyLimitUA, supplyPollUS)
	core.InitSupplyCommands(m)
	m.Start()
	return m
}
