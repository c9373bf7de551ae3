//go:build rp2040 || rp2350

package main

import (
	"phasepwm/core"
	"phasepwm/timeline"
)

// Board wiring and playback resources. Change these to match the board.
const (
	// Ten consecutive GPIOs (GP6..GP15) drive the channels. GP0/1 carry the
	// debug UART and GP4/5 the supply sensor.
	pwmBasePin = 6

	// Sequencer placement
	pwmPIO          = 0
	pwmStateMachine = 0

	// Transfer channels of the playback loop
	pwmDataChannel    = 0
	pwmControlChannel = 1

	pwmFrequencyHz = core.DefaultFrequencyHz

	// Supply monitor on I2C0 (SDA=GP4, SCL=GP5)
	supplyI2CFrequency = 400000
	supplyAddress      = 0x40
	supplyLimitUA      = 3000000 // 3 A across all coils
	supplyPollUS       = 20000
)

// Driver fault monitor: active-low outputs with internal pull-ups
const (
	faultPollUS  = 1000
	faultSamples = 3
)

// faultPins maps each channel to its driver's fault output.
// GP23..25 are taken by the Pico's power circuitry and LED.
var faultPins = [timeline.NumChannels]int32{16, 17, 18, 19, 20, 21, 22, 26, 27, 28}

// Set to false on boards without the INA260
const supplyMonitorEnabled = true

// Set to false on boards whose drivers have no fault output
const faultMonitorEnabled = true
