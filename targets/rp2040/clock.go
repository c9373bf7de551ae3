//go:build rp2040 || rp2350

package main

import (
	"runtime/volatile"
	"unsafe"

	"phasepwm/core"
)

// Timer peripheral memory map
const (
	timerBase     = 0x40054000
	timerTIMERAWH = timerBase + 0x08 // Raw timer high word
	timerTIMERAWL = timerBase + 0x0C // Raw timer low word

	timerFrequency = 1000000
)

var (
	timerRAWH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWH)))
	timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
)

// InitClock sets up the scheduler clock. The hardware timer counts
// microseconds, so ramp and monitor intervals are microsecond ticks.
func InitClock() {
	core.SetTimerFrequency(timerFrequency)
	core.RegisterConstant("MCU", mcuName)
	core.RegisterConstant("CLOCK_FREQ", uint32(timerFrequency))
}

// GetHardwareTime returns the low 32 bits of the microsecond counter
func GetHardwareTime() uint32 {
	return timerRAWL.Get()
}

// GetHardwareUptime reads the full 64-bit counter
func GetHardwareUptime() uint64 {
	// High, low, high again to catch a carry between the reads
	for {
		high1 := timerRAWH.Get()
		low := timerRAWL.Get()
		high2 := timerRAWH.Get()
		if high1 == high2 {
			return (uint64(high1) << 32) | uint64(low)
		}
	}
}

// UpdateSystemTime feeds the hardware time to the scheduler
func UpdateSystemTime() {
	core.SetTime(GetHardwareTime())
}
