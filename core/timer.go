package core

import "sync/atomic"

// DefaultTimerFreq is the RP2040 microsecond timer rate
const DefaultTimerFreq = 1000000

var (
	timerFreq uint32 = DefaultTimerFreq

	// The hardware counter is sampled as 32 bits; wraps seen by SetTime
	// extend it to 64 bits for uptime
	systemTicks atomic.Uint32
	tickWraps   atomic.Uint32
)

// GetTime returns the current system time in timer ticks
func GetTime() uint32 {
	return systemTicks.Load()
}

// SetTime publishes a new sample of the hardware counter. Target code calls
// it every pass of the main loop; tests use it to step time.
func SetTime(ticks uint32) {
	if prev := systemTicks.Swap(ticks); ticks < prev {
		tickWraps.Add(1)
	}
}

// GetUptime returns ticks since boot as 64 bits
func GetUptime() uint64 {
	return uint64(tickWraps.Load())<<32 | uint64(systemTicks.Load())
}

// SetTimerFrequency is called by target code whose timer does not run at 1 MHz
func SetTimerFrequency(hz uint32) {
	timerFreq = hz
}

// TimerFromUS converts microseconds to timer ticks
func TimerFromUS(us uint32) uint32 {
	return uint32(uint64(us) * uint64(timerFreq) / 1000000)
}

// TimerInit clears the wrap count so uptime starts at boot
func TimerInit() {
	tickWraps.Store(0)
}

// ProcessTimers runs every timer that is due
func ProcessTimers() {
	currentTime = GetTime()
	TimerDispatch()
}
