//go:build !tinygo

package core

// critical runs fn directly: host builds have no interrupt handlers, and
// the timer list is only touched from the goroutine driving ProcessTimers
func critical(fn func()) {
	fn()
}
