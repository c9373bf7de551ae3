package core

// Timer is one entry of the wake-time ordered timer list. Handler returns
// SF_RESCHEDULE after moving WakeTime forward, or SF_DONE.
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

var (
	timerList   *Timer
	currentTime uint32 // Time of the dispatch in progress
)

// timerBefore orders wake times across counter wrap, as long as they are
// within 2^31 ticks of each other
func timerBefore(a, b uint32) bool {
	return int32(a-b) < 0
}

// ScheduleTimer queues t by its WakeTime. Timers with equal wake times run
// in the order they were scheduled.
func ScheduleTimer(t *Timer) {
	critical(func() { insertTimer(t) })
}

func insertTimer(t *Timer) {
	pos := &timerList
	for *pos != nil && !timerBefore(t.WakeTime, (*pos).WakeTime) {
		pos = &(*pos).Next
	}
	t.Next = *pos
	*pos = t
}

// CancelTimer unlinks t; a timer that is not queued is left alone
func CancelTimer(t *Timer) {
	critical(func() {
		for pos := &timerList; *pos != nil; pos = &(*pos).Next {
			if *pos == t {
				*pos = t.Next
				t.Next = nil
				return
			}
		}
	})
}

// TimerDispatch runs every timer due at currentTime. A handler may schedule
// or cancel other timers.
func TimerDispatch() {
	critical(func() {
		for timerList != nil && !timerBefore(currentTime, timerList.WakeTime) {
			t := timerList
			timerList = t.Next
			t.Next = nil

			if t.Handler(t) == SF_RESCHEDULE {
				insertTimer(t)
			}
		}
	})
}
