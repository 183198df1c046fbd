package core

// Timer is a scheduled callback. A handler that returns SF_RESCHEDULE must
// have moved WakeTime forward.
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
	currentTime uint32
)

// timerBefore compares wake times across counter wrap.
func timerBefore(a, b uint32) bool {
	return int32(a-b) < 0
}

func ScheduleTimer(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	insertTimer(t)
}

// CancelTimer removes t if it is scheduled.
func CancelTimer(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for p := &timerList; *p != nil; p = &(*p).Next {
		if *p == t {
			*p = t.Next
			t.Next = nil
			return
		}
	}
}

func insertTimer(t *Timer) {
	p := &timerList
	for *p != nil && !timerBefore(t.WakeTime, (*p).WakeTime) {
		p = &(*p).Next
	}
	t.Next = *p
	*p = t
}

// TimerDispatch runs every timer whose wake time has been reached.
func TimerDispatch() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for timerList != nil && !timerBefore(currentTime, timerList.WakeTime) {
		timer := timerList
		timerList = timer.Next
		timer.Next = nil

		if timer.Handler(timer) == SF_RESCHEDULE {
			insertTimer(timer)
		}
	}
}

// Periodic schedules fn every period ticks, starting one period from now.
func Periodic(period uint32, fn func()) *Timer {
	t := &Timer{
		WakeTime: GetTime() + period,
		Handler: func(t *Timer) uint8 {
			fn()
			t.WakeTime += period
			if timerBefore(t.WakeTime, currentTime) {
				// Fell behind; skip the missed slots.
				t.WakeTime = currentTime + period
			}
			return SF_RESCHEDULE
		},
	}
	ScheduleTimer(t)
	return t
}
