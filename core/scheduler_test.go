package core

import "testing"

func resetTimers() {
	timerList = nil
}

func TestTimerOrdering(t *testing.T) {
	resetTimers()
	defer resetTimers()

	var fired []int
	mk := func(id int, wake uint32) *Timer {
		return &Timer{WakeTime: wake, Handler: func(*Timer) uint8 {
			fired = append(fired, id)
			return SF_DONE
		}}
	}

	// Wake times straddle the 32-bit wrap.
	SetTime(0xFFFFFF00)
	ScheduleTimer(mk(3, 0x00000010))
	ScheduleTimer(mk(1, 0xFFFFFF80))
	ScheduleTimer(mk(2, 0xFFFFFFF0))
	ScheduleTimer(mk(4, 0x00000100))

	ProcessTimers()
	if len(fired) != 0 {
		t.Fatalf("timers fired early: %v", fired)
	}

	SetTime(0x00000020)
	ProcessTimers()
	want := []int{1, 2, 3}
	if len(fired) != len(want) {
		t.Fatalf("fired %v, expected %v", fired, want)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Errorf("fired %v, expected %v", fired, want)
			break
		}
	}
}

func TestPeriodicTimer(t *testing.T) {
	resetTimers()
	defer resetTimers()

	SetTime(1000)
	runs := 0
	p := Periodic(100, func() { runs++ })

	for now := uint32(1000); now <= 1350; now += 50 {
		SetTime(now)
		ProcessTimers()
	}
	// due at 1100, 1200, 1300
	if runs != 3 {
		t.Errorf("expected 3 runs, got %d", runs)
	}

	// A long stall runs once, then resumes on the period.
	SetTime(5000)
	ProcessTimers()
	if runs != 4 || p.WakeTime != 5100 {
		t.Errorf("after stall: runs=%d wake=%d", runs, p.WakeTime)
	}

	CancelTimer(p)
	SetTime(6000)
	ProcessTimers()
	if runs != 4 {
		t.Errorf("cancelled timer ran: %d", runs)
	}
}

func TestUptimeExtendsAcrossWrap(t *testing.T) {
	SetTime(0)
	TimerInit()
	SetTime(0xFFFFFFF0)
	SetTime(0x10)
	if got := GetUptime(); got != 1<<32|0x10 {
		t.Errorf("uptime 0x%x", got)
	}
	TimerInit()
}
