package capture

import (
	"errors"
	"testing"
)

// countingMonitor returns bad[i] forbidden samples during attempt i and
// clean samples afterwards.
type countingMonitor struct {
	bad      []int
	attempt  int
	sampled  int
	perturbs int
}

func (m *countingMonitor) PerturbClock() {
	m.perturbs++
	m.attempt = m.perturbs - 1
	m.sampled = 0
}

func (m *countingMonitor) MonitorClocks() uint32 {
	m.sampled++
	if m.attempt < len(m.bad) && m.sampled <= m.bad[m.attempt] {
		if m.sampled%2 == 0 {
			return 1 << 18
		}
		return 1<<11 | 1<<3
	}
	if m.sampled%2 == 0 {
		return 0
	}
	return 1<<11 | 1<<18
}

func (m *countingMonitor) SyncPattern() SyncPattern {
	return SyncPattern{Mask: 1<<11 | 1<<18, Forbidden: []uint32{1 << 11, 1 << 18}}
}

func TestSyncPatternMatches(t *testing.T) {
	p := SyncPattern{Mask: 1<<11 | 1<<18, Forbidden: []uint32{1 << 11, 1 << 18}}
	testCases := []struct {
		sample uint32
		want   bool
	}{
		{0, false},
		{1<<11 | 1<<18, false},
		{1 << 11, true},
		{1 << 18, true},
		{1<<18 | 0xff, true},
		{0xff, false},
	}
	for _, tc := range testCases {
		if got := p.Matches(tc.sample); got != tc.want {
			t.Errorf("Matches(%08x): expected %v, got %v", tc.sample, tc.want, got)
		}
	}
}

func TestSyncClocks(t *testing.T) {
	cfg := DefaultConfig()
	testCases := []struct {
		name     string
		bad      []int
		attempts int
	}{
		{"locks first time", nil, 1},
		{"threshold accepted", []int{5}, 1},
		{"one over threshold", []int{6}, 2},
		{"several retries", []int{200, 50, 6, 7, 3}, 5},
	}
	for _, tc := range testCases {
		m := &countingMonitor{bad: tc.bad}
		attempts, err := SyncClocks(m, cfg, nil)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
			continue
		}
		if attempts != tc.attempts || m.perturbs != tc.attempts {
			t.Errorf("%s: expected %d attempts, got %d (perturbs %d)", tc.name, tc.attempts, attempts, m.perturbs)
		}
		t.Logf("%s: locked after %d attempts", tc.name, attempts)
	}
}

func TestSyncClocksCeiling(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SyncMaxAttempts = 3
	m := &countingMonitor{bad: []int{200, 200, 200, 200, 200}}

	var logged []string
	attempts, err := SyncClocks(m, cfg, func(s string) { logged = append(logged, s) })
	if !errors.Is(err, ErrClockSync) {
		t.Fatalf("expected ErrClockSync, got %v", err)
	}
	if attempts != 3 || m.perturbs != 3 {
		t.Errorf("expected 3 attempts, got %d (perturbs %d)", attempts, m.perturbs)
	}
	if len(logged) != 1 {
		t.Errorf("expected one log line, got %v", logged)
	}
}

func TestCountForbidden(t *testing.T) {
	m := &countingMonitor{bad: []int{17}}
	m.PerturbClock()
	if got := CountForbidden(m, m.SyncPattern(), 200); got != 17 {
		t.Errorf("expected 17, got %d", got)
	}
}
