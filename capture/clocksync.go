package capture

import "strconv"

// CountForbidden samples the clock monitor n times and counts the samples
// that match the forbidden pattern.
func CountForbidden(m ClockMonitor, p SyncPattern, n int) int {
	count := 0
	for i := 0; i < n; i++ {
		if p.Matches(m.MonitorClocks()) {
			count++
		}
	}
	return count
}

// SyncClocks perturbs the channel B clock until the monitor shows both
// channel clocks in phase, i.e. no more than DesyncThreshold of
// MonitorSamples samples match the forbidden pattern. It returns the number
// of perturbations made. With SyncMaxAttempts set, giving up returns
// ErrClockSync.
func SyncClocks(m ClockMonitor, cfg Config, log Logger) (int, error) {
	if log == nil {
		log = nopLogger
	}
	p := m.SyncPattern()
	for attempts := 1; ; attempts++ {
		if cfg.SyncMaxAttempts > 0 && attempts > cfg.SyncMaxAttempts {
			log("[SYNC] gave up after " + strconv.Itoa(cfg.SyncMaxAttempts) + " attempts")
			return attempts - 1, ErrClockSync
		}
		m.PerturbClock()
		count := CountForbidden(m, p, cfg.MonitorSamples)
		if count <= cfg.DesyncThreshold {
			log("[SYNC] locked after " + strconv.Itoa(attempts) + " attempts, " + strconv.Itoa(count) + " bad samples")
			return attempts, nil
		}
	}
}
