package capture

import "testing"

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.HalfWords() != 8100 || cfg.SamplesPerHalf() != 1350 {
		t.Errorf("unexpected geometry: half=%d samples=%d", cfg.HalfWords(), cfg.SamplesPerHalf())
	}
	t.Logf("half duration %d us, tear budget %d us", cfg.HalfDuration(), cfg.TearBudget)
	if cfg.HalfDuration() < 24000 || cfg.HalfDuration() > 26000 {
		t.Errorf("half duration %d us out of range", cfg.HalfDuration())
	}
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
		err    error
	}{
		{"zero period", func(c *Config) { c.PeriodWords = 0 }, ErrBadPeriod},
		{"window past period", func(c *Config) { c.WindowSkip = 3 }, ErrBadPeriod},
		{"odd ring", func(c *Config) { c.RingWords = 16202 - 1 }, ErrBadRing},
		{"half not whole periods", func(c *Config) { c.RingWords = 16204 }, ErrBadRing},
		{"max read too big", func(c *Config) { c.MaxRead = 2702 }, ErrBadMaxRead},
		{"tear budget too long", func(c *Config) { c.TearBudget = 30000 }, ErrBadBudget},
		{"no sample rate", func(c *Config) { c.SampleRate = 0 }, ErrBadBudget},
		{"short pulse", func(c *Config) { c.PulsePattern = c.PulsePattern[:5] }, ErrBadPulse},
		{"threshold too high", func(c *Config) { c.DesyncThreshold = 200 }, ErrBadSync},
		{"no monitor samples", func(c *Config) { c.MonitorSamples = 0 }, ErrBadSync},
		{"scan past half", func(c *Config) { c.ScanLimit = 8101 }, ErrBadScan},
		{"scan zero", func(c *Config) { c.ScanLimit = 0 }, ErrBadScan},
		{"smaller read ok", func(c *Config) { c.MaxRead = 100 }, nil},
	}

	for _, tc := range testCases {
		cfg := DefaultConfig()
		tc.modify(&cfg)
		if err := cfg.Validate(); err != tc.err {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.err, err)
		}
	}
}
