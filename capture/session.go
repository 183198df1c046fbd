package capture

import "strconv"

// Session owns a running capture: the region, the hardware producing into
// it, the calibration and the reader.
type Session struct {
	cfg    Config
	hw     Hardware
	region *Region
	cal    Calibration
	reader *Reader
	log    Logger

	syncAttempts int
	closed       bool
}

// Option configures a Session.
type Option func(*Session)

// WithLogger routes session diagnostics to log.
func WithLogger(log Logger) Option {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

// Start brings a capture up: it allocates and builds the region, starts DMA,
// locks the channel clocks, calibrates the ring offsets and prepares the
// reader. On failure everything acquired so far is stopped and released.
func Start(hw Hardware, cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{cfg: cfg, hw: hw, log: nopLogger}
	for _, opt := range opts {
		opt(s)
	}

	words, err := hw.Allocate(NewLayout(cfg).Words())
	if err != nil {
		return nil, err
	}
	s.region, err = NewRegion(words, cfg)
	if err != nil {
		hw.Release()
		return nil, err
	}
	if err := s.region.Build(hw); err != nil {
		hw.Release()
		return nil, err
	}
	if err := hw.StartCapture(s.region); err != nil {
		hw.StopCapture()
		hw.Release()
		return nil, err
	}

	s.syncAttempts, err = SyncClocks(hw, cfg, s.log)
	if err != nil {
		s.teardown()
		return nil, err
	}

	s.cal, err = Calibrate(hw, s.region, cfg, s.log)
	if err != nil {
		s.log("[CAL] failed: " + err.Error())
		s.teardown()
		return nil, err
	}

	s.reader = NewReader(s.region, hw, s.cal, cfg, s.log)
	s.log("[CAPTURE] ready, " + strconv.Itoa(cfg.SamplesPerHalf()) + " samples per half")
	return s, nil
}

func (s *Session) teardown() {
	s.hw.StopCapture()
	s.hw.Discharge(true)
	s.hw.Release()
	s.region = nil
	s.closed = true
}

// Read reads the next half. See Reader.Read.
func (s *Session) Read(dst []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	return s.reader.Read(dst)
}

// Calibration returns the offsets found at startup.
func (s *Session) Calibration() Calibration {
	return s.cal
}

// Stats returns the reader counters.
func (s *Session) Stats() Stats {
	if s.reader == nil {
		return Stats{}
	}
	return s.reader.Stats()
}

// SyncAttempts returns how many clock perturbations startup needed.
func (s *Session) SyncAttempts() int {
	return s.syncAttempts
}

// Config returns the session's configuration.
func (s *Session) Config() Config {
	return s.cfg
}

// Close halts DMA before releasing the region. Closing twice is a no-op.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.teardown()
	return nil
}
