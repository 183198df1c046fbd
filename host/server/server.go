// Package server exposes the capture device over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"golang.org/x/time/rate"

	"rcadc/capture"
	"rcadc/host/mcu"
)

// Device is the subset of the MCU client the server uses.
type Device interface {
	ReadSamplesRetry(ctx context.Context, n int, b backoff.BackOff) ([]byte, error)
	Calibration(ctx context.Context) (mcu.Calibration, error)
	Stats(ctx context.Context) (capture.Stats, error)
}

// Config controls request pacing.
type Config struct {
	MaxRead         int
	ReadsPerSecond  float64
	Burst           int
	RetryMaxElapsed time.Duration
}

// Server serves /samples, /calibration and /stats. The device has
// exactly one reader, so requests are serialized.
type Server struct {
	dev     Device
	cfg     Config
	limiter *rate.Limiter

	mu sync.Mutex
}

// New returns a server for dev.
func New(dev Device, cfg Config) *Server {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.MaxRead <= 0 {
		cfg.MaxRead = capture.DefaultConfig().MaxRead
	}
	lim := rate.Limit(cfg.ReadsPerSecond)
	if cfg.ReadsPerSecond <= 0 {
		lim = rate.Inf
	}
	return &Server{
		dev:     dev,
		cfg:     cfg,
		limiter: rate.NewLimiter(lim, cfg.Burst),
	}
}

// Routes builds the router.
func (s *Server) Routes() chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	root.Get("/samples", s.handleSamples)
	root.Get("/calibration", s.handleCalibration)
	root.Get("/stats", s.handleStats)
	return root
}

// Samples is the /samples response body.
type Samples struct {
	N int   `json:"n"`
	A []int `json:"a"`
	B []int `json:"b"`
}

func (s *Server) parseCount(r *http.Request) (int, error) {
	q := r.URL.Query().Get("n")
	if q == "" {
		return s.cfg.MaxRead, nil
	}
	n, err := strconv.Atoi(q)
	if err != nil {
		return 0, fmt.Errorf("n: %w", err)
	}
	switch {
	case n <= 0:
		return 0, errors.New("n must be positive")
	case n%2 != 0:
		return 0, capture.ErrOddLength
	case n > s.cfg.MaxRead:
		return 0, capture.ErrRequestTooLarge
	}
	return n, nil
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	n, err := s.parseCount(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !s.limiter.Allow() {
		http.Error(w, "read rate exceeded", http.StatusTooManyRequests)
		return
	}

	s.mu.Lock()
	block, err := s.dev.ReadSamplesRetry(r.Context(), n, mcu.DefaultBackOff(s.cfg.RetryMaxElapsed))
	s.mu.Unlock()
	if err != nil {
		code := http.StatusInternalServerError
		if capture.Retryable(err) || errors.Is(err, capture.ErrNotReady) {
			code = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), code)
		return
	}

	a, b := mcu.Split(block)
	resp := Samples{N: len(a), A: make([]int, len(a)), B: make([]int, len(b))}
	for i := range a {
		resp.A[i] = int(a[i])
		resp.B[i] = int(b[i])
	}
	writeJSON(w, resp)
}

func (s *Server) handleCalibration(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cal, err := s.dev.Calibration(r.Context())
	s.mu.Unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, struct {
		OffsetA int    `json:"offset_a"`
		OffsetB int    `json:"offset_b"`
		Mask    uint32 `json:"mask"`
		Phase   int    `json:"phase"`
		Ready   bool   `json:"ready"`
	}{cal.OffsetA, cal.OffsetB, cal.Mask, cal.Phase, cal.Ready})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	st, err := s.dev.Stats(r.Context())
	s.mu.Unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, struct {
		Reads    uint32 `json:"reads"`
		Tears    uint32 `json:"tears"`
		Timeouts uint32 `json:"timeouts"`
		Rejects  uint32 `json:"rejects"`
	}{st.Reads, st.Tears, st.Timeouts, st.Rejects})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
