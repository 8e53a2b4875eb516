package net

import (
	"sync"
	"time"
)

// healthConfig tunes the exponential moving averages and the unhealthy
// cooldown window for a single server.
type healthConfig struct {
	// Alpha is the EWMA smoothing factor for both latency and failure rate.
	Alpha float64
	// FailureRateThreshold marks a server unhealthy once its smoothed
	// failure rate exceeds this value.
	FailureRateThreshold float64
	// Cooldown is how long a server stays skipped after being marked unhealthy.
	Cooldown time.Duration
}

func defaultHealthConfig() healthConfig {
	return healthConfig{
		Alpha:                0.3,
		FailureRateThreshold: 0.5,
		Cooldown:             60 * time.Second,
	}
}

// serverHealth tracks rolling health for one server.
type serverHealth struct {
	mu sync.Mutex

	cfg healthConfig

	latencyEWMA     time.Duration
	failureRateEWMA float64
	samples         int

	unhealthySince time.Time
}

func newServerHealth(cfg healthConfig) *serverHealth {
	return &serverHealth{cfg: cfg}
}

// Record folds one operation's outcome into the moving averages.
func (h *serverHealth) Record(latency time.Duration, failed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	outcome := 0.0
	if failed {
		outcome = 1.0
	}

	if h.samples == 0 {
		h.latencyEWMA = latency
		h.failureRateEWMA = outcome
	} else {
		h.latencyEWMA = time.Duration(h.cfg.Alpha*float64(latency) + (1-h.cfg.Alpha)*float64(h.latencyEWMA))
		h.failureRateEWMA = h.cfg.Alpha*outcome + (1-h.cfg.Alpha)*h.failureRateEWMA
	}
	h.samples++

	if h.failureRateEWMA > h.cfg.FailureRateThreshold {
		if h.unhealthySince.IsZero() {
			h.unhealthySince = time.Now()
		}
	} else {
		h.unhealthySince = time.Time{}
	}
}

// Healthy reports whether the server should currently be used. A server
// marked unhealthy stays skipped until the cooldown window elapses, at
// which point it is given another chance.
func (h *serverHealth) Healthy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.unhealthySince.IsZero() {
		return true
	}
	return time.Since(h.unhealthySince) >= h.cfg.Cooldown
}

func (h *serverHealth) Snapshot() (latency time.Duration, failureRate float64, healthy bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latencyEWMA, h.failureRateEWMA, h.unhealthySince.IsZero() || time.Since(h.unhealthySince) >= h.cfg.Cooldown
}
