package settlement

import (
	"context"
	"time"

	"github.com/PNWBNW/Proven-National-Worker/internal/model"
)

// Thresholds at or above which the network is unhealthy.
type Thresholds struct {
	MaxGasFee  uint64
	MaxLatency time.Duration
}

// DefaultThresholds escalate at a gas fee of 100 or 500ms latency.
var DefaultThresholds = Thresholds{MaxGasFee: 100, MaxLatency: 500 * time.Millisecond}

// Healthy reports whether s is below both thresholds.
func (t Thresholds) Healthy(s model.NetworkSignal) bool {
	return s.GasFee < t.MaxGasFee && s.Latency < t.MaxLatency
}

// UpdateNetworkStatus records the latest observed network signal. Requests
// without an explicit signal are judged against it.
func (e *Engine) UpdateNetworkStatus(_ context.Context, s model.NetworkSignal) {
	if s.ObservedAt.IsZero() {
		s.ObservedAt = e.now()
	}
	e.netMu.Lock()
	e.network = &s
	e.netMu.Unlock()

	if e.onNetwork != nil {
		e.onNetwork(s, e.cfg.Thresholds.Healthy(s))
	}
}

// NetworkStatus returns the latest signal and whether one was ever observed.
func (e *Engine) NetworkStatus() (model.NetworkSignal, bool) {
	e.netMu.RLock()
	defer e.netMu.RUnlock()
	if e.network == nil {
		return model.NetworkSignal{}, false
	}
	return *e.network, true
}

// NetworkHealthy reports the health of the latest signal. With no
// observation the network is presumed healthy.
func (e *Engine) NetworkHealthy() bool {
	s, ok := e.NetworkStatus()
	return !ok || e.cfg.Thresholds.Healthy(s)
}

// signal picks the explicit signal or falls back to the latest observed.
func (e *Engine) signal(explicit *model.NetworkSignal) *model.NetworkSignal {
	if explicit != nil {
		return explicit
	}
	if s, ok := e.NetworkStatus(); ok {
		return &s
	}
	return nil
}
