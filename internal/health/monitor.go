// Package health probes ledger network endpoints and feeds the observed
// gas fee and latency to the settlement engine.
package health

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/model"
)

// Config holds network monitor configuration.
type Config struct {
	Endpoints     []string
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// NetworkUpdater receives the aggregated signal after every round.
type NetworkUpdater interface {
	UpdateNetworkStatus(ctx context.Context, s model.NetworkSignal)
}

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(endpoint string, success bool, latency time.Duration)

// TransitionFunc is called when an endpoint becomes degraded or recovers.
type TransitionFunc func(ctx context.Context, endpoint string, degraded bool)

// feeResponse is what a ledger status endpoint returns.
type feeResponse struct {
	GasFee uint64 `json:"gas_fee"`
}

// Monitor runs periodic probes against the configured endpoints.
type Monitor struct {
	updater      NetworkUpdater
	httpClient   *http.Client
	failCounts   map[string]int
	mu           sync.Mutex
	cfg          Config
	onMetrics    MetricsRecordFunc
	onTransition TransitionFunc
	logger       *zap.Logger
}

// New creates a new Monitor.
func New(updater NetworkUpdater, cfg Config, logger *zap.Logger) *Monitor {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}

	return &Monitor{
		updater:    updater,
		httpClient: &http.Client{Timeout: cfg.ProbeTimeout},
		failCounts: make(map[string]int),
		cfg:        cfg,
		logger:     logger,
	}
}

// SetMetricsRecord configures the metrics recording callback.
func (m *Monitor) SetMetricsRecord(fn MetricsRecordFunc) {
	m.onMetrics = fn
}

// SetTransition configures the degraded/recovered callback.
func (m *Monitor) SetTransition(fn TransitionFunc) {
	m.onTransition = fn
}

// Start runs the probe loop until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			roundCtx, cancel := context.WithTimeout(ctx, m.cfg.CheckInterval)
			m.CheckAll(roundCtx)
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

type probeResult struct {
	ok      bool
	gasFee  uint64
	latency time.Duration
}

// CheckAll probes every endpoint with bounded concurrency and reports the
// worst observation. An endpoint at its failure threshold counts as a probe
// that timed out, so a dead ledger reads as unhealthy.
func (m *Monitor) CheckAll(ctx context.Context) (model.NetworkSignal, bool) {
	if len(m.cfg.Endpoints) == 0 {
		return model.NetworkSignal{}, false
	}

	sem := make(chan struct{}, 10)
	var wg sync.WaitGroup
	var resMu sync.Mutex
	var worst model.NetworkSignal

	for _, ep := range m.cfg.Endpoints {
		wg.Add(1)
		go func(endpoint string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res := m.probe(ctx, endpoint)
			if m.onMetrics != nil {
				m.onMetrics(endpoint, res.ok, res.latency)
			}

			m.mu.Lock()
			prevCount := m.failCounts[endpoint]
			if res.ok {
				m.failCounts[endpoint] = 0
			} else {
				m.failCounts[endpoint]++
			}
			count := m.failCounts[endpoint]
			m.mu.Unlock()

			switch {
			case res.ok && prevCount >= m.cfg.FailThreshold:
				m.logger.Info("health: recovered", zap.String("endpoint", endpoint))
				if m.onTransition != nil {
					m.onTransition(ctx, endpoint, false)
				}
			case !res.ok && count == m.cfg.FailThreshold:
				m.logger.Warn("health: degraded",
					zap.String("endpoint", endpoint),
					zap.Int("fail_count", count),
				)
				if m.onTransition != nil {
					m.onTransition(ctx, endpoint, true)
				}
			}

			if !res.ok {
				if count < m.cfg.FailThreshold {
					return
				}
				res.latency = m.cfg.ProbeTimeout
			}

			resMu.Lock()
			worst.GasFee = max(worst.GasFee, res.gasFee)
			worst.Latency = max(worst.Latency, res.latency)
			resMu.Unlock()
		}(ep)
	}
	wg.Wait()

	worst.ObservedAt = time.Now().UTC()
	if m.updater != nil {
		m.updater.UpdateNetworkStatus(ctx, worst)
	}
	return worst, true
}

// probe GETs the endpoint, timing the round trip and reading the gas fee.
func (m *Monitor) probe(ctx context.Context, endpoint string) probeResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return probeResult{}
	}
	start := time.Now()
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return probeResult{}
	}
	defer resp.Body.Close()
	latency := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return probeResult{latency: latency}
	}
	var fee feeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&fee); err != nil {
		m.logger.Debug("health: fee response", zap.String("endpoint", endpoint), zap.Error(err))
		return probeResult{latency: latency}
	}
	return probeResult{ok: true, gasFee: fee.GasFee, latency: latency}
}
