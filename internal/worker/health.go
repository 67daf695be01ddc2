package worker

import (
	"context"
	"sync"
	"time"

	"bip-service/internal/util"

	"go.uber.org/zap"
)

// Pinger is a dependency that answers a connectivity probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthMonitor probes dependencies periodically and keeps the last result.
type HealthMonitor struct {
	deps     map[string]Pinger
	interval time.Duration
	timeout  time.Duration

	mu     sync.RWMutex
	status map[string]bool
}

// NewHealthMonitor creates a monitor over the named dependencies.
func NewHealthMonitor(deps map[string]Pinger, interval time.Duration) *HealthMonitor {
	return &HealthMonitor{
		deps:     deps,
		interval: positiveInterval(interval),
		timeout:  5 * time.Second,
		status:   make(map[string]bool, len(deps)),
	}
}

// Start probes once right away and then every interval.
func (m *HealthMonitor) Start(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.Probe(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Probe pings every dependency and records the result.
func (m *HealthMonitor) Probe(ctx context.Context) {
	for name, dep := range m.deps {
		pctx, cancel := context.WithTimeout(ctx, m.timeout)
		err := dep.Ping(pctx)
		cancel()

		up := err == nil
		if up {
			util.DependencyUp.WithLabelValues(name).Set(1)
		} else {
			util.DependencyUp.WithLabelValues(name).Set(0)
			util.GetLogger().Warn("Dependency probe failed", zap.String("dependency", name), zap.Error(err))
		}

		m.mu.Lock()
		m.status[name] = up
		m.mu.Unlock()
	}
}

// Status returns a copy of the last probe results.
func (m *HealthMonitor) Status() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(m.status))
	for k, v := range m.status {
		out[k] = v
	}
	return out
}
