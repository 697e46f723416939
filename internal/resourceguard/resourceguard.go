// Package resourceguard enforces static admission-control limits — the
// connection/CPU/memory/goroutine safety valves that sit in front of every
// WebSocket upgrade — adapted from the donor's ResourceGuard. Unlike the
// donor, this guard carries no Kafka-consumption rate limiter: this server
// originates events rather than consuming them from a broker (see
// internal/auditstream for the producer-direction Kafka wiring).
package resourceguard

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/adred-codev/pulsewire/internal/metrics"
	"github.com/adred-codev/pulsewire/internal/platform"
)

// Config carries the static limits and thresholds the guard enforces.
type Config struct {
	MaxConnections      int
	MaxGoroutines       int
	MemoryLimit         int64
	CPURejectThreshold  float64
	CPUPauseThreshold   float64
	MaxBroadcastsPerSec int
}

// GoroutineLimiter bounds concurrent goroutines with a semaphore.
type GoroutineLimiter struct {
	sem chan struct{}
	max int
}

// NewGoroutineLimiter returns a limiter admitting at most max concurrent
// holders.
func NewGoroutineLimiter(max int) *GoroutineLimiter {
	return &GoroutineLimiter{sem: make(chan struct{}, max), max: max}
}

// Acquire attempts to reserve a slot, returning false if at capacity.
func (g *GoroutineLimiter) Acquire() bool {
	select {
	case g.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees a previously acquired slot.
func (g *GoroutineLimiter) Release() { <-g.sem }

// Current returns the number of currently held slots.
func (g *GoroutineLimiter) Current() int { return len(g.sem) }

// Guard enforces connection admission and broadcast rate limits based on
// static configuration plus periodically sampled CPU/memory usage.
type Guard struct {
	config Config
	logger zerolog.Logger

	broadcastLimiter *rate.Limiter
	goroutines       *GoroutineLimiter
	cpuMonitor       *platform.CPUMonitor

	currentCPU    atomic.Value // float64
	currentMemory atomic.Value // int64

	currentConns *int64

	// m, when non-nil, receives every sample UpdateResources takes so
	// /metrics reports the same CPU/memory/goroutine numbers the admission
	// checks above see.
	m *metrics.Registry
}

// New builds a Guard. currentConns must point at the server's live
// connection counter (updated via atomic ops by the caller). m may be nil,
// in which case sampled resource usage is tracked internally but never
// exported to Prometheus.
func New(cfg Config, logger zerolog.Logger, currentConns *int64, m *metrics.Registry) *Guard {
	g := &Guard{
		config:           cfg,
		logger:           logger,
		broadcastLimiter: rate.NewLimiter(rate.Limit(cfg.MaxBroadcastsPerSec), cfg.MaxBroadcastsPerSec*2),
		goroutines:       NewGoroutineLimiter(cfg.MaxGoroutines),
		cpuMonitor:       platform.NewCPUMonitor(logger),
		currentConns:     currentConns,
		m:                m,
	}
	g.currentCPU.Store(0.0)
	g.currentMemory.Store(int64(0))

	logger.Info().
		Str("cpu_mode", g.cpuMonitor.Mode()).
		Float64("cpu_allocation", g.cpuMonitor.GetAllocation()).
		Int("max_connections", cfg.MaxConnections).
		Int("max_goroutines", cfg.MaxGoroutines).
		Msg("resource guard initialized")
	return g
}

// ShouldAcceptConnection runs the admission checks in order: hard
// connection limit, CPU emergency brake, memory emergency brake,
// goroutine ceiling.
func (g *Guard) ShouldAcceptConnection() (accept bool, reason string) {
	conns := atomic.LoadInt64(g.currentConns)
	cpuPct := g.currentCPU.Load().(float64)
	memBytes := g.currentMemory.Load().(int64)
	goroutines := runtime.NumGoroutine()

	if conns >= int64(g.config.MaxConnections) {
		return false, fmt.Sprintf("at max connections (%d)", g.config.MaxConnections)
	}
	if cpuPct > g.config.CPURejectThreshold {
		return false, fmt.Sprintf("CPU %.1f%% > %.1f%%", cpuPct, g.config.CPURejectThreshold)
	}
	if g.config.MemoryLimit > 0 && memBytes > g.config.MemoryLimit {
		return false, "memory limit exceeded"
	}
	if goroutines > g.config.MaxGoroutines {
		return false, fmt.Sprintf("goroutine limit exceeded (%d > %d)", goroutines, g.config.MaxGoroutines)
	}
	return true, "OK"
}

// AllowBroadcast reports whether a broadcast/publish operation may proceed
// under the configured rate limit.
func (g *Guard) AllowBroadcast() bool {
	return g.broadcastLimiter.Allow()
}

// AcquireGoroutine reserves a goroutine slot; the caller must call
// ReleaseGoroutine when the goroutine ends.
func (g *Guard) AcquireGoroutine() bool { return g.goroutines.Acquire() }

// ReleaseGoroutine frees a goroutine slot.
func (g *Guard) ReleaseGoroutine() { g.goroutines.Release() }

// UpdateResources resamples CPU and memory usage. Call this periodically
// (see StartMonitoring).
func (g *Guard) UpdateResources() {
	cpuPct, _, err := g.cpuMonitor.GetPercent()
	if err != nil {
		cpuPct = 0
	}
	g.currentCPU.Store(cpuPct)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	g.currentMemory.Store(int64(mem.Alloc))

	if g.m != nil {
		g.m.CPUPercent.Set(cpuPct)
		g.m.MemoryBytes.Set(float64(mem.Alloc))
		g.m.Goroutines.Set(float64(runtime.NumGoroutine()))
	}
}

// StartMonitoring runs UpdateResources on interval until ctx-like stop is
// signaled via the returned stop function.
func (g *Guard) StartMonitoring(interval time.Duration) (stop func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				g.UpdateResources()
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

// Snapshot returns the current resource state, for health/debug endpoints.
func (g *Guard) Snapshot() map[string]any {
	return map[string]any{
		"max_connections":     g.config.MaxConnections,
		"current_connections": atomic.LoadInt64(g.currentConns),
		"cpu_percent":         g.currentCPU.Load().(float64),
		"memory_bytes":        g.currentMemory.Load().(int64),
		"goroutines_current":  runtime.NumGoroutine(),
		"goroutines_limit":    g.config.MaxGoroutines,
	}
}
