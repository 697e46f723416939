// Package ratelimit provides connection-admission rate limiting, adapted
// from the donor's ConnectionRateLimiter: a two-level token bucket (per-IP
// and global) guarding against connection-flood DoS.
package ratelimit

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ConnectionLimiterConfig configures a ConnectionLimiter.
type ConnectionLimiterConfig struct {
	IPBurst     int
	IPRate      float64
	IPTTL       time.Duration
	GlobalBurst int
	GlobalRate  float64
	Logger      zerolog.Logger
}

type ipEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// ConnectionLimiter enforces a global connection-attempt rate and a
// per-source-IP rate, both token-bucket based.
type ConnectionLimiter struct {
	ipMu    sync.RWMutex
	ipRate  float64
	ipBurst int
	ipTTL   time.Duration
	ips     map[string]*ipEntry

	global *rate.Limiter

	logger        zerolog.Logger
	cleanupTicker *time.Ticker
	stop          chan struct{}
}

// NewConnectionLimiter builds a ConnectionLimiter and starts its background
// stale-entry cleanup loop.
func NewConnectionLimiter(cfg ConnectionLimiterConfig) *ConnectionLimiter {
	if cfg.IPBurst == 0 {
		cfg.IPBurst = 10
	}
	if cfg.IPRate == 0 {
		cfg.IPRate = 1.0
	}
	if cfg.IPTTL == 0 {
		cfg.IPTTL = 5 * time.Minute
	}
	if cfg.GlobalBurst == 0 {
		cfg.GlobalBurst = 300
	}
	if cfg.GlobalRate == 0 {
		cfg.GlobalRate = 50.0
	}

	l := &ConnectionLimiter{
		ipRate:  cfg.IPRate,
		ipBurst: cfg.IPBurst,
		ipTTL:   cfg.IPTTL,
		ips:     make(map[string]*ipEntry),
		global:  rate.NewLimiter(rate.Limit(cfg.GlobalRate), cfg.GlobalBurst),
		logger:  cfg.Logger.With().Str("component", "connection_limiter").Logger(),
		stop:    make(chan struct{}),
	}

	l.cleanupTicker = time.NewTicker(time.Minute)
	go l.cleanupLoop()

	return l
}

// Allow reports whether a new connection attempt from ip should proceed.
// The global limit is checked first (no map lookup needed to reject a
// system-wide flood), then the per-IP limit.
func (l *ConnectionLimiter) Allow(ip string) bool {
	if !l.global.Allow() {
		l.logger.Debug().Str("ip", ip).Msg("connection rejected: global rate limit exceeded")
		return false
	}
	if !l.ipLimiter(ip).Allow() {
		l.logger.Debug().Str("ip", ip).Msg("connection rejected: per-IP rate limit exceeded")
		return false
	}
	return true
}

func (l *ConnectionLimiter) ipLimiter(ip string) *rate.Limiter {
	l.ipMu.RLock()
	entry, ok := l.ips[ip]
	l.ipMu.RUnlock()
	if ok {
		l.ipMu.Lock()
		entry.lastAccess = time.Now()
		l.ipMu.Unlock()
		return entry.limiter
	}

	l.ipMu.Lock()
	defer l.ipMu.Unlock()
	if entry, ok := l.ips[ip]; ok {
		entry.lastAccess = time.Now()
		return entry.limiter
	}
	limiter := rate.NewLimiter(rate.Limit(l.ipRate), l.ipBurst)
	l.ips[ip] = &ipEntry{limiter: limiter, lastAccess: time.Now()}
	return limiter
}

func (l *ConnectionLimiter) cleanupLoop() {
	for {
		select {
		case <-l.cleanupTicker.C:
			l.cleanup()
		case <-l.stop:
			l.cleanupTicker.Stop()
			return
		}
	}
}

func (l *ConnectionLimiter) cleanup() {
	l.ipMu.Lock()
	defer l.ipMu.Unlock()
	now := time.Now()
	for ip, entry := range l.ips {
		if now.Sub(entry.lastAccess) > l.ipTTL {
			delete(l.ips, ip)
		}
	}
}

// Stop ends the background cleanup loop.
func (l *ConnectionLimiter) Stop() {
	close(l.stop)
}

// TrackedIPs returns the number of IPs with a live rate-limiter entry, for
// debugging/health endpoints.
func (l *ConnectionLimiter) TrackedIPs() int {
	l.ipMu.RLock()
	defer l.ipMu.RUnlock()
	return len(l.ips)
}
