package util

import (
	"sync"
	"time"
)

// LimiterRegistry hands out one Limiter per key, usually a client IP, and forgets
// keys that stay idle for longer than ttl.
type LimiterRegistry struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     float64
	burst    int
	ttl      time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

type limiterEntry struct {
	limiter  *Limiter
	lastUsed time.Time
}

func NewLimiterRegistry(r float64, b int, ttl time.Duration) *LimiterRegistry {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	reg := &LimiterRegistry{
		limiters: make(map[string]*limiterEntry),
		rate:     r,
		burst:    b,
		ttl:      ttl,
		stop:     make(chan struct{}),
	}
	go reg.cleanupLoop()
	return reg
}

func (r *LimiterRegistry) Get(key string) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: NewLimiter(r.rate, r.burst)}
		r.limiters[key] = entry
	}
	entry.lastUsed = time.Now()
	return entry.limiter
}

// Allow takes one token from key's bucket without blocking.
func (r *LimiterRegistry) Allow(key string) bool {
	return r.Get(key).Allow(1)
}

// SetRate applies a new rate to existing and future limiters.
func (r *LimiterRegistry) SetRate(rate float64, burst int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rate = rate
	r.burst = burst
	for _, entry := range r.limiters {
		entry.limiter.SetRate(rate, burst)
	}
}

func (r *LimiterRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}

// Close stops the cleanup goroutine.
func (r *LimiterRegistry) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *LimiterRegistry) cleanupLoop() {
	ticker := time.NewTicker(r.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.cleanup()
		}
	}
}

func (r *LimiterRegistry) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for key, entry := range r.limiters {
		if now.Sub(entry.lastUsed) > r.ttl {
			delete(r.limiters, key)
		}
	}
}
